// Package config holds the full simulation configuration, its defaults,
// and validation rules.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrConfigInvalid is returned by Validate when any field fails its
// invariant. Simulation construction must refuse to proceed when this
// is returned.
var ErrConfigInvalid = errors.New("config invalid")

// ProfileRates bundles the five Bernoulli rates and the two Gaussian
// response-delay parameters that fully describe one validator behaviour
// profile (honest, lazy, or byzantine).
type ProfileRates struct {
	ProposalRate     float64 `json:"proposal_rate"`
	AttestationRate  float64 `json:"attestation_rate"`
	DowntimeProb     float64 `json:"downtime_prob"`
	RecoveryProb     float64 `json:"recovery_prob"`
	PrivatePeerProb  float64 `json:"private_peer_prob"`
	ResponseMeanMs   float64 `json:"response_mean_ms"`
	ResponseStdMs    float64 `json:"response_std_ms"`
}

// Config is the full, flat simulation configuration. All fields are
// required unless a DefaultConfig value is documented below.
type Config struct {
	// Topology
	TotalValidators int     `json:"total_validators"`
	CommitteeSize   int     `json:"committee_size"`
	HonestRatio     float64 `json:"honest_ratio"`
	LazyRatio       float64 `json:"lazy_ratio"`
	ByzantineRatio  float64 `json:"byzantine_ratio"`

	// Timing
	SlotsPerEpoch            int `json:"slots_per_epoch"`
	EpochsToSimulate         int `json:"epochs_to_simulate"`
	AztecSlotDurationSeconds int `json:"aztec_slot_duration_seconds"`
	EthereumSlotDurationSeconds int `json:"ethereum_slot_duration_seconds"`
	L1SubmissionDeadlineMs   int `json:"l1_submission_deadline_ms"`

	// GossipSub
	D      int `json:"d"`
	DLo    int `json:"d_lo"`
	DHi    int `json:"d_hi"`
	DLazy  int `json:"d_lazy"`

	// Network
	BaseLatencyMs     float64 `json:"base_latency_ms"`
	LatencyVarianceMs float64 `json:"latency_variance_ms"`
	PacketLossRate    float64 `json:"packet_loss_rate"`

	// Per-profile behaviour
	Honest    ProfileRates `json:"honest"`
	Lazy      ProfileRates `json:"lazy"`
	Byzantine ProfileRates `json:"byzantine"`

	// Slashing
	RoundSize      int `json:"round_size"`
	LookbackEpochs int `json:"lookback_epochs"`

	RandomSeed int64 `json:"random_seed"`
}

// DefaultConfig returns a config with the spec's documented defaults.
// Every field is populated, including the topology and behaviour-ratio
// fields; callers typically start from this and override the fields
// they need.
func DefaultConfig() *Config {
	return &Config{
		TotalValidators:             100,
		CommitteeSize:               48,
		HonestRatio:                 0.7,
		LazyRatio:                   0.2,
		ByzantineRatio:              0.1,
		SlotsPerEpoch:               32,
		EpochsToSimulate:            1,
		AztecSlotDurationSeconds:    36,
		EthereumSlotDurationSeconds: 12,
		L1SubmissionDeadlineMs:      18000,
		D:                           8,
		DLo:                         6,
		DHi:                         12,
		DLazy:                       4,
		BaseLatencyMs:               100,
		LatencyVarianceMs:           30,
		PacketLossRate:              0.01,
		Honest: ProfileRates{
			ProposalRate: 0.98, AttestationRate: 0.98, DowntimeProb: 0.02,
			RecoveryProb: 0.9, PrivatePeerProb: 0.1,
			ResponseMeanMs: 500, ResponseStdMs: 100,
		},
		Lazy: ProfileRates{
			ProposalRate: 0.6, AttestationRate: 0.6, DowntimeProb: 0.15,
			RecoveryProb: 0.5, PrivatePeerProb: 0.2,
			ResponseMeanMs: 1200, ResponseStdMs: 400,
		},
		Byzantine: ProfileRates{
			ProposalRate: 0.9, AttestationRate: 0.3, DowntimeProb: 0.05,
			RecoveryProb: 0.8, PrivatePeerProb: 0.3,
			ResponseMeanMs: 800, ResponseStdMs: 300,
		},
		RoundSize:      50,
		LookbackEpochs: 50,
		RandomSeed:     42,
	}
}

// Load reads a JSON config file from path, applying DefaultConfig for any
// field the file omits, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks every inequality named in the external interface
// contract and returns the first violation, wrapped in ErrConfigInvalid.
func (c *Config) Validate() error {
	switch {
	case c.TotalValidators < c.CommitteeSize:
		return fmt.Errorf("%w: total_validators (%d) must be >= committee_size (%d)", ErrConfigInvalid, c.TotalValidators, c.CommitteeSize)
	case c.CommitteeSize < 1:
		return fmt.Errorf("%w: committee_size must be >= 1", ErrConfigInvalid)
	case math.Abs(c.HonestRatio+c.LazyRatio+c.ByzantineRatio-1.0) > 1e-3:
		return fmt.Errorf("%w: honest+lazy+byzantine ratios must sum to 1.0 (+-1e-3), got %f", ErrConfigInvalid, c.HonestRatio+c.LazyRatio+c.ByzantineRatio)
	case c.SlotsPerEpoch < 1:
		return fmt.Errorf("%w: slots_per_epoch must be >= 1", ErrConfigInvalid)
	case c.EpochsToSimulate < 1:
		return fmt.Errorf("%w: epochs_to_simulate must be >= 1", ErrConfigInvalid)
	case c.AztecSlotDurationSeconds < 12:
		return fmt.Errorf("%w: aztec_slot_duration_seconds must be >= 12", ErrConfigInvalid)
	case c.EthereumSlotDurationSeconds <= 0:
		return fmt.Errorf("%w: ethereum_slot_duration_seconds must be > 0", ErrConfigInvalid)
	case c.L1SubmissionDeadlineMs <= 0:
		return fmt.Errorf("%w: l1_submission_deadline_ms must be > 0", ErrConfigInvalid)
	case !(c.DLo <= c.D && c.D <= c.DHi):
		return fmt.Errorf("%w: must have d_lo (%d) <= d (%d) <= d_hi (%d)", ErrConfigInvalid, c.DLo, c.D, c.DHi)
	case c.DLazy < 0:
		return fmt.Errorf("%w: d_lazy must be >= 0", ErrConfigInvalid)
	case c.PacketLossRate < 0 || c.PacketLossRate > 1:
		return fmt.Errorf("%w: packet_loss_rate must be in [0,1]", ErrConfigInvalid)
	case c.RoundSize < 1:
		return fmt.Errorf("%w: round_size must be >= 1", ErrConfigInvalid)
	case c.LookbackEpochs < 1:
		return fmt.Errorf("%w: lookback_epochs must be >= 1", ErrConfigInvalid)
	}
	for name, p := range map[string]ProfileRates{"honest": c.Honest, "lazy": c.Lazy, "byzantine": c.Byzantine} {
		if err := validateRates(name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateRates(name string, p ProfileRates) error {
	rates := map[string]float64{
		"proposal_rate": p.ProposalRate, "attestation_rate": p.AttestationRate,
		"downtime_prob": p.DowntimeProb, "recovery_prob": p.RecoveryProb,
		"private_peer_prob": p.PrivatePeerProb,
	}
	for field, v := range rates {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s.%s must be in [0,1], got %f", ErrConfigInvalid, name, field, v)
		}
	}
	if p.ResponseMeanMs < 0 || p.ResponseStdMs < 0 {
		return fmt.Errorf("%w: %s response delay parameters must be >= 0", ErrConfigInvalid, name)
	}
	return nil
}

// SlotDurationMs returns the Aztec slot duration in milliseconds.
func (c *Config) SlotDurationMs() float64 {
	return float64(c.AztecSlotDurationSeconds) * 1000
}

// EthSlotDurationMs returns the Ethereum slot duration in milliseconds.
func (c *Config) EthSlotDurationMs() float64 {
	return float64(c.EthereumSlotDurationSeconds) * 1000
}

// TotalSlots returns the total number of Aztec slots across the run.
func (c *Config) TotalSlots() int {
	return c.SlotsPerEpoch * c.EpochsToSimulate
}

// Threshold returns the super-majority attester count required for a
// successful L1 submission: floor(committee_size*2/3) + 1.
func (c *Config) Threshold() int {
	return (c.CommitteeSize*2)/3 + 1
}
