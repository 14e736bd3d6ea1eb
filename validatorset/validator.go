// Package validatorset implements the per-validator behaviour state
// machine: online/offline transitions and the propose/attest decisions
// each profile makes under the three Bernoulli/Gaussian parameter
// bundles defined in the configuration.
package validatorset

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/crypto"
)

// Profile is the fixed behavioural archetype assigned to a validator at
// creation.
type Profile int

const (
	Honest Profile = iota
	Lazy
	Byzantine
)

func (p Profile) String() string {
	switch p {
	case Honest:
		return "honest"
	case Lazy:
		return "lazy"
	case Byzantine:
		return "byzantine"
	default:
		return "unknown"
	}
}

// processingFloorMs is the minimum time before an attestation deadline
// below which a validator can no longer attest in time.
const processingFloorMs = 500.0

// minResponseDelayMs is the floor applied to sampled response delays.
const minResponseDelayMs = 100.0

// Validator is one committee-eligible participant: its fixed profile and
// rates, its mutable online status, and its own independent PRNG so that
// behavioural draws never interact with topology/committee randomness.
type Validator struct {
	ID        string
	Index     int
	Profile   Profile
	Rates     config.ProfileRates
	IsOnline  bool
	IsPrivate bool

	rng *rand.Rand
}

// newValidator creates validator i with the given profile, seeding its
// private PRNG with base_seed + index as required for determinism, and
// immediately draws its fixed IsPrivate status.
func newValidator(i int, baseSeed int64, profile Profile, rates config.ProfileRates) *Validator {
	v := &Validator{
		ID:       fmt.Sprintf("validator_%04d", i),
		Index:    i,
		Profile:  profile,
		Rates:    rates,
		IsOnline: true,
		rng:      rand.New(rand.NewSource(baseSeed + int64(i))),
	}
	v.IsPrivate = v.rng.Float64() < rates.PrivatePeerProb
	return v
}

// Set is the full pool of validators, indexed by ID for O(1) lookup and
// kept in index order for deterministic iteration.
type Set struct {
	ByID  map[string]*Validator
	Order []*Validator
}

// NewSet constructs total_validators validators, assigning profiles to
// match the configured honest/lazy/byzantine ratios as closely as
// integer rounding allows. Profile assignment uses a dedicated PRNG
// seeded with base_seed (a topology/construction-time draw, distinct
// from each validator's own behavioural PRNG) so that shuffling the
// assignment never perturbs per-validator decisions.
func NewSet(cfg *config.Config) *Set {
	n := cfg.TotalValidators
	nHonest := int(float64(n)*cfg.HonestRatio + 0.5)
	nLazy := int(float64(n)*cfg.LazyRatio + 0.5)
	if nHonest+nLazy > n {
		nLazy = n - nHonest
	}
	nByz := n - nHonest - nLazy

	profiles := make([]Profile, 0, n)
	for i := 0; i < nHonest; i++ {
		profiles = append(profiles, Honest)
	}
	for i := 0; i < nLazy; i++ {
		profiles = append(profiles, Lazy)
	}
	for i := 0; i < nByz; i++ {
		profiles = append(profiles, Byzantine)
	}

	assignRng := rand.New(rand.NewSource(cfg.RandomSeed))
	fisherYatesShuffle(assignRng, profiles)

	ratesFor := func(p Profile) config.ProfileRates {
		switch p {
		case Honest:
			return cfg.Honest
		case Lazy:
			return cfg.Lazy
		default:
			return cfg.Byzantine
		}
	}

	s := &Set{ByID: make(map[string]*Validator, n), Order: make([]*Validator, 0, n)}
	for i := 0; i < n; i++ {
		v := newValidator(i, cfg.RandomSeed, profiles[i], ratesFor(profiles[i]))
		s.ByID[v.ID] = v
		s.Order = append(s.Order, v)
	}
	return s
}

// fisherYatesShuffle performs an explicit, platform-independent
// Fisher-Yates shuffle in place. Using this instead of a library
// shuffle pins the exact sequence of draws consumed from rng, which is
// part of the determinism contract.
func fisherYatesShuffle(rng *rand.Rand, xs []Profile) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// IDs returns every validator ID in index order.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.Order))
	for i, v := range s.Order {
		ids[i] = v.ID
	}
	return ids
}

// SortedIDs returns a freshly sorted copy of the given IDs.
func SortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// UpdateStatus runs the once-per-slot online/offline transition and
// returns true plus the new state if the validator flipped.
func (v *Validator) UpdateStatus() (flipped bool, nowOnline bool) {
	if v.IsOnline {
		if v.rng.Float64() < v.Rates.DowntimeProb {
			v.IsOnline = false
			return true, false
		}
		return false, true
	}
	if v.rng.Float64() < v.Rates.RecoveryProb {
		v.IsOnline = true
		return true, true
	}
	return false, false
}

// WillPropose decides whether the scheduled proposer creates a block
// this slot.
func (v *Validator) WillPropose(slot int) bool {
	if !v.IsOnline {
		return false
	}
	if v.Profile == Byzantine && slot%10 == 0 {
		return false
	}
	return v.rng.Float64() < v.Rates.ProposalRate
}

// TimeFactor returns the attestation-rate multiplier for the given
// remaining time to the deadline.
func TimeFactor(timeRemainingMs float64) float64 {
	switch {
	case timeRemainingMs < 1000:
		return 0.5
	case timeRemainingMs < 3000:
		return 0.8
	default:
		return 1.0
	}
}

// WillAttest decides whether a committee member attests to a received
// block, given the proposer of that block and the time remaining before
// the attestation deadline.
func (v *Validator) WillAttest(proposerID string, timeRemainingMs float64) bool {
	if !v.IsOnline {
		return false
	}
	if timeRemainingMs <= processingFloorMs {
		return false
	}
	if v.Profile == Byzantine && proposerHashMod5(proposerID) == 0 {
		return false
	}
	return v.rng.Float64() < v.Rates.AttestationRate*TimeFactor(timeRemainingMs)
}

// ResponseDelayMs draws this validator's attestation response latency
// from its profile's Gaussian, clamped to the 100ms floor.
func (v *Validator) ResponseDelayMs() float64 {
	d := v.Rates.ResponseMeanMs + v.rng.NormFloat64()*v.Rates.ResponseStdMs
	if d < minResponseDelayMs {
		return minResponseDelayMs
	}
	return d
}

// proposerHashMod5 implements the Byzantine selective-withholding rule:
// hash(proposer) mod 5 == 0.
func proposerHashMod5(proposerID string) int {
	h := crypto.HashBytes([]byte(proposerID))
	var acc uint32
	for _, b := range h[:4] {
		acc = acc<<8 | uint32(b)
	}
	return int(acc % 5)
}
