package l1submit

import (
	"testing"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
)

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CommitteeSize = 4 // threshold = 4*2/3+1 = 3
	cfg.L1SubmissionDeadlineMs = 18000
	cfg.AztecSlotDurationSeconds = 36
	cfg.EthereumSlotDurationSeconds = 12
	return cfg
}

func attestationEvent(proposer, attester string, timeMs float64) eventlog.Event {
	return eventlog.Event{
		TimeMs:  timeMs,
		Kind:    eventlog.AttestationReceivedP2P,
		Subject: proposer,
		Data:    map[string]any{"attester": attester},
	}
}

func TestProcessSuccess(t *testing.T) {
	cfg := baseConfig()
	proposer := "validator_0000"
	events := []eventlog.Event{
		attestationEvent(proposer, "validator_0001", 500),
		attestationEvent(proposer, "validator_0002", 800),
	}
	out := Process(cfg, 0, 0, proposer, events)
	if len(out) != 2 {
		t.Fatalf("expected submission + finalized, got %d events", len(out))
	}
	if out[0].Data["status"] != "success" {
		t.Fatalf("expected success, got %+v", out[0].Data)
	}
	if out[1].Kind != eventlog.L1Finalized {
		t.Errorf("expected L1Finalized, got %v", out[1].Kind)
	}
}

func TestProcessInsufficientAttestations(t *testing.T) {
	cfg := baseConfig()
	proposer := "validator_0000"
	events := []eventlog.Event{
		attestationEvent(proposer, "validator_0001", 500),
	}
	out := Process(cfg, 0, 0, proposer, events)
	if len(out) != 1 {
		t.Fatalf("expected only a failed submission, got %d events", len(out))
	}
	if out[0].Data["failure_reason"] != ReasonInsufficientAttestations {
		t.Errorf("got failure_reason %v, want %v", out[0].Data["failure_reason"], ReasonInsufficientAttestations)
	}
}

func TestProcessDedupKeepsEarliest(t *testing.T) {
	cfg := baseConfig()
	proposer := "validator_0000"
	events := []eventlog.Event{
		attestationEvent(proposer, "validator_0001", 900),
		attestationEvent(proposer, "validator_0001", 400), // duplicate delivery, earlier
		attestationEvent(proposer, "validator_0002", 500),
	}
	out := Process(cfg, 0, 0, proposer, events)
	submission := out[0]
	count := submission.Data["attestation_count"]
	if count != 3 { // proposer + 0001 + 0002, deduped
		t.Errorf("expected 3 deduped attesters, got %v", count)
	}
}

func TestProcessDiscardsAfterDeadline(t *testing.T) {
	cfg := baseConfig()
	cfg.L1SubmissionDeadlineMs = 1000
	proposer := "validator_0000"
	events := []eventlog.Event{
		attestationEvent(proposer, "validator_0001", 1500),
		attestationEvent(proposer, "validator_0002", 1600),
	}
	out := Process(cfg, 0, 0, proposer, events)
	if out[0].Data["failure_reason"] != ReasonInsufficientAttestations {
		t.Errorf("expected insufficient_attestations after deadline filtering, got %+v", out[0].Data)
	}
}

func TestProcessInclusionTooLate(t *testing.T) {
	cfg := baseConfig()
	cfg.AztecSlotDurationSeconds = 12 // slot_duration 12000ms, very tight
	proposer := "validator_0000"
	events := []eventlog.Event{
		attestationEvent(proposer, "validator_0001", 9000),
		attestationEvent(proposer, "validator_0002", 9500),
	}
	out := Process(cfg, 0, 0, proposer, events)
	if out[0].Data["status"] != "failed" {
		t.Fatalf("expected failed status, got %+v", out[0].Data)
	}
	if len(out) != 1 {
		t.Errorf("no L1Finalized expected on failure, got %d events", len(out))
	}
}
