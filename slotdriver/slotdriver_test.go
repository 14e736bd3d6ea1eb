package slotdriver

import (
	"testing"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/gossip"
	"github.com/aztecprotocol/slashsim/validatorset"
)

func happyPathConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 50
	cfg.CommitteeSize = 16
	cfg.HonestRatio, cfg.LazyRatio, cfg.ByzantineRatio = 0.7, 0.2, 0.1
	cfg.SlotsPerEpoch = 1
	cfg.EpochsToSimulate = 1
	cfg.BaseLatencyMs = 50
	cfg.LatencyVarianceMs = 20
	cfg.PacketLossRate = 0
	cfg.Honest.ResponseMeanMs, cfg.Honest.ResponseStdMs = 500, 100
	cfg.RandomSeed = 42
	return cfg
}

func buildDriver(cfg *config.Config) (*Driver, *eventlog.Store, *committee.Committee) {
	set := validatorset.NewSet(cfg)
	topo, _ := gossip.Build(cfg, set)
	store := eventlog.NewStore()
	c, err := committee.Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		panic(err)
	}
	store.Append(eventlog.Event{TimeMs: 0, Slot: 0, Kind: eventlog.SlotStart})
	return New(cfg, store, set, topo), store, c
}

func TestRunSlotHappyPathProposesAndSubmits(t *testing.T) {
	cfg := happyPathConfig()
	d, store, c := buildDriver(cfg)

	newHash, proposed := d.RunSlot(0, c, "genesis")
	if !proposed {
		t.Fatalf("expected a block to be proposed under the happy-path config")
	}
	if newHash == "genesis" || newHash == "" {
		t.Fatalf("expected last_block_hash to advance, got %q", newHash)
	}

	blockProposed := store.EventsByKind(eventlog.BlockProposed)
	if len(blockProposed) != 1 {
		t.Errorf("expected exactly one BlockProposed, got %d", len(blockProposed))
	}

	submissions := store.EventsByKind(eventlog.L1Submission)
	if len(submissions) != 1 {
		t.Fatalf("expected exactly one L1Submission, got %d", len(submissions))
	}
	if submissions[0].Data["status"] != "success" {
		t.Errorf("expected L1Submission status success, got %+v", submissions[0].Data)
	}

	finalized := store.EventsByKind(eventlog.L1Finalized)
	if len(finalized) != 1 {
		t.Errorf("expected exactly one L1Finalized, got %d", len(finalized))
	}

	attestations := store.EventsByKind(eventlog.AttestationCreated)
	if len(attestations) < 11 {
		t.Errorf("expected attestation_count >= 11, got %d", len(attestations))
	}
}

func TestRunSlotFullOfflineCommitteeNeverProposes(t *testing.T) {
	cfg := happyPathConfig()
	d, store, c := buildDriver(cfg)

	for _, id := range c.Members {
		v := d.set.ByID[id]
		v.Rates.DowntimeProb = 1.0
		v.Rates.RecoveryProb = 0.0
	}
	for _, id := range c.Members {
		d.set.ByID[id].IsOnline = false
	}

	_, proposed := d.RunSlot(0, c, "genesis")
	if proposed {
		t.Fatalf("expected no block proposed with the whole committee offline")
	}

	if n := len(store.EventsByKind(eventlog.BlockProposed)); n != 0 {
		t.Errorf("expected zero BlockProposed events, got %d", n)
	}
	if n := len(store.EventsByKind(eventlog.L1Submission)); n != 0 {
		t.Errorf("expected zero L1Submission events, got %d", n)
	}

	slotEnd := store.EventsByKind(eventlog.SlotEnd)
	if len(slotEnd) != 1 || slotEnd[0].Data["block_proposed"] != false {
		t.Errorf("expected SlotEnd.block_proposed=false, got %+v", slotEnd)
	}
}
