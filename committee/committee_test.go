package committee

import (
	"testing"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/validatorset"
)

func TestDrawDeterministicAcrossRuns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 100
	cfg.CommitteeSize = 48
	cfg.SlotsPerEpoch = 4
	cfg.RandomSeed = 42

	set := validatorset.NewSet(cfg)

	c1, err := Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	c2, err := Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	for i := range c1.Members {
		if c1.Members[i] != c2.Members[i] {
			t.Fatalf("members differ at %d: %s vs %s", i, c1.Members[i], c2.Members[i])
		}
	}
	for slot, p1 := range c1.ProposerSchedule {
		if p2 := c2.ProposerSchedule[slot]; p1 != p2 {
			t.Fatalf("proposer for slot %d differs: %s vs %s", slot, p1, p2)
		}
	}
}

func TestDrawProposerScheduleMembersOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 100
	cfg.CommitteeSize = 48
	cfg.SlotsPerEpoch = 32
	set := validatorset.NewSet(cfg)

	c, err := Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	for slot, proposer := range c.ProposerSchedule {
		if !c.IsMember(proposer) {
			t.Errorf("slot %d proposer %s is not a committee member", slot, proposer)
		}
	}
}

func TestDrawFailsOnSmallPool(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 10
	cfg.CommitteeSize = 10
	set := validatorset.NewSet(cfg)

	if _, err := Draw(cfg.RandomSeed, 0, 48, cfg.SlotsPerEpoch, set); err == nil {
		t.Error("expected error when committee_size exceeds pool size")
	}
}

func TestAttestersExcludesProposer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 50
	cfg.CommitteeSize = 16
	cfg.SlotsPerEpoch = 4
	set := validatorset.NewSet(cfg)
	c, err := Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	for slot := 0; slot < cfg.SlotsPerEpoch; slot++ {
		attesters := c.Attesters(slot)
		if len(attesters) != len(c.Members)-1 {
			t.Errorf("slot %d: got %d attesters want %d", slot, len(attesters), len(c.Members)-1)
		}
		proposer := c.ProposerSchedule[slot]
		for _, a := range attesters {
			if a == proposer {
				t.Errorf("slot %d: proposer %s should not be in attesters", slot, proposer)
			}
		}
	}
}
