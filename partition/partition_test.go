package partition

import (
	"testing"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/gossip"
	"github.com/aztecprotocol/slashsim/validatorset"
)

func buildFixture(t *testing.T) (*Analyzer, *config.Config) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 20
	cfg.CommitteeSize = 8
	cfg.SlotsPerEpoch = 2
	cfg.EpochsToSimulate = 1
	cfg.D, cfg.DLo, cfg.DHi, cfg.DLazy = 6, 4, 10, 2

	set := validatorset.NewSet(cfg)
	topo, _ := gossip.Build(cfg, set)
	c, err := committee.Draw(cfg.RandomSeed, 0, cfg.CommitteeSize, cfg.SlotsPerEpoch, set)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	store := eventlog.NewStore()
	store.Append(eventlog.Event{TimeMs: 0, Slot: 0, Kind: eventlog.SlotStart})
	store.Append(eventlog.Event{TimeMs: 0, Slot: 1, Kind: eventlog.SlotStart})

	committees := map[int]*committee.Committee{0: c}
	return New(store, topo, committees, cfg), cfg
}

func TestNetworkStateAtDefaultsOnline(t *testing.T) {
	a, cfg := buildFixture(t)
	online := a.NetworkStateAt(0)
	if len(online) != cfg.TotalValidators {
		t.Fatalf("got %d entries want %d", len(online), cfg.TotalValidators)
	}
	for id, isOnline := range online {
		if !isOnline {
			t.Errorf("%s expected online by default", id)
		}
	}
}

func TestNetworkStateAtAppliesOfflineFlip(t *testing.T) {
	a, _ := buildFixture(t)
	a.store.Append(eventlog.Event{TimeMs: 5, Slot: 0, Kind: eventlog.NodeOffline, Actor: "validator_0000"})
	online := a.NetworkStateAt(0)
	if online["validator_0000"] {
		t.Error("validator_0000 should be offline after NodeOffline event")
	}
}

func TestPartitionsAtSumEqualsOnlineCount(t *testing.T) {
	a, cfg := buildFixture(t)
	components := a.PartitionsAt(0)
	total := 0
	for _, c := range components {
		total += c.Size
	}
	if total != cfg.TotalValidators {
		t.Errorf("component sizes sum to %d, want %d", total, cfg.TotalValidators)
	}
}

func TestNetworkStateAtExcludesNextSlotFlip(t *testing.T) {
	a, _ := buildFixture(t)
	slotEnd := a.slotEndTime(0)
	a.store.Append(eventlog.Event{TimeMs: slotEnd, Slot: 1, Kind: eventlog.NodeOffline, Actor: "validator_0000"})
	online := a.NetworkStateAt(0)
	if !online["validator_0000"] {
		t.Error("slot 1's offline flip should not be visible in slot 0's end-of-slot state")
	}
}

func TestCanReachConsensusWhenFullyConnected(t *testing.T) {
	a, _ := buildFixture(t)
	if !a.CanReachConsensusAt(0) {
		t.Error("expected consensus reachable with all validators online and connected")
	}
}

func TestTimelineLength(t *testing.T) {
	a, cfg := buildFixture(t)
	rows := a.Timeline()
	if len(rows) != cfg.TotalSlots() {
		t.Fatalf("got %d rows want %d", len(rows), cfg.TotalSlots())
	}
}
