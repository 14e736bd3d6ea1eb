// Package simulator is the top-level driver: it owns the event store,
// the topology, the validator set, the per-epoch committees, and the
// running last_block_hash, and advances the whole run epoch by epoch,
// slot by slot.
package simulator

import (
	"fmt"
	"log"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/gossip"
	"github.com/aztecprotocol/slashsim/partition"
	"github.com/aztecprotocol/slashsim/slotdriver"
	"github.com/aztecprotocol/slashsim/validatorset"
)

// Simulator owns every piece of global mutable state for one run: the
// event store, the topology, the validator set, the committee drawn for
// each epoch, and the chain's last proposed block hash.
type Simulator struct {
	cfg           *config.Config
	store         *eventlog.Store
	set           *validatorset.Set
	topo          *gossip.Topology
	driver        *slotdriver.Driver
	committees    map[int]*committee.Committee
	lastBlockHash string
}

// New validates cfg and constructs a Simulator, failing fast on
// ConfigInvalid or ValidatorPoolTooSmall per the error handling design.
func New(cfg *config.Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	set := validatorset.NewSet(cfg)
	topo, report := gossip.Build(cfg, set)
	if len(report.Isolated) > 0 || len(report.UnderConnected) > 0 {
		log.Printf("[simulator] TopologyUnderConnected: %d isolated, %d under-connected (tolerated)",
			len(report.Isolated), len(report.UnderConnected))
	}

	store := eventlog.NewStore()
	driver := slotdriver.New(cfg, store, set, topo)

	return &Simulator{
		cfg:           cfg,
		store:         store,
		set:           set,
		topo:          topo,
		driver:        driver,
		committees:    make(map[int]*committee.Committee),
		lastBlockHash: slotdriver.GenesisParentHash,
	}, nil
}

// BuildAndRun constructs a Simulator, runs the full simulation, and
// returns the Simulator itself so callers can reach the store and
// committee history directly (for the slashing engine, a snapshot
// export, or other post-processing beyond Run/RunWithAnalysis).
func BuildAndRun(cfg *config.Config) (*Simulator, error) {
	sim, err := New(cfg)
	if err != nil {
		return nil, err
	}
	sim.run()
	return sim, nil
}

// Run executes every epoch and slot of the configured run and returns
// the resulting event table.
func Run(cfg *config.Config) (*eventlog.Table, error) {
	sim, err := BuildAndRun(cfg)
	if err != nil {
		return nil, err
	}
	return sim.store.ToTable(), nil
}

// RunWithAnalysis runs the simulation exactly as Run does, additionally
// returning a partition.Analyzer bound to the resulting event stream and
// committee history.
func RunWithAnalysis(cfg *config.Config) (*eventlog.Table, *partition.Analyzer, error) {
	sim, err := BuildAndRun(cfg)
	if err != nil {
		return nil, nil, err
	}
	analyzer := partition.New(sim.store, sim.topo, sim.committees, sim.cfg)
	return sim.store.ToTable(), analyzer, nil
}

// Store exposes the underlying event store, e.g. for feeding the
// slashing signal engine after a run.
func (s *Simulator) Store() *eventlog.Store { return s.store }

// Committees exposes the per-epoch committee history built during the
// run, e.g. for feeding the slashing signal engine.
func (s *Simulator) Committees() map[int]*committee.Committee { return s.committees }

// Topology exposes the static network topology built at construction,
// e.g. for feeding the partition analyzer.
func (s *Simulator) Topology() *gossip.Topology { return s.topo }

func (s *Simulator) run() {
	s.store.Append(eventlog.Event{TimeMs: 0, Kind: eventlog.SimulationStart})

	for epoch := 0; epoch < s.cfg.EpochsToSimulate; epoch++ {
		s.runEpoch(epoch)
	}

	lastSlot := s.cfg.TotalSlots() - 1
	endTime := float64(lastSlot)*s.cfg.SlotDurationMs() + s.cfg.SlotDurationMs()
	s.store.Append(eventlog.Event{TimeMs: endTime, Kind: eventlog.SimulationEnd})
}

func (s *Simulator) runEpoch(epoch int) {
	epochStart := float64(epoch*s.cfg.SlotsPerEpoch) * s.cfg.SlotDurationMs()
	s.store.Append(eventlog.Event{TimeMs: epochStart, Kind: eventlog.EpochStart, Data: map[string]any{"epoch": epoch}})

	c, err := committee.Draw(s.cfg.RandomSeed, epoch, s.cfg.CommitteeSize, s.cfg.SlotsPerEpoch, s.set)
	if err != nil {
		// A committee draw failure here indicates a config that passed
		// Validate() but still can't fill a committee, e.g. validators
		// removed mid-run — an implementer precondition violation, not a
		// user-facing runtime outcome.
		panic(fmt.Sprintf("[simulator] ValidatorPoolTooSmall: %v", err))
	}
	s.committees[epoch] = c

	s.store.Append(eventlog.Event{
		TimeMs: epochStart,
		Kind:   eventlog.CommitteeSelected,
		Data:   map[string]any{"epoch": epoch, "committee": c.Members},
	})

	startSlot := epoch * s.cfg.SlotsPerEpoch
	for offset := 0; offset < s.cfg.SlotsPerEpoch; offset++ {
		slot := startSlot + offset
		slotStart := float64(slot) * s.cfg.SlotDurationMs()
		s.store.Append(eventlog.Event{
			TimeMs: slotStart,
			Slot:   slot,
			Kind:   eventlog.ProposerAssigned,
			Actor:  c.ProposerSchedule[slot],
		})
		s.store.Append(eventlog.Event{TimeMs: slotStart, Slot: slot, Kind: eventlog.SlotStart})

		newHash, _ := s.driver.RunSlot(slot, c, s.lastBlockHash)
		s.lastBlockHash = newHash
	}
}
