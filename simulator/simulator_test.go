package simulator

import (
	"reflect"
	"testing"

	"github.com/aztecprotocol/slashsim/config"
)

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 50
	cfg.CommitteeSize = 16
	cfg.SlotsPerEpoch = 1
	cfg.EpochsToSimulate = 2
	cfg.RandomSeed = 42
	return cfg
}

func TestRunProducesNonEmptyTable(t *testing.T) {
	table, err := Run(smallConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if table.NumRows == 0 {
		t.Fatal("expected a non-empty event table")
	}
	if table.Column("event_type") == nil {
		t.Error("expected an event_type column")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.CommitteeSize = cfg.TotalValidators + 1
	if _, err := Run(cfg); err == nil {
		t.Fatal("expected an error for committee_size > total_validators")
	}
}

func TestDeterministicCommitteeAcrossRuns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = 100
	cfg.CommitteeSize = 48
	cfg.SlotsPerEpoch = 4
	cfg.EpochsToSimulate = 2
	cfg.RandomSeed = 42

	sim1, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sim1.run()

	sim2, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sim2.run()

	for epoch := 0; epoch < cfg.EpochsToSimulate; epoch++ {
		if !reflect.DeepEqual(sim1.committees[epoch].Members, sim2.committees[epoch].Members) {
			t.Errorf("epoch %d: committee members differ across runs with identical seed", epoch)
		}
		if !reflect.DeepEqual(sim1.committees[epoch].ProposerSchedule, sim2.committees[epoch].ProposerSchedule) {
			t.Errorf("epoch %d: proposer schedule differs across runs with identical seed", epoch)
		}
	}
}

func TestRunWithAnalysisExposesAnalyzer(t *testing.T) {
	table, analyzer, err := RunWithAnalysis(smallConfig())
	if err != nil {
		t.Fatalf("RunWithAnalysis: %v", err)
	}
	if table.NumRows == 0 {
		t.Fatal("expected a non-empty event table")
	}
	rows := analyzer.Timeline()
	if len(rows) == 0 {
		t.Fatal("expected a non-empty partition timeline")
	}
}
