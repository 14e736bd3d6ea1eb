// Command simulate runs one configured simulation and writes its event
// table as CSV, optionally running partition analysis, the slashing
// signal engine, and a LevelDB snapshot export.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/export"
	"github.com/aztecprotocol/slashsim/partition"
	"github.com/aztecprotocol/slashsim/simulator"
	"github.com/aztecprotocol/slashsim/slashing"
)

func main() {
	cfgPath := flag.String("config", "", "path to a JSON config file (defaults applied for omitted fields)")
	outPath := flag.String("out", "", "path to write the event table as CSV (defaults to stdout)")
	analysis := flag.Bool("analysis", false, "run partition analysis and print the slot timeline summary")
	heuristicName := flag.String("slashing-heuristic", "", "run the slashing signal engine with \"current\" or \"round-aware\" and print the resulting signal log")
	snapshotDir := flag.String("snapshot-dir", "", "optional path to persist a LevelDB snapshot of the run's event table and slashing log")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sim, err := simulator.BuildAndRun(cfg)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}
	table := sim.Store().ToTable()

	if *analysis {
		analyzer := partition.New(sim.Store(), sim.Topology(), sim.Committees(), cfg)
		printTimelineSummary(analyzer.Timeline())
	}

	var signalLog []slashing.Signal
	if *heuristicName != "" {
		heuristic, err := parseHeuristic(*heuristicName)
		if err != nil {
			log.Fatalf("slashing-heuristic: %v", err)
		}
		engine := slashing.New(cfg, sim.Store(), sim.Committees(), heuristic)
		signalLog = engine.Run()
		printSignalLog(signalLog)
	}

	if err := writeTable(table, *outPath); err != nil {
		log.Fatalf("write table: %v", err)
	}

	if *snapshotDir != "" {
		if err := writeSnapshot(*snapshotDir, table, signalLog); err != nil {
			log.Fatalf("snapshot: %v", err)
		}
		log.Printf("snapshot written to %s", *snapshotDir)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config file not found at %s, using defaults", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func parseHeuristic(name string) (slashing.Heuristic, error) {
	switch name {
	case "current":
		return slashing.CurrentHeuristic, nil
	case "round-aware":
		return slashing.RoundAwareHeuristic, nil
	default:
		return 0, fmt.Errorf("unknown heuristic %q, want \"current\" or \"round-aware\"", name)
	}
}

func writeTable(table *eventlog.Table, path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	defer w.Flush()

	header := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(table.Columns))
	for r := 0; r < table.NumRows; r++ {
		for c, col := range table.Columns {
			row[c] = fmt.Sprintf("%v", col.Value(r))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshot(dir string, table *eventlog.Table, signalLog []slashing.Signal) error {
	snap, err := export.Open(dir)
	if err != nil {
		return err
	}
	defer snap.Close()
	if err := snap.WriteTable(table); err != nil {
		return err
	}
	if len(signalLog) > 0 {
		if err := snap.WriteSignalLog(signalLog); err != nil {
			return err
		}
	}
	return nil
}

func printTimelineSummary(rows []partition.TimelineRow) {
	for _, r := range rows {
		fmt.Printf("slot=%d partitions=%d largest=%d consensus=%v online=%d offline=%d attestation_rate=%.2f\n",
			r.Slot, r.NumPartitions, r.LargestComponent, r.ConsensusReachable, r.OnlineCount, r.OfflineCount, r.AttestationRate)
	}
}

func printSignalLog(entries []slashing.Signal) {
	for _, s := range entries {
		fmt.Printf("slot=%d round=%d proposer=%s proposal_id=%s members=%v\n",
			s.Slot, s.Round, s.Proposer, s.Proposal.ID, s.Proposal.Members)
	}
}
