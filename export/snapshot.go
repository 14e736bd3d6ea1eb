// Package export persists a finished run's event table and slashing
// signal log to an on-disk LevelDB snapshot. This is an optional,
// off-the-hot-path convenience: neither Run nor RunWithAnalysis touch
// it, and no core invariant depends on it.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/slashing"
)

// Snapshot writes an on-disk LevelDB database at path.
type Snapshot struct {
	db *leveldb.DB
}

// Open opens the LevelDB database at path, creating it if absent. An
// existing database is opened with its contents kept; rows written
// later overwrite only the keys they reuse.
func Open(path string) (*Snapshot, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot leveldb %q: %w", path, err)
	}
	return &Snapshot{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// WriteTable serialises every row of a Table as a JSON document keyed
// by its row index, so a finished run's export can be inspected later
// without re-running the simulation.
func (s *Snapshot) WriteTable(table *eventlog.Table) error {
	batch := new(leveldb.Batch)
	for row := 0; row < table.NumRows; row++ {
		record := make(map[string]any, len(table.Columns))
		for _, col := range table.Columns {
			record[col.Name] = col.Value(row)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", row, err)
		}
		batch.Put([]byte(fmt.Sprintf("event:%08d", row)), data)
	}
	return s.db.Write(batch, nil)
}

// WriteSignalLog serialises the slashing signal log, one entry per row.
func (s *Snapshot) WriteSignalLog(log []slashing.Signal) error {
	batch := new(leveldb.Batch)
	for i, sig := range log {
		record := map[string]any{
			"slot":        sig.Slot,
			"round":       sig.Round,
			"proposer":    sig.Proposer,
			"proposal_id": sig.Proposal.ID,
			"members":     sig.Proposal.Members,
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal signal %d: %w", i, err)
		}
		batch.Put([]byte(fmt.Sprintf("signal:%08d", i)), data)
	}
	return s.db.Write(batch, nil)
}

// Read fetches a single raw record back, keyed the same way WriteTable
// and WriteSignalLog wrote them. Mostly useful for tests and manual
// inspection of a snapshot.
func (s *Snapshot) Read(key string) ([]byte, error) {
	val, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("snapshot: key %q not found", key)
	}
	return val, err
}
