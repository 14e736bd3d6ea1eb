package eventlog

import (
	"encoding/json"
	"fmt"
	"sort"
)

// integerFields, floatFields, and booleanFields name the event data keys
// that must be typed rather than exported as strings. Every other key is
// a string column; lists and nested maps are JSON-encoded into it.
var (
	integerFields = map[string]bool{
		"epoch": true, "slot": true, "committee_size": true, "hops": true,
		"attestation_count": true, "ethereum_slot": true, "ethereum_block": true,
		"total_validators": true, "epochs": true, "transactions": true,
	}
	floatFields = map[string]bool{
		"delivery_time_ms": true, "delay_ms": true, "submission_time_ms": true,
		"time_into_eth_slot": true, "inclusion_time_ms": true,
		"slot_duration_ms": true, "ethereum_block_time": true,
	}
	booleanFields = map[string]bool{
		"block_proposed": true,
	}
)

// Column is one named column of a Table. Exactly one of the typed slices
// is populated, selected by Kind.
type Column struct {
	Name   string
	Kind   ColumnKind
	Ints   []int64
	Floats []float64
	Bools  []bool
	Strs   []string
}

// ColumnKind identifies which typed slice a Column uses.
type ColumnKind int

const (
	IntColumn ColumnKind = iota
	FloatColumn
	BoolColumn
	StringColumn
)

// Table is the event store's columnar export: one row per event, with a
// stable leading column order (timestamp_ms, slot, event_type, actor,
// subject) followed by every data_* column in sorted key order.
type Table struct {
	Columns []Column
	NumRows int
}

// Value returns the row'th cell of the column as its natural Go type.
func (c *Column) Value(row int) any {
	switch c.Kind {
	case IntColumn:
		return c.Ints[row]
	case FloatColumn:
		return c.Floats[row]
	case BoolColumn:
		return c.Bools[row]
	default:
		return c.Strs[row]
	}
}

// Column looks up a column by name, or returns nil if absent.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ToTable exports every event in store order into a Table. All data keys
// across all events are materialised as columns; a row missing a given
// key gets that column's zero value.
func (s *Store) ToTable() *Table {
	events := s.All()

	dataKeys := make(map[string]bool)
	for _, e := range events {
		for k := range e.Data {
			dataKeys[k] = true
		}
	}
	sortedKeys := make([]string, 0, len(dataKeys))
	for k := range dataKeys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	t := &Table{NumRows: len(events)}
	t.Columns = append(t.Columns,
		Column{Name: "timestamp_ms", Kind: FloatColumn, Floats: make([]float64, len(events))},
		Column{Name: "slot", Kind: IntColumn, Ints: make([]int64, len(events))},
		Column{Name: "event_type", Kind: StringColumn, Strs: make([]string, len(events))},
		Column{Name: "actor", Kind: StringColumn, Strs: make([]string, len(events))},
		Column{Name: "subject", Kind: StringColumn, Strs: make([]string, len(events))},
	)
	for _, k := range sortedKeys {
		t.Columns = append(t.Columns, newDataColumn(k, len(events)))
	}

	for i, e := range events {
		t.Columns[0].Floats[i] = e.TimeMs
		t.Columns[1].Ints[i] = int64(e.Slot)
		t.Columns[2].Strs[i] = e.Kind.String()
		t.Columns[3].Strs[i] = e.Actor
		t.Columns[4].Strs[i] = e.Subject
		for ci, k := range sortedKeys {
			col := &t.Columns[5+ci]
			v, ok := e.Data[k]
			setCell(col, i, v, ok)
		}
	}
	return t
}

// dataColumnPrefix marks every column sourced from an event's Data map,
// distinguishing it from the five fixed leading columns.
const dataColumnPrefix = "data_"

func newDataColumn(key string, n int) Column {
	name := dataColumnPrefix + key
	switch {
	case integerFields[key]:
		return Column{Name: name, Kind: IntColumn, Ints: make([]int64, n)}
	case floatFields[key]:
		return Column{Name: name, Kind: FloatColumn, Floats: make([]float64, n)}
	case booleanFields[key]:
		return Column{Name: name, Kind: BoolColumn, Bools: make([]bool, n)}
	default:
		return Column{Name: name, Kind: StringColumn, Strs: make([]string, n)}
	}
}

func setCell(col *Column, row int, v any, present bool) {
	if !present || v == nil {
		return
	}
	switch col.Kind {
	case IntColumn:
		col.Ints[row] = toInt64(v)
	case FloatColumn:
		col.Floats[row] = toFloat64(v)
	case BoolColumn:
		if b, ok := v.(bool); ok {
			col.Bools[row] = b
		}
	case StringColumn:
		col.Strs[row] = toStringCell(v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toStringCell(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
