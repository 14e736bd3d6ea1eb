package eventlog

import (
	"sort"
	"sync"
)

// batchMergeThreshold is the batch size above which AppendBatch sorts
// and merges rather than appending one at a time.
const batchMergeThreshold = 10

// Store is the append-only, time-ordered event log. It is safe for
// concurrent appends during simulation and becomes a read-only view for
// all analyzers once the run completes.
type Store struct {
	mu     sync.RWMutex
	events []Event

	indexesDirty bool
	slotStart    map[int]float64 // slot -> time of that slot's SlotStart
	bySlot       map[int][]int   // slot -> indices into events
	byKind       map[Kind][]int
	byActor      map[string][]int
	bySubject    map[string][]int
}

// NewStore creates an empty event store.
func NewStore() *Store {
	return &Store{}
}

// Append inserts a single event, finding its position via binary search
// on the (time, kind_rank, actor, subject) total order.
func (s *Store) Append(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertSorted(e)
	s.indexesDirty = true
}

// AppendBatch inserts many events at once. If the store is empty or the
// batch exceeds the merge threshold, the batch is sorted and merged in
// linear time; otherwise each event is appended individually. This
// exercises both insertion paths the store supports.
func (s *Store) AppendBatch(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 || len(events) > batchMergeThreshold {
		sort.SliceStable(events, func(i, j int) bool { return events[i].Less(events[j]) })
		merged := make([]Event, 0, len(s.events)+len(events))
		i, j := 0, 0
		for i < len(s.events) && j < len(events) {
			if s.events[i].Less(events[j]) {
				merged = append(merged, s.events[i])
				i++
			} else {
				merged = append(merged, events[j])
				j++
			}
		}
		merged = append(merged, s.events[i:]...)
		merged = append(merged, events[j:]...)
		s.events = merged
	} else {
		for _, e := range events {
			s.insertSorted(e)
		}
	}
	s.indexesDirty = true
}

func (s *Store) insertSorted(e Event) {
	idx := sort.Search(len(s.events), func(i int) bool { return e.Less(s.events[i]) })
	s.events = append(s.events, Event{})
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = e
}

// ensureIndexes rebuilds the secondary indexes if anything has been
// appended since the last read. Caller must hold the write lock, since a
// rebuild replaces the index maps.
func (s *Store) ensureIndexes() {
	if !s.indexesDirty {
		return
	}
	s.bySlot = make(map[int][]int)
	s.byKind = make(map[Kind][]int)
	s.byActor = make(map[string][]int)
	s.bySubject = make(map[string][]int)
	s.slotStart = make(map[int]float64)
	for i, e := range s.events {
		s.bySlot[e.Slot] = append(s.bySlot[e.Slot], i)
		s.byKind[e.Kind] = append(s.byKind[e.Kind], i)
		if e.Actor != "" {
			s.byActor[e.Actor] = append(s.byActor[e.Actor], i)
		}
		if e.Subject != "" {
			s.bySubject[e.Subject] = append(s.bySubject[e.Subject], i)
		}
		if e.Kind == SlotStart {
			s.slotStart[e.Slot] = e.TimeMs
		}
	}
	s.indexesDirty = false
}

// Len returns the number of events currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// All returns a copy of every event in order. Intended for export only.
func (s *Store) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// SlotStartTime returns the time of a slot's SlotStart event and whether
// it has been recorded yet.
func (s *Store) SlotStartTime(slot int) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureIndexes()
	t, ok := s.slotStart[slot]
	return t, ok
}

func (s *Store) selectIndexed(idxs []int) []Event {
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out
}

// EventsForSlot returns every event recorded for the given slot, in
// store order.
func (s *Store) EventsForSlot(slot int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureIndexes()
	return s.selectIndexed(s.bySlot[slot])
}

// EventsForValidator returns every event where id is actor or subject,
// in store order.
func (s *Store) EventsForValidator(id string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureIndexes()
	seen := make(map[int]bool)
	var idxs []int
	for _, i := range s.byActor[id] {
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	for _, i := range s.bySubject[id] {
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)
	return s.selectIndexed(idxs)
}

// EventsByKind returns every event of the given kind, in store order.
func (s *Store) EventsByKind(kind Kind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureIndexes()
	return s.selectIndexed(s.byKind[kind])
}

// EventsInRange returns every event with t0 <= TimeMs < t1.
func (s *Store) EventsInRange(t0, t1 float64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.events), func(i int) bool { return s.events[i].TimeMs >= t0 })
	hi := sort.Search(len(s.events), func(i int) bool { return s.events[i].TimeMs >= t1 })
	out := make([]Event, hi-lo)
	copy(out, s.events[lo:hi])
	return out
}

// ViewAt returns the events a validator would have observed by time t:
// every event up to t where the validator is the subject of a
// "...ReceivedP2P" kind, or the actor of BlockProposed, AttestationCreated,
// or L1Submission.
func (s *Store) ViewAt(id string, t float64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.TimeMs > t {
			break
		}
		switch {
		case (e.Kind == BlockReceivedP2P || e.Kind == AttestationReceivedP2P) && e.Subject == id:
			out = append(out, e)
		case (e.Kind == BlockProposed || e.Kind == AttestationCreated || e.Kind == L1Submission) && e.Actor == id:
			out = append(out, e)
		}
	}
	return out
}
