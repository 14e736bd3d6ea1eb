// Package eventlog implements the simulator's append-only event store:
// immutable, time-ordered records of everything that happens during a
// run, plus the typed tabular export used by downstream analysis.
package eventlog

// Kind is the closed set of event types the simulator can emit.
type Kind int

const (
	SimulationStart Kind = iota
	EpochStart
	SlotStart
	CommitteeSelected
	ProposerAssigned
	BlockProposed
	BlockReceivedP2P
	AttestationCreated
	AttestationReceivedP2P
	L1Submission
	L1Finalized
	NodeOnline
	NodeOffline
	MessageDropped
	SlotEnd
	SimulationEnd
)

// rank fixes the tie-break order for events sharing a timestamp. This
// map is the single source of truth for ordering; do not rely on the
// iota values above for anything but identity.
var rank = map[Kind]int{
	SimulationStart:        0,
	EpochStart:             1,
	SlotStart:              2,
	CommitteeSelected:      3,
	ProposerAssigned:       4,
	NodeOnline:             5,
	NodeOffline:            6,
	BlockProposed:          7,
	BlockReceivedP2P:       8,
	AttestationCreated:     9,
	AttestationReceivedP2P: 10,
	MessageDropped:         11,
	L1Submission:           12,
	L1Finalized:            13,
	SlotEnd:                14,
	SimulationEnd:          15,
}

// Rank returns the tie-break rank used for ordering simultaneous events.
func (k Kind) Rank() int { return rank[k] }

// String renders a Kind using the names the table exporter writes out.
func (k Kind) String() string {
	switch k {
	case SimulationStart:
		return "SimulationStart"
	case SimulationEnd:
		return "SimulationEnd"
	case EpochStart:
		return "EpochStart"
	case SlotStart:
		return "SlotStart"
	case SlotEnd:
		return "SlotEnd"
	case CommitteeSelected:
		return "CommitteeSelected"
	case ProposerAssigned:
		return "ProposerAssigned"
	case BlockProposed:
		return "BlockProposed"
	case BlockReceivedP2P:
		return "BlockReceivedP2P"
	case AttestationCreated:
		return "AttestationCreated"
	case AttestationReceivedP2P:
		return "AttestationReceivedP2P"
	case L1Submission:
		return "L1Submission"
	case L1Finalized:
		return "L1Finalized"
	case NodeOnline:
		return "NodeOnline"
	case NodeOffline:
		return "NodeOffline"
	case MessageDropped:
		return "MessageDropped"
	default:
		return "Unknown"
	}
}

// Event is an immutable record of something that happened during the
// simulation. Actor is the entity performing the action (e.g. the peer
// forwarding a message); Subject is the entity affected (e.g. the
// receiver). Data carries kind-specific scalar, list, or map payloads.
type Event struct {
	TimeMs  float64
	Slot    int
	Kind    Kind
	Actor   string
	Subject string
	Data    map[string]any
}

// Less implements the store's total order: (time, kind_rank, actor,
// subject).
func (e Event) Less(o Event) bool {
	if e.TimeMs != o.TimeMs {
		return e.TimeMs < o.TimeMs
	}
	if e.Kind.Rank() != o.Kind.Rank() {
		return e.Kind.Rank() < o.Kind.Rank()
	}
	if e.Actor != o.Actor {
		return e.Actor < o.Actor
	}
	return e.Subject < o.Subject
}
