// Package partition answers connected-component and consensus-reachability
// queries over a completed simulation's event stream and static topology.
package partition

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/gossip"
)

// Component describes one connected component of the online-induced
// mesh subgraph at a given slot.
type Component struct {
	Members          []string
	Size             int
	Density          float64
	AvgDegree        float64
	CommitteeMembers int
}

// SlotReport bundles everything Analyzer can compute for a single slot.
type SlotReport struct {
	Slot               int
	OnlineVector       map[string]bool
	Components         []Component
	CanReachConsensus  bool
	LargestComponent   int
	AttestationRate    float64
}

// TimelineRow is one row of Analyzer.Timeline().
type TimelineRow struct {
	Slot                int
	NumPartitions       int
	LargestComponent    int
	ConsensusReachable  bool
	OnlineCount         int
	OfflineCount        int
	AttestationRate     float64
}

// Analyzer is a read-only view over a finished run's event store and
// static topology. All methods are pure functions of already-recorded
// events.
type Analyzer struct {
	store      *eventlog.Store
	topo       *gossip.Topology
	committees map[int]*committee.Committee
	cfg        *config.Config
}

// New creates an Analyzer. committees maps epoch number to the epoch's
// drawn Committee.
func New(store *eventlog.Store, topo *gossip.Topology, committees map[int]*committee.Committee, cfg *config.Config) *Analyzer {
	return &Analyzer{store: store, topo: topo, committees: committees, cfg: cfg}
}

// NetworkStateAt reconstructs the online vector as of the end of slot
// s, replaying every NodeOnline/NodeOffline flip up to but excluding
// slot s+1's own flips (which are emitted exactly at slotEndTime(s)).
func (a *Analyzer) NetworkStateAt(slot int) map[string]bool {
	online := make(map[string]bool, len(a.topo.IDs()))
	for _, id := range a.topo.IDs() {
		online[id] = true
	}
	cutoff := a.slotEndTime(slot)
	for _, e := range a.store.EventsInRange(0, cutoff) {
		switch e.Kind {
		case eventlog.NodeOnline:
			online[e.Actor] = true
		case eventlog.NodeOffline:
			online[e.Actor] = false
		}
	}
	return online
}

func (a *Analyzer) slotEndTime(slot int) float64 {
	start, ok := a.store.SlotStartTime(slot)
	if !ok {
		return 0
	}
	return start + a.cfg.SlotDurationMs()
}

// PartitionsAt computes the connected components of the subgraph induced
// by online nodes and mesh edges at the end of slot s.
func (a *Analyzer) PartitionsAt(slot int) []Component {
	online := a.NetworkStateAt(slot)
	epoch := slot / a.cfg.SlotsPerEpoch
	c := a.committees[epoch]

	g := simple.NewUndirectedGraph()
	nodeID := make(map[string]int64, len(a.topo.IDs()))
	for i, id := range a.topo.IDs() {
		if !online[id] {
			continue
		}
		nodeID[id] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for id, ni := range nodeID {
		for _, nb := range a.topo.MeshNeighbors(id) {
			if nj, ok := nodeID[nb]; ok && ni < nj {
				g.SetEdge(simple.Edge{F: simple.Node(ni), T: simple.Node(nj)})
			}
		}
	}

	idByNode := make(map[int64]string, len(nodeID))
	for id, ni := range nodeID {
		idByNode[ni] = id
	}

	groups := topo.ConnectedComponents(g)
	components := make([]Component, 0, len(groups))
	for _, group := range groups {
		members := make([]string, 0, len(group))
		for _, n := range group {
			members = append(members, idByNode[n.ID()])
		}
		sort.Strings(members)
		components = append(components, a.describeComponent(g, members, nodeID, c))
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Size > components[j].Size })
	return components
}

func (a *Analyzer) describeComponent(g graph.Undirected, members []string, nodeID map[string]int64, c *committee.Committee) Component {
	n := len(members)
	degrees := make([]float64, n)
	totalDegree := 0
	for i, id := range members {
		d := g.From(nodeID[id]).Len()
		degrees[i] = float64(d)
		totalDegree += d
	}
	var density float64
	if n > 1 {
		maxEdges := n * (n - 1) / 2
		density = float64(totalDegree/2) / float64(maxEdges)
	}
	avgDegree := 0.0
	if n > 0 {
		avgDegree = stat.Mean(degrees, nil)
	}
	inCommittee := 0
	if c != nil {
		for _, id := range members {
			if c.IsMember(id) {
				inCommittee++
			}
		}
	}
	return Component{
		Members:          members,
		Size:             n,
		Density:          density,
		AvgDegree:        avgDegree,
		CommitteeMembers: inCommittee,
	}
}

// Report bundles every per-slot query into a single value, for callers
// that want one slot's full picture rather than a whole-run Timeline.
func (a *Analyzer) Report(slot int) SlotReport {
	components := a.PartitionsAt(slot)
	largest := 0
	for _, c := range components {
		if c.Size > largest {
			largest = c.Size
		}
	}
	return SlotReport{
		Slot:              slot,
		OnlineVector:      a.NetworkStateAt(slot),
		Components:        components,
		CanReachConsensus: a.CanReachConsensusAt(slot),
		LargestComponent:  largest,
		AttestationRate:   a.attestationRate(slot),
	}
}

// CanReachConsensusAt reports whether some component at slot s contains
// at least the L1 threshold of the current epoch's committee.
func (a *Analyzer) CanReachConsensusAt(slot int) bool {
	threshold := a.cfg.Threshold()
	for _, comp := range a.PartitionsAt(slot) {
		if comp.CommitteeMembers >= threshold {
			return true
		}
	}
	return false
}

// Timeline returns one row per absolute slot across the whole run.
func (a *Analyzer) Timeline() []TimelineRow {
	rows := make([]TimelineRow, 0, a.cfg.TotalSlots())
	for slot := 0; slot < a.cfg.TotalSlots(); slot++ {
		components := a.PartitionsAt(slot)
		online := a.NetworkStateAt(slot)
		onlineCount, offlineCount := 0, 0
		for _, isOnline := range online {
			if isOnline {
				onlineCount++
			} else {
				offlineCount++
			}
		}
		largest := 0
		for _, c := range components {
			if c.Size > largest {
				largest = c.Size
			}
		}
		rows = append(rows, TimelineRow{
			Slot:               slot,
			NumPartitions:      len(components),
			LargestComponent:   largest,
			ConsensusReachable: a.CanReachConsensusAt(slot),
			OnlineCount:        onlineCount,
			OfflineCount:       offlineCount,
			AttestationRate:    a.attestationRate(slot),
		})
	}
	return rows
}

// attestationRate is the supplemented slot-level participation metric:
// AttestationCreated count over the non-proposer committee size.
func (a *Analyzer) attestationRate(slot int) float64 {
	epoch := slot / a.cfg.SlotsPerEpoch
	c := a.committees[epoch]
	if c == nil || len(c.Members) <= 1 {
		return 0
	}
	count := 0
	for _, e := range a.store.EventsForSlot(slot) {
		if e.Kind == eventlog.AttestationCreated {
			count++
		}
	}
	return float64(count) / float64(len(c.Members)-1)
}
