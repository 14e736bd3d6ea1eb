package gossip

import (
	"math/rand"
	"sort"
)

// BlockMaxHops and AttestationMaxHops are the hop caps for the two
// message classes the propagator floods.
const (
	BlockMaxHops       = 10
	AttestationMaxHops = 8
)

// AttestationLatencyFactor scales mesh latency for attestation
// propagation relative to block propagation.
const AttestationLatencyFactor = 0.7

// Delivery records when and via whom a validator received a flooded
// message.
type Delivery struct {
	Receiver     string
	DeliveryTime float64
	Sender       string
	Hops         int
}

// Result is the outcome of one flood: every validator's delivery (if
// reached) and the propagation trace in discovery order (by hop, then by
// frontier and neighbour index); the trace is not sorted by delivery time.
type Result struct {
	Deliveries map[string]Delivery
	Trace      []Delivery // excludes the originator, per the spec's PropagationTrace contract
}

// Reached reports whether id received the message and returns its
// delivery record.
func (r *Result) Reached(id string) (Delivery, bool) {
	d, ok := r.Deliveries[id]
	return d, ok
}

// Propagate floods a message from source over mesh edges using
// breadth-first hops, honouring per-hop packet loss and the attestation
// latency scaling factor. Traversal order over the frontier and over
// each node's neighbours is the deterministic validator-index order, so
// rng is consumed in a reproducible sequence for fixed inputs.
func Propagate(t *Topology, source string, online map[string]bool, maxHops int, isAttestation bool, packetLossRate float64, rng *rand.Rand) *Result {
	res := &Result{Deliveries: make(map[string]Delivery)}
	res.Deliveries[source] = Delivery{Receiver: source, DeliveryTime: 0, Sender: source, Hops: 0}

	frontier := []string{source}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		sort.Strings(frontier)
		var next []string
		for _, u := range frontier {
			if !online[u] {
				continue
			}
			neighbors := t.MeshNeighbors(u)
			sort.Slice(neighbors, func(i, j int) bool { return t.IndexOf(neighbors[i]) < t.IndexOf(neighbors[j]) })
			for _, v := range neighbors {
				if _, visited := res.Deliveries[v]; visited {
					continue
				}
				if !online[v] {
					continue
				}
				if rng.Float64() < packetLossRate {
					continue
				}
				lat := t.Latency(u, v)
				if isAttestation {
					lat *= AttestationLatencyFactor
				}
				d := Delivery{
					Receiver:     v,
					DeliveryTime: res.Deliveries[u].DeliveryTime + lat,
					Sender:       u,
					Hops:         hop,
				}
				res.Deliveries[v] = d
				res.Trace = append(res.Trace, d)
				next = append(next, v)
			}
		}
		frontier = next
	}
	return res
}
