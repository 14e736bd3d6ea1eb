// Package gossip implements the GossipSub-style mesh/lazy network
// topology and the BFS flood propagation algorithm used for both block
// and attestation delivery.
package gossip

import (
	"log"
	"math/rand"
	"sort"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/validatorset"
)

const latencyFloorMs = 50.0

// Topology is the immutable mesh/lazy graph and symmetric latency
// matrix computed once at simulation start.
type Topology struct {
	ids     []string
	index   map[string]int
	mesh    [][]bool
	lazy    [][]bool
	latency [][]float64
	public  map[string]bool
}

// ConnectivityReport enumerates nodes that ended up isolated or under
// the low mesh-degree bound after construction, matching
// TopologyUnderConnected's "expected when many validators are private"
// framing.
type ConnectivityReport struct {
	Isolated       []string
	UnderConnected []string
}

// Build constructs the mesh/lazy topology and latency matrix for the
// given validator set, following the public/private construction rules.
// Uses a dedicated PRNG seeded by base_seed, kept separate from every
// validator's own behavioural PRNG and from the committee/slot PRNGs.
func Build(cfg *config.Config, set *validatorset.Set) (*Topology, ConnectivityReport) {
	rng := rand.New(rand.NewSource(cfg.RandomSeed))

	n := len(set.Order)
	t := &Topology{
		ids:     set.IDs(),
		index:   make(map[string]int, n),
		mesh:    make([][]bool, n),
		lazy:    make([][]bool, n),
		latency: make([][]float64, n),
		public:  make(map[string]bool, n),
	}
	for i, id := range t.ids {
		t.index[id] = i
		t.mesh[i] = make([]bool, n)
		t.lazy[i] = make([]bool, n)
		t.latency[i] = make([]float64, n)
	}
	for _, v := range set.Order {
		t.public[v.ID] = !v.IsPrivate
	}

	var publicIdx, privateIdx []int
	for i, v := range set.Order {
		if v.IsPrivate {
			privateIdx = append(privateIdx, i)
		} else {
			publicIdx = append(publicIdx, i)
		}
	}

	degree := make([]int, n)
	connectMesh := func(i, j int) {
		t.mesh[i][j] = true
		t.mesh[j][i] = true
		degree[i]++
		degree[j]++
	}

	for _, i := range publicIdx {
		t.growMeshDegree(rng, i, cfg.D, cfg.DHi, degree, publicIdx, connectMesh)
	}
	for _, i := range privateIdx {
		t.growMeshDegree(rng, i, cfg.D, cfg.DHi, degree, publicIdx, connectMesh)
	}

	for i := 0; i < n; i++ {
		candidates := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i && !t.mesh[i][j] {
				candidates = append(candidates, j)
			}
		}
		shuffleInts(rng, candidates)
		k := cfg.DLazy
		if k > len(candidates) {
			k = len(candidates)
		}
		for _, j := range candidates[:k] {
			t.lazy[i][j] = true
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			lat := cfg.BaseLatencyMs + rng.NormFloat64()*cfg.LatencyVarianceMs
			if lat < latencyFloorMs {
				lat = latencyFloorMs
			}
			t.latency[i][j] = lat
			t.latency[j][i] = lat
		}
	}

	report := ConnectivityReport{}
	for i, id := range t.ids {
		if degree[i] == 0 {
			report.Isolated = append(report.Isolated, id)
		} else if degree[i] < cfg.DLo {
			report.UnderConnected = append(report.UnderConnected, id)
		}
	}
	sort.Strings(report.Isolated)
	sort.Strings(report.UnderConnected)
	if len(report.Isolated) > 0 || len(report.UnderConnected) > 0 {
		log.Printf("[gossip] TopologyUnderConnected: %d isolated, %d under low-degree bound",
			len(report.Isolated), len(report.UnderConnected))
	}
	return t, report
}

// growMeshDegree connects node i to uniformly chosen eligible public
// peers until its degree reaches D or no capacity remains. Private
// nodes may end up below D_lo when public capacity is exhausted; that
// is tolerated per the topology construction contract.
func (t *Topology) growMeshDegree(rng *rand.Rand, i, target, dHi int, degree []int, publicIdx []int, connect func(i, j int)) {
	for degree[i] < target {
		candidates := make([]int, 0, len(publicIdx))
		for _, j := range publicIdx {
			if j == i || t.mesh[i][j] || degree[j] >= dHi {
				continue
			}
			candidates = append(candidates, j)
		}
		if len(candidates) == 0 {
			return
		}
		j := candidates[rng.Intn(len(candidates))]
		connect(i, j)
	}
}

func shuffleInts(rng *rand.Rand, xs []int) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// IDs returns every validator ID in the topology's stable index order.
func (t *Topology) IDs() []string { return t.ids }

// IndexOf returns the stable integer index for a validator ID.
func (t *Topology) IndexOf(id string) int { return t.index[id] }

// MeshNeighbors returns the mesh-adjacent validator IDs of id, sorted by
// index for deterministic traversal.
func (t *Topology) MeshNeighbors(id string) []string {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []string
	for j, connected := range t.mesh[i] {
		if connected {
			out = append(out, t.ids[j])
		}
	}
	return out
}

// LazyPeers returns the lazy (metadata-only) peers of id. Retained for
// introspection and tests; never traversed by Propagate.
func (t *Topology) LazyPeers(id string) []string {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []string
	for j, connected := range t.lazy[i] {
		if connected {
			out = append(out, t.ids[j])
		}
	}
	return out
}

// Latency returns the symmetric latency between two validators.
func (t *Topology) Latency(a, b string) float64 {
	return t.latency[t.index[a]][t.index[b]]
}

// IsPublic reports whether id is a public (non-NAT) node.
func (t *Topology) IsPublic(id string) bool { return t.public[id] }

// MeshEdgeExists reports whether a and b share a mesh edge.
func (t *Topology) MeshEdgeExists(a, b string) bool {
	ia, oka := t.index[a]
	ib, okb := t.index[b]
	if !oka || !okb {
		return false
	}
	return t.mesh[ia][ib]
}
