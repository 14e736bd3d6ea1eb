package gossip

import (
	"math/rand"
	"testing"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/validatorset"
)

func testTopology(t *testing.T, n, committeeSize int) (*Topology, ConnectivityReport, *validatorset.Set) {
	cfg := config.DefaultConfig()
	cfg.TotalValidators = n
	cfg.CommitteeSize = committeeSize
	cfg.D, cfg.DLo, cfg.DHi, cfg.DLazy = 8, 6, 12, 4
	cfg.PacketLossRate = 0
	set := validatorset.NewSet(cfg)
	topo, report := Build(cfg, set)
	return topo, report, set
}

func TestBuildMeshIsSymmetric(t *testing.T) {
	topo, _, _ := testTopology(t, 50, 16)
	for _, a := range topo.IDs() {
		for _, b := range topo.MeshNeighbors(a) {
			if !topo.MeshEdgeExists(b, a) {
				t.Fatalf("mesh edge %s->%s not symmetric", a, b)
			}
		}
	}
}

func TestBuildLatencyFloor(t *testing.T) {
	topo, _, _ := testTopology(t, 20, 10)
	ids := topo.IDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if lat := topo.Latency(ids[i], ids[j]); lat < latencyFloorMs {
				t.Errorf("latency below floor: %s-%s = %v", ids[i], ids[j], lat)
			}
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	topo1, _, _ := testTopology(t, 30, 12)
	topo2, _, _ := testTopology(t, 30, 12)
	for _, id := range topo1.IDs() {
		n1 := topo1.MeshNeighbors(id)
		n2 := topo2.MeshNeighbors(id)
		if len(n1) != len(n2) {
			t.Fatalf("mesh degree for %s differs between runs: %d vs %d", id, len(n1), len(n2))
		}
	}
}

func TestPropagateReachesOnlineMeshNeighbors(t *testing.T) {
	topo, _, set := testTopology(t, 30, 12)
	online := make(map[string]bool, len(set.Order))
	for _, v := range set.Order {
		online[v.ID] = true
	}
	source := topo.IDs()[0]
	rng := rand.New(rand.NewSource(1))
	res := Propagate(topo, source, online, BlockMaxHops, false, 0, rng)

	if _, ok := res.Reached(source); !ok {
		t.Fatal("source must always be reached at hop 0")
	}
	for _, neighbor := range topo.MeshNeighbors(source) {
		d, ok := res.Reached(neighbor)
		if !ok {
			t.Errorf("direct mesh neighbor %s not reached", neighbor)
		} else if d.Hops != 1 {
			t.Errorf("direct mesh neighbor %s: got hop %d want 1", neighbor, d.Hops)
		}
	}
}

func TestPropagateSkipsOfflineNodes(t *testing.T) {
	topo, _, set := testTopology(t, 30, 12)
	online := make(map[string]bool, len(set.Order))
	for _, v := range set.Order {
		online[v.ID] = true
	}
	source := topo.IDs()[0]
	offlineNeighbor := topo.MeshNeighbors(source)[0]
	online[offlineNeighbor] = false

	rng := rand.New(rand.NewSource(1))
	res := Propagate(topo, source, online, BlockMaxHops, false, 0, rng)
	if _, ok := res.Reached(offlineNeighbor); ok {
		t.Errorf("offline node %s should not be reached", offlineNeighbor)
	}
}

func TestPropagateAttestationScalesLatency(t *testing.T) {
	topo, _, set := testTopology(t, 30, 12)
	online := make(map[string]bool, len(set.Order))
	for _, v := range set.Order {
		online[v.ID] = true
	}
	source := topo.IDs()[0]
	neighbor := topo.MeshNeighbors(source)[0]

	rngBlock := rand.New(rand.NewSource(7))
	blockRes := Propagate(topo, source, online, BlockMaxHops, false, 0, rngBlock)
	rngAtt := rand.New(rand.NewSource(7))
	attRes := Propagate(topo, source, online, AttestationMaxHops, true, 0, rngAtt)

	bd, _ := blockRes.Reached(neighbor)
	ad, _ := attRes.Reached(neighbor)
	want := bd.DeliveryTime * AttestationLatencyFactor
	if diff := ad.DeliveryTime - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("attestation delivery time = %v, want %v", ad.DeliveryTime, want)
	}
}
