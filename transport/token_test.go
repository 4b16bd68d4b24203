package transport

import "testing"

func nodeWithTokens(dc, rack string, tokens ...Token) *Node {
	return &Node{addr: dc + "/" + rack, datacenter: dc, rack: rack, tokens: tokens}
}

func TestSimpleStrategyReplicasWalkClockwise(t *testing.T) {
	n1 := nodeWithTokens("dc1", "r1", 10)
	n2 := nodeWithTokens("dc1", "r1", 20)
	n3 := nodeWithTokens("dc1", "r1", 30)

	m := NewTokenMap([]*Node{n1, n2, n3}, SimpleStrategy{ReplicationFactor: 2})

	got := m.Replicas(15)
	if len(got) != 2 || got[0] != n2 || got[1] != n3 {
		t.Fatalf("Replicas(15) = %v, want [n2 n3]", got)
	}
}

func TestSimpleStrategyWrapsAroundRing(t *testing.T) {
	n1 := nodeWithTokens("dc1", "r1", 10)
	n2 := nodeWithTokens("dc1", "r1", 20)
	n3 := nodeWithTokens("dc1", "r1", 30)

	m := NewTokenMap([]*Node{n1, n2, n3}, SimpleStrategy{ReplicationFactor: 2})

	got := m.Replicas(25)
	if len(got) != 2 || got[0] != n3 || got[1] != n1 {
		t.Fatalf("Replicas(25) = %v, want [n3 n1] (wrap around)", got)
	}
}

func TestSimpleStrategyEmptyRing(t *testing.T) {
	m := NewTokenMap(nil, SimpleStrategy{ReplicationFactor: 3})
	if got := m.Replicas(42); got != nil {
		t.Fatalf("Replicas on empty ring = %v, want nil", got)
	}
}

func TestNetworkTopologyStrategyPerDCCounts(t *testing.T) {
	dc1a := nodeWithTokens("dc1", "r1", 10)
	dc1b := nodeWithTokens("dc1", "r2", 20)
	dc2a := nodeWithTokens("dc2", "r1", 15)
	dc2b := nodeWithTokens("dc2", "r2", 25)

	strategy := NetworkTopologyStrategy{ReplicationFactor: map[string]int{"dc1": 1, "dc2": 2}}
	m := NewTokenMap([]*Node{dc1a, dc1b, dc2a, dc2b}, strategy)

	got := m.Replicas(5)
	var dc1Count, dc2Count int
	for _, n := range got {
		switch n.datacenter {
		case "dc1":
			dc1Count++
		case "dc2":
			dc2Count++
		}
	}
	if dc1Count != 1 {
		t.Fatalf("dc1 replica count = %d, want 1", dc1Count)
	}
	if dc2Count != 2 {
		t.Fatalf("dc2 replica count = %d, want 2", dc2Count)
	}
}

func TestNetworkTopologyStrategyMissingDCGetsNothing(t *testing.T) {
	dc1a := nodeWithTokens("dc1", "r1", 10)

	strategy := NetworkTopologyStrategy{ReplicationFactor: map[string]int{"dc1": 1, "dc3": 2}}
	m := NewTokenMap([]*Node{dc1a}, strategy)

	got := m.Replicas(0)
	if len(got) != 1 || got[0] != dc1a {
		t.Fatalf("Replicas = %v, want [dc1a] (dc3 has no members)", got)
	}
}

func TestTokenMapNilReceiver(t *testing.T) {
	var m *TokenMap
	if got := m.Replicas(1); got != nil {
		t.Fatalf("nil TokenMap.Replicas = %v, want nil", got)
	}
}

func TestMurmurTokenDeterministic(t *testing.T) {
	a := MurmurToken([]byte("partition-key"))
	b := MurmurToken([]byte("partition-key"))
	if a != b {
		t.Fatalf("MurmurToken not deterministic: %d != %d", a, b)
	}

	c := MurmurToken([]byte("other-key"))
	if a == c {
		t.Fatalf("MurmurToken collided for distinct inputs (allowed but suspicious for this fixture)")
	}
}
