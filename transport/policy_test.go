package transport

import "testing"

func upNode(addr, dc string) *Node {
	n := &Node{addr: addr, datacenter: dc}
	n.setStatus(statusUP)
	return n
}

func downNode(addr, dc string) *Node {
	n := &Node{addr: addr, datacenter: dc}
	n.setStatus(statusDown)
	return n
}

func TestRoundRobinPolicySkipsDownNodes(t *testing.T) {
	n1 := upNode("h1", "dc1")
	n2 := downNode("h2", "dc1")
	n3 := upNode("h3", "dc1")

	p := NewRoundRobinPolicy()
	p.SetNodes([]*Node{n1, n2, n3})

	for i := 0; i < 10; i++ {
		n := p.Node(QueryInfo{}, 0)
		if n == n2 {
			t.Fatalf("round robin picked a down node")
		}
	}
}

func TestRoundRobinPolicyOutOfRangeReturnsNil(t *testing.T) {
	p := NewRoundRobinPolicy()
	p.SetNodes([]*Node{upNode("h1", "dc1")})

	if n := p.Node(QueryInfo{}, 1); n != nil {
		t.Fatalf("Node(_, 1) with one node = %v, want nil", n)
	}
}

func TestRoundRobinPolicyEmptyReturnsNil(t *testing.T) {
	p := NewRoundRobinPolicy()
	if n := p.Node(QueryInfo{}, 0); n != nil {
		t.Fatalf("Node on empty policy = %v, want nil", n)
	}
}

func TestDCAwarePolicyPrefersLocal(t *testing.T) {
	local := upNode("h1", "dc1")
	remote := upNode("h2", "dc2")

	p := NewDCAwareRoundRobin("dc1")
	p.SetNodes([]*Node{remote, local})

	if n := p.Node(QueryInfo{}, 0); n != local {
		t.Fatalf("Node(_, 0) = %v, want local node", n)
	}
	if n := p.Node(QueryInfo{}, 1); n != remote {
		t.Fatalf("Node(_, 1) = %v, want remote node once local exhausted", n)
	}
}

func TestDCAwarePolicySkipsDown(t *testing.T) {
	local := downNode("h1", "dc1")
	remote := upNode("h2", "dc2")

	p := NewDCAwareRoundRobin("dc1")
	p.SetNodes([]*Node{local, remote})

	if n := p.Node(QueryInfo{}, 0); n != remote {
		t.Fatalf("Node(_, 0) = %v, want remote node (local is down)", n)
	}
}

func TestTokenAwarePolicyPrefersReplicas(t *testing.T) {
	replica := upNode("h1", "dc1")
	replica.tokens = []Token{10}
	other := upNode("h2", "dc1")
	other.tokens = []Token{20}

	fallback := NewRoundRobinPolicy()
	p := NewSimpleTokenAwarePolicy(fallback, 1)
	p.SetNodes([]*Node{replica, other})

	info := QueryInfo{tokenAware: true, token: 5}
	if n := p.Node(info, 0); n != replica {
		t.Fatalf("Node(info, 0) = %v, want replica owning token 5", n)
	}
}

func TestTokenAwarePolicyFallsBackWhenNotTokenAware(t *testing.T) {
	n1 := upNode("h1", "dc1")
	n1.tokens = []Token{10}

	fallback := NewRoundRobinPolicy()
	p := NewSimpleTokenAwarePolicy(fallback, 1)
	p.SetNodes([]*Node{n1})

	if n := p.Node(QueryInfo{tokenAware: false}, 0); n != n1 {
		t.Fatalf("non-token-aware query should use fallback's plan, got %v", n)
	}
}

func TestWhitelistPolicyRestrictsToAllowed(t *testing.T) {
	n1 := upNode("h1", "dc1")
	n2 := upNode("h2", "dc1")

	fallback := NewRoundRobinPolicy()
	p := NewWhitelistPolicy(fallback, "h1")
	p.SetNodes([]*Node{n1, n2})

	if n := p.Node(QueryInfo{}, 0); n != n1 {
		t.Fatalf("whitelist should only ever return h1, got %v", n)
	}
	if n := p.Node(QueryInfo{}, 1); n != nil {
		t.Fatalf("whitelist plan beyond allowed set = %v, want nil", n)
	}
}

func TestBlacklistPolicyExcludesDenied(t *testing.T) {
	n1 := upNode("h1", "dc1")
	n2 := upNode("h2", "dc1")

	fallback := NewRoundRobinPolicy()
	p := NewBlacklistPolicy(fallback, "h1")
	p.SetNodes([]*Node{n1, n2})

	if n := p.Node(QueryInfo{}, 0); n != n2 {
		t.Fatalf("blacklist should never return h1, got %v", n)
	}
}

func TestLatencyAwarePolicyFallsBackWhenEmpty(t *testing.T) {
	fallback := NewRoundRobinPolicy()
	n1 := upNode("h1", "dc1")
	fallback.SetNodes([]*Node{n1})

	p := NewLatencyAwarePolicy(fallback).(*latencyAwarePolicy)
	if n := p.Node(QueryInfo{}, 0); n != n1 {
		t.Fatalf("latency-aware with no nodes set should defer to fallback, got %v", n)
	}
}

func TestLatencyAwarePolicyMarkLatencyIsNoopWithoutPick(t *testing.T) {
	fallback := NewRoundRobinPolicy()
	p := NewLatencyAwarePolicy(fallback).(*latencyAwarePolicy)
	p.SetNodes([]*Node{upNode("h1", "dc1")})

	// Marking a host that was never returned by Node must not panic.
	p.MarkLatency("h1", nil)
}
