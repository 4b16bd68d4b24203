package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hailocab/go-hostpool"
)

// HostSelectionPolicy builds the query plan for one request: Node(info, 0)
// is the preferred host, Node(info, 1) the next candidate after a failure,
// and so on until it returns nil (spec.md §4.5 "Load-balancing policy").
// SetNodes is called by the cluster whenever the live host set changes.
type HostSelectionPolicy interface {
	Node(info QueryInfo, idx int) *Node
	SetNodes(nodes []*Node)
}

// roundRobinPolicy rotates across every Up node with no notion of
// locality. The node list is swapped atomically on topology change so
// concurrent Node() calls never race a rebuild (spec.md §5 "copy-on-write
// snapshot").
type roundRobinPolicy struct {
	nodes  atomic.Value // []*Node
	offset uint64
}

// NewRoundRobinPolicy returns a HostSelectionPolicy that cycles through
// every live node with no datacenter or token affinity.
func NewRoundRobinPolicy() HostSelectionPolicy {
	p := &roundRobinPolicy{}
	p.nodes.Store([]*Node{})
	return p
}

func (p *roundRobinPolicy) SetNodes(nodes []*Node) {
	p.nodes.Store(append([]*Node(nil), nodes...))
}

func (p *roundRobinPolicy) Node(_ QueryInfo, idx int) *Node {
	nodes := p.nodes.Load().([]*Node)
	up := filterUp(nodes)
	if idx < 0 || idx >= len(up) {
		return nil
	}
	start := atomic.AddUint64(&p.offset, 1)
	return up[(int(start)+idx)%len(up)]
}

func filterUp(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsUp() {
			out = append(out, n)
		}
	}
	return out
}

// dcAwarePolicy tries every Up node in localDC first, then falls back to
// every remaining Up node (spec.md §4.5 "DC-aware").
type dcAwarePolicy struct {
	localDC string
	nodes   atomic.Value // []*Node
	offset  uint64
}

// NewDCAwareRoundRobin returns a HostSelectionPolicy preferring nodes in
// localDC, falling back to remote nodes only once local ones are
// exhausted.
func NewDCAwareRoundRobin(localDC string) HostSelectionPolicy {
	p := &dcAwarePolicy{localDC: localDC}
	p.nodes.Store([]*Node{})
	return p
}

func (p *dcAwarePolicy) SetNodes(nodes []*Node) {
	p.nodes.Store(append([]*Node(nil), nodes...))
}

func (p *dcAwarePolicy) Node(_ QueryInfo, idx int) *Node {
	nodes := p.nodes.Load().([]*Node)
	var local, remote []*Node
	for _, n := range nodes {
		if !n.IsUp() {
			continue
		}
		if n.datacenter == p.localDC {
			local = append(local, n)
		} else {
			remote = append(remote, n)
		}
	}

	plan := append(local, remote...)
	if idx < 0 || idx >= len(plan) {
		return nil
	}
	start := atomic.AddUint64(&p.offset, 1)
	// rotate only within whichever segment idx lands in, preserving the
	// local-before-remote ordering.
	if idx < len(local) {
		return local[(int(start)+idx)%len(local)]
	}
	remoteIdx := idx - len(local)
	return remote[(int(start)+remoteIdx)%len(remote)]
}

// tokenAwarePolicy puts a request's replica set first in the plan, in the
// order the token map returns them, then defers to fallback for anything
// beyond the replication factor (spec.md §4.5 "Token-aware").
type tokenAwarePolicy struct {
	fallback HostSelectionPolicy
	strategy ReplicationStrategy
	tokenMap atomic.Value // *TokenMap
}

// NewSimpleTokenAwarePolicy wraps fallback with token-aware routing using
// SimpleStrategy(rf). SetNodes builds the token map once the cluster has
// learned the ring.
func NewSimpleTokenAwarePolicy(fallback HostSelectionPolicy, rf int) HostSelectionPolicy {
	p := &tokenAwarePolicy{fallback: fallback}
	p.strategy = SimpleStrategy{ReplicationFactor: rf}
	return p
}

// NewNetworkTopologyTokenAwarePolicy wraps fallback with token-aware
// routing using NetworkTopologyStrategy(dcRf).
func NewNetworkTopologyTokenAwarePolicy(fallback HostSelectionPolicy, dcRf map[string]int) HostSelectionPolicy {
	p := &tokenAwarePolicy{fallback: fallback}
	p.strategy = NetworkTopologyStrategy{ReplicationFactor: dcRf}
	return p
}

func (p *tokenAwarePolicy) SetNodes(nodes []*Node) {
	p.fallback.SetNodes(nodes)
	p.tokenMap.Store(NewTokenMap(nodes, p.strategy))
}

func (p *tokenAwarePolicy) Node(info QueryInfo, idx int) *Node {
	if !info.tokenAware {
		return p.fallback.Node(info, idx)
	}

	tm, _ := p.tokenMap.Load().(*TokenMap)
	if tm == nil {
		return p.fallback.Node(info, idx)
	}
	replicas := tm.Replicas(info.token)
	up := filterUp(replicas)
	if idx < len(up) {
		return up[idx]
	}

	// Replica set exhausted: continue with fallback's plan from its first
	// position. Fallback's plan covers every node, so it can return a
	// replica that was already tried.
	return p.fallback.Node(info, idx-len(up))
}

// whitelistPolicy restricts fallback's plan to an explicit allow-set of
// addresses (spec.md §4.5 "Whitelist/Blacklist").
type whitelistPolicy struct {
	fallback HostSelectionPolicy
	allow    map[string]bool
}

func NewWhitelistPolicy(fallback HostSelectionPolicy, addrs ...string) HostSelectionPolicy {
	allow := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		allow[a] = true
	}
	return &whitelistPolicy{fallback: fallback, allow: allow}
}

func (p *whitelistPolicy) SetNodes(nodes []*Node) {
	filtered := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if p.allow[n.addr] {
			filtered = append(filtered, n)
		}
	}
	p.fallback.SetNodes(filtered)
}

func (p *whitelistPolicy) Node(info QueryInfo, idx int) *Node {
	return p.fallback.Node(info, idx)
}

// blacklistPolicy is whitelistPolicy's complement: it excludes addresses
// rather than restricting to them.
type blacklistPolicy struct {
	fallback HostSelectionPolicy
	deny     map[string]bool
}

func NewBlacklistPolicy(fallback HostSelectionPolicy, addrs ...string) HostSelectionPolicy {
	deny := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		deny[a] = true
	}
	return &blacklistPolicy{fallback: fallback, deny: deny}
}

func (p *blacklistPolicy) SetNodes(nodes []*Node) {
	filtered := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if !p.deny[n.addr] {
			filtered = append(filtered, n)
		}
	}
	p.fallback.SetNodes(filtered)
}

func (p *blacklistPolicy) Node(info QueryInfo, idx int) *Node {
	return p.fallback.Node(info, idx)
}

// latencyAwarePolicy reorders fallback's plan by observed response
// latency, using hostpool's epsilon-greedy exploration/exploitation split
// so a consistently slow host stops being tried first without ever being
// starved entirely (spec.md §4.5 "Latency-aware"). Each pick's
// HostPoolResponse is retained until the caller reports the outcome via
// MarkLatency, so Mark's internal timing reflects the real round trip.
type latencyAwarePolicy struct {
	fallback HostSelectionPolicy

	mu      sync.Mutex
	pool    hostpool.HostPool
	byKey   map[string]*Node
	pending map[string]hostpool.HostPoolResponse
}

// NewLatencyAwarePolicy wraps fallback, whose plan order seeds the initial
// host set; subsequent calls reorder by MarkLatency feedback.
func NewLatencyAwarePolicy(fallback HostSelectionPolicy) HostSelectionPolicy {
	return &latencyAwarePolicy{
		fallback: fallback,
		pool:     hostpool.NewEpsilonGreedy(nil, 0, &hostpool.LinearEpsilonValueCalculator{}),
		byKey:    map[string]*Node{},
		pending:  map[string]hostpool.HostPoolResponse{},
	}
}

func (p *latencyAwarePolicy) SetNodes(nodes []*Node) {
	p.fallback.SetNodes(nodes)

	p.mu.Lock()
	defer p.mu.Unlock()
	hosts := make([]string, 0, len(nodes))
	p.byKey = make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		hosts = append(hosts, n.addr)
		p.byKey[n.addr] = n
	}
	p.pool = hostpool.NewEpsilonGreedy(hosts, 5*time.Minute, &hostpool.LinearEpsilonValueCalculator{})
}

func (p *latencyAwarePolicy) Node(info QueryInfo, idx int) *Node {
	if idx > 0 {
		// Exploration ordering only applies to the first choice; retries
		// fall back to the wrapped policy's plan.
		return p.fallback.Node(info, idx)
	}

	p.mu.Lock()
	if len(p.byKey) == 0 {
		p.mu.Unlock()
		return p.fallback.Node(info, idx)
	}
	resp := p.pool.Get()
	n, ok := p.byKey[resp.Host()]
	if ok {
		p.pending[resp.Host()] = resp
	}
	p.mu.Unlock()

	if !ok || !n.IsUp() {
		return p.fallback.Node(info, idx)
	}
	return n
}

// MarkLatency reports addr's outcome for the most recent pick, feeding it
// back into the epsilon-greedy selector so future Node(info, 0) calls
// prefer consistently fast hosts.
func (p *latencyAwarePolicy) MarkLatency(addr string, err error) {
	p.mu.Lock()
	resp, ok := p.pending[addr]
	delete(p.pending, addr)
	p.mu.Unlock()

	if ok {
		resp.Mark(err)
	}
}
