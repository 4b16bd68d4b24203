package transport

import (
	"sort"

	"github.com/scylladb/gocql-native/frame"
)

// Token is a position on the cluster's consistent-hash ring (spec.md §3).
// Tokens are assigned by the server; the client only reads and sorts them.
type Token = int64

// MurmurToken hashes a partition key's serialized bytes into a ring
// position using Murmur3Partitioner's algorithm (spec.md §4.5).
func MurmurToken(data []byte) Token {
	return frame.Murmur3Token(data)
}

// ReplicationStrategy computes the replica set for a token given the ring
// (spec.md §3 "Token map").
type ReplicationStrategy interface {
	Replicas(ring Ring, token Token) []*Node
}

// SimpleStrategy replicates to the next RF-1 distinct hosts walking the
// ring clockwise from the token's owner, regardless of datacenter.
type SimpleStrategy struct {
	ReplicationFactor int
}

func (s SimpleStrategy) Replicas(ring Ring, token Token) []*Node {
	if len(ring) == 0 {
		return nil
	}
	start := ring.tokenLowerBound(token)
	out := make([]*Node, 0, s.ReplicationFactor)
	seen := make(map[*Node]bool, s.ReplicationFactor)
	for i := 0; i < len(ring) && len(out) < s.ReplicationFactor; i++ {
		n := ring[(start+i)%len(ring)].node
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// NetworkTopologyStrategy replicates RF[dc] hosts per datacenter, racks
// permitting (rack-diversity is approximated: the walk prefers an
// as-yet-unused rack in each DC before repeating one, matching Cassandra's
// NetworkTopologyStrategy intent without its full rack-failure accounting).
type NetworkTopologyStrategy struct {
	ReplicationFactor map[string]int
}

type dcReplicaState struct {
	want     int
	got      []*Node
	racksHit map[string]bool
}

func satisfiedCount(dcs map[string]*dcReplicaState) int {
	n := 0
	for _, st := range dcs {
		n += len(st.got)
	}
	return n
}

func (s NetworkTopologyStrategy) Replicas(ring Ring, token Token) []*Node {
	if len(ring) == 0 {
		return nil
	}
	start := ring.tokenLowerBound(token)

	dcs := make(map[string]*dcReplicaState, len(s.ReplicationFactor))
	for dc, rf := range s.ReplicationFactor {
		dcs[dc] = &dcReplicaState{want: rf, racksHit: map[string]bool{}}
	}

	total := 0
	for _, rf := range s.ReplicationFactor {
		total += rf
	}

	seen := make(map[*Node]bool)
	for i := 0; i < len(ring) && satisfiedCount(dcs) < total; i++ {
		n := ring[(start+i)%len(ring)].node
		if seen[n] {
			continue
		}
		st, ok := dcs[n.datacenter]
		if !ok || len(st.got) >= st.want {
			continue
		}
		if st.racksHit[n.rack] && len(st.racksHit) < countDistinctRacks(ring, n.datacenter) {
			// prefer an unused rack first; this node will be reconsidered
			// on later passes once all racks are represented.
			continue
		}
		seen[n] = true
		st.got = append(st.got, n)
		st.racksHit[n.rack] = true
	}
	// second pass: fill any still-short DC ignoring rack preference.
	for i := 0; i < len(ring) && satisfiedCount(dcs) < total; i++ {
		n := ring[(start+i)%len(ring)].node
		if seen[n] {
			continue
		}
		st, ok := dcs[n.datacenter]
		if !ok || len(st.got) >= st.want {
			continue
		}
		seen[n] = true
		st.got = append(st.got, n)
	}

	out := make([]*Node, 0, total)
	for _, st := range dcs {
		out = append(out, st.got...)
	}
	return out
}

func countDistinctRacks(ring Ring, dc string) int {
	racks := map[string]bool{}
	for _, e := range ring {
		if e.node.datacenter == dc {
			racks[e.node.rack] = true
		}
	}
	return len(racks)
}

// TokenMap is the ordered token -> replica mapping rebuilt whenever the
// host set or keyspace replication changes (spec.md §3). It is used only
// by token-aware routing.
type TokenMap struct {
	ring     Ring
	strategy ReplicationStrategy
}

func NewTokenMap(nodes []*Node, strategy ReplicationStrategy) *TokenMap {
	var ring Ring
	for _, n := range nodes {
		for _, t := range n.tokens {
			ring = append(ring, RingEntry{node: n, token: t})
		}
	}
	sort.Sort(ring)
	return &TokenMap{ring: ring, strategy: strategy}
}

func (m *TokenMap) Replicas(token Token) []*Node {
	if m == nil || m.strategy == nil {
		return nil
	}
	return m.strategy.Replicas(m.ring, token)
}
