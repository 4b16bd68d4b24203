package transport

import (
	"context"
	"fmt"
	"log"

	"github.com/scylladb/gocql-native/frame"
	"go.uber.org/atomic"
)

type nodeStatus = atomic.Bool

const (
	statusDown = false
	statusUP   = true
)

// Node is one cluster member as the driver sees it: dialing address,
// topology labels reported by system.peers/system.local, its per-host
// connection pool and liveness flag (spec.md §3 "Host").
type Node struct {
	hostID     frame.UUID
	addr       string
	datacenter string
	rack       string
	tokens     []Token
	pool       *ConnPool
	status     nodeStatus
}

func (n *Node) IsUp() bool {
	return n.status.Load()
}

func (n *Node) setStatus(v bool) {
	n.status.Store(v)
}

// CriticalError is published on a Cluster's Critical channel when a node's
// pool gives up reconnecting because its dial error was classified
// unrecoverable by IsCritical (spec.md §4.4).
type CriticalError struct {
	Node *Node
	Err  error
}

// Init builds n's connection pool, if it doesn't already have one.
// onCritical, if non-nil, is forwarded to the pool and called at most once
// if a dial error turns out critical (spec.md §4.4); the node is marked
// down in that case as well as on ordinary pool failure.
func (n *Node) Init(ctx context.Context, cfg ConnConfig, reconnPolicy ReconnectionPolicy, onCritical func(*Node, error)) {
	if n.pool == nil {
		var err error
		n.pool, err = NewConnPool(ctx, n.addr, cfg, reconnPolicy, func(poolErr error) {
			n.setStatus(statusDown)
			if onCritical != nil {
				onCritical(n, poolErr)
			}
		})
		if err == nil {
			n.setStatus(statusUP)
		} else {
			log.Printf("couldn't create a connection pool to node %v: %v\nsetting node status to DOWN", n, err)
			n.setStatus(statusDown)
		}
	}
}

// Addr is the dialing address this node was discovered at.
func (n *Node) Addr() string { return n.addr }

// Datacenter is the rack-topology datacenter label reported by the node
// itself (spec.md §3 "Host").
func (n *Node) Datacenter() string { return n.datacenter }

// Rack is the rack-topology rack label reported by the node itself.
func (n *Node) Rack() string { return n.rack }

// HostID is the node's stable identifier, unique even across IP changes.
func (n *Node) HostID() frame.UUID { return n.hostID }

func (n *Node) String() string {
	return fmt.Sprintf("%s (dc=%s rack=%s)", n.addr, n.datacenter, n.rack)
}

func (n *Node) Close() {
	if n.pool != nil {
		n.pool.Close()
	}
	n.setStatus(statusDown)
}

func (n *Node) LeastBusyConn() (*Conn, error) {
	if !n.IsUp() {
		return nil, fmt.Errorf("node %v is down", n)
	}

	return n.pool.LeastBusyConn()
}
func (n *Node) Conn(qi QueryInfo) (*Conn, error) {
	if !n.IsUp() {
		return nil, fmt.Errorf("node %v is down", n)
	}
	if qi.tokenAware {
		return n.pool.Conn(qi.token)
	}

	return n.LeastBusyConn()
}

func (n *Node) Prepare(ctx context.Context, s Statement) (Statement, error) {
	conn, err := n.LeastBusyConn()
	if err != nil {
		return Statement{}, err
	}
	return conn.Prepare(ctx, s)
}

var versionQuery = Statement{
	Content:     "SELECT schema_version FROM system.local WHERE key='local'",
	Consistency: frame.ONE,
}

func (n *Node) FetchSchemaVersion(ctx context.Context) (frame.UUID, error) {
	conn, err := n.LeastBusyConn()
	if err != nil {
		return frame.UUID{}, err
	}

	res, err := conn.Query(ctx, versionQuery, nil)
	if err != nil {
		return frame.UUID{}, err
	}

	if len(res.Rows) < 1 {
		return frame.UUID{}, fmt.Errorf("schema_version query returned no rows")
	}

	if len(res.Rows[0]) < 1 {
		return frame.UUID{}, fmt.Errorf("schema_version query returned an empty row")
	}

	version, err := res.Rows[0][0].AsUUID()
	if err != nil {
		return version, fmt.Errorf("parsing schema_version: %w", err)
	}

	return version, nil
}

type RingEntry struct {
	node           *Node
	token          Token
	localReplicas  []*Node
	remoteReplicas []*Node
}

func (r RingEntry) Less(i RingEntry) bool {
	return r.token < i.token
}

type Ring []RingEntry

func (r Ring) Less(i, j int) bool { return r[i].token < r[j].token }
func (r Ring) Len() int           { return len(r) }
func (r Ring) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }

// Iterator over all nodes starting from offset.
type replicaIter struct {
	ring    Ring
	offset  int
	fetched int
}

func (r *replicaIter) Next() *Node {
	if r.fetched >= len(r.ring) {
		return nil
	}

	ret := r.ring[r.offset].node
	r.offset++
	r.fetched++
	if r.offset >= len(r.ring) {
		r.offset = 0
	}

	return ret
}

// tokenLowerBound returns the position of first node with token greater than or equal to given, 0 if there wasn't one.
func (r Ring) tokenLowerBound(token Token) int {
	start, end := 0, len(r)
	for start < end {
		mid := int(uint(start+end) >> 1)
		if r[mid].token < token {
			start = mid + 1
		} else {
			end = mid
		}
	}

	if end >= len(r) {
		end = 0
	}

	return end
}
