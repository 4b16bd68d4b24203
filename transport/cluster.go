package transport

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/response"
	"github.com/scylladb/gocql-native/schema"
)

// Cluster owns the driver's view of the ring: the live Node set, the
// control connection used to discover and track it, and the
// HostSelectionPolicy kept in sync with both (spec.md §4.6 "Control
// connection", §2 component 9 "Session/Cluster").
type Cluster struct {
	cfg    ConnConfig
	policy HostSelectionPolicy
	events []string

	mu    sync.RWMutex
	nodes map[string]*Node

	control   *Conn
	controlMu sync.Mutex

	defaultKeyspace string

	// criticalCh publishes a CriticalError whenever a node's pool gives up
	// reconnecting (spec.md §4.4); buffered so a slow or absent listener
	// never stalls the pool's reconnect goroutine.
	criticalCh chan CriticalError

	// schemaCh receives a notification every time a SCHEMA_CHANGE event
	// arrives on the control connection, so a Session can re-fetch the
	// schema snapshot and wait for agreement (spec.md §4.9).
	schemaCh chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

var peersQuery = Statement{
	Content:     "SELECT peer, data_center, rack, host_id, tokens FROM system.peers",
	Consistency: frame.ONE,
}

var localQuery = Statement{
	Content:     "SELECT data_center, rack, host_id, tokens FROM system.local",
	Consistency: frame.ONE,
}

// NewCluster dials each of hosts in turn until one accepts a control
// connection, uses it to discover the full ring via system.local/
// system.peers, opens a pool to every discovered node, and subscribes the
// control connection to the requested event types (spec.md §4.6).
func NewCluster(ctx context.Context, cfg ConnConfig, policy HostSelectionPolicy, events []string, hosts ...string) (*Cluster, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("transport: at least one host is required")
	}

	c := &Cluster{
		cfg:             cfg,
		policy:          policy,
		events:          events,
		nodes:           map[string]*Node{},
		defaultKeyspace: cfg.Keyspace,
		criticalCh:      make(chan CriticalError, 16),
		schemaCh:        make(chan struct{}, 1),
		closed:          make(chan struct{}),
	}

	var lastErr error
	for _, h := range hosts {
		if err := c.dialControl(ctx, h); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("transport: no contact point reachable: %w", lastErr)
	}

	if err := c.refreshRing(ctx); err != nil {
		c.control.Close()
		return nil, fmt.Errorf("discovering ring: %w", err)
	}

	if len(events) > 0 {
		if err := c.control.Register(ctx, events); err != nil {
			log.Printf("transport: REGISTER failed, topology changes won't be tracked live: %v", err)
		} else {
			go c.eventLoop()
		}
	}

	return c, nil
}

// controlConnConfig returns the connection configuration used for the
// control connection itself: everything the node pools use, except the
// per-request timeout is disabled. system.peers/system.local and the
// system_schema scans this connection runs can legitimately take far
// longer than a data-path read under cluster resize or heavy schema churn;
// applying the data-path's RequestTimeout here would misclassify a slow
// scan as REQUEST_TIMED_OUT and feed the exact reconnect-storm pathology
// spec.md §9 warns about. The caller's ctx still bounds every call.
func controlConnConfig(cfg ConnConfig) ConnConfig {
	cc := cfg
	cc.RequestTimeout = 0
	return cc
}

func (c *Cluster) dialControl(ctx context.Context, addr string) error {
	conn, err := OpenConn(ctx, addr, controlConnConfig(c.cfg))
	if err != nil {
		return err
	}
	c.controlMu.Lock()
	c.control = conn
	c.controlMu.Unlock()
	return nil
}

// refreshRing re-reads system.local/system.peers over the control
// connection, rebuilds the Node set (dialing pools for any new address and
// closing pools for any address that vanished), and pushes the result into
// the policy (spec.md §4.6 "rebuilds the driver's host map").
func (c *Cluster) refreshRing(ctx context.Context) error {
	c.controlMu.Lock()
	control := c.control
	c.controlMu.Unlock()

	local, err := control.Query(ctx, localQuery, nil)
	if err != nil {
		return fmt.Errorf("system.local: %w", err)
	}
	peers, err := control.Query(ctx, peersQuery, nil)
	if err != nil {
		return fmt.Errorf("system.peers: %w", err)
	}

	fresh := map[string]*Node{}
	if len(local.Rows) > 0 {
		n := nodeFromLocalRow(control, local.Rows[0])
		fresh[n.addr] = n
	}
	for _, row := range peers.Rows {
		n := nodeFromPeerRow(row)
		if n != nil {
			fresh[n.addr] = n
		}
	}

	c.mu.Lock()
	old := c.nodes
	c.nodes = fresh
	c.mu.Unlock()

	for addr, n := range fresh {
		if existing, ok := old[addr]; ok {
			n.pool = existing.pool
			n.status = existing.status
			continue
		}
		n.Init(ctx, c.cfg, ExponentialReconnectionPolicy{BaseDelay: defaultReconnectBase, MaxDelay: defaultReconnectMax}, c.onNodeCritical)
	}
	for addr, n := range old {
		if _, ok := fresh[addr]; !ok {
			n.Close()
		}
	}

	nodeList := make([]*Node, 0, len(fresh))
	for _, n := range fresh {
		nodeList = append(nodeList, n)
	}
	c.policy.SetNodes(nodeList)

	return nil
}

func nodeFromLocalRow(control *Conn, row frame.Row) *Node {
	n := &Node{addr: controlAddr(control)}
	if len(row) > 0 {
		n.datacenter, _ = row[0].AsText()
	}
	if len(row) > 1 {
		n.rack, _ = row[1].AsText()
	}
	if len(row) > 2 {
		if id, err := row[2].AsUUID(); err == nil {
			n.hostID = id
		}
	}
	if len(row) > 3 {
		n.tokens = parseTokens(row[3])
	}
	return n
}

func nodeFromPeerRow(row frame.Row) *Node {
	if len(row) == 0 || row[0].IsNull() {
		return nil
	}
	ip, err := row[0].AsInet()
	if err != nil {
		return nil
	}
	n := &Node{addr: fmt.Sprintf("%s:9042", ip.String())}
	if len(row) > 1 {
		n.datacenter, _ = row[1].AsText()
	}
	if len(row) > 2 {
		n.rack, _ = row[2].AsText()
	}
	if len(row) > 3 {
		if id, err := row[3].AsUUID(); err == nil {
			n.hostID = id
		}
	}
	if len(row) > 4 {
		n.tokens = parseTokens(row[4])
	}
	return n
}

func parseTokens(v frame.Value) []Token {
	list, err := v.AsTextList()
	if err != nil || list == nil {
		return nil
	}
	tokens := make([]Token, 0, len(list))
	for _, s := range list {
		if t, err := strconv.ParseInt(s, 10, 64); err == nil {
			tokens = append(tokens, Token(t))
		}
	}
	return tokens
}

func controlAddr(control *Conn) string {
	if control == nil {
		return ""
	}
	return control.conn.RemoteAddr().String()
}

const (
	defaultReconnectBase = time.Second
	defaultReconnectMax  = 2 * time.Minute
)

// eventLoop consumes TOPOLOGY_CHANGE/STATUS_CHANGE/SCHEMA_CHANGE
// notifications delivered on the control connection's dedicated stream and
// triggers a ring refresh (spec.md §4.6).
func (c *Cluster) eventLoop() {
	for {
		select {
		case <-c.closed:
			return
		case ev, ok := <-c.controlEvents():
			if !ok {
				return
			}
			switch ev.Type {
			case response.TopologyChange, response.StatusChange:
				if err := c.refreshRing(context.Background()); err != nil {
					log.Printf("transport: ring refresh after %s failed: %v", ev.Type, err)
				}
			case response.SchemaChange:
				select {
				case c.schemaCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// controlEvents returns the control connection's push-event channel.
func (c *Cluster) controlEvents() <-chan *response.Event {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return c.control.Events()
}

// onNodeCritical is forwarded to every Node.Init as its pool's onCritical
// callback; it logs and publishes the failure on Critical() instead of
// letting the pool keep scheduling doomed reconnection attempts (spec.md
// §4.4, §7 error-propagation policy).
func (c *Cluster) onNodeCritical(n *Node, err error) {
	log.Printf("transport: %s: critical error, will not reconnect: %v", n.Addr(), err)
	select {
	case c.criticalCh <- CriticalError{Node: n, Err: err}:
	default:
		// A slow or absent listener must never stall the reconnect-loop
		// goroutine that discovered this.
	}
}

// Critical returns the channel critical, unrecoverable per-host errors are
// published on: bad credentials, TLS verification failures and protocol
// mismatches land here instead of being retried forever (spec.md §4.4).
func (c *Cluster) Critical() <-chan CriticalError {
	return c.criticalCh
}

// SchemaEvents returns the channel a notification is pushed on every time
// a SCHEMA_CHANGE event arrives (spec.md §4.6, §4.9).
func (c *Cluster) SchemaEvents() <-chan struct{} {
	return c.schemaCh
}

// Policy returns the cluster's HostSelectionPolicy.
func (c *Cluster) Policy() HostSelectionPolicy { return c.policy }

// NewQueryInfo returns a QueryInfo for a request with no token-routing
// information (spec.md §4.5).
func (c *Cluster) NewQueryInfo() QueryInfo {
	return QueryInfo{}
}

// NewTokenAwareQueryInfo returns a QueryInfo that routes by token.
func (c *Cluster) NewTokenAwareQueryInfo(token Token, keyspace string) (QueryInfo, error) {
	if keyspace == "" {
		keyspace = c.defaultKeyspace
	}
	return QueryInfo{tokenAware: true, token: token, keyspace: keyspace}, nil
}

var keyspacesQuery = Statement{
	Content:     "SELECT keyspace_name, replication FROM system_schema.keyspaces",
	Consistency: frame.ONE,
}

var tablesQuery = Statement{
	Content:     "SELECT keyspace_name, table_name FROM system_schema.tables",
	Consistency: frame.ONE,
}

var columnsQuery = Statement{
	Content:     "SELECT keyspace_name, table_name, column_name FROM system_schema.columns",
	Consistency: frame.ONE,
}

// DescribeSchema reads system_schema.keyspaces/tables/columns over the
// control connection and builds a full schema.Snapshot (spec.md SPEC_FULL
// §3 "schema.Snapshot").
func (c *Cluster) DescribeSchema(ctx context.Context) (schema.Snapshot, error) {
	c.controlMu.Lock()
	control := c.control
	c.controlMu.Unlock()

	snap := schema.Snapshot{Keyspaces: map[string]schema.Keyspace{}}

	ksRes, err := control.Query(ctx, keyspacesQuery, nil)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("system_schema.keyspaces: %w", err)
	}
	for _, row := range ksRes.Rows {
		if len(row) < 2 {
			continue
		}
		name, _ := row[0].AsText()
		repl, _ := row[1].AsTextMap()
		snap.Keyspaces[name] = schema.Keyspace{Name: name, Replication: repl, Tables: map[string]schema.Table{}}
	}

	tRes, err := control.Query(ctx, tablesQuery, nil)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("system_schema.tables: %w", err)
	}
	for _, row := range tRes.Rows {
		if len(row) < 2 {
			continue
		}
		ks, _ := row[0].AsText()
		table, _ := row[1].AsText()
		k, ok := snap.Keyspaces[ks]
		if !ok {
			continue
		}
		k.Tables[table] = schema.Table{Name: table}
	}

	colRes, err := control.Query(ctx, columnsQuery, nil)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("system_schema.columns: %w", err)
	}
	for _, row := range colRes.Rows {
		if len(row) < 3 {
			continue
		}
		ks, _ := row[0].AsText()
		table, _ := row[1].AsText()
		col, _ := row[2].AsText()
		k, ok := snap.Keyspaces[ks]
		if !ok {
			continue
		}
		t, ok := k.Tables[table]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, col)
		k.Tables[table] = t
	}

	return snap, nil
}

// DescribeKeyspace is DescribeSchema narrowed to one keyspace, for callers
// that only need one keyspace's replication settings (spec.md SPEC_FULL
// §3).
func (c *Cluster) DescribeKeyspace(ctx context.Context, name string) (schema.Keyspace, error) {
	snap, err := c.DescribeSchema(ctx)
	if err != nil {
		return schema.Keyspace{}, err
	}
	k, ok := snap.Keyspaces[name]
	if !ok {
		return schema.Keyspace{}, fmt.Errorf("keyspace %q not found", name)
	}
	return k, nil
}

// PrepareOnAllHosts prepares content on every UP node's least-busy
// connection, so a subsequent EXECUTE can land on any of them without first
// triggering an UNPREPARED round trip (spec.md §4.8 "prepare-on-all-hosts").
// It attempts every node regardless of earlier failures and returns the
// last error encountered, if any.
func (c *Cluster) PrepareOnAllHosts(ctx context.Context, content string) error {
	c.mu.RLock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	var lastErr error
	for _, n := range nodes {
		if !n.IsUp() {
			continue
		}
		if _, err := n.Prepare(ctx, Statement{Content: content, Consistency: c.cfg.DefaultConsistency}); err != nil {
			lastErr = fmt.Errorf("preparing on %s: %w", n.Addr(), err)
		}
	}
	return lastErr
}

const schemaAgreementPollInterval = 200 * time.Millisecond

// WaitForSchemaAgreement polls every UP node's schema_version until they
// all agree or ctx is done (spec.md §4.9 "schema-agreement wait"), the way
// a driver confirms a DDL statement has propagated before relying on the
// new schema elsewhere in the ring.
func (c *Cluster) WaitForSchemaAgreement(ctx context.Context) error {
	c.mu.RLock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	ticker := time.NewTicker(schemaAgreementPollInterval)
	defer ticker.Stop()

	for {
		versions := map[frame.UUID]bool{}
		allReachable := true
		for _, n := range nodes {
			if !n.IsUp() {
				continue
			}
			v, err := n.FetchSchemaVersion(ctx)
			if err != nil {
				allReachable = false
				continue
			}
			versions[v] = true
		}

		if allReachable && len(versions) <= 1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("schema agreement not reached: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close tears down every node's connection pool and the control
// connection.
func (c *Cluster) Close() {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	nodes := c.nodes
	c.nodes = nil
	c.mu.Unlock()

	for _, n := range nodes {
		n.Close()
	}

	c.controlMu.Lock()
	if c.control != nil {
		c.control.Close()
	}
	c.controlMu.Unlock()
}
