package scylla

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"github.com/scylladb/gocql-native/frame/request"
	"github.com/scylladb/gocql-native/metrics"
	"github.com/scylladb/gocql-native/schema"
	"github.com/scylladb/gocql-native/transport"
)

// EventType names a server-pushed notification a Session can subscribe to
// on its control connection (spec.md §4.6).
type EventType = string

const (
	TopologyChange EventType = "TOPOLOGY_CHANGE"
	StatusChange   EventType = "STATUS_CHANGE"
	SchemaChange   EventType = "SCHEMA_CHANGE"
)

var (
	ErrNoHosts = fmt.Errorf("error in session config: no hosts given")

	ErrEventType = fmt.Errorf("error in session config: invalid event\npossible events:\n" +
		"TopologyChange EventType = \"TOPOLOGY_CHANGE\"\n" +
		"StatusChange   EventType = \"STATUS_CHANGE\"\n" +
		"SchemaChange   EventType = \"SCHEMA_CHANGE\"")

	errNoConnection = fmt.Errorf("no working connection")
)

// SessionConfig is everything NewSession needs: contact points, the event
// types the control connection should subscribe to, the load-balancing and
// retry policies, and the per-connection configuration (spec.md §2
// component 9 "Session/Cluster").
type SessionConfig struct {
	Hosts       []string
	Events      []EventType
	Policy      transport.HostSelectionPolicy
	RetryPolicy transport.RetryPolicy

	// Speculative governs additional parallel attempts for idempotent
	// requests (spec.md §4.3 "Speculative execution"). Nil is equivalent to
	// transport.NoSpeculativeExecution{}.
	Speculative transport.SpeculativeExecutionPolicy

	// Processors is the number of I/O processors every Query/Batch Exec is
	// dispatched across round-robin (spec.md §2 components 13/14, §4.7 step
	// 5). <= 0 defaults to runtime.NumCPU().
	Processors int

	// MailboxSize bounds each processor's request mailbox; past it, Exec
	// fails immediately with KindRequestQueueFull rather than blocking the
	// caller. <= 0 defaults to transport.DefaultMailboxSize.
	MailboxSize int

	transport.ConnConfig
}

// DefaultSessionConfig returns a SessionConfig that round-robins across
// hosts with no retries, matching the teacher's documented default of "no
// retries" until a RetryPolicy is set explicitly.
func DefaultSessionConfig(keyspace string, hosts ...string) SessionConfig {
	return SessionConfig{
		Hosts:       hosts,
		Policy:      transport.NewRoundRobinPolicy(),
		RetryPolicy: transport.DefaultRetryPolicy{},
		Speculative: transport.NoSpeculativeExecution{},
		Processors:  runtime.NumCPU(),
		MailboxSize: transport.DefaultMailboxSize,
		ConnConfig:  transport.DefaultConnConfig(keyspace),
	}
}

func (cfg SessionConfig) Clone() SessionConfig {
	v := cfg
	v.Hosts = append([]string(nil), cfg.Hosts...)
	v.Events = append([]EventType(nil), cfg.Events...)
	return v
}

func (cfg *SessionConfig) Validate() error {
	if len(cfg.Hosts) == 0 {
		return ErrNoHosts
	}
	for _, e := range cfg.Events {
		if e != TopologyChange && e != StatusChange && e != SchemaChange {
			return ErrEventType
		}
	}
	if cfg.Policy == nil {
		return fmt.Errorf("error in session config: no HostSelectionPolicy given")
	}
	if cfg.RetryPolicy == nil {
		return fmt.Errorf("error in session config: no RetryPolicy given")
	}
	return nil
}

// Session is a live connection to the cluster: the ring view and control
// connection (transport.Cluster) plus the policies every Query/Batch issued
// from it inherits (spec.md §2 component 9), its metrics, and the
// ProcessorPool requests are dispatched through.
type Session struct {
	cfg        SessionConfig
	cluster    *transport.Cluster
	metrics    *metrics.Metrics
	processors *transport.ProcessorPool
}

func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	cfg = cfg.Clone()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Speculative == nil {
		cfg.Speculative = transport.NoSpeculativeExecution{}
	}

	m := metrics.New()
	cfg.ConnConfig.Metrics = m

	cluster, err := transport.NewCluster(ctx, cfg.ConnConfig, cfg.Policy, cfg.Events, cfg.Hosts...)
	if err != nil {
		return nil, err
	}

	procs := cfg.Processors
	if procs <= 0 {
		procs = runtime.NumCPU()
	}
	mailbox := cfg.MailboxSize
	if mailbox <= 0 {
		mailbox = transport.DefaultMailboxSize
	}

	return &Session{
		cfg:        cfg,
		cluster:    cluster,
		metrics:    m,
		processors: transport.NewProcessorPool(procs, mailbox),
	}, nil
}

// Metrics returns a snapshot of the session's connection, latency, timeout
// and speculative-execution counters (spec.md §2 component 16).
func (s *Session) Metrics() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// Schema fetches a fresh snapshot of keyspace/table metadata from the
// control connection (spec.md SPEC_FULL §4.8).
func (s *Session) Schema(ctx context.Context) (schema.Snapshot, error) {
	return s.cluster.DescribeSchema(ctx)
}

// PrepareOnAllHosts prepares content on every UP node's connection pool, so
// a statement executed right after survives being routed to any replica
// without first paying an UNPREPARED round trip (spec.md SPEC_FULL §4.8).
func (s *Session) PrepareOnAllHosts(ctx context.Context, content string) error {
	return s.cluster.PrepareOnAllHosts(ctx, content)
}

// AwaitSchemaAgreement blocks until every UP node reports the same
// schema_version, or ctx is done (spec.md SPEC_FULL §4.9). It is not
// invoked automatically after every statement: recognizing a DDL statement
// would require parsing CQL, which this driver deliberately leaves to an
// external collaborator (spec.md §1 Non-goals). Callers that issue DDL and
// need later statements to observe it everywhere should call this right
// after, or watch SchemaEvents for a push-driven alternative.
func (s *Session) AwaitSchemaAgreement(ctx context.Context) error {
	return s.cluster.WaitForSchemaAgreement(ctx)
}

// SchemaEvents returns the channel a notification is pushed on every time
// the control connection observes a SCHEMA_CHANGE push (spec.md §4.6).
func (s *Session) SchemaEvents() <-chan struct{} {
	return s.cluster.SchemaEvents()
}

// Critical returns the channel critical, unrecoverable per-host errors are
// published on (spec.md §4.4): bad credentials, TLS verification failures
// and protocol mismatches land here instead of being retried forever.
func (s *Session) Critical() <-chan transport.CriticalError {
	return s.cluster.Critical()
}

// Query returns a new simple (unprepared) statement bound to this session.
func (s *Session) Query(content string) Query {
	return Query{
		session: s,
		stmt:    transport.Statement{Content: content, Consistency: s.cfg.DefaultConsistency},
		exec: func(ctx context.Context, conn *transport.Conn, stmt transport.Statement) (transport.QueryResult, error) {
			return conn.Query(ctx, stmt, stmt.Values)
		},
	}
}

// Prepare registers content with the cluster and returns a Query bound to
// the resulting prepared statement id.
func (s *Session) Prepare(ctx context.Context, content string) (Query, error) {
	n := s.cfg.Policy.Node(s.cluster.NewQueryInfo(), 0)
	if n == nil {
		return Query{}, errNoConnection
	}

	stmt, err := n.Prepare(ctx, transport.Statement{Content: content, Consistency: s.cfg.DefaultConsistency})
	if err != nil {
		return Query{}, err
	}

	return Query{
		session: s,
		stmt:    stmt,
		exec: func(ctx context.Context, conn *transport.Conn, st transport.Statement) (transport.QueryResult, error) {
			return conn.Execute(ctx, st)
		},
	}, nil
}

// Batch returns a new Batch bound to this session with the given type
// (spec.md §4.12, added).
func (s *Session) Batch(kind request.BatchType) *Batch {
	return &Batch{
		session:     s,
		kind:        kind,
		consistency: s.cfg.DefaultConsistency,
	}
}

func NewRoundRobinPolicy() transport.HostSelectionPolicy {
	return transport.NewRoundRobinPolicy()
}

func NewSimpleTokenAwarePolicy(rf int) transport.HostSelectionPolicy {
	return transport.NewSimpleTokenAwarePolicy(transport.NewRoundRobinPolicy(), rf)
}

func NewNetworkTopologyTokenAwarePolicy(dcRf map[string]int) transport.HostSelectionPolicy {
	return transport.NewNetworkTopologyTokenAwarePolicy(transport.NewRoundRobinPolicy(), dcRf)
}

func NewDCAwareRoundRobinPolicy(localDC string) transport.HostSelectionPolicy {
	return transport.NewDCAwareRoundRobin(localDC)
}

func (s *Session) Close() {
	log.Println("session: close")
	s.processors.Close()
	s.cluster.Close()
}
