package transport

import (
	"github.com/scylladb/gocql-native/frame"
)

// Statement is an immutable-once-submitted request body: an opaque query
// or a prepared id, bound values, optional routing-key material and
// per-request overrides (spec.md §3 "Request"). Encode is deterministic
// given a protocol version.
type Statement struct {
	Content  string // raw CQL, kept after Prepare so an UNPREPARED EXECUTE can be re-prepared
	ID       []byte // prepared id, nil until Prepare succeeds

	Values   []frame.Value
	Names    []string

	Metadata *frame.PreparedMetadata // nil for unprepared statements
	PkIndexes []int32
	PkCnt     int32

	Consistency       frame.Consistency
	SerialConsistency frame.Consistency
	Idempotent        bool
	Compression       bool
	NoSkipMetadata    bool

	PageSize    int32
	PagingState frame.Bytes

	Timestamp    int64
	HasTimestamp bool

	RetryPolicy RetryPolicy // not read by Query execution, which always uses SessionConfig.RetryPolicy
	Keyspace    string      // routing hint only, see spec.md §3 "routing-key material"
}

// Clone returns a deep-enough copy so a Statement can be mutated (e.g. its
// PagingState threaded through successive pages) without racing the
// original held by the caller (spec.md §3 "A copy-on-use snapshot").
func (s Statement) Clone() Statement {
	v := s
	v.Values = append([]frame.Value(nil), s.Values...)
	v.Names = append([]string(nil), s.Names...)
	v.PkIndexes = append([]int32(nil), s.PkIndexes...)
	return v
}

// QueryResult is the application-visible outcome of one QUERY/EXECUTE:
// decoded rows (if any), paging continuation state, and whether more pages
// remain (spec.md §4.13).
type QueryResult struct {
	Rows         []frame.Row
	Columns      []frame.ColumnSpec
	PagingState  frame.Bytes
	HasMorePages bool
	Warnings     []string
	TracingID    frame.UUID
}

// connResponse is what a connection delivers back to whoever is awaiting a
// stream id: either a decoded frame.Response or a transport-level error.
type connResponse struct {
	frame.Header
	frame.Response
	Err error
}

// ResponseHandler is the channel a request's terminal event (set, error,
// timeout, cancel) is delivered on exactly once (spec.md §5 "Ordering").
type ResponseHandler chan connResponse

// QueryInfo carries what the load-balancing policy needs to build a query
// plan for one request: whether it is token-aware-routable, and if so the
// token and keyspace to route by (spec.md §4.5).
type QueryInfo struct {
	tokenAware bool
	token      Token
	keyspace   string
}
