package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/metrics"
	"github.com/scylladb/gocql-native/transport"
)

// Query is one CQL statement bound to a Session: either a raw string or,
// once Prepare succeeds, a prepared id plus its bind metadata (spec.md §3
// "Request", §4.12).
type Query struct {
	session *Session
	stmt    transport.Statement
	buf     frame.Buffer
	exec    func(context.Context, *transport.Conn, transport.Statement) (transport.QueryResult, error)

	err []error
}

// Prepare registers the query's content with the cluster in place, turning
// a simple statement into a prepared one.
func (q *Query) Prepare(ctx context.Context) error {
	p, err := q.session.Prepare(ctx, q.stmt.Content)
	if err != nil {
		return err
	}
	q.stmt = p.stmt
	q.exec = p.exec
	return nil
}

// Exec runs the query to completion, dispatched through the session's
// ProcessorPool (spec.md §2 components 13/14, §4.7 step 5) if one is
// configured, trying successive nodes from the load-balancing policy's plan
// and consulting the retry policy between attempts (spec.md §4.3 "Request
// execution").
func (q *Query) Exec(ctx context.Context) (Result, error) {
	if q.err != nil {
		return Result{}, fmt.Errorf("query can't be executed: %v", q.err)
	}

	info, err := q.info()
	if err != nil {
		return Result{}, err
	}

	fn := func() (transport.QueryResult, error) {
		return q.execSpeculative(ctx, info)
	}
	if q.session.processors != nil {
		res, err := q.session.processors.Submit(ctx, fn)
		return Result(res), err
	}
	res, err := fn()
	return Result(res), err
}

// execOnce tries successive nodes from the load-balancing policy's plan and
// consults the retry policy between attempts. An EXECUTE that comes back
// UNPREPARED is transparently re-PREPAREd on the same connection and
// retried once before the retry policy is even consulted (spec.md §4.3 step
// 8); an Ignore decision (step 6) completes the query with a synthetic
// successful void result.
func (q *Query) execOnce(ctx context.Context, info transport.QueryInfo) (transport.QueryResult, error) {
	// Most queries don't need retries; the decider is allocated lazily on
	// the first failure.
	var rd transport.RetryDecider
	var lastErr error
	n := q.session.cfg.Policy.Node(info, 0)
	i := 0
	for n != nil {
	sameNodeRetries:
		for {
			conn, err := n.Conn(info)
			if err != nil {
				lastErr = err
				break sameNodeRetries
			}

			res, err := q.exec(ctx, conn, q.stmt)
			if err != nil && transport.IsUnprepared(err) && q.stmt.Content != "" {
				if _, prepErr := conn.Prepare(ctx, q.stmt); prepErr == nil {
					res, err = q.exec(ctx, conn, q.stmt)
				}
			}
			if err != nil {
				ri := transport.RetryInfo{
					Error:       err,
					Idempotent:  q.stmt.Idempotent,
					Consistency: q.stmt.Consistency,
				}

				if rd == nil {
					rd = q.session.cfg.RetryPolicy.NewRetryDecider()
				}
				switch rd.Decide(ri) {
				case transport.RetrySameNode:
					continue sameNodeRetries
				case transport.RetryNextNode:
					lastErr = err
					break sameNodeRetries
				case transport.Ignore:
					return transport.QueryResult{}, nil
				case transport.DontRetry:
					return transport.QueryResult{}, err
				}
			} else {
				return res, nil
			}
		}

		i++
		n = q.session.cfg.Policy.Node(info, i)
	}

	if lastErr == nil {
		return transport.QueryResult{}, fmt.Errorf("no connection to execute the query on")
	}
	return transport.QueryResult{}, lastErr
}

// execSpeculative races execOnce against delayed additional attempts from
// the session's SpeculativeExecutionPolicy, completing with whichever
// terminal response arrives first (spec.md §4.3 "Speculative execution").
// Non-idempotent statements and a nil policy fall straight through to a
// single execOnce.
func (q *Query) execSpeculative(ctx context.Context, info transport.QueryInfo) (transport.QueryResult, error) {
	if !q.stmt.Idempotent || q.session.cfg.Speculative == nil {
		return q.execOnce(ctx, info)
	}
	plan := q.session.cfg.Speculative.Plan()
	delay, ok := plan.NextExecution(false)
	if !ok {
		return q.execOnce(ctx, info)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		res transport.QueryResult
		err error
	}
	resCh := make(chan attempt, 4)
	pending := 0

	launch := func() {
		pending++
		go func() {
			res, err := q.execOnce(ctx, info)
			select {
			case resCh <- attempt{res, err}:
			case <-ctx.Done():
			}
		}()
	}
	launch()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	timerC := timer.C

	var lastErr error
	for pending > 0 {
		select {
		case a := <-resCh:
			pending--
			if a.err == nil {
				return a.res, nil
			}
			lastErr = a.err
		case <-timerC:
			q.session.metrics.ObserveSpeculativeExecution()
			launch()
			if next, ok := plan.NextExecution(true); ok {
				timer.Reset(next)
			} else {
				timerC = nil
			}
		case <-ctx.Done():
			return transport.QueryResult{}, ctx.Err()
		}
	}
	return transport.QueryResult{}, lastErr
}

// asyncResult is delivered by AsyncExec on the channel Fetch reads from.
type asyncResult struct {
	res Result
	err error
}

// AsyncExec launches q.Exec in the background and returns a handle Fetch
// can block on (spec.md §4.12 "asynchronous execution").
func (q *Query) AsyncExec(ctx context.Context) <-chan asyncResult {
	ch := make(chan asyncResult, 1)
	go func() {
		res, err := q.Exec(ctx)
		ch <- asyncResult{res: res, err: err}
	}()
	return ch
}

// Fetch blocks for the result of a handle returned by AsyncExec.
func Fetch(ch <-chan asyncResult) (Result, error) {
	r := <-ch
	return r.res, r.err
}

// token computes the routing token for the query's bound partition-key
// components, composing them the way the native protocol's compound
// partition key encoding does when there is more than one.
func (q *Query) token() (transport.Token, bool) {
	if q.stmt.PkCnt == 0 {
		return 0, false
	}

	q.buf.Reset()
	if q.stmt.PkCnt == 1 {
		return transport.MurmurToken(q.stmt.Values[q.stmt.PkIndexes[0]].Bytes), true
	}
	for _, idx := range q.stmt.PkIndexes {
		v := q.stmt.Values[idx]
		q.buf.WriteShort(frame.Short(v.N))
		q.buf.Write(v.Bytes)
		q.buf.WriteByte(0)
	}

	return transport.MurmurToken(q.buf.Bytes()), true
}

func (q *Query) info() (transport.QueryInfo, error) {
	token, tokenAware := q.token()
	if tokenAware {
		return q.session.cluster.NewTokenAwareQueryInfo(token, q.stmt.Keyspace)
	}
	return q.session.cluster.NewQueryInfo(), nil
}

func (q *Query) checkBounds(pos int) error {
	if q.stmt.Metadata != nil {
		if pos < 0 || pos >= len(q.stmt.Values) {
			return fmt.Errorf("no bind marker with position %d", pos)
		}
		return nil
	}

	for i := len(q.stmt.Values); i <= pos; i++ {
		q.stmt.Values = append(q.stmt.Values, frame.Value{})
	}
	return nil
}

// Serializable is implemented by types that know how to marshal themselves
// into a bind marker's wire representation.
type Serializable interface {
	Serialize(*frame.Option) (n int32, bytes []byte, err error)
}

// Bind attaches v to the bind marker at pos. Binding onto an unprepared
// query always fails at execution, since there is no column type to
// serialize against.
func (q *Query) Bind(pos int, v Serializable) *Query {
	if q.stmt.Metadata == nil {
		q.err = append(q.err, fmt.Errorf("binding to unprepared queries is not supported"))
		return q
	}
	if err := q.checkBounds(pos); err != nil {
		q.err = append(q.err, err)
		return q
	}

	p := &q.stmt.Values[pos]
	var err error
	p.N, p.Bytes, err = v.Serialize(p.Type)
	if err != nil {
		q.err = append(q.err, err)
	}
	return q
}

// BindInt64 binds a raw bigint value to the marker at pos without going
// through Serializable, for callers that already know the column type.
func (q *Query) BindInt64(pos int, v int64) *Query {
	if err := q.checkBounds(pos); err != nil {
		q.err = append(q.err, err)
		return q
	}
	p := &q.stmt.Values[pos]
	p.N = 8
	p.Bytes = make([]byte, 8)
	p.Bytes[0] = byte(v >> 56)
	p.Bytes[1] = byte(v >> 48)
	p.Bytes[2] = byte(v >> 40)
	p.Bytes[3] = byte(v >> 32)
	p.Bytes[4] = byte(v >> 24)
	p.Bytes[5] = byte(v >> 16)
	p.Bytes[6] = byte(v >> 8)
	p.Bytes[7] = byte(v)
	return q
}

func (q *Query) SetConsistency(v frame.Consistency) *Query {
	q.stmt.Consistency = v
	return q
}

func (q *Query) SetSerialConsistency(v frame.Consistency) *Query {
	q.stmt.SerialConsistency = v
	return q
}

func (q *Query) SetPageState(v []byte) *Query {
	q.stmt.PagingState = v
	return q
}

func (q *Query) PageState() []byte {
	return q.stmt.PagingState
}

func (q *Query) SetPageSize(v int32) *Query {
	q.stmt.PageSize = v
	return q
}

func (q *Query) SetCompression(v bool) *Query {
	q.stmt.Compression = v
	return q
}

func (q *Query) SetIdempotent(v bool) *Query {
	q.stmt.Idempotent = v
	return q
}

func (q *Query) NoSkipMetadata() *Query {
	q.stmt.NoSkipMetadata = true
	return q
}

// SetKeyspace overrides which keyspace a token-aware plan routes by; it has
// no effect on statements without a partition key bound.
func (q *Query) SetKeyspace(ks string) *Query {
	q.stmt.Keyspace = ks
	return q
}

// Result is the application-visible outcome of Exec.
type Result transport.QueryResult

// Iter drives the query to completion one page at a time, paging
// automatically as the caller consumes rows (spec.md §4.13 "Paging").
func (q *Query) Iter(ctx context.Context) Iter {
	stmt := q.stmt.Clone()

	it := Iter{
		requestCh: make(chan struct{}, 1),
		nextCh:    make(chan transport.QueryResult),
		errCh:     make(chan error, 1),
	}
	if stmt.Metadata != nil {
		it.meta = &stmt.Metadata.ResultMetadata
	}

	info, err := q.info()
	if err != nil {
		it.errCh <- err
		return it
	}

	worker := iterWorker{
		stmt:        stmt,
		rd:          q.session.cfg.RetryPolicy.NewRetryDecider(),
		queryInfo:   info,
		pickNode:    q.session.cfg.Policy.Node,
		queryExec:   q.exec,
		speculative: q.session.cfg.Speculative,
		metrics:     q.session.metrics,

		requestCh: it.requestCh,
		nextCh:    it.nextCh,
		errCh:     it.errCh,
	}

	it.requestCh <- struct{}{}
	go worker.loop(ctx)
	return it
}

// Iter is a forward cursor over a multi-page query result.
type Iter struct {
	result transport.QueryResult
	pos    int
	rowCnt int

	requestCh chan struct{}
	nextCh    chan transport.QueryResult
	errCh     chan error
	closed    bool

	meta *frame.ResultMetadata
	err  error
}

var (
	ErrNoMoreRows = fmt.Errorf("no more rows left")
)

// Next returns the next row, paging in the background once the current
// page is exhausted. It returns (nil, nil) once the iterator is closed.
func (it *Iter) Next() (frame.Row, error) {
	if it.closed {
		return nil, nil
	}

	if it.pos >= it.rowCnt {
		select {
		case r := <-it.nextCh:
			it.result = r
		case err := <-it.errCh:
			if !errors.Is(err, ErrNoMoreRows) {
				it.err = err
			}
			return nil, it.Close()
		}

		it.pos = 0
		it.rowCnt = len(it.result.Rows)
		it.requestCh <- struct{}{}
	}

	// A zero-row page mid-stream is valid (e.g. a filtered scan); keep
	// paging rather than reporting a premature end.
	if it.rowCnt == 0 {
		return it.Next()
	}

	row := it.result.Rows[it.pos]
	it.pos++
	return row, nil
}

func (it *Iter) Close() error {
	if it.closed {
		return it.err
	}
	it.closed = true
	close(it.requestCh)
	return it.err
}

func (it *Iter) Columns() []frame.ColumnSpec {
	if it.meta == nil {
		return nil
	}
	return it.meta.Columns
}

func (it *Iter) NumRows() int {
	return it.rowCnt
}

func (it *Iter) PageState() []byte {
	return it.result.PagingState
}

// iterWorker drives one Iter's paging loop in its own goroutine: it blocks
// on requestCh for the caller to ask for the next page, executes with
// retries, and pushes the result (or a terminal error) back.
type iterWorker struct {
	stmt      transport.Statement
	queryExec func(context.Context, *transport.Conn, transport.Statement) (transport.QueryResult, error)

	queryInfo   transport.QueryInfo
	pickNode    func(transport.QueryInfo, int) *transport.Node
	nodeIdx     int
	conn        *transport.Conn
	connErr     error
	speculative transport.SpeculativeExecutionPolicy
	metrics     *metrics.Metrics

	rd transport.RetryDecider

	requestCh chan struct{}
	nextCh    chan transport.QueryResult
	errCh     chan error
}

func (w *iterWorker) loop(ctx context.Context) {
	n := w.pickNode(w.queryInfo, 0)
	if n == nil {
		w.errCh <- fmt.Errorf("can't pick a node to execute request")
		return
	}
	w.conn, w.connErr = n.Conn(w.queryInfo)

	for {
		_, ok := <-w.requestCh
		if !ok {
			return
		}

		res, err := w.exec(ctx)
		if err != nil {
			w.errCh <- err
			return
		}

		w.stmt.PagingState = res.PagingState
		w.nextCh <- res
		if !res.HasMorePages {
			w.errCh <- ErrNoMoreRows
			return
		}
	}
}

// exec drives one page fetch to completion, racing a speculative attempt on
// a later node if the statement is idempotent and a SpeculativeExecutionPolicy
// is configured (spec.md §4.3 "Speculative execution"); otherwise it runs
// execCached alone.
func (w *iterWorker) exec(ctx context.Context) (transport.QueryResult, error) {
	if !w.stmt.Idempotent || w.speculative == nil {
		return w.execCached(ctx)
	}
	plan := w.speculative.Plan()
	delay, ok := plan.NextExecution(false)
	if !ok {
		return w.execCached(ctx)
	}
	return w.execSpeculative(ctx, plan, delay)
}

// execCached runs on the worker's already-picked connection, re-PREPAREing
// transparently on UNPREPARED (spec.md §4.3 step 8) and stepping to the next
// node from the load-balancing plan on failure; the winning connection is
// kept across pages. An Ignore decision completes the page with a synthetic
// empty, final result.
func (w *iterWorker) execCached(ctx context.Context) (transport.QueryResult, error) {
	w.rd.Reset()
	var lastErr error
	for {
	sameNodeRetries:
		for {
			if w.connErr != nil {
				lastErr = w.connErr
				break
			}
			res, err := w.queryExec(ctx, w.conn, w.stmt)
			if err != nil && transport.IsUnprepared(err) && w.stmt.Content != "" {
				if _, prepErr := w.conn.Prepare(ctx, w.stmt); prepErr == nil {
					res, err = w.queryExec(ctx, w.conn, w.stmt)
				}
			}
			if err != nil {
				ri := transport.RetryInfo{
					Error:       err,
					Idempotent:  w.stmt.Idempotent,
					Consistency: w.stmt.Consistency,
				}

				switch w.rd.Decide(ri) {
				case transport.RetrySameNode:
					continue sameNodeRetries
				case transport.RetryNextNode:
					lastErr = err
					break sameNodeRetries
				case transport.Ignore:
					return transport.QueryResult{}, nil
				case transport.DontRetry:
					return transport.QueryResult{}, err
				}
			} else {
				return res, nil
			}
		}

		w.nodeIdx++
		n := w.pickNode(w.queryInfo, w.nodeIdx)
		if n == nil {
			if lastErr == nil {
				return transport.QueryResult{}, fmt.Errorf("no connection to execute the query on")
			}
			return transport.QueryResult{}, lastErr
		}

		w.conn, w.connErr = n.Conn(w.queryInfo)
	}
}

// execSpeculative races execCached's in-progress attempt against delayed
// parallel attempts on subsequent nodes from the plan, completing with
// whichever terminal response arrives first (spec.md §4.3 "Speculative
// execution"). It only reads w.nodeIdx once, before execCached's goroutine
// starts mutating it, to avoid racing the two.
func (w *iterWorker) execSpeculative(ctx context.Context, plan transport.SpeculativePlan, delay time.Duration) (transport.QueryResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		res transport.QueryResult
		err error
	}
	resCh := make(chan attempt, 4)
	pending := 0
	nextIdx := w.nodeIdx + 1

	launch := func(fn func() (transport.QueryResult, error)) {
		pending++
		go func() {
			res, err := fn()
			select {
			case resCh <- attempt{res, err}:
			case <-ctx.Done():
			}
		}()
	}
	launch(func() (transport.QueryResult, error) { return w.execCached(ctx) })

	timer := time.NewTimer(delay)
	defer timer.Stop()
	timerC := timer.C

	var lastErr error
	for pending > 0 {
		select {
		case a := <-resCh:
			pending--
			if a.err == nil {
				return a.res, nil
			}
			lastErr = a.err
		case <-timerC:
			w.metrics.ObserveSpeculativeExecution()
			n := w.pickNode(w.queryInfo, nextIdx)
			nextIdx++
			if n != nil {
				stmt := w.stmt
				launch(func() (transport.QueryResult, error) {
					conn, err := n.Conn(w.queryInfo)
					if err != nil {
						return transport.QueryResult{}, err
					}
					return w.queryExec(ctx, conn, stmt)
				})
			}
			if next, ok := plan.NextExecution(true); ok {
				timer.Reset(next)
			} else {
				timerC = nil
			}
		case <-ctx.Done():
			return transport.QueryResult{}, ctx.Err()
		}
	}
	return transport.QueryResult{}, lastErr
}
