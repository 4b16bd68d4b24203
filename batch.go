package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/request"
	"github.com/scylladb/gocql-native/transport"
)

// Batch bundles several QUERY/PREPARED sub-statements to run as one BATCH
// request (spec.md §4.12, added). Idempotence of the whole batch is the
// logical AND of its members' idempotence unless overridden with
// SetIdempotent; a raw Query sub-statement carries no a priori idempotence
// information and is conservatively treated as non-idempotent.
type Batch struct {
	session       *Session
	kind          request.BatchType
	statements    []request.BatchStatement
	consistency   frame.Consistency
	allIdempotent bool
	idempotentSet bool
	idempotent    bool
	err           []error
}

// Query appends a raw CQL sub-statement to the batch.
func (b *Batch) Query(content string, values ...frame.Value) *Batch {
	b.statements = append(b.statements, request.BatchStatement{
		Kind:   request.BatchKindQuery,
		Query:  content,
		Values: values,
	})
	b.allIdempotent = false
	return b
}

// Prepared appends a previously prepared statement (as returned by
// Session.Prepare) to the batch, bound to values.
func (b *Batch) Prepared(stmt Query, values ...frame.Value) *Batch {
	if stmt.stmt.ID == nil {
		b.err = append(b.err, fmt.Errorf("batch: statement is not prepared"))
		return b
	}
	b.statements = append(b.statements, request.BatchStatement{
		Kind:       request.BatchKindPrepared,
		ID:         stmt.stmt.ID,
		Values:     values,
		Idempotent: stmt.stmt.Idempotent,
	})
	if len(b.statements) == 1 {
		b.allIdempotent = stmt.stmt.Idempotent
	} else {
		b.allIdempotent = b.allIdempotent && stmt.stmt.Idempotent
	}
	return b
}

func (b *Batch) SetConsistency(v frame.Consistency) *Batch {
	b.consistency = v
	return b
}

// SetIdempotent overrides the batch's idempotence for retry and speculative
// execution purposes, taking precedence over the AND of its members.
func (b *Batch) SetIdempotent(v bool) *Batch {
	b.idempotentSet = true
	b.idempotent = v
	return b
}

func (b *Batch) effectiveIdempotent() bool {
	if b.idempotentSet {
		return b.idempotent
	}
	return b.allIdempotent
}

// Exec runs the batch, trying successive nodes and consulting the retry
// policy the same way Query.Exec does, racing speculative attempts when the
// batch is idempotent and the session's SpeculativeExecutionPolicy allows
// it (spec.md §4.3 "Speculative execution").
func (b *Batch) Exec(ctx context.Context) (Result, error) {
	if b.err != nil {
		return Result{}, fmt.Errorf("batch can't be executed: %v", b.err)
	}
	if len(b.statements) == 0 {
		return Result{}, fmt.Errorf("batch: no statements to execute")
	}

	req := &request.Batch{
		Type:        b.kind,
		Statements:  b.statements,
		Consistency: b.consistency,
	}

	info := b.session.cluster.NewQueryInfo()
	idempotent := b.effectiveIdempotent()

	fn := func() (transport.QueryResult, error) {
		return b.execSpeculative(ctx, info, req, idempotent)
	}
	if b.session.processors != nil {
		res, err := b.session.processors.Submit(ctx, fn)
		return Result(res), err
	}
	res, err := fn()
	return Result(res), err
}

// execOnce tries successive nodes from the load-balancing plan, consulting
// the retry policy between attempts. An Ignore decision (spec.md §4.3 step
// 6) completes the batch with a synthetic successful void result.
func (b *Batch) execOnce(ctx context.Context, info transport.QueryInfo, req *request.Batch, idempotent bool) (transport.QueryResult, error) {
	var rd transport.RetryDecider
	var lastErr error
	n := b.session.cfg.Policy.Node(info, 0)
	i := 0
	for n != nil {
	sameNodeRetries:
		for {
			conn, err := n.Conn(info)
			if err != nil {
				lastErr = err
				break sameNodeRetries
			}

			res, err := conn.Batch(ctx, req)
			if err != nil {
				ri := transport.RetryInfo{
					Error:       err,
					Idempotent:  idempotent,
					Consistency: b.consistency,
				}
				if rd == nil {
					rd = b.session.cfg.RetryPolicy.NewRetryDecider()
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
		n = b.session.cfg.Policy.Node(info, i)
	}

	if lastErr == nil {
		return transport.QueryResult{}, fmt.Errorf("no connection to execute the batch on")
	}
	return transport.QueryResult{}, lastErr
}

// execSpeculative races execOnce against delayed additional attempts from
// the session's SpeculativeExecutionPolicy, completing with whichever
// terminal response arrives first and letting the rest run to completion in
// the background (spec.md §4.3 "Speculative execution"). Non-idempotent
// batches and a nil policy fall straight through to a single execOnce.
func (b *Batch) execSpeculative(ctx context.Context, info transport.QueryInfo, req *request.Batch, idempotent bool) (transport.QueryResult, error) {
	if !idempotent || b.session.cfg.Speculative == nil {
		return b.execOnce(ctx, info, req, idempotent)
	}
	plan := b.session.cfg.Speculative.Plan()
	delay, ok := plan.NextExecution(false)
	if !ok {
		return b.execOnce(ctx, info, req, idempotent)
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
			res, err := b.execOnce(ctx, info, req, idempotent)
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
			b.session.metrics.ObserveSpeculativeExecution()
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
