// Package diag gives operational tooling a minimal way to run diagnostic queries against exactly one node, bypassing the
// connection pool and load-balancing policy a full Session would use.
package diag

import (
	"context"
	"errors"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/transport"
)

// SingleHostExecutor runs queries over a single connection to a single
// node, with no pooling and no host selection. Consistency is fixed at
// ONE. Useful for schema-probing and health-check style diagnostics where
// a full cluster topology isn't worth discovering.
type SingleHostExecutor struct {
	conn *transport.Conn
}

// NewSingleHostExecutor dials addr directly and returns an executor bound
// to that one connection. The caller owns closing it.
func NewSingleHostExecutor(ctx context.Context, addr string, cfg transport.ConnConfig) (SingleHostExecutor, error) {
	conn, err := transport.OpenConn(ctx, addr, cfg)
	if err != nil {
		return SingleHostExecutor{}, err
	}
	return SingleHostExecutor{conn: conn}, nil
}

// Exec runs stmt and discards any returned rows.
func (e SingleHostExecutor) Exec(ctx context.Context, stmt string) error {
	_, err := e.conn.Query(ctx, transport.Statement{Content: stmt, Consistency: frame.ONE}, nil)
	return err
}

// Iter runs stmt and returns a cursor over every page of results.
func (e SingleHostExecutor) Iter(stmt string, retry transport.RetryPolicy) *SingleHostIter {
	if retry == nil {
		retry = transport.SimpleRetryPolicy{NumRetries: 1}
	}
	return &SingleHostIter{
		conn: e.conn,
		stmt: transport.Statement{Content: stmt, Consistency: frame.ONE},
		rd:   retry.NewRetryDecider(),
	}
}

func (e SingleHostExecutor) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

// ErrNoMoreRows marks the iterator's clean end of stream, mirroring the
// top-level Query iterator's sentinel.
var ErrNoMoreRows = errors.New("no more rows left")

// SingleHostIter is a minimal paging cursor with no pooling and no node
// failover: it retries on the one connection it was given and gives up
// once the retry policy says so.
type SingleHostIter struct {
	conn   *transport.Conn
	stmt   transport.Statement
	result transport.QueryResult
	pos    int
	rowCnt int
	closed bool
	err    error
	rd     transport.RetryDecider
}

func (it *SingleHostIter) fetch(ctx context.Context) (transport.QueryResult, error) {
	for {
		res, err := it.conn.Query(ctx, it.stmt, it.stmt.Values)
		if err == nil {
			return res, nil
		}

		ri := transport.RetryInfo{
			Error:       err,
			Idempotent:  it.stmt.Idempotent,
			Consistency: it.stmt.Consistency,
		}
		if it.rd.Decide(ri) != transport.RetrySameNode {
			return transport.QueryResult{}, err
		}
	}
}

func (it *SingleHostIter) Next(ctx context.Context) (frame.Row, error) {
	if it.closed {
		return nil, nil
	}

	if it.pos >= it.rowCnt {
		if it.rowCnt > 0 && !it.result.HasMorePages {
			return nil, it.Close()
		}
		res, err := it.fetch(ctx)
		if err != nil {
			it.err = err
			return nil, it.Close()
		}
		it.result = res
		it.stmt.PagingState = res.PagingState
		it.pos = 0
		it.rowCnt = len(res.Rows)

		if !res.HasMorePages && it.rowCnt == 0 {
			return nil, it.Close()
		}
	}

	if it.rowCnt == 0 {
		return it.Next(ctx)
	}

	row := it.result.Rows[it.pos]
	it.pos++
	return row, nil
}

func (it *SingleHostIter) Close() error {
	if it.closed {
		return it.err
	}
	it.closed = true
	return it.err
}

func (it *SingleHostIter) Columns() []frame.ColumnSpec {
	return it.result.Columns
}

func (it *SingleHostIter) PageState() []byte {
	return it.result.PagingState
}
