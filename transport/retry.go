package transport

import (
	"errors"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/response"
)

// RetryDecision is the outcome of consulting a RetryPolicy for one failed
// attempt (spec.md §4.3 step 6).
type RetryDecision int

const (
	DontRetry RetryDecision = iota
	RetrySameNode
	RetryNextNode
	Ignore
)

// RetryInfo is the input to one retry decision.
type RetryInfo struct {
	Error       error
	Idempotent  bool
	Consistency frame.Consistency
	Retries     int // number of same-node retries already attempted for this request
}

// RetryDecider is stateful across the retries of one request (it tracks
// how many same-node attempts have happened) but is itself not shared
// across requests — RetryPolicy.NewRetryDecider constructs one per
// request.
type RetryDecider interface {
	Decide(RetryInfo) RetryDecision
	Reset()
}

// RetryPolicy decides {retry-same, retry-next, ignore, rethrow} for
// timeout/unavailable/error responses (spec.md §2 component 10). Instances
// are immutable configuration; NewRetryDecider returns the per-request
// state machine.
type RetryPolicy interface {
	NewRetryDecider() RetryDecider
}

// classify extracts the server error code of a CQL/transport error the way spec.md §4.3 step 6
// enumerates: read timeout, write timeout, unavailable, server error,
// truncate error, read/write failure, is bootstrapping, overloaded.
func classify(err error) (code response.ErrorCode, isCoded bool) {
	var ce response.CodedError
	if errors.As(err, &ce) {
		return ce.Code(), true
	}
	return 0, false
}

// SimpleRetryPolicy retries on the same node up to NumRetries times (at
// least once) on unavailable, overloaded, bootstrapping, read timeout, write
// timeout and server error, then advances to the next node. Truncate,
// read/write failures and transport errors advance at once, already-exists
// is ignored, and any other server error is returned to the caller.
// Non-idempotent requests are never retried on write timeout or server
// error (spec.md §4.3 step 6, last sentence).
type SimpleRetryPolicy struct {
	NumRetries int
}

func (p SimpleRetryPolicy) NewRetryDecider() RetryDecider {
	max := p.NumRetries
	if max <= 0 {
		max = 1
	}
	return &simpleRetryDecider{max: max}
}

type simpleRetryDecider struct {
	max   int
	count int
}

func (d *simpleRetryDecider) Reset() { d.count = 0 }

func (d *simpleRetryDecider) Decide(ri RetryInfo) RetryDecision {
	code, coded := classify(ri.Error)
	if !coded {
		// Connection/transport error: never worth retrying on the same
		// connection (spec.md §4.3 step 7).
		return RetryNextNode
	}

	switch code {
	case response.ErrUnavailable, response.ErrOverloaded, response.ErrIsBootstrapping:
		return d.retryOrNext()
	case response.ErrReadTimeout:
		return d.retryOrNext()
	case response.ErrWriteTimeout:
		if !ri.Idempotent {
			return DontRetry
		}
		return d.retryOrNext()
	case response.ErrServerError:
		if !ri.Idempotent {
			return DontRetry
		}
		return d.retryOrNext()
	case response.ErrTruncateError, response.ErrReadFailure, response.ErrWriteFailure:
		return RetryNextNode
	case response.ErrAlreadyExists:
		// A CREATE ... IF NOT EXISTS that lost a race against another
		// client already holds the state the caller wanted (spec.md §4.3
		// step 6 "ignore"); completing successfully beats surfacing an
		// error for a statement that achieved its intent.
		return Ignore
	default:
		return DontRetry
	}
}

func (d *simpleRetryDecider) retryOrNext() RetryDecision {
	if d.count < d.max {
		d.count++
		return RetrySameNode
	}
	return RetryNextNode
}

// DefaultRetryPolicy never retries: the first failure is surfaced to the
// caller, matching the teacher's ClusterConfig doc comment
// ("Default retry policy... Default: no retries.").
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) NewRetryDecider() RetryDecider { return noRetryDecider{} }

type noRetryDecider struct{}

func (noRetryDecider) Reset()                   {}
func (noRetryDecider) Decide(RetryInfo) RetryDecision { return DontRetry }

// IsUnprepared reports whether err is the server's UNPREPARED response to
// an EXECUTE whose prepared id the node no longer recognizes, e.g. after
// its prepared-statement cache was evicted (spec.md §4.3 step 8).
func IsUnprepared(err error) bool {
	code, coded := classify(err)
	return coded && code == response.ErrUnprepared
}

// UnpreparedID returns the prepared id an UNPREPARED response named, so the
// caller can re-PREPARE the exact statement that was evicted (spec.md §4.3
// step 8). ok is false for any other error.
func UnpreparedID(err error) (id []byte, ok bool) {
	var ce response.CodedError
	if !errors.As(err, &ce) || ce.Code() != response.ErrUnprepared {
		return nil, false
	}
	if e, ok := ce.(*response.Error); ok {
		return e.UnpreparedID, true
	}
	return nil, false
}
