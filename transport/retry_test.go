package transport

import (
	"errors"
	"testing"

	"github.com/scylladb/gocql-native/frame/response"
)

func TestSimpleRetryPolicyUnavailableRetriesSameNodeThenNext(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 2}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrUnavailable}}

	if got := d.Decide(ri); got != RetrySameNode {
		t.Fatalf("1st decide = %v, want RetrySameNode", got)
	}
	if got := d.Decide(ri); got != RetrySameNode {
		t.Fatalf("2nd decide = %v, want RetrySameNode", got)
	}
	if got := d.Decide(ri); got != RetryNextNode {
		t.Fatalf("3rd decide = %v, want RetryNextNode", got)
	}
}

func TestSimpleRetryPolicyWriteTimeoutRequiresIdempotent(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 3}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrWriteTimeout}, Idempotent: false}

	if got := d.Decide(ri); got != DontRetry {
		t.Fatalf("non-idempotent write timeout = %v, want DontRetry", got)
	}

	ri.Idempotent = true
	if got := d.Decide(ri); got != RetrySameNode {
		t.Fatalf("idempotent write timeout = %v, want RetrySameNode", got)
	}
}

func TestSimpleRetryPolicyServerErrorRequiresIdempotent(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 1}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrServerError}, Idempotent: false}

	if got := d.Decide(ri); got != DontRetry {
		t.Fatalf("non-idempotent server error = %v, want DontRetry", got)
	}
}

func TestSimpleRetryPolicyFailuresAlwaysAdvance(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 5}.NewRetryDecider()
	for _, code := range []response.ErrorCode{response.ErrTruncateError, response.ErrReadFailure, response.ErrWriteFailure} {
		ri := RetryInfo{Error: &response.Error{ErrorCode: code}, Idempotent: true}
		if got := d.Decide(ri); got != RetryNextNode {
			t.Fatalf("code %#x = %v, want RetryNextNode", code, got)
		}
	}
}

func TestSimpleRetryPolicyUncodedErrorAdvances(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 3}.NewRetryDecider()
	ri := RetryInfo{Error: errors.New("connection reset")}
	if got := d.Decide(ri); got != RetryNextNode {
		t.Fatalf("uncoded error = %v, want RetryNextNode", got)
	}
}

func TestSimpleRetryPolicyDefaultsToOneRetry(t *testing.T) {
	d := SimpleRetryPolicy{}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrUnavailable}}

	if got := d.Decide(ri); got != RetrySameNode {
		t.Fatalf("1st decide = %v, want RetrySameNode", got)
	}
	if got := d.Decide(ri); got != RetryNextNode {
		t.Fatalf("2nd decide = %v, want RetryNextNode", got)
	}
}

func TestSimpleRetryPolicyReset(t *testing.T) {
	d := SimpleRetryPolicy{NumRetries: 1}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrUnavailable}}

	d.Decide(ri)
	d.Reset()
	if got := d.Decide(ri); got != RetrySameNode {
		t.Fatalf("decide after reset = %v, want RetrySameNode", got)
	}
}

func TestDefaultRetryPolicyNeverRetries(t *testing.T) {
	d := DefaultRetryPolicy{}.NewRetryDecider()
	ri := RetryInfo{Error: &response.Error{ErrorCode: response.ErrUnavailable}, Idempotent: true}
	if got := d.Decide(ri); got != DontRetry {
		t.Fatalf("default policy = %v, want DontRetry", got)
	}
}
