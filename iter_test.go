package scylla

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/scylladb/gocql-native/transport"
)

// noNodesPolicy never offers a node, so iterWorker.loop fails fast instead
// of blocking forever on a connection that will never come.
type noNodesPolicy struct{}

func (noNodesPolicy) Node(transport.QueryInfo, int) *transport.Node { return nil }
func (noNodesPolicy) SetNodes([]*transport.Node)                    {}

func TestIterWorkerExitsWithoutLeakingWhenNoNodeAvailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &Session{cfg: SessionConfig{
		Policy:      noNodesPolicy{},
		RetryPolicy: transport.DefaultRetryPolicy{},
	}, cluster: &transport.Cluster{}}

	q := s.Query("select * from t")
	it := q.Iter(context.Background())

	_, err := it.Next()
	if err == nil {
		t.Fatal("expected an error when no node is available")
	}
	if errors.Is(err, ErrNoMoreRows) {
		t.Fatalf("got the clean end-of-stream sentinel, want a real failure: %v", err)
	}
}
