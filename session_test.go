package scylla

import (
	"testing"

	"github.com/scylladb/gocql-native/transport"
)

func TestSessionConfigValidateNoHosts(t *testing.T) {
	cfg := SessionConfig{Policy: transport.NewRoundRobinPolicy(), RetryPolicy: transport.DefaultRetryPolicy{}}
	if err := cfg.Validate(); err != ErrNoHosts {
		t.Fatalf("Validate() = %v, want ErrNoHosts", err)
	}
}

func TestSessionConfigValidateBadEvent(t *testing.T) {
	cfg := SessionConfig{
		Hosts:       []string{"127.0.0.1"},
		Events:      []EventType{"NOT_A_REAL_EVENT"},
		Policy:      transport.NewRoundRobinPolicy(),
		RetryPolicy: transport.DefaultRetryPolicy{},
	}
	if err := cfg.Validate(); err != ErrEventType {
		t.Fatalf("Validate() = %v, want ErrEventType", err)
	}
}

func TestSessionConfigValidateMissingPolicy(t *testing.T) {
	cfg := SessionConfig{Hosts: []string{"127.0.0.1"}, RetryPolicy: transport.DefaultRetryPolicy{}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing Policy")
	}
}

func TestSessionConfigValidateMissingRetryPolicy(t *testing.T) {
	cfg := SessionConfig{Hosts: []string{"127.0.0.1"}, Policy: transport.NewRoundRobinPolicy()}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing RetryPolicy")
	}
}

func TestSessionConfigValidateAcceptsKnownEvents(t *testing.T) {
	cfg := SessionConfig{
		Hosts:       []string{"127.0.0.1"},
		Events:      []EventType{TopologyChange, StatusChange, SchemaChange},
		Policy:      transport.NewRoundRobinPolicy(),
		RetryPolicy: transport.DefaultRetryPolicy{},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestSessionConfigCloneIsIndependent(t *testing.T) {
	cfg := DefaultSessionConfig("ks", "h1", "h2")
	clone := cfg.Clone()

	clone.Hosts[0] = "mutated"
	if cfg.Hosts[0] == "mutated" {
		t.Fatal("Clone() shares backing array with the original Hosts slice")
	}
}

func TestDefaultSessionConfigHasNoRetries(t *testing.T) {
	cfg := DefaultSessionConfig("ks", "h1")
	if _, ok := cfg.RetryPolicy.(transport.DefaultRetryPolicy); !ok {
		t.Fatalf("DefaultSessionConfig RetryPolicy = %T, want transport.DefaultRetryPolicy", cfg.RetryPolicy)
	}
}

func TestSessionQueryUsesDefaultConsistency(t *testing.T) {
	s := &Session{cfg: SessionConfig{ConnConfig: transport.DefaultConnConfig("ks")}}
	q := s.Query("select 1")
	if q.stmt.Consistency != s.cfg.DefaultConsistency {
		t.Fatalf("Query consistency = %v, want session default %v", q.stmt.Consistency, s.cfg.DefaultConsistency)
	}
	if q.stmt.Content != "select 1" {
		t.Fatalf("Query content = %q", q.stmt.Content)
	}
}
