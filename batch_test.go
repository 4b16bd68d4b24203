package scylla

import (
	"testing"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/request"
	"github.com/scylladb/gocql-native/transport"
)

func TestBatchQueryAppendsStatement(t *testing.T) {
	b := &Batch{}
	b.Query("insert into t (a) values (?)", frame.Value{N: 1, Bytes: []byte{1}})

	if len(b.statements) != 1 {
		t.Fatalf("len(statements) = %d, want 1", len(b.statements))
	}
	s := b.statements[0]
	if s.Kind != request.BatchKindQuery {
		t.Fatalf("Kind = %v, want BatchKindQuery", s.Kind)
	}
	if s.Query != "insert into t (a) values (?)" {
		t.Fatalf("Query = %q", s.Query)
	}
	if len(s.Values) != 1 {
		t.Fatalf("Values len = %d, want 1", len(s.Values))
	}
}

func TestBatchPreparedRequiresPreparedStatement(t *testing.T) {
	b := &Batch{}
	q := Query{} // stmt.ID is nil: not prepared
	b.Prepared(q)

	if len(b.err) == 0 {
		t.Fatal("expected error appending an unprepared statement to a batch")
	}
	if len(b.statements) != 0 {
		t.Fatal("unprepared statement should not be appended")
	}
}

func TestBatchPreparedAppendsWithID(t *testing.T) {
	b := &Batch{}
	q := Query{stmt: transport.Statement{ID: []byte{1, 2, 3}}}
	b.Prepared(q, frame.Value{N: 2, Bytes: []byte{0, 1}})

	if len(b.statements) != 1 {
		t.Fatalf("len(statements) = %d, want 1", len(b.statements))
	}
	s := b.statements[0]
	if s.Kind != request.BatchKindPrepared {
		t.Fatalf("Kind = %v, want BatchKindPrepared", s.Kind)
	}
	if string(s.ID) != "\x01\x02\x03" {
		t.Fatalf("ID = %v", s.ID)
	}
}

func TestBatchSetConsistencyAndIdempotent(t *testing.T) {
	b := &Batch{}
	b.SetConsistency(frame.QUORUM).SetIdempotent(true)

	if b.consistency != frame.QUORUM {
		t.Fatalf("consistency = %v, want QUORUM", b.consistency)
	}
	if !b.idempotent {
		t.Fatal("idempotent not set")
	}
	if !b.effectiveIdempotent() {
		t.Fatal("effectiveIdempotent() should honor the SetIdempotent override")
	}
}

func TestBatchIdempotenceIsANDOfMembers(t *testing.T) {
	idempotentStmt := Query{stmt: transport.Statement{ID: []byte{1}, Idempotent: true}}
	nonIdempotentStmt := Query{stmt: transport.Statement{ID: []byte{2}, Idempotent: false}}

	b := &Batch{}
	b.Prepared(idempotentStmt)
	if !b.effectiveIdempotent() {
		t.Fatal("a batch of only idempotent statements should be idempotent")
	}

	b.Prepared(nonIdempotentStmt)
	if b.effectiveIdempotent() {
		t.Fatal("appending a non-idempotent statement should make the whole batch non-idempotent")
	}
}

func TestBatchQueryStatementMakesBatchNonIdempotent(t *testing.T) {
	idempotentStmt := Query{stmt: transport.Statement{ID: []byte{1}, Idempotent: true}}

	b := &Batch{}
	b.Prepared(idempotentStmt)
	b.Query("update t set a = 1 where k = 1")

	if b.effectiveIdempotent() {
		t.Fatal("a raw Query sub-statement has no a priori idempotence and should force the AND to false")
	}
}
