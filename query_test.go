package scylla

import (
	"testing"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/transport"
)

func preparedQuery(pkIndexes []int32, columns int) Query {
	meta := &frame.PreparedMetadata{}
	meta.Columns = make([]frame.ColumnSpec, columns)
	return Query{
		stmt: transport.Statement{
			Metadata:  meta,
			Values:    make([]frame.Value, columns),
			PkIndexes: pkIndexes,
			PkCnt:     int32(len(pkIndexes)),
		},
	}
}

func TestQueryBindInt64(t *testing.T) {
	q := preparedQuery(nil, 2)
	q.BindInt64(0, 42)
	q.BindInt64(1, -1)

	if q.stmt.Values[0].N != 8 {
		t.Fatalf("Values[0].N = %d, want 8", q.stmt.Values[0].N)
	}
	want := int64(42)
	var got int64
	for _, b := range q.stmt.Values[0].Bytes {
		got = got<<8 | int64(b)
	}
	if got != want {
		t.Fatalf("decoded bigint = %d, want %d", got, want)
	}
}

func TestQueryBindUnpreparedFails(t *testing.T) {
	q := Query{stmt: transport.Statement{Content: "select 1"}}
	q.Bind(0, nil)
	if len(q.err) == 0 {
		t.Fatal("expected Bind on unprepared query to record an error")
	}
}

func TestQueryCheckBoundsGrowsUnpreparedValues(t *testing.T) {
	q := Query{}
	if err := q.checkBounds(3); err != nil {
		t.Fatalf("checkBounds: %v", err)
	}
	if len(q.stmt.Values) != 4 {
		t.Fatalf("Values len = %d, want 4", len(q.stmt.Values))
	}
}

func TestQueryCheckBoundsPreparedOutOfRange(t *testing.T) {
	q := preparedQuery(nil, 2)
	if err := q.checkBounds(5); err == nil {
		t.Fatal("expected out-of-range bind marker to error on a prepared query")
	}
}

func TestQueryTokenSingleComponent(t *testing.T) {
	q := preparedQuery([]int32{0}, 1)
	q.stmt.Values[0] = frame.Value{N: 3, Bytes: []byte("abc")}

	tok, ok := q.token()
	if !ok {
		t.Fatal("expected tokenAware=true with a bound partition key")
	}
	if tok != transport.MurmurToken([]byte("abc")) {
		t.Fatalf("token mismatch for single-component key")
	}
}

func TestQueryTokenNoPartitionKey(t *testing.T) {
	q := preparedQuery(nil, 0)
	if _, ok := q.token(); ok {
		t.Fatal("expected tokenAware=false when PkCnt is 0")
	}
}

func TestQueryTokenCompoundComponentsDeterministic(t *testing.T) {
	q := preparedQuery([]int32{0, 1}, 2)
	q.stmt.Values[0] = frame.Value{N: 1, Bytes: []byte("a")}
	q.stmt.Values[1] = frame.Value{N: 1, Bytes: []byte("b")}

	tok1, ok := q.token()
	if !ok {
		t.Fatal("expected tokenAware=true")
	}
	tok2, _ := q.token()
	if tok1 != tok2 {
		t.Fatalf("compound token not deterministic across calls: %d != %d", tok1, tok2)
	}
}

func TestQuerySettersChainAndApply(t *testing.T) {
	q := &Query{}
	q.SetConsistency(frame.QUORUM).
		SetSerialConsistency(frame.LOCALSERIAL).
		SetPageSize(100).
		SetPageState([]byte("page")).
		SetCompression(true).
		SetIdempotent(true).
		NoSkipMetadata().
		SetKeyspace("ks")

	if q.stmt.Consistency != frame.QUORUM {
		t.Errorf("Consistency = %v, want QUORUM", q.stmt.Consistency)
	}
	if q.stmt.SerialConsistency != frame.LOCALSERIAL {
		t.Errorf("SerialConsistency = %v, want LOCALSERIAL", q.stmt.SerialConsistency)
	}
	if q.stmt.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", q.stmt.PageSize)
	}
	if string(q.PageState()) != "page" {
		t.Errorf("PageState() = %q, want %q", q.PageState(), "page")
	}
	if !q.stmt.Compression {
		t.Error("Compression not set")
	}
	if !q.stmt.Idempotent {
		t.Error("Idempotent not set")
	}
	if !q.stmt.NoSkipMetadata {
		t.Error("NoSkipMetadata not set")
	}
	if q.stmt.Keyspace != "ks" {
		t.Errorf("Keyspace = %q, want %q", q.stmt.Keyspace, "ks")
	}
}

func TestIterColumnsNilMetadata(t *testing.T) {
	it := Iter{}
	if cols := it.Columns(); cols != nil {
		t.Fatalf("Columns() with nil metadata = %v, want nil", cols)
	}
}

func TestIterColumnsFromMetadata(t *testing.T) {
	meta := &frame.ResultMetadata{Columns: []frame.ColumnSpec{{Name: "pk"}, {Name: "v"}}}
	it := Iter{meta: meta}
	cols := it.Columns()
	if len(cols) != 2 || cols[0].Name != "pk" {
		t.Fatalf("Columns() = %v", cols)
	}
}

func TestIterNextOnClosedReturnsNil(t *testing.T) {
	it := Iter{closed: true}
	row, err := it.Next()
	if row != nil || err != nil {
		t.Fatalf("Next() on closed iter = (%v, %v), want (nil, nil)", row, err)
	}
}
