package response

import "github.com/scylladb/gocql-native/frame"

// ResultKind tags a RESULT frame body (spec.md §6).
type ResultKind int32

const (
	ResultVoid         ResultKind = 1
	ResultRows         ResultKind = 2
	ResultSetKeyspace  ResultKind = 3
	ResultPrepared     ResultKind = 4
	ResultSchemaChange ResultKind = 5
)

// Result is the tagged union of the five RESULT bodies (spec.md §3).
// Exactly one of the kind-specific fields is populated, selected by Kind.
type Result struct {
	Kind ResultKind

	Rows         RowsResult
	Keyspace     string
	Prepared     PreparedResult
	SchemaChange SchemaChangeResult
}

var _ frame.Response = (*Result)(nil)

func (*Result) OpCode() frame.OpCode { return frame.OpResult }

type RowsResult struct {
	Metadata frame.ResultMetadata
	Rows     []frame.Row
}

type PreparedResult struct {
	ID               []byte
	ResultMetadataID frame.UUID
	Metadata         frame.PreparedMetadata
	ResultMetadata   frame.ResultMetadata
}

type SchemaChangeResult struct {
	ChangeType    string
	Target        string
	Keyspace      string
	Name          string
	ArgumentTypes frame.StringList
}

// ParseResult decodes a RESULT frame body.
func ParseResult(b *frame.Buffer) *Result {
	r := &Result{Kind: ResultKind(b.ReadInt())}
	switch r.Kind {
	case ResultVoid:
		// no body
	case ResultRows:
		r.Rows.Metadata = b.ReadResultMetadata()
		count := b.ReadInt()
		r.Rows.Rows = make([]frame.Row, count)
		for i := range r.Rows.Rows {
			row := make(frame.Row, len(r.Rows.Metadata.Columns))
			for c := range row {
				row[c] = b.ReadValue()
			}
			r.Rows.Rows[i] = row
		}
	case ResultSetKeyspace:
		r.Keyspace = b.ReadString()
	case ResultPrepared:
		r.Prepared.ID = b.ReadShortBytes()
		r.Prepared.Metadata = b.ReadPreparedMetadata()
		r.Prepared.ResultMetadata = b.ReadResultMetadata()
	case ResultSchemaChange:
		r.SchemaChange.ChangeType = b.ReadString()
		r.SchemaChange.Target = b.ReadString()
		r.SchemaChange.Keyspace = b.ReadString()
		switch r.SchemaChange.Target {
		case "KEYSPACE":
		case "FUNCTION", "AGGREGATE":
			r.SchemaChange.Name = b.ReadString()
			r.SchemaChange.ArgumentTypes = b.ReadStringList()
		default:
			r.SchemaChange.Name = b.ReadString()
		}
	}
	return r
}

// HasMorePages reports whether the RESULT's metadata carries a paging
// state for the next EXECUTE/QUERY to continue from (spec.md §4.13).
func (r *Result) HasMorePages() bool {
	return r.Kind == ResultRows && r.Rows.Metadata.Flags&frame.HasMorePages != 0
}

// PagingState is nil once the last page has been consumed.
func (r *Result) PagingState() frame.Bytes {
	if r.Kind != ResultRows {
		return nil
	}
	return r.Rows.Metadata.PagingState
}
