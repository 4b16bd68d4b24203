package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Query)(nil)

// Query is an opaque CQL string plus its bound values and overrides
// (spec.md §3 "Request": queries are opaque strings carrying routing
// hints, this driver is not a CQL parser).
type Query struct {
	Content string
	Params  QueryParams
}

func (q *Query) WriteTo(b *frame.Buffer) {
	b.WriteLongString(q.Content)
	q.Params.writeTo(b)
}

func (*Query) OpCode() frame.OpCode {
	return frame.OpQuery
}
