package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Prepare)(nil)

// Prepare asks the server to parse and cache Content, returning a
// PREPARED result carrying the opaque id used by subsequent EXECUTE
// requests (spec.md §3 "Prepared metadata entry").
type Prepare struct {
	Content string
}

func (p *Prepare) WriteTo(b *frame.Buffer) {
	b.WriteLongString(p.Content)
}

func (*Prepare) OpCode() frame.OpCode {
	return frame.OpPrepare
}
