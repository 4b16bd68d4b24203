package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Register)(nil)

// Register subscribes the connection to the named cluster event types:
// TOPOLOGY_CHANGE, STATUS_CHANGE, SCHEMA_CHANGE (spec.md §6).
type Register struct {
	EventTypes frame.StringList
}

func (r *Register) WriteTo(b *frame.Buffer) {
	b.WriteStringList(r.EventTypes)
}

func (*Register) OpCode() frame.OpCode {
	return frame.OpRegister
}
