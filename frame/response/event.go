package response

import (
	"net"

	"github.com/scylladb/gocql-native/frame"
)

var _ frame.Response = (*Event)(nil)

// EventType names the cluster event families a connection can REGISTER
// for (spec.md §6).
type EventType string

const (
	TopologyChange EventType = "TOPOLOGY_CHANGE"
	StatusChange   EventType = "STATUS_CHANGE"
	SchemaChange   EventType = "SCHEMA_CHANGE"
)

// Event is the tagged union of the three subscribable event bodies,
// dispatched by the control connection (spec.md §4.6).
type Event struct {
	Type EventType

	// TopologyChange: "NEW_NODE" | "REMOVED_NODE"
	// StatusChange:   "UP" | "DOWN"
	ChangeType string
	Address    net.IP
	Port       int32

	// SchemaChange
	SchemaChangeType string // "CREATED" | "UPDATED" | "DROPPED"
	Target           string // "KEYSPACE" | "TABLE" | "TYPE" | "FUNCTION" | "AGGREGATE"
	Keyspace         string
	Name             string
	ArgumentTypes    frame.StringList
}

func (*Event) OpCode() frame.OpCode { return frame.OpEvent }

func ParseEvent(b *frame.Buffer) *Event {
	e := &Event{Type: EventType(b.ReadString())}
	switch e.Type {
	case TopologyChange, StatusChange:
		e.ChangeType = b.ReadString()
		e.Address, e.Port = b.ReadInet()
	case SchemaChange:
		e.SchemaChangeType = b.ReadString()
		e.Target = b.ReadString()
		e.Keyspace = b.ReadString()
		switch e.Target {
		case "KEYSPACE":
			// no further fields
		case "FUNCTION", "AGGREGATE":
			e.Name = b.ReadString()
			e.ArgumentTypes = b.ReadStringList()
		default: // TABLE, TYPE
			e.Name = b.ReadString()
		}
	}
	return e
}
