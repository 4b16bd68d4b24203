package response

import "github.com/scylladb/gocql-native/frame"

var _ frame.Response = (*Ready)(nil)

// Ready signals the end of the STARTUP handshake: no authentication is
// required, or it has already completed (spec.md §4.1).
type Ready struct{}

func (*Ready) OpCode() frame.OpCode { return frame.OpReady }

func ParseReady(_ *frame.Buffer) *Ready {
	return &Ready{}
}
