package response

import "github.com/scylladb/gocql-native/frame"

var _ frame.Response = (*Supported)(nil)

// Supported lists the server's acceptable STARTUP option values — notably
// CQL_VERSION and COMPRESSION, used to pick a negotiated compression
// algorithm: the transport's STARTUP negotiation picks LZ4 when the server
// advertises it and Snappy otherwise (SPEC_FULL.md §2.B).
type Supported struct {
	Options map[string]frame.StringList
}

func (*Supported) OpCode() frame.OpCode { return frame.OpSupported }

func ParseSupported(b *frame.Buffer) *Supported {
	return &Supported{Options: b.ReadStringMultiMap()}
}

// SupportsCompression reports whether name (e.g. "snappy", "lz4") appears
// in the server's advertised COMPRESSION option values.
func (s *Supported) SupportsCompression(name string) bool {
	for _, v := range s.Options["COMPRESSION"] {
		if v == name {
			return true
		}
	}
	return false
}
