package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Startup)(nil)

// Startup options keys, sent as the STARTUP [string map] (spec.md §4.1).
const (
	CQLVersionOption       = "CQL_VERSION"
	CompressionOption      = "COMPRESSION"
	DriverNameOption       = "DRIVER_NAME"
	DriverVersionOption    = "DRIVER_VERSION"
	ApplicationNameOption  = "APPLICATION_NAME"
	ApplicationVersionOption = "APPLICATION_VERSION"
	ClientIDOption         = "CLIENT_ID"
	NoCompactOption        = "NO_COMPACT"
)

type Startup struct {
	Options frame.StartupOptions
}

func (s *Startup) WriteTo(b *frame.Buffer) {
	b.WriteStringMap(s.Options)
}

func (*Startup) OpCode() frame.OpCode {
	return frame.OpStartup
}
