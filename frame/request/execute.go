package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Execute)(nil)

// Execute runs a previously PREPAREd statement identified by ID. On a
// protocol v5 connection the server additionally needs ResultMetadataID so
// it can detect a stale client-side metadata cache (spec.md §4.3 step 2).
type Execute struct {
	ID               []byte
	ResultMetadataID frame.UUID
	HasMetadataID    bool
	Params           QueryParams
}

func (e *Execute) WriteTo(b *frame.Buffer) {
	b.WriteShortBytes(e.ID)
	if e.HasMetadataID {
		b.WriteUUID(e.ResultMetadataID)
	}
	e.Params.writeTo(b)
}

func (*Execute) OpCode() frame.OpCode {
	return frame.OpExecute
}
