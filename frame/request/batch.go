package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*Batch)(nil)

// BatchKind distinguishes a batch sub-statement carrying a raw query string
// from one identified by a prepared id (spec.md §6, "Batch kinds").
type BatchKind byte

const (
	BatchKindQuery    BatchKind = 0
	BatchKindPrepared BatchKind = 1
)

// BatchType selects the server-side batch semantics.
type BatchType byte

const (
	BatchLogged   BatchType = 0
	BatchUnlogged BatchType = 1
	BatchCounter  BatchType = 2
)

// BatchStatement is one member of a BATCH request (spec.md §4.12, added).
// Idempotent carries the per-statement idempotence the top-level Batch API
// needs to compute the whole batch's idempotence as the logical AND of its
// members; the wire codec itself never reads it.
type BatchStatement struct {
	Kind       BatchKind
	Query      string // BatchKindQuery
	ID         []byte // BatchKindPrepared
	Values     []frame.Value
	Names      []string
	Idempotent bool
}

// Batch bundles several QUERY/PREPARED sub-statements sharing one
// consistency level (spec.md §4.12). Idempotence of the whole batch is the
// logical AND of its members' Idempotent fields, computed by the top-level
// Batch API as statements are appended (scylla.Batch.Query/Prepared)
// unless the caller overrides it explicitly with SetIdempotent.
type Batch struct {
	Type              BatchType
	Statements        []BatchStatement
	Consistency       frame.Consistency
	SerialConsistency frame.Consistency
	Timestamp         int64
	HasTimestamp      bool
	NamesForValues    bool
}

func (batch *Batch) WriteTo(b *frame.Buffer) {
	b.WriteByte(byte(batch.Type))
	b.WriteShort(frame.Short(len(batch.Statements)))
	for _, s := range batch.Statements {
		b.WriteByte(byte(s.Kind))
		if s.Kind == BatchKindQuery {
			b.WriteLongString(s.Query)
		} else {
			b.WriteShortBytes(s.ID)
		}
		b.WriteShort(frame.Short(len(s.Values)))
		for i, v := range s.Values {
			if batch.NamesForValues {
				b.WriteString(s.Names[i])
			}
			b.WriteValue(v)
		}
	}
	b.WriteConsistency(batch.Consistency)

	var f QueryFlags
	if batch.SerialConsistency != 0 {
		f |= FlagSerialConsistency
	}
	if batch.HasTimestamp {
		f |= FlagDefaultTimestamp
	}
	if batch.NamesForValues {
		f |= FlagNamesForValues
	}
	b.WriteByte(byte(f))
	if f&FlagSerialConsistency != 0 {
		b.WriteConsistency(batch.SerialConsistency)
	}
	if f&FlagDefaultTimestamp != 0 {
		b.WriteLong(batch.Timestamp)
	}
}

func (*Batch) OpCode() frame.OpCode {
	return frame.OpBatch
}
