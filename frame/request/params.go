package request

import "github.com/scylladb/gocql-native/frame"

// QueryFlags are the v3+ query-parameters flags (spec.md §6).
type QueryFlags byte

const (
	FlagValues            QueryFlags = 0x01
	FlagSkipMetadata       QueryFlags = 0x02
	FlagPageSize           QueryFlags = 0x04
	FlagPagingState        QueryFlags = 0x08
	FlagSerialConsistency  QueryFlags = 0x10
	FlagDefaultTimestamp   QueryFlags = 0x20
	FlagNamesForValues     QueryFlags = 0x40
)

// QueryParams is the <query_parameters> structure shared by QUERY and
// EXECUTE bodies; Batch.WriteTo encodes BATCH's own trailing fields
// without it.
type QueryParams struct {
	Consistency       frame.Consistency
	Values            []frame.Value
	Names             []string // only meaningful with FlagNamesForValues
	SkipMetadata      bool
	PageSize          int32
	PagingState       frame.Bytes
	SerialConsistency frame.Consistency
	Timestamp         int64
	HasTimestamp      bool
}

func (p QueryParams) flags() QueryFlags {
	var f QueryFlags
	if len(p.Values) > 0 {
		f |= FlagValues
	}
	if p.SkipMetadata {
		f |= FlagSkipMetadata
	}
	if p.PageSize > 0 {
		f |= FlagPageSize
	}
	if p.PagingState != nil {
		f |= FlagPagingState
	}
	if p.SerialConsistency != 0 {
		f |= FlagSerialConsistency
	}
	if p.HasTimestamp {
		f |= FlagDefaultTimestamp
	}
	if len(p.Names) > 0 {
		f |= FlagNamesForValues
	}
	return f
}

func (p QueryParams) writeTo(b *frame.Buffer) {
	b.WriteConsistency(p.Consistency)
	f := p.flags()
	b.WriteByte(byte(f))
	if f&FlagValues != 0 {
		b.WriteShort(frame.Short(len(p.Values)))
		for i, v := range p.Values {
			if f&FlagNamesForValues != 0 {
				b.WriteString(p.Names[i])
			}
			b.WriteValue(v)
		}
	}
	if f&FlagPageSize != 0 {
		b.WriteInt(p.PageSize)
	}
	if f&FlagPagingState != 0 {
		b.WriteBytes(p.PagingState)
	}
	if f&FlagSerialConsistency != 0 {
		b.WriteConsistency(p.SerialConsistency)
	}
	if f&FlagDefaultTimestamp != 0 {
		b.WriteLong(p.Timestamp)
	}
}
