package frame

import "net"

// OptionID is the wire [option] id: a column's CQL type tag. Full value
// marshaling for each id is an external collaborator's concern (spec.md
// §1); this driver only needs enough of the type descriptor to relay
// prepared/result metadata and to size routing-key components.
type OptionID Short

const (
	CustomID    OptionID = 0x0000
	AsciiID     OptionID = 0x0001
	BigintID    OptionID = 0x0002
	BlobID      OptionID = 0x0003
	BooleanID   OptionID = 0x0004
	CounterID   OptionID = 0x0005
	DecimalID   OptionID = 0x0006
	DoubleID    OptionID = 0x0007
	FloatID     OptionID = 0x0008
	IntID       OptionID = 0x0009
	TimestampID OptionID = 0x000B
	UUIDTypeID  OptionID = 0x000C
	VarcharID   OptionID = 0x000D
	VarintID    OptionID = 0x000E
	TimeUUIDID  OptionID = 0x000F
	InetID      OptionID = 0x0010
	DateID      OptionID = 0x0011
	TimeID      OptionID = 0x0012
	SmallintID  OptionID = 0x0013
	TinyintID   OptionID = 0x0014
	DurationID  OptionID = 0x0015
	ListID      OptionID = 0x0020
	MapID       OptionID = 0x0021
	SetID       OptionID = 0x0022
	UDTID       OptionID = 0x0030
	TupleID     OptionID = 0x0031
)

// Option is a column type descriptor, decoded from prepared/result
// metadata frames.
type Option struct {
	ID     OptionID
	Custom string      // CustomID only
	List   *ListOption // ListID/SetID
	Set    *ListOption
	Map    *MapOption    // MapID
	UDT    *UDTOption    // UDTID
	Tuple  *TupleOption  // TupleID
}

type ListOption struct {
	Element Option
}

type MapOption struct {
	Key   Option
	Value Option
}

type UDTOption struct {
	Keyspace   string
	Name       string
	FieldNames []string
	FieldTypes []Option
}

type TupleOption struct {
	Elements []Option
}

func (b *Buffer) WriteOption(o Option) {
	b.WriteShort(Short(o.ID))
	switch o.ID {
	case CustomID:
		b.WriteString(o.Custom)
	case ListID, SetID:
		l := o.List
		if o.ID == SetID {
			l = o.Set
		}
		b.WriteOption(l.Element)
	case MapID:
		b.WriteOption(o.Map.Key)
		b.WriteOption(o.Map.Value)
	case UDTID:
		b.WriteString(o.UDT.Keyspace)
		b.WriteString(o.UDT.Name)
		b.WriteShort(Short(len(o.UDT.FieldNames)))
		for i := range o.UDT.FieldNames {
			b.WriteString(o.UDT.FieldNames[i])
			b.WriteOption(o.UDT.FieldTypes[i])
		}
	case TupleID:
		b.WriteShort(Short(len(o.Tuple.Elements)))
		for _, e := range o.Tuple.Elements {
			b.WriteOption(e)
		}
	}
}

func (b *Buffer) ReadOption() Option {
	var o Option
	o.ID = OptionID(b.ReadShort())
	switch o.ID {
	case CustomID:
		o.Custom = b.ReadString()
	case ListID:
		e := b.ReadOption()
		o.List = &ListOption{Element: e}
	case SetID:
		e := b.ReadOption()
		o.Set = &ListOption{Element: e}
	case MapID:
		k := b.ReadOption()
		v := b.ReadOption()
		o.Map = &MapOption{Key: k, Value: v}
	case UDTID:
		u := &UDTOption{Keyspace: b.ReadString(), Name: b.ReadString()}
		n := b.ReadShort()
		u.FieldNames = make([]string, n)
		u.FieldTypes = make([]Option, n)
		for i := Short(0); i < n; i++ {
			u.FieldNames[i] = b.ReadString()
			u.FieldTypes[i] = b.ReadOption()
		}
		o.UDT = u
	case TupleID:
		n := b.ReadShort()
		t := &TupleOption{Elements: make([]Option, n)}
		for i := Short(0); i < n; i++ {
			t.Elements[i] = b.ReadOption()
		}
		o.Tuple = t
	}
	return o
}

// Value is a single bound parameter or decoded column cell: the wire
// [bytes] payload plus the Option that describes how to interpret it.
// N mirrors the CQL length prefix (-1 means null, -2 means "not set" in
// protocol v4+); Bytes holds the raw payload for N >= 0.
type Value struct {
	N     int32
	Bytes []byte
	Type  *Option
}

// IsNull reports whether this value is the CQL null encoding.
func (v Value) IsNull() bool {
	return v.N < 0
}

func (b *Buffer) WriteValue(v Value) {
	b.WriteInt(v.N)
	if v.N > 0 {
		b.buf = append(b.buf, v.Bytes...)
	}
}

func (b *Buffer) ReadValue() Value {
	n := b.ReadInt()
	if n <= 0 {
		return Value{N: n}
	}
	raw := b.take(int(n))
	out := make([]byte, len(raw))
	copy(out, raw)
	return Value{N: n, Bytes: out}
}

// ColumnSpec describes one column of a result or prepared-statement
// metadata row.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     Option
}

// Row is one decoded result row: one Value per column, in ColumnSpec order.
type Row []Value

func (v Value) AsUUID() (UUID, error) {
	if len(v.Bytes) != 16 {
		return UUID{}, errShortUUID
	}
	var u UUID
	copy(u[:], v.Bytes)
	return u, nil
}

// AsText decodes v as a UTF-8 text/ascii/varchar column.
func (v Value) AsText() (string, error) {
	if v.IsNull() {
		return "", nil
	}
	return string(v.Bytes), nil
}

// AsInet decodes v as a 4- or 16-byte inet address column.
func (v Value) AsInet() (net.IP, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch len(v.Bytes) {
	case 4, 16:
		return net.IP(v.Bytes), nil
	default:
		return nil, &inetLengthError{n: len(v.Bytes)}
	}
}

type inetLengthError struct{ n int }

func (e *inetLengthError) Error() string {
	return "frame: value is not a 4- or 16-byte inet address"
}

// AsTextList decodes v as a CQL set<text>/list<text> column: an [int]
// element count followed by that many [bytes] elements.
func (v Value) AsTextList() ([]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	b := NewBuffer(v.Bytes)
	n := b.ReadInt()
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, string(b.ReadBytes()))
	}
	return out, b.Error()
}

// AsTextMap decodes v as a CQL map<text,text> column: an [int] entry count
// followed by that many key/value [bytes] pairs. Used to read
// system_schema.keyspaces.replication (spec.md SPEC_FULL §3 "schema
// snapshot").
func (v Value) AsTextMap() (map[string]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	b := NewBuffer(v.Bytes)
	n := b.ReadInt()
	out := make(map[string]string, n)
	for i := int32(0); i < n; i++ {
		k := string(b.ReadBytes())
		val := string(b.ReadBytes())
		out[k] = val
	}
	return out, b.Error()
}

var errShortUUID = &uuidLengthError{}

type uuidLengthError struct{}

func (*uuidLengthError) Error() string { return "frame: value is not a 16-byte uuid" }

// Unmarshal copies the raw bytes of v into dst. Full type-aware unmarshaling
// into arbitrary Go types is an external collaborator's concern (spec.md
// §1); this is the minimal contract the top-level Query/Iter API needs to
// hand bytes back to a caller-supplied decoder.
func (v Value) Unmarshal(dst interface{}) error {
	switch d := dst.(type) {
	case *[]byte:
		*d = append((*d)[:0], v.Bytes...)
		return nil
	case *string:
		*d = string(v.Bytes)
		return nil
	default:
		return &unsupportedUnmarshalError{dst}
	}
}

type unsupportedUnmarshalError struct{ dst interface{} }

func (e *unsupportedUnmarshalError) Error() string {
	return "frame: no built-in unmarshal for this destination type; supply a decoder externally"
}
