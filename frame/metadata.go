package frame

// ResultMetadataFlags are the flags word prefixing rows/prepared metadata.
type ResultMetadataFlags int32

const (
	GlobalTablesSpec ResultMetadataFlags = 0x0001
	HasMorePages     ResultMetadataFlags = 0x0002
	NoMetadata       ResultMetadataFlags = 0x0004
	MetadataChanged  ResultMetadataFlags = 0x0008 // protocol v5
)

// ResultMetadata describes the columns of a rows or prepared-statement
// result-set.
type ResultMetadata struct {
	Flags        ResultMetadataFlags
	ColumnsCount int32
	PagingState  Bytes
	NewMetadataID UUID // protocol v5 result-metadata-id
	GlobalKeyspace string
	GlobalTable    string
	Columns        []ColumnSpec
}

func (b *Buffer) ReadResultMetadata() ResultMetadata {
	var m ResultMetadata
	m.Flags = ResultMetadataFlags(b.ReadInt())
	m.ColumnsCount = b.ReadInt()
	if m.Flags&HasMorePages != 0 {
		m.PagingState = b.ReadBytes()
	}
	if m.Flags&MetadataChanged != 0 {
		m.NewMetadataID = b.ReadUUID()
	}
	if m.Flags&NoMetadata != 0 {
		return m
	}
	global := m.Flags&GlobalTablesSpec != 0
	if global {
		m.GlobalKeyspace = b.ReadString()
		m.GlobalTable = b.ReadString()
	}
	m.Columns = make([]ColumnSpec, m.ColumnsCount)
	for i := range m.Columns {
		if !global {
			m.Columns[i].Keyspace = b.ReadString()
			m.Columns[i].Table = b.ReadString()
		} else {
			m.Columns[i].Keyspace = m.GlobalKeyspace
			m.Columns[i].Table = m.GlobalTable
		}
		m.Columns[i].Name = b.ReadString()
		m.Columns[i].Type = b.ReadOption()
	}
	return m
}

// PreparedMetadata additionally carries the bind-marker partition-key
// indexes (spec.md §3, "input column metadata").
type PreparedMetadata struct {
	ResultMetadata
	PkIndexes []Short
}

func (b *Buffer) ReadPreparedMetadata() PreparedMetadata {
	var m PreparedMetadata
	m.Flags = ResultMetadataFlags(b.ReadInt())
	m.ColumnsCount = b.ReadInt()
	pkCount := b.ReadInt()
	m.PkIndexes = make([]Short, pkCount)
	for i := range m.PkIndexes {
		m.PkIndexes[i] = b.ReadShort()
	}
	global := m.Flags&GlobalTablesSpec != 0
	if global {
		m.GlobalKeyspace = b.ReadString()
		m.GlobalTable = b.ReadString()
	}
	m.Columns = make([]ColumnSpec, m.ColumnsCount)
	for i := range m.Columns {
		if !global {
			m.Columns[i].Keyspace = b.ReadString()
			m.Columns[i].Table = b.ReadString()
		} else {
			m.Columns[i].Keyspace = m.GlobalKeyspace
			m.Columns[i].Table = m.GlobalTable
		}
		m.Columns[i].Name = b.ReadString()
		m.Columns[i].Type = b.ReadOption()
	}
	return m
}
