// Package schema holds the driver's view of keyspace and table metadata,
// refreshed from system_schema alongside ring topology (spec.md SPEC_FULL
// §3 "schema.Snapshot", §4.8 "prepare-on-all-hosts", §4.9 "schema-agreement
// wait").
package schema

// Keyspace describes one keyspace's replication settings and the tables
// inside it, as reported by system_schema.keyspaces/system_schema.tables.
type Keyspace struct {
	Name        string
	Replication map[string]string // raw CQL replication map, e.g. {"class": "...", "replication_factor": "3"}
	Tables      map[string]Table
}

// Table is a column family's name and the columns the driver discovered
// for it (enough for a routing-key sanity check; full column type metadata
// still comes from PREPARE's own response, spec.md §1 Non-goals).
type Table struct {
	Name    string
	Columns []string
}

// ReplicationFactor returns the keyspace's replication factor, resolving
// both SimpleStrategy's single replication_factor and
// NetworkTopologyStrategy's per-DC factor. ok is false if dc isn't a
// recognized key for a NetworkTopologyStrategy keyspace.
func (k Keyspace) ReplicationFactor(dc string) (int, bool) {
	if rf, ok := k.Replication["replication_factor"]; ok {
		return parseRF(rf)
	}
	if rf, ok := k.Replication[dc]; ok {
		return parseRF(rf)
	}
	return 0, false
}

func parseRF(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Snapshot is every keyspace's metadata known as of the last refresh.
type Snapshot struct {
	Keyspaces map[string]Keyspace
}
