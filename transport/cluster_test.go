package transport

import (
	"net"
	"testing"

	"github.com/scylladb/gocql-native/frame"
)

func encodeTextList(values ...string) []byte {
	var buf frame.Buffer
	buf.WriteInt(int32(len(values)))
	for _, v := range values {
		buf.WriteBytes(frame.Bytes(v))
	}
	return buf.Bytes()
}

func TestParseTokensDecodesTextList(t *testing.T) {
	raw := encodeTextList("10", "20", "-30")
	v := frame.Value{N: int32(len(raw)), Bytes: raw}

	tokens := parseTokens(v)
	if len(tokens) != 3 {
		t.Fatalf("parseTokens len = %d, want 3", len(tokens))
	}
	if tokens[0] != 10 || tokens[1] != 20 || tokens[2] != -30 {
		t.Fatalf("parseTokens = %v", tokens)
	}
}

func TestParseTokensNullValue(t *testing.T) {
	v := frame.Value{N: -1}
	if got := parseTokens(v); got != nil {
		t.Fatalf("parseTokens(null) = %v, want nil", got)
	}
}

func TestParseTokensSkipsUnparseable(t *testing.T) {
	raw := encodeTextList("10", "not-a-number", "30")
	v := frame.Value{N: int32(len(raw)), Bytes: raw}

	tokens := parseTokens(v)
	if len(tokens) != 2 || tokens[0] != 10 || tokens[1] != 30 {
		t.Fatalf("parseTokens = %v, want [10 30] skipping the bad entry", tokens)
	}
}

func TestNodeFromPeerRowBuildsAddrAndLabels(t *testing.T) {
	ip := net.ParseIP("10.0.0.5").To4()
	row := frame.Row{
		{N: int32(len(ip)), Bytes: ip},
		{N: 3, Bytes: []byte("dc1")},
		{N: 2, Bytes: []byte("r1")},
	}

	n := nodeFromPeerRow(row)
	if n == nil {
		t.Fatal("nodeFromPeerRow returned nil")
	}
	if n.addr != "10.0.0.5:9042" {
		t.Fatalf("addr = %q, want %q", n.addr, "10.0.0.5:9042")
	}
	if n.datacenter != "dc1" || n.rack != "r1" {
		t.Fatalf("datacenter/rack = %q/%q", n.datacenter, n.rack)
	}
}

func TestNodeFromPeerRowNullPeerSkipped(t *testing.T) {
	row := frame.Row{{N: -1}}
	if n := nodeFromPeerRow(row); n != nil {
		t.Fatalf("nodeFromPeerRow(null peer) = %v, want nil", n)
	}
}

func TestNodeFromPeerRowEmptyRow(t *testing.T) {
	if n := nodeFromPeerRow(nil); n != nil {
		t.Fatalf("nodeFromPeerRow(nil) = %v, want nil", n)
	}
}

func TestControlAddrNilControl(t *testing.T) {
	if got := controlAddr(nil); got != "" {
		t.Fatalf("controlAddr(nil) = %q, want empty string", got)
	}
}

func TestClusterNewQueryInfoNotTokenAware(t *testing.T) {
	c := &Cluster{}
	info := c.NewQueryInfo()
	if info.tokenAware {
		t.Fatal("NewQueryInfo should not be token-aware")
	}
}

func TestClusterNewTokenAwareQueryInfoDefaultsKeyspace(t *testing.T) {
	c := &Cluster{defaultKeyspace: "system"}
	info, err := c.NewTokenAwareQueryInfo(42, "")
	if err != nil {
		t.Fatalf("NewTokenAwareQueryInfo: %v", err)
	}
	if !info.tokenAware || info.token != 42 {
		t.Fatalf("info = %+v", info)
	}
	if info.keyspace != "system" {
		t.Fatalf("keyspace = %q, want default %q", info.keyspace, "system")
	}
}

func TestClusterNewTokenAwareQueryInfoExplicitKeyspace(t *testing.T) {
	c := &Cluster{defaultKeyspace: "system"}
	info, err := c.NewTokenAwareQueryInfo(1, "other")
	if err != nil {
		t.Fatalf("NewTokenAwareQueryInfo: %v", err)
	}
	if info.keyspace != "other" {
		t.Fatalf("keyspace = %q, want %q", info.keyspace, "other")
	}
}
