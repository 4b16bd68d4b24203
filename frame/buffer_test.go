package frame

import (
	"net"
	"testing"
)

func TestBufferScalarRoundTrip(t *testing.T) {
	var w Buffer
	w.WriteByte(0x7F)
	w.WriteShort(12345)
	w.WriteInt(-123456)
	w.WriteLong(9223372036854775807)

	r := NewBuffer(w.Bytes())
	if got := r.ReadByte(); got != 0x7F {
		t.Fatalf("ReadByte = %#x, want 0x7f", got)
	}
	if got := r.ReadShort(); got != 12345 {
		t.Fatalf("ReadShort = %d, want 12345", got)
	}
	if got := r.ReadInt(); got != -123456 {
		t.Fatalf("ReadInt = %d, want -123456", got)
	}
	if got := r.ReadLong(); got != 9223372036854775807 {
		t.Fatalf("ReadLong = %d, want max int64", got)
	}
	if err := r.Error(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBufferStringRoundTrip(t *testing.T) {
	var w Buffer
	w.WriteString("hello")
	w.WriteLongString("a longer string with spaces")

	r := NewBuffer(w.Bytes())
	if got := r.ReadString(); got != "hello" {
		t.Fatalf("ReadString = %q, want %q", got, "hello")
	}
	if got := r.ReadLongString(); got != "a longer string with spaces" {
		t.Fatalf("ReadLongString = %q", got)
	}
}

func TestBufferBytesRoundTrip(t *testing.T) {
	var w Buffer
	w.WriteBytes(Bytes("payload"))
	w.WriteBytes(nil)
	w.WriteShortBytes([]byte{1, 2, 3})

	r := NewBuffer(w.Bytes())
	if got := r.ReadBytes(); string(got) != "payload" {
		t.Fatalf("ReadBytes = %q, want %q", got, "payload")
	}
	if got := r.ReadBytes(); got != nil {
		t.Fatalf("ReadBytes for nil write = %v, want nil", got)
	}
	if got := r.ReadShortBytes(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("ReadShortBytes = %v", got)
	}
}

func TestBufferStringListAndMapRoundTrip(t *testing.T) {
	var w Buffer
	w.WriteStringList(StringList{"a", "b", "c"})
	w.WriteStringMap(map[string]string{"k1": "v1"})
	w.WriteStringMultiMap(map[string]StringList{"k1": {"v1", "v2"}})

	r := NewBuffer(w.Bytes())
	list := r.ReadStringList()
	if len(list) != 3 || list[0] != "a" || list[2] != "c" {
		t.Fatalf("ReadStringList = %v", list)
	}
	m := r.ReadStringMap()
	if m["k1"] != "v1" {
		t.Fatalf("ReadStringMap = %v", m)
	}
	mm := r.ReadStringMultiMap()
	if len(mm["k1"]) != 2 || mm["k1"][0] != "v1" {
		t.Fatalf("ReadStringMultiMap = %v", mm)
	}
}

func TestBufferUUIDAndConsistencyRoundTrip(t *testing.T) {
	var w Buffer
	var u UUID
	for i := range u {
		u[i] = byte(i)
	}
	w.WriteUUID(u)
	w.WriteConsistency(QUORUM)

	r := NewBuffer(w.Bytes())
	if got := r.ReadUUID(); got != u {
		t.Fatalf("ReadUUID = %v, want %v", got, u)
	}
	if got := r.ReadConsistency(); got != QUORUM {
		t.Fatalf("ReadConsistency = %v, want QUORUM", got)
	}
}

func TestBufferInetRoundTripIPv4(t *testing.T) {
	var w Buffer
	ip := net.ParseIP("10.0.0.1")
	w.WriteInet(ip, 9042)

	r := NewBuffer(w.Bytes())
	gotIP, gotPort := r.ReadInet()
	if !gotIP.Equal(ip) {
		t.Fatalf("ReadInet ip = %v, want %v", gotIP, ip)
	}
	if gotPort != 9042 {
		t.Fatalf("ReadInet port = %d, want 9042", gotPort)
	}
}

func TestBufferInetRoundTripIPv6(t *testing.T) {
	var w Buffer
	ip := net.ParseIP("::1")
	w.WriteInetAddr(ip)

	r := NewBuffer(w.Bytes())
	got := r.ReadInetAddr()
	if !got.Equal(ip) {
		t.Fatalf("ReadInetAddr = %v, want %v", got, ip)
	}
}

func TestBufferShortReadSetsStickyError(t *testing.T) {
	r := NewBuffer([]byte{0x00})
	_ = r.ReadInt()
	if r.Error() == nil {
		t.Fatal("expected short-read error")
	}

	// further reads should not panic and should keep the first error.
	first := r.Error()
	_ = r.ReadLong()
	if r.Error() != first {
		t.Fatalf("sticky error changed: %v != %v", r.Error(), first)
	}
}

func TestBufferPatchInt(t *testing.T) {
	var w Buffer
	w.WriteInt(0)
	w.WriteString("body")
	w.PatchInt(0, 42)

	r := NewBuffer(w.Bytes())
	if got := r.ReadInt(); got != 42 {
		t.Fatalf("PatchInt didn't take effect: got %d, want 42", got)
	}
}

func TestBufferLenAndReset(t *testing.T) {
	var w Buffer
	w.WriteInt(1)
	if w.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", w.Len())
	}
	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", w.Len())
	}
}
