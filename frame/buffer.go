// Package frame implements the CQL binary protocol's wire primitives:
// buffer read/write helpers, the frame header, opcodes, consistency
// levels and the [short]/[int]/[long]/[string]/[bytes]/[uuid]/[inet]
// encodings used by every request and response body. It performs no I/O.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Buffer is a growable byte buffer with CQL-primitive read/write helpers.
// A read that runs past the end, or a malformed length prefix, sets a
// sticky error instead of panicking; callers check Error() once after a
// sequence of reads.
type Buffer struct {
	buf []byte
	pos int
	err error
}

// BufferWriter returns an io.Writer that appends to buf, used as the
// destination of io.CopyN when filling a Buffer from a socket.
func BufferWriter(buf *Buffer) io.Writer {
	return bufferWriter{buf}
}

type bufferWriter struct{ buf *Buffer }

func (w bufferWriter) Write(p []byte) (int, error) {
	w.buf.buf = append(w.buf.buf, p...)
	return len(p), nil
}

// CopyBuffer copies the readable remainder of buf to w, such as a socket.
func CopyBuffer(buf *Buffer, w io.Writer) (int64, error) {
	n, err := w.Write(buf.buf[buf.pos:])
	buf.pos += n
	return int64(n), err
}

// NewBuffer wraps an already-decoded byte slice (such as a decompressed
// frame body) for reading.
func NewBuffer(data []byte) Buffer {
	return Buffer{buf: data}
}

// PatchInt overwrites the 4 bytes at offset with v, used to backfill the
// frame header's length field once a body's final size is known.
func (b *Buffer) PatchInt(offset int, v int32) {
	binary.BigEndian.PutUint32(b.buf[offset:offset+4], uint32(v))
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
	b.err = nil
}

// Bytes returns the unread remainder of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.pos:]
}

// Len reports how many unread bytes remain.
func (b *Buffer) Len() int {
	return len(b.buf) - b.pos
}

func (b *Buffer) Error() error {
	return b.err
}

func (b *Buffer) recordErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Buffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *Buffer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Buffer) WriteShort(v Short) {
	b.buf = append(b.buf, byte(v>>8), byte(v))
}

func (b *Buffer) WriteInt(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteLong(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteString(s string) {
	b.WriteShort(Short(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *Buffer) WriteLongString(s string) {
	b.WriteInt(int32(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *Buffer) WriteBytes(v Bytes) {
	if v == nil {
		b.WriteInt(-1)
		return
	}
	b.WriteInt(int32(len(v)))
	b.buf = append(b.buf, v...)
}

func (b *Buffer) WriteShortBytes(v []byte) {
	b.WriteShort(Short(len(v)))
	b.buf = append(b.buf, v...)
}

func (b *Buffer) WriteStringList(v StringList) {
	b.WriteShort(Short(len(v)))
	for _, s := range v {
		b.WriteString(s)
	}
}

func (b *Buffer) WriteStringMap(m map[string]string) {
	b.WriteShort(Short(len(m)))
	for k, v := range m {
		b.WriteString(k)
		b.WriteString(v)
	}
}

func (b *Buffer) WriteStringMultiMap(m map[string]StringList) {
	b.WriteShort(Short(len(m)))
	for k, v := range m {
		b.WriteString(k)
		b.WriteStringList(v)
	}
}

func (b *Buffer) WriteUUID(u UUID) {
	b.buf = append(b.buf, u[:]...)
}

func (b *Buffer) WriteConsistency(c Consistency) {
	b.WriteShort(Short(c))
}

func (b *Buffer) WriteInet(addr net.IP, port int32) {
	if ip4 := addr.To4(); ip4 != nil {
		b.WriteByte(4)
		b.buf = append(b.buf, ip4...)
	} else {
		b.WriteByte(16)
		b.buf = append(b.buf, addr.To16()...)
	}
	b.WriteInt(port)
}

func (b *Buffer) WriteInetAddr(addr net.IP) {
	if ip4 := addr.To4(); ip4 != nil {
		b.WriteByte(4)
		b.buf = append(b.buf, ip4...)
	} else {
		b.WriteByte(16)
		b.buf = append(b.buf, addr.To16()...)
	}
}

// --- reads ---

func (b *Buffer) take(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || b.pos+n > len(b.buf) {
		b.recordErr(fmt.Errorf("frame: short read: want %d bytes, have %d", n, b.Len()))
		return nil
	}
	v := b.buf[b.pos : b.pos+n]
	b.pos += n
	return v
}

func (b *Buffer) ReadByte() byte {
	v := b.take(1)
	if v == nil {
		return 0
	}
	return v[0]
}

func (b *Buffer) ReadShort() Short {
	v := b.take(2)
	if v == nil {
		return 0
	}
	return Short(binary.BigEndian.Uint16(v))
}

func (b *Buffer) ReadInt() int32 {
	v := b.take(4)
	if v == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(v))
}

func (b *Buffer) ReadLong() int64 {
	v := b.take(8)
	if v == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func (b *Buffer) ReadString() string {
	n := b.ReadShort()
	v := b.take(int(n))
	return string(v)
}

func (b *Buffer) ReadLongString() string {
	n := b.ReadInt()
	v := b.take(int(n))
	return string(v)
}

func (b *Buffer) ReadBytes() Bytes {
	n := b.ReadInt()
	if n < 0 {
		return nil
	}
	v := b.take(int(n))
	if v == nil {
		return nil
	}
	out := make(Bytes, len(v))
	copy(out, v)
	return out
}

func (b *Buffer) ReadShortBytes() []byte {
	n := b.ReadShort()
	v := b.take(int(n))
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (b *Buffer) ReadStringList() StringList {
	n := b.ReadShort()
	out := make(StringList, 0, n)
	for i := Short(0); i < n; i++ {
		out = append(out, b.ReadString())
	}
	return out
}

func (b *Buffer) ReadStringMap() map[string]string {
	n := b.ReadShort()
	out := make(map[string]string, n)
	for i := Short(0); i < n; i++ {
		k := b.ReadString()
		out[k] = b.ReadString()
	}
	return out
}

func (b *Buffer) ReadStringMultiMap() map[string]StringList {
	n := b.ReadShort()
	out := make(map[string]StringList, n)
	for i := Short(0); i < n; i++ {
		k := b.ReadString()
		out[k] = b.ReadStringList()
	}
	return out
}

func (b *Buffer) ReadUUID() UUID {
	var u UUID
	v := b.take(16)
	if v != nil {
		copy(u[:], v)
	}
	return u
}

func (b *Buffer) ReadConsistency() Consistency {
	return Consistency(b.ReadShort())
}

func (b *Buffer) ReadInet() (net.IP, int32) {
	addr := b.ReadInetAddr()
	port := b.ReadInt()
	return addr, port
}

func (b *Buffer) ReadInetAddr() net.IP {
	n := b.ReadByte()
	v := b.take(int(n))
	if v == nil {
		return nil
	}
	ip := make(net.IP, len(v))
	copy(ip, v)
	return ip
}
