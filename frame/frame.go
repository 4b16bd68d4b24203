package frame

import "fmt"

// Short is the wire [short]: an unsigned 16-bit integer.
type Short = uint16

// Bytes is the wire [bytes]: a length-prefixed byte string, nil meaning
// the CQL null encoding ([int] -1).
type Bytes []byte

// StringList is the wire [string list].
type StringList []string

// StartupOptions is the wire [string map] sent in a STARTUP request.
type StartupOptions map[string]string

// Version identifies a CQL binary protocol version, v1 through v5.
type Version byte

const (
	CQLv1 Version = 0x01
	CQLv2 Version = 0x02
	CQLv3 Version = 0x03
	CQLv4 Version = 0x04
	CQLv5 Version = 0x05

	protoResponseBit Version = 0x80
)

// RequestVersion returns the byte placed in a request frame's header.
func (v Version) RequestVersion() byte {
	return byte(v)
}

// ResponseVersion returns the byte a server response of this version sets.
func (v Version) ResponseVersion() byte {
	return byte(v) | byte(protoResponseBit)
}

// UsesShortStreamID reports whether this protocol version multiplexes with
// a single-byte stream id (v1/v2, max 128 in flight) rather than the v3+
// two-byte stream id (max 32768 in flight).
func (v Version) UsesShortStreamID() bool {
	return v == CQLv1 || v == CQLv2
}

// HeaderSize returns the frame header length for this protocol version:
// 8 bytes for v1/v2, 9 bytes for v3+ (the stream id widens from 1 to 2
// bytes).
func (v Version) HeaderSize() int {
	if v.UsesShortStreamID() {
		return 8
	}
	return 9
}

// StreamID is the per-connection request/response multiplexing tag.
// Negative values are reserved for server-initiated EVENT frames.
type StreamID int16

// OpCode identifies a frame's body shape.
type OpCode byte

const (
	OpError        OpCode = 0x00
	OpStartup      OpCode = 0x01
	OpReady        OpCode = 0x02
	OpAuthenticate OpCode = 0x03
	OpOptions      OpCode = 0x05
	OpSupported    OpCode = 0x06
	OpQuery        OpCode = 0x07
	OpResult       OpCode = 0x08
	OpPrepare      OpCode = 0x09
	OpExecute      OpCode = 0x0A
	OpRegister     OpCode = 0x0B
	OpEvent        OpCode = 0x0C
	OpBatch        OpCode = 0x0D
	OpAuthChallenge OpCode = 0x0E
	OpAuthResponse  OpCode = 0x0F
	OpAuthSuccess   OpCode = 0x10
)

func (op OpCode) String() string {
	switch op {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	case OpBatch:
		return "BATCH"
	case OpAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpAuthResponse:
		return "AUTH_RESPONSE"
	case OpAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return fmt.Sprintf("OpCode(%d)", byte(op))
	}
}

// HeaderFlags are the frame header flag bits (spec.md §6).
type HeaderFlags byte

const (
	FlagCompression  HeaderFlags = 0x01
	FlagTracing      HeaderFlags = 0x02
	FlagCustomPayload HeaderFlags = 0x04
	FlagWarning      HeaderFlags = 0x08
	FlagBeta         HeaderFlags = 0x10
)

func (f HeaderFlags) Has(bit HeaderFlags) bool {
	return f&bit != 0
}

// Header is the 8 (v1/v2) or 9 (v3+) byte frame header common to every
// request and response.
type Header struct {
	Version  Version
	Flags    HeaderFlags
	StreamID StreamID
	OpCode   OpCode
	Length   int32
}

// WriteTo encodes the header; Length is filled in afterwards once the body
// size is known (see transport.connWriter.send), so it is written as 0 here.
func (h Header) WriteTo(b *Buffer) {
	b.WriteByte(h.Version.RequestVersion())
	b.WriteByte(byte(h.Flags))
	if h.Version.UsesShortStreamID() {
		b.WriteByte(byte(h.StreamID))
	} else {
		b.WriteShort(uint16(h.StreamID))
	}
	b.WriteByte(byte(h.OpCode))
	b.WriteInt(0)
}

// ParseHeader decodes a complete header from the front of b, reading a
// one-byte stream id when the version byte is v1/v2 and a two-byte one
// otherwise. The transport's connection reader always accumulates
// HeaderSize (the 9-byte v3+ size) before calling it; connections always
// negotiate v4 and never fall back to v1/v2.
func ParseHeader(b *Buffer) Header {
	var h Header
	raw := b.ReadByte()
	h.Version = Version(raw &^ byte(protoResponseBit))
	h.Flags = HeaderFlags(b.ReadByte())
	if h.Version.UsesShortStreamID() {
		h.StreamID = StreamID(int8(b.ReadByte()))
	} else {
		h.StreamID = StreamID(b.ReadShort())
	}
	h.OpCode = OpCode(b.ReadByte())
	h.Length = b.ReadInt()
	return h
}

// HeaderSize is the v3+ header size, the minimum this driver negotiates
// for full functionality (spec.md §6).
const HeaderSize = 9
