package response

import (
	"fmt"

	"github.com/scylladb/gocql-native/frame"
)

// Parse decodes a complete response body of the given opcode. It does not
// look at the protocol version: the transport's connection reader passes
// every frame here, v1/v2 ones included, and Parse never returns an
// InvalidProtocolError.
func Parse(op frame.OpCode, b *frame.Buffer) (frame.Response, error) {
	switch op {
	case frame.OpError:
		return ParseError(b), nil
	case frame.OpReady:
		return ParseReady(b), nil
	case frame.OpAuthenticate:
		a := ParseAuthenticate(b)
		if a == nil {
			return nil, fmt.Errorf("response: malformed AUTHENTICATE body")
		}
		return a, nil
	case frame.OpSupported:
		return ParseSupported(b), nil
	case frame.OpResult:
		return ParseResult(b), nil
	case frame.OpEvent:
		return ParseEvent(b), nil
	case frame.OpAuthChallenge:
		return ParseAuthChallenge(b), nil
	case frame.OpAuthSuccess:
		return ParseAuthSuccess(b), nil
	default:
		return nil, fmt.Errorf("response: unsupported opcode %s", op)
	}
}
