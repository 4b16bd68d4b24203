package response

import "github.com/scylladb/gocql-native/frame"

var _ frame.Response = (*Authenticate)(nil)

// Authenticate names the server's configured IAuthenticator implementation
// class, prompting the connection to invoke its auth provider and send an
// AUTH_RESPONSE (spec.md §4.1).
type Authenticate struct {
	Class string
}

func (*Authenticate) OpCode() frame.OpCode { return frame.OpAuthenticate }

// ParseAuthenticate decodes an AUTHENTICATE frame body. It must not panic
// on malformed input (spec.md §8 "Handles... does not crash" boundary
// behavior verified by FuzzAuthenticate).
func ParseAuthenticate(b *frame.Buffer) *Authenticate {
	a := &Authenticate{Class: b.ReadString()}
	if b.Error() != nil {
		return nil
	}
	return a
}
