package request

import "github.com/scylladb/gocql-native/frame"

var _ frame.Request = (*AuthResponse)(nil)

// AuthResponse carries one SASL token in the AUTHENTICATE/AUTH_CHALLENGE
// handshake loop (spec.md §4.1, §6).
type AuthResponse struct {
	Token []byte
}

func (a *AuthResponse) WriteTo(b *frame.Buffer) {
	b.WriteBytes(a.Token)
}

func (*AuthResponse) OpCode() frame.OpCode {
	return frame.OpAuthResponse
}
