package response

import "github.com/scylladb/gocql-native/frame"

var _ frame.Response = (*AuthSuccess)(nil)

// AuthSuccess ends the AUTHENTICATE handshake successfully, optionally
// carrying a final token the Authenticator's success(token) inspects
// (spec.md §4.1, §6).
type AuthSuccess struct {
	Token []byte
}

func (*AuthSuccess) OpCode() frame.OpCode { return frame.OpAuthSuccess }

func ParseAuthSuccess(b *frame.Buffer) *AuthSuccess {
	return &AuthSuccess{Token: b.ReadBytes()}
}
