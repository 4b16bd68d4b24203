package response

import "github.com/scylladb/gocql-native/frame"

var _ frame.Response = (*AuthChallenge)(nil)

// AuthChallenge carries the server's next SASL challenge token, answered by
// evaluate_challenge(token) and another AUTH_RESPONSE (spec.md §4.1, §6).
type AuthChallenge struct {
	Token []byte
}

func (*AuthChallenge) OpCode() frame.OpCode { return frame.OpAuthChallenge }

func ParseAuthChallenge(b *frame.Buffer) *AuthChallenge {
	return &AuthChallenge{Token: b.ReadBytes()}
}
