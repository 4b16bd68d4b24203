package transport

// Authenticator drives one connection's AUTHENTICATE/AUTH_CHALLENGE/
// AUTH_SUCCESS handshake (spec.md §6).
type Authenticator interface {
	// InitialResponse is sent as the first AUTH_RESPONSE after the server
	// names its authenticator class in AUTHENTICATE.
	InitialResponse(authenticatorClass string) ([]byte, error)
	// EvaluateChallenge answers one AUTH_CHALLENGE token.
	EvaluateChallenge(token []byte) ([]byte, error)
	// Success is called with the AUTH_SUCCESS token, if any, to finalize
	// authentication; a non-nil error fails the connection with KindAuth.
	Success(token []byte) error
}

// AuthProvider constructs a fresh Authenticator for each new connection,
// so per-connection auth state (e.g. a SASL conversation) never leaks
// across reconnects.
type AuthProvider func(host string) (Authenticator, error)

// PasswordAuthenticator implements SASL PLAIN for
// org.apache.cassandra.auth.PasswordAuthenticator and its Scylla/DSE
// equivalents (spec.md §6 "Plain-text provider included").
type PasswordAuthenticator struct {
	Username string
	Password string
}

func (a PasswordAuthenticator) InitialResponse(_ string) ([]byte, error) {
	resp := make([]byte, 0, len(a.Username)+len(a.Password)+2)
	resp = append(resp, 0)
	resp = append(resp, a.Username...)
	resp = append(resp, 0)
	resp = append(resp, a.Password...)
	return resp, nil
}

func (a PasswordAuthenticator) EvaluateChallenge(_ []byte) ([]byte, error) {
	return nil, nil
}

func (a PasswordAuthenticator) Success(_ []byte) error {
	return nil
}

// NewPasswordAuthProvider returns an AuthProvider always yielding the same
// username/password pair.
func NewPasswordAuthProvider(username, password string) AuthProvider {
	return func(_ string) (Authenticator, error) {
		return PasswordAuthenticator{Username: username, Password: password}, nil
	}
}
