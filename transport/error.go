package transport

import (
	"fmt"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/response"
)

// ErrorKind is the library-level error taxonomy of spec.md §7: connection
// errors, request errors and library errors. Server errors are instead
// passed through verbatim as response.CodedError.
type ErrorKind string

const (
	KindConnect         ErrorKind = "CONNECT"
	KindClose           ErrorKind = "CLOSE"
	KindSocket          ErrorKind = "SOCKET"
	KindSSLHandshake    ErrorKind = "SSL_HANDSHAKE"
	KindSSLVerify       ErrorKind = "SSL_VERIFY"
	KindTimeout         ErrorKind = "TIMEOUT"
	KindInvalidProtocol ErrorKind = "INVALID_PROTOCOL"
	KindAuth            ErrorKind = "AUTH"
	KindKeyspace        ErrorKind = "KEYSPACE"
	KindInvalidOpcode   ErrorKind = "INVALID_OPCODE"
	KindResponse        ErrorKind = "RESPONSE"
	KindInternal        ErrorKind = "INTERNAL"
	KindCanceled        ErrorKind = "CANCELED"

	KindRequestTimedOut       ErrorKind = "REQUEST_TIMED_OUT"
	KindNoHostsAvailable      ErrorKind = "NO_HOSTS_AVAILABLE"
	KindNoAvailableStreamIDs  ErrorKind = "NO_AVAILABLE_STREAM_IDS"
	KindRequestQueueFull      ErrorKind = "REQUEST_QUEUE_FULL"
	KindExecutionProfileInvalid ErrorKind = "EXECUTION_PROFILE_INVALID"
	KindUnableToSetKeyspace   ErrorKind = "UNABLE_TO_SET_KEYSPACE"
	KindUnsupportedProtocol   ErrorKind = "UNSUPPORTED_PROTOCOL"

	KindInvalidValueType ErrorKind = "INVALID_VALUE_TYPE"
	KindBadParams        ErrorKind = "BAD_PARAMS"
	KindInvalidCert      ErrorKind = "INVALID_CERT"
	KindInvalidPrivateKey ErrorKind = "INVALID_PRIVATE_KEY"
	KindUnableToInit     ErrorKind = "UNABLE_TO_INIT"
)

// DriverError is the library-level error envelope of spec.md §7: a kind, a
// message, and optionally the host it occurred on and the underlying
// cause. It is never used for server ERROR-opcode responses, which
// implement response.CodedError directly and flow through the same retry
// switch without re-boxing.
type DriverError struct {
	Kind    ErrorKind
	Message string
	Host    string
	Cause   error
}

func (e *DriverError) Error() string {
	if e.Host != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s (host %s): %s: %v", e.Kind, e.Host, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s (host %s): %s", e.Kind, e.Host, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DriverError) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, msg string, cause error) *DriverError {
	return &DriverError{Kind: kind, Message: msg, Cause: cause}
}

func newHostError(kind ErrorKind, host, msg string, cause error) *DriverError {
	return &DriverError{Kind: kind, Message: msg, Host: host, Cause: cause}
}

// IsCritical reports whether err is a connection error the pool should not
// paper over by reconnecting: it should also be raised to the pool-manager
// listener so the host can be marked permanently bad for this
// configuration (spec.md §4.4, §7).
func IsCritical(err error) bool {
	var de *DriverError
	if ok := asDriverError(err, &de); ok {
		switch de.Kind {
		case KindInvalidProtocol, KindAuth, KindKeyspace, KindSSLVerify, KindSSLHandshake:
			return true
		}
	}
	return false
}

func asDriverError(err error, out **DriverError) bool {
	for err != nil {
		if de, ok := err.(*DriverError); ok {
			*out = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// responseAsError returns either a DriverError or the response's own
// response.CodedError implementation.
func responseAsError(res frame.Response) error {
	if v, ok := res.(response.CodedError); ok {
		return v
	}
	return newError(KindResponse, fmt.Sprintf("unexpected response %T", res), nil)
}
