// Package response implements the server-to-client CQL opcode bodies:
// ERROR, READY, AUTHENTICATE, SUPPORTED, RESULT, EVENT, AUTH_CHALLENGE and
// AUTH_SUCCESS (spec.md §2 component 3, §3 "Response").
package response

import (
	"fmt"

	"github.com/scylladb/gocql-native/frame"
)

// ErrorCode is the CQL server error code carried by an ERROR frame body.
type ErrorCode int32

const (
	ErrServerError       ErrorCode = 0x0000
	ErrProtocolError     ErrorCode = 0x000A
	ErrAuthError         ErrorCode = 0x0100
	ErrUnavailable       ErrorCode = 0x1000
	ErrOverloaded        ErrorCode = 0x1001
	ErrIsBootstrapping   ErrorCode = 0x1002
	ErrTruncateError     ErrorCode = 0x1003
	ErrWriteTimeout      ErrorCode = 0x1100
	ErrReadTimeout       ErrorCode = 0x1200
	ErrReadFailure       ErrorCode = 0x1300
	ErrFunctionFailure   ErrorCode = 0x1400
	ErrWriteFailure      ErrorCode = 0x1500
	ErrSyntaxError       ErrorCode = 0x2000
	ErrUnauthorized      ErrorCode = 0x2100
	ErrInvalid           ErrorCode = 0x2200
	ErrConfigError       ErrorCode = 0x2300
	ErrAlreadyExists     ErrorCode = 0x2400
	ErrUnprepared        ErrorCode = 0x2500
)

// CodedError is implemented by any response carrying a CQL server error
// code, so the retry policy can switch on it uniformly (spec.md §4.3 step
// 6) without re-boxing the error.
type CodedError interface {
	error
	Code() ErrorCode
}

// Error is the decoded ERROR frame body. Extra fields beyond Code/Message
// are populated for error kinds the retry policy and request handler
// inspect (spec.md §4.3: unavailable, write/read timeout, is_bootstrapping,
// already_exists, unprepared).
type Error struct {
	ErrorCode ErrorCode
	Message   string

	// Unavailable
	Consistency         frame.Consistency
	RequiredReplicas    int32
	AliveReplicas       int32

	// Write/ReadTimeout, Write/ReadFailure
	ReceivedAcks int32
	RequiredAcks int32
	WriteType    string
	DataPresent  bool
	NumFailures  int32

	// AlreadyExists
	Keyspace string
	Table    string

	// Unprepared
	UnpreparedID []byte
}

var _ frame.Response = (*Error)(nil)
var _ CodedError = (*Error)(nil)

func (e *Error) OpCode() frame.OpCode { return frame.OpError }
func (e *Error) Code() ErrorCode      { return e.ErrorCode }

func (e *Error) Error() string {
	return fmt.Sprintf("cql error %#04x: %s", int32(e.ErrorCode), e.Message)
}

// ParseError decodes an ERROR frame body (spec.md §4.1 startup-error
// branches, §7 "Server errors... passed through... with its code and
// message preserved verbatim").
func ParseError(b *frame.Buffer) *Error {
	e := &Error{
		ErrorCode: ErrorCode(b.ReadInt()),
		Message:   b.ReadString(),
	}

	switch e.ErrorCode {
	case ErrUnavailable:
		e.Consistency = b.ReadConsistency()
		e.RequiredReplicas = b.ReadInt()
		e.AliveReplicas = b.ReadInt()
	case ErrWriteTimeout:
		e.Consistency = b.ReadConsistency()
		e.ReceivedAcks = b.ReadInt()
		e.RequiredAcks = b.ReadInt()
		e.WriteType = b.ReadString()
	case ErrReadTimeout:
		e.Consistency = b.ReadConsistency()
		e.ReceivedAcks = b.ReadInt()
		e.RequiredAcks = b.ReadInt()
		e.DataPresent = b.ReadByte() != 0
	case ErrWriteFailure:
		e.Consistency = b.ReadConsistency()
		e.ReceivedAcks = b.ReadInt()
		e.RequiredAcks = b.ReadInt()
		e.NumFailures = b.ReadInt()
		e.WriteType = b.ReadString()
	case ErrReadFailure:
		e.Consistency = b.ReadConsistency()
		e.ReceivedAcks = b.ReadInt()
		e.RequiredAcks = b.ReadInt()
		e.NumFailures = b.ReadInt()
		e.DataPresent = b.ReadByte() != 0
	case ErrFunctionFailure:
		e.Keyspace = b.ReadString()
		e.Table = b.ReadString() // function name, field reused
	case ErrAlreadyExists:
		e.Keyspace = b.ReadString()
		e.Table = b.ReadString()
	case ErrUnprepared:
		e.UnpreparedID = b.ReadShortBytes()
	}

	return e
}

// InvalidProtocolError reports an unsupported protocol version as a
// CodedError with code ErrProtocolError. It is never read off the wire, and
// neither Parse nor the transport's connection reader constructs one.
type InvalidProtocolError struct {
	Message string
}

var _ frame.Response = (*InvalidProtocolError)(nil)
var _ CodedError = (*InvalidProtocolError)(nil)

func (e *InvalidProtocolError) OpCode() frame.OpCode { return frame.OpError }
func (e *InvalidProtocolError) Code() ErrorCode       { return ErrProtocolError }
func (e *InvalidProtocolError) Error() string {
	return fmt.Sprintf("cql: unsupported protocol version: %s", e.Message)
}
