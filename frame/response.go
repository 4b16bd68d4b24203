package frame

// Response is the tagged-union member for every server-to-client opcode:
// ERROR, READY, AUTHENTICATE, SUPPORTED, RESULT, EVENT, AUTH_CHALLENGE,
// AUTH_SUCCESS (spec.md design note 2). A Response is decoded from, and
// owns for its lifetime, a single borrowed body Buffer (spec.md §3).
type Response interface {
	OpCode() OpCode
}
