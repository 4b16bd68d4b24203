package frame

// Request is the tagged-union member for every client-to-server opcode
// (spec.md design note 2): OPTIONS, STARTUP, AUTH_RESPONSE, REGISTER,
// QUERY, PREPARE, EXECUTE, BATCH. Encode is deterministic given a protocol
// version (spec.md §3); implementations that vary by version branch inside
// WriteTo on the version captured at construction time.
type Request interface {
	WriteTo(b *Buffer)
	OpCode() OpCode
}
