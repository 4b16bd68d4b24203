package transport

import (
	"fmt"

	"github.com/scylladb/gocql-native/frame"
)

// streamIDAllocator hands out unique stream ids from a free-list, sized
// 128 for protocol v1/v2 or 32768 for v3+ (spec.md §4.1). A stream id is
// unique and in-use from Alloc until its matching Free, never reused in
// between — the connection's single invariant (spec.md §3).
type streamIDAllocator struct {
	free []frame.StreamID
	size int
}

func newStreamIDAllocator(version frame.Version) streamIDAllocator {
	n := 32768
	if version.UsesShortStreamID() {
		n = 128
	}
	free := make([]frame.StreamID, n)
	for i := range free {
		free[i] = frame.StreamID(n - 1 - i)
	}
	return streamIDAllocator{free: free, size: n}
}

var errNoAvailableStreamIDs = newError(KindNoAvailableStreamIDs, "connection has exhausted its stream ids", nil)

// Alloc returns a fresh stream id, or errNoAvailableStreamIDs if every id
// up to size is currently in flight (spec.md §8 boundary behavior: once
// all 32768 v3+ ids are in flight, the next allocation fails and the caller
// advances to the next host).
func (s *streamIDAllocator) Alloc() (frame.StreamID, error) {
	if len(s.free) == 0 {
		return 0, fmt.Errorf("stream id alloc: %w", errNoAvailableStreamIDs)
	}
	id := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return id, nil
}

func (s *streamIDAllocator) Free(id frame.StreamID) {
	s.free = append(s.free, id)
}

func (s *streamIDAllocator) InFlight() int {
	return s.size - len(s.free)
}
