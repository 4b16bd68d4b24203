package transport

import (
	"errors"
	"testing"

	"github.com/scylladb/gocql-native/frame"
)

func TestStreamIDAllocatorSizing(t *testing.T) {
	v3 := newStreamIDAllocator(frame.CQLv4)
	if v3.size != 32768 {
		t.Fatalf("v4 allocator size = %d, want 32768", v3.size)
	}

	v1 := newStreamIDAllocator(frame.CQLv1)
	if v1.size != 128 {
		t.Fatalf("v1 allocator size = %d, want 128", v1.size)
	}
}

func TestStreamIDAllocatorUnique(t *testing.T) {
	a := newStreamIDAllocator(frame.CQLv1)

	seen := make(map[frame.StreamID]bool)
	for i := 0; i < 128; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("stream id %d allocated twice", id)
		}
		seen[id] = true
	}

	if _, err := a.Alloc(); !errors.Is(err, errNoAvailableStreamIDs) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
}

func TestStreamIDAllocatorFreeAndReuse(t *testing.T) {
	a := newStreamIDAllocator(frame.CQLv1)

	var ids []frame.StreamID
	for i := 0; i < 128; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	a.Free(ids[0])
	if a.InFlight() != 127 {
		t.Fatalf("InFlight() = %d, want 127", a.InFlight())
	}

	id, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc after free: %v", err)
	}
	if id != ids[0] {
		t.Fatalf("expected reused id %d, got %d", ids[0], id)
	}
}

func TestStreamIDAllocatorInFlight(t *testing.T) {
	a := newStreamIDAllocator(frame.CQLv4)
	if a.InFlight() != 0 {
		t.Fatalf("fresh allocator InFlight() = %d, want 0", a.InFlight())
	}

	id, err := a.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if a.InFlight() != 1 {
		t.Fatalf("InFlight() = %d, want 1", a.InFlight())
	}

	a.Free(id)
	if a.InFlight() != 0 {
		t.Fatalf("InFlight() after free = %d, want 0", a.InFlight())
	}
}
