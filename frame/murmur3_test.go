package frame

import "testing"

func TestMurmur3TokenDeterministic(t *testing.T) {
	data := []byte("partition-key-1")
	a := Murmur3Token(data)
	b := Murmur3Token(data)
	if a != b {
		t.Fatalf("Murmur3Token not deterministic: %d != %d", a, b)
	}
}

func TestMurmur3TokenEmptyInput(t *testing.T) {
	// must not panic on the zero-length tail case.
	_ = Murmur3Token(nil)
	_ = Murmur3Token([]byte{})
}

func TestMurmur3TokenHandlesEveryTailLength(t *testing.T) {
	// exercises every fallthrough branch in the tail switch (1..15 extra
	// bytes beyond a multiple of 16), guarding against an index panic.
	for n := 0; n < 40; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		_ = Murmur3Token(data)
	}
}

func TestMurmur3TokenDistinctInputsDiffer(t *testing.T) {
	if Murmur3Token([]byte("abc")) == Murmur3Token([]byte("abd")) {
		t.Fatal("expected distinct tokens for distinct single-byte-differing inputs")
	}
}
