package frame

// Murmur3Token computes the Cassandra-flavored 64-bit murmur3 hash used by
// Murmur3Partitioner to place a partition key on the token ring
// (spec.md §4.5 token-aware routing, §8 "murmur3(bytes) matches the fixed
// vectors listed in the CQL spec"). The algorithm and its handling of the
// trailing bytes and finalization constants are fixed by the partitioner's
// on-disk format, not left to implementation choice, so this is a direct
// port rather than a wrapped library — no pack example ships a Cassandra
// murmur3 variant to depend on.
func Murmur3Token(data []byte) int64 {
	const (
		c1 = int64(-8663945395140668459) // 0x87c37b91114253d5
		c2 = int64(5545529020109919103)  // 0x4cf5ad432745937f
	)

	length := len(data)
	nblocks := length / 16

	var h1, h2 int64

	for i := 0; i < nblocks; i++ {
		k1 := getBlock(data, i*16)
		k2 := getBlock(data, i*16+8)

		k1 *= c1
		k1 = rotl64(k1, 31)
		k1 *= c2
		h1 ^= k1

		h1 = rotl64(h1, 27)
		h1 += h2
		h1 = h1*5 + 0x52dce729

		k2 *= c2
		k2 = rotl64(k2, 33)
		k2 *= c1
		h2 ^= k2

		h2 = rotl64(h2, 31)
		h2 += h1
		h2 = h2*5 + 0x38495ab5
	}

	tail := data[nblocks*16:]
	var k1, k2 int64
	switch len(tail) & 15 {
	case 15:
		k2 ^= int64(tail[14]) << 48
		fallthrough
	case 14:
		k2 ^= int64(tail[13]) << 40
		fallthrough
	case 13:
		k2 ^= int64(tail[12]) << 32
		fallthrough
	case 12:
		k2 ^= int64(tail[11]) << 24
		fallthrough
	case 11:
		k2 ^= int64(tail[10]) << 16
		fallthrough
	case 10:
		k2 ^= int64(tail[9]) << 8
		fallthrough
	case 9:
		k2 ^= int64(tail[8])
		k2 *= c2
		k2 = rotl64(k2, 33)
		k2 *= c1
		h2 ^= k2
		fallthrough
	case 8:
		k1 ^= int64(tail[7]) << 56
		fallthrough
	case 7:
		k1 ^= int64(tail[6]) << 48
		fallthrough
	case 6:
		k1 ^= int64(tail[5]) << 40
		fallthrough
	case 5:
		k1 ^= int64(tail[4]) << 32
		fallthrough
	case 4:
		k1 ^= int64(tail[3]) << 24
		fallthrough
	case 3:
		k1 ^= int64(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= int64(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= int64(tail[0])
		k1 *= c1
		k1 = rotl64(k1, 31)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= int64(length)
	h2 ^= int64(length)

	h1 += h2
	h2 += h1

	h1 = fmix64(h1)
	h2 = fmix64(h2)

	h1 += h2
	// h2 += h1 is unused: Cassandra's partitioner only keeps h1 as the token.

	return h1
}

func getBlock(data []byte, off int) int64 {
	return int64(uint64(data[off]) | uint64(data[off+1])<<8 | uint64(data[off+2])<<16 |
		uint64(data[off+3])<<24 | uint64(data[off+4])<<32 | uint64(data[off+5])<<40 |
		uint64(data[off+6])<<48 | uint64(data[off+7])<<56)
}

func rotl64(x int64, r uint) int64 {
	return (x << r) | int64(uint64(x)>>(64-r))
}

func fmix64(k int64) int64 {
	k ^= int64(uint64(k) >> 33)
	k *= -49064778989728563 // 0xff51afd7ed558ccd
	k ^= int64(uint64(k) >> 33)
	k *= -4265267296055464877 // 0xc4ceb9fe1a85ec53
	k ^= int64(uint64(k) >> 33)
	return k
}
