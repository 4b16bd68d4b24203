package transport

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compressor negotiates and applies one frame-body compression algorithm
// (spec.md §1 Non-goals: "does not implement user-defined compression
// algorithms beyond what the protocol negotiates" — these two are the
// protocol-negotiated set advertised by every server in SUPPORTED's
// COMPRESSION option).
type Compressor interface {
	// Name is the STARTUP COMPRESSION option value, e.g. "snappy" or "lz4".
	Name() string
	Compress(in []byte) ([]byte, error)
	Decompress(in []byte) ([]byte, error)
}

type snappyCompressor struct{}

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(in []byte) ([]byte, error) {
	return snappy.Encode(nil, in), nil
}

func (snappyCompressor) Decompress(in []byte) ([]byte, error) {
	return snappy.Decode(nil, in)
}

// SnappyCompressor is the Snappy-backed Compressor.
var SnappyCompressor Compressor = snappyCompressor{}

// lz4Compressor frames bodies as [int32 uncompressed length][lz4 block],
// the layout every CQL server implementation expects for the "lz4"
// STARTUP option.
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(in []byte) ([]byte, error) {
	buf := make([]byte, 4+lz4.CompressBlockBound(len(in)))
	buf[0] = byte(len(in) >> 24)
	buf[1] = byte(len(in) >> 16)
	buf[2] = byte(len(in) >> 8)
	buf[3] = byte(len(in))

	var c lz4.Compressor
	n, err := c.CompressBlock(in, buf[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf[:4+n], nil
}

func (lz4Compressor) Decompress(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("lz4 decompress: body too short for length prefix")
	}
	n := int(in[0])<<24 | int(in[1])<<16 | int(in[2])<<8 | int(in[3])
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	written, err := lz4.UncompressBlock(in[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out[:written], nil
}

// Lz4Compressor is the LZ4-backed Compressor, preferred over Snappy when
// the server advertises both (DESIGN.md).
var Lz4Compressor Compressor = lz4Compressor{}

// negotiateCompressor picks a Compressor from the server's SUPPORTED
// advertisement, preferring LZ4, or nil if neither is offered.
func negotiateCompressor(supportsLz4, supportsSnappy bool, preferred Compressor) Compressor {
	if preferred != nil {
		return preferred
	}
	if supportsLz4 {
		return Lz4Compressor
	}
	if supportsSnappy {
		return SnappyCompressor
	}
	return nil
}
