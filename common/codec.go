// Copyright © incrd contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"github.com/pierrec/lz4/v4"
)

// AcceptCompressionThreshold is the strict upper bound a compressed block
// must beat to be worth the decoder cost on the client: floor(4096*0.95).
const AcceptCompressionThreshold = 3891

// Compressor wraps a single reusable LZ4 hash table so repeated block
// compressions across a session don't each pay for a fresh allocation,
// mirroring the buffer-reuse idiom the teacher applies to its own
// per-session scratch buffers (e.g. the compressing/decompressing pipes).
type Compressor struct {
	hashTable []int
	scratch   []byte
}

// NewCompressor allocates a Compressor sized for exactly one BlockSize input.
func NewCompressor() *Compressor {
	return &Compressor{
		hashTable: make([]int, 1<<16),
		scratch:   make([]byte, compressBound()),
	}
}

func compressBound() int {
	bound := lz4.CompressBlockBound(BlockSize)
	if bound < BlockSize {
		bound = BlockSize
	}
	return bound
}

// TryCompress attempts to LZ4-compress src (which must be <= BlockSize
// bytes) into the compressor's scratch buffer. It returns the compressed
// slice and true only when compression both succeeded and beat
// AcceptCompressionThreshold; otherwise ok is false and the caller must
// fall back to sending src uncompressed.
func (c *Compressor) TryCompress(src []byte) (compressed []byte, ok bool) {
	// The hash table is intentionally not reset between calls: lz4 verifies
	// every candidate match against the source bytes, so stale entries from
	// a previous block only cost a wasted probe, never incorrect output.
	n, err := lz4.CompressBlock(src, c.scratch, c.hashTable)
	if err != nil || n <= 0 || n >= AcceptCompressionThreshold {
		return nil, false
	}
	return c.scratch[:n], true
}

// Decompress expands an LZ4 block payload into dst, returning the number of
// decompressed bytes. It exists mainly for round-trip tests of the codec;
// the server itself never decompresses, only the remote client does.
func Decompress(src []byte, dst []byte) (int, error) {
	return lz4.UncompressBlock(src, dst)
}
