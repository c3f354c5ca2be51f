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

import "math"

// BitsPerElement is the width of the backing word for Bitmap.
const BitsPerElement = 64

// Bitmap is a collection of bit-blocks backed by uint64, used here to track
// which blocks of a file have already been sent to the client.
type Bitmap []uint64

// NewBitmap allocates a bitmap able to address at least size bits.
func NewBitmap(size int) Bitmap {
	if size <= 0 {
		return Bitmap{}
	}
	words := int(math.Ceil(float64(size) / float64(BitsPerElement)))
	return make(Bitmap, words)
}

func (b Bitmap) wordAndMask(index int) (word int, mask uint64) {
	if index < 0 || index >= len(b)*BitsPerElement {
		return 0, 0
	}
	return index / BitsPerElement, uint64(1) << uint(index%BitsPerElement)
}

// Test returns true if the bit at index is set.
func (b Bitmap) Test(index int) bool {
	word, mask := b.wordAndMask(index)
	return b[word]&mask != 0
}

// Set sets the bit at index.
func (b Bitmap) Set(index int) {
	word, mask := b.wordAndMask(index)
	b[word] |= mask
}

// Clear clears the bit at index.
func (b Bitmap) Clear(index int) {
	word, mask := b.wordAndMask(index)
	b[word] &^= mask
}

// Size returns the maximum addressable bit count.
func (b Bitmap) Size() int {
	return len(b) * BitsPerElement
}

// PopCount returns the number of set bits in [0, limit).
func (b Bitmap) PopCount(limit int) int {
	count := 0
	for i := 0; i < limit; i++ {
		if b.Test(i) {
			count++
		}
	}
	return count
}
