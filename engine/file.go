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

// Package engine drives the block-delivery protocol: the frame reader, the
// output batcher, the block sender, the prefetch queue and the server loop
// that arbitrates between them.
package engine

import (
	"io"

	"github.com/incrfs/incrd/common"
)

// AlreadyCompressedFunc lets a file format signal that a block is already
// in a form the client recognizes without further LZ4 repacking (e.g. a
// container format shipping pre-compressed pages). The default never fires.
type AlreadyCompressedFunc func(block []byte) bool

func neverCompressed([]byte) bool { return false }

// File is one entry in the server's file table: a readable handle, its
// size, and the bitmap of blocks already sent this session.
type File struct {
	ID     int16
	Path   string
	Size   int64
	Handle io.ReaderAt

	blockCount int
	sent       common.Bitmap
	sentCount  int

	AlreadyCompressed AlreadyCompressedFunc
}

// NewFile builds a File with a freshly zeroed sent-bitmap.
func NewFile(id int16, path string, size int64, handle io.ReaderAt) *File {
	blockCount := int((size + common.BlockSize - 1) / common.BlockSize)
	return &File{
		ID:                id,
		Path:              path,
		Size:              size,
		Handle:            handle,
		blockCount:        blockCount,
		sent:              common.NewBitmap(blockCount),
		AlreadyCompressed: neverCompressed,
	}
}

// BlockCount is ceil(Size / BlockSize).
func (f *File) BlockCount() int { return f.blockCount }

// SentCount is the cached cardinality of the sent bitmap; kept coherent by
// MarkSent alone so popcount(sent) == SentCount always holds.
func (f *File) SentCount() int { return f.sentCount }

// Sent reports whether block idx has already been transmitted.
func (f *File) Sent(idx int) bool {
	if idx < 0 || idx >= f.blockCount {
		return false
	}
	return f.sent.Test(idx)
}

// MarkSent is the single mutator for the sent bitmap; every caller that
// transmits a block must go through it so the bitmap and its cached
// cardinality never drift apart. An index outside [0, BlockCount) is ignored.
func (f *File) MarkSent(idx int) {
	if idx < 0 || idx >= f.blockCount || f.sent.Test(idx) {
		return
	}
	f.sent.Set(idx)
	f.sentCount++
}

// FullySent reports whether every block of the file has been transmitted.
// A zero-length file (blockCount == 0) is vacuously fully sent.
func (f *File) FullySent() bool {
	return f.sentCount == f.blockCount
}

// ReadBlock reads up to BlockSize bytes at block index idx into buf, which
// must be at least BlockSize bytes long. A short read is only legal for the
// file's final block; io.EOF from the handle is not itself an error here.
func (f *File) ReadBlock(idx int, buf []byte) (int, error) {
	off := int64(idx) * common.BlockSize
	n, err := f.Handle.ReadAt(buf[:common.BlockSize], off)
	if err != nil && err != io.EOF {
		return n, common.WrapBlockError(f.Path, int32(idx), err)
	}
	return n, nil
}
