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
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the taxonomy in the design doc's error handling section.
var (
	ErrBlockOutOfRange = errors.New("block index out of range for file")
	ErrFileOutOfRange  = errors.New("file id out of range")
	ErrDuplicatePrefetch = errors.New("file already has a prefetch in flight this session")
)

// BlockError wraps a block read failure with the file path and index the
// caller needs to log, without hiding the underlying error (mirrors the
// teacher's ErrorEx: a thin context wrapper, not a replacement error type).
type BlockError struct {
	Path     string
	BlockIdx int32
	Err      error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("read block %d of %q: %v", e.BlockIdx, e.Path, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// WrapBlockError builds a BlockError, or returns nil if err is nil.
func WrapBlockError(path string, blockIdx int32, err error) error {
	if err == nil {
		return nil
	}
	return &BlockError{Path: path, BlockIdx: blockIdx, Err: errors.WithStack(err)}
}
