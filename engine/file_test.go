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

package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/incrfs/incrd/common"
)

func TestNewFileComputesBlockCount(t *testing.T) {
	f := NewFile(0, "a.bin", common.BlockSize*3+1, bytes.NewReader(nil))
	require.Equal(t, 4, f.BlockCount())
	require.False(t, f.FullySent())
}

func TestNewFileZeroLengthIsVacuouslyFullySent(t *testing.T) {
	f := NewFile(0, "empty.bin", 0, bytes.NewReader(nil))
	require.Equal(t, 0, f.BlockCount())
	require.True(t, f.FullySent())
}

func TestMarkSentIsIdempotent(t *testing.T) {
	f := NewFile(0, "a.bin", common.BlockSize*2, bytes.NewReader(nil))
	f.MarkSent(0)
	f.MarkSent(0)
	require.Equal(t, 1, f.SentCount())
	require.True(t, f.Sent(0))
	require.False(t, f.Sent(1))
	require.False(t, f.FullySent())

	f.MarkSent(1)
	require.True(t, f.FullySent())
	require.Equal(t, 2, f.SentCount())
}

func TestReadBlockShortFinalBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, common.BlockSize+10)
	f := NewFile(0, "a.bin", int64(len(data)), bytes.NewReader(data))

	buf := make([]byte, common.BlockSize)
	n, err := f.ReadBlock(1, buf)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, data[common.BlockSize:], buf[:n])
}

func TestReadBlockFullBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x7E}, common.BlockSize*2)
	f := NewFile(0, "a.bin", int64(len(data)), bytes.NewReader(data))

	buf := make([]byte, common.BlockSize)
	n, err := f.ReadBlock(0, buf)
	require.NoError(t, err)
	require.Equal(t, common.BlockSize, n)
	require.Equal(t, data[:common.BlockSize], buf[:n])
}
