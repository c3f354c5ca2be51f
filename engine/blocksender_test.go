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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/incrfs/incrd/common"
)

func newTestSender(conn *bytes.Buffer) *BlockSender {
	batcher := NewOutputBatcher(conn, common.NopLogger())
	return NewBlockSender(batcher, common.NewCompressor())
}

func TestSendBlockMarksSentAndWritesHeader(t *testing.T) {
	var conn bytes.Buffer
	sender := newTestSender(&conn)
	data := bytes.Repeat([]byte{0x11}, common.BlockSize)
	f := NewFile(2, "a.bin", int64(len(data)), bytes.NewReader(data))

	outcome, err := sender.SendBlock(f, 0, true)
	require.NoError(t, err)
	require.Equal(t, Sent, outcome.Result)
	require.True(t, f.Sent(0))

	payload := conn.Bytes()[common.ChunkHeaderLen:]
	fileID := int16(binary.BigEndian.Uint16(payload[0:2]))
	require.Equal(t, int16(2), fileID)
}

func TestSendBlockSkipsAlreadySent(t *testing.T) {
	var conn bytes.Buffer
	sender := newTestSender(&conn)
	data := bytes.Repeat([]byte{0x22}, common.BlockSize)
	f := NewFile(0, "a.bin", int64(len(data)), bytes.NewReader(data))
	f.MarkSent(0)

	outcome, err := sender.SendBlock(f, 0, true)
	require.NoError(t, err)
	require.Equal(t, Skipped, outcome.Result)
	require.Equal(t, 0, conn.Len())
}

func TestSendBlockOutOfRangeIsError(t *testing.T) {
	var conn bytes.Buffer
	sender := newTestSender(&conn)
	f := NewFile(0, "a.bin", common.BlockSize, bytes.NewReader(make([]byte, common.BlockSize)))

	outcome, err := sender.SendBlock(f, 5, true)
	require.ErrorIs(t, err, common.ErrBlockOutOfRange)
	require.Equal(t, SendError, outcome.Result)
}

func TestSendBlockCompressesHighlyCompressibleData(t *testing.T) {
	var conn bytes.Buffer
	sender := newTestSender(&conn)
	data := bytes.Repeat([]byte{0x00}, common.BlockSize)
	f := NewFile(0, "a.bin", int64(len(data)), bytes.NewReader(data))

	outcome, err := sender.SendBlock(f, 0, true)
	require.NoError(t, err)
	require.True(t, outcome.Compressed)
	require.Less(t, outcome.BytesOnWire, common.BlockSize)
}

func TestSendDoneEmitsEndOfStreamSentinel(t *testing.T) {
	var conn bytes.Buffer
	sender := newTestSender(&conn)
	sender.SendDone()

	payload := conn.Bytes()[common.ChunkHeaderLen:]
	fileID := int16(binary.BigEndian.Uint16(payload[0:2]))
	require.Equal(t, common.EndOfStreamFileID, fileID)
}
