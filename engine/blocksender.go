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
	"github.com/incrfs/incrd/common"
)

// SendResult is the outcome of a single send_block attempt.
type SendResult int

const (
	Sent SendResult = iota
	Skipped
	SendError
)

// BlockOutcome carries enough detail for the server loop to update its
// running statistics without the sender reaching into server state itself.
type BlockOutcome struct {
	Result      SendResult
	Compressed  bool
	BytesOnWire int
}

// BlockSender encodes and dispatches individual blocks: read, try-compress,
// pick the smaller form, and hand header||payload to the batcher.
type BlockSender struct {
	batcher    *OutputBatcher
	compressor *common.Compressor
	readBuf    [common.BlockSize]byte
	headerBuf  [common.ResponseHeaderLen]byte
}

// NewBlockSender wires a sender to the batcher it writes through and the
// compressor it shares across every block in the session.
func NewBlockSender(batcher *OutputBatcher, compressor *common.Compressor) *BlockSender {
	return &BlockSender{batcher: batcher, compressor: compressor}
}

// SendBlock implements spec step 4.5: validate, skip-if-already-sent, read,
// opportunistically compress, and dispatch via the batcher.
func (s *BlockSender) SendBlock(f *File, blockIdx int32, flush bool) (BlockOutcome, error) {
	if blockIdx < 0 || int(blockIdx) >= f.BlockCount() {
		return BlockOutcome{Result: SendError}, common.ErrBlockOutOfRange
	}
	idx := int(blockIdx)
	if f.Sent(idx) {
		return BlockOutcome{Result: Skipped}, nil
	}

	n, err := f.ReadBlock(idx, s.readBuf[:])
	if err != nil {
		return BlockOutcome{Result: SendError}, err
	}
	raw := s.readBuf[:n]

	compressed := false
	payload := raw
	if !f.AlreadyCompressed(raw) {
		if c, ok := s.compressor.TryCompress(raw); ok && len(c) < len(raw) {
			compressed = true
			payload = c
		}
	}

	header := common.ResponseHeader{
		FileID:      f.ID,
		BlockIdx:    blockIdx,
		BlockSize:   uint16(len(payload)),
	}
	if compressed {
		header.Compression = common.ECompressionKind.LZ4()
	} else {
		header.Compression = common.ECompressionKind.None()
	}
	header.Encode(s.headerBuf[:])

	record := make([]byte, 0, common.ResponseHeaderLen+len(payload))
	record = append(record, s.headerBuf[:]...)
	record = append(record, payload...)

	f.MarkSent(idx)
	s.batcher.Send(record, flush)

	return BlockOutcome{Result: Sent, Compressed: compressed, BytesOnWire: len(payload)}, nil
}

// SendDone emits the end-of-stream sentinel and forces a flush.
func (s *BlockSender) SendDone() {
	header := common.EndOfStreamHeader()
	var buf [common.ResponseHeaderLen]byte
	header.Encode(buf[:])
	s.batcher.Send(buf[:], true)
}
