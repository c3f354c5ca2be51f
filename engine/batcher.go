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
	"encoding/binary"
	"io"

	"github.com/incrfs/incrd/common"
)

// OutputBatcher accumulates response bytes behind a reserved chunk-header
// placeholder and flushes them as one length-prefixed chunk, either when the
// accumulated payload crosses MaxChunkPayloadLen or when the caller forces
// it (typically because the server is about to block on a read).
type OutputBatcher struct {
	conn   io.Writer
	logger common.ILogger
	buf    []byte // nil until the first Send after a flush
}

// NewOutputBatcher wires the batcher to the connection's write half.
func NewOutputBatcher(conn io.Writer, logger common.ILogger) *OutputBatcher {
	return &OutputBatcher{conn: conn, logger: logger}
}

// Send appends data to the pending chunk, flushing immediately if the
// payload now exceeds MaxChunkPayloadLen or flush is true.
func (b *OutputBatcher) Send(data []byte, flush bool) {
	if b.buf == nil {
		b.buf = make([]byte, common.ChunkHeaderLen, common.ChunkHeaderLen+common.MaxChunkPayloadLen)
	}
	b.buf = append(b.buf, data...)
	if len(b.buf)-common.ChunkHeaderLen > common.MaxChunkPayloadLen || flush {
		b.Flush()
	}
}

// Flush writes the chunk header followed by the accumulated payload in one
// call, then clears internal state. A write failure is logged and does not
// abort the server; the next read will likely observe the broken connection.
func (b *OutputBatcher) Flush() {
	if len(b.buf) <= common.ChunkHeaderLen {
		b.buf = nil
		return
	}
	payloadLen := len(b.buf) - common.ChunkHeaderLen
	binary.BigEndian.PutUint32(b.buf[0:common.ChunkHeaderLen], uint32(payloadLen))
	_, err := b.conn.Write(b.buf)
	b.buf = nil
	if err != nil && b.logger != nil {
		common.Logf(b.logger, common.ELogLevel.Warning(), "chunk write failed: %v", err)
	}
}
