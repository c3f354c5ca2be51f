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
	"errors"
	"io"
	"net"
	"time"

	"github.com/incrfs/incrd/common"
)

// idlePollTimeout is how long a blocking read call waits before giving the
// server loop a chance to do other work (prefetch, completion checks).
const idlePollTimeout = 300 * time.Second

// Outcome classifies what ReadRequest produced this call.
type Outcome int

const (
	// OutcomeNone means nothing was ready yet; the caller should do other
	// work (run a prefetch pass) and call ReadRequest again.
	OutcomeNone Outcome = iota
	// OutcomeRequest means cmd is a freshly decoded RequestCommand.
	OutcomeRequest
	// OutcomeTerminal means the session is over: either a DESTROY was
	// synthesized after an idle timeout following serving-complete, or the
	// transport hit EOF/an unrecoverable read error.
	OutcomeTerminal
)

// deadlineConn is the minimal transport surface the frame reader needs: a
// reader that can be told to give up after a bounded wait.
type deadlineConn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// FrameReader consumes a mixed text/binary inbound stream, resynchronizing
// on the 4-byte Magic before every RequestCommand and forwarding every
// non-protocol byte to logSink verbatim.
type FrameReader struct {
	conn    deadlineConn
	logSink io.Writer
	buf     []byte
}

// NewFrameReader wires a connection and the sink non-protocol bytes are
// forwarded to.
func NewFrameReader(conn deadlineConn, logSink io.Writer) *FrameReader {
	return &FrameReader{conn: conn, logSink: logSink}
}

// ReadRequest implements the resynchronization algorithm: scan for Magic,
// forward the bytes before it, extract the record once enough bytes are
// buffered, and otherwise poll the connection. servingComplete tells the
// reader whether an idle timeout should be treated as terminal.
func (r *FrameReader) ReadRequest(blocking bool, servingComplete bool) (common.RequestCommand, Outcome, error) {
	for {
		r.resync()

		if len(r.buf) >= common.MagicLen+common.RequestCommandLen {
			record := r.buf[common.MagicLen : common.MagicLen+common.RequestCommandLen]
			cmd := common.DecodeRequestCommand(record)
			r.buf = r.buf[common.MagicLen+common.RequestCommandLen:]
			return cmd, OutcomeRequest, nil
		}

		n, err := r.poll(blocking)
		if err != nil {
			if isTimeout(err) {
				if blocking && servingComplete {
					return common.RequestCommand{Kind: common.ERequestKind.Destroy()}, OutcomeTerminal, nil
				}
				return common.RequestCommand{}, OutcomeNone, nil
			}
			// Read error or EOF: flush whatever is left and terminate.
			r.flushToSink(len(r.buf))
			if err == io.EOF {
				err = nil
			}
			return common.RequestCommand{}, OutcomeTerminal, err
		}
		if n == 0 {
			return common.RequestCommand{}, OutcomeNone, nil
		}
	}
}

// resync forwards every byte preceding the first full Magic occurrence to
// the log sink, leaving any bytes that might be the start of a future Magic
// (fewer than MagicLen of them) buffered rather than forwarded early.
func (r *FrameReader) resync() {
	idx, found := scanMagic(r.buf)
	if found {
		r.flushToSink(idx)
		return
	}
	safe := len(r.buf) - (common.MagicLen - 1)
	if safe > 0 {
		r.flushToSink(safe)
	}
}

func (r *FrameReader) flushToSink(n int) {
	if n <= 0 {
		return
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if n > 0 && r.logSink != nil {
		_, _ = r.logSink.Write(r.buf[:n])
	}
	r.buf = r.buf[n:]
}

// scanMagic finds the first index at which a complete 4-byte Magic occurs.
func scanMagic(buf []byte) (int, bool) {
	if len(buf) < common.MagicLen {
		return 0, false
	}
	m0, m1, m2, m3 := byte(common.Magic>>24), byte(common.Magic>>16), byte(common.Magic>>8), byte(common.Magic)
	last := len(buf) - common.MagicLen
	for i := 0; i <= last; i++ {
		if buf[i] == m0 && buf[i+1] == m1 && buf[i+2] == m2 && buf[i+3] == m3 {
			return i, true
		}
	}
	return 0, false
}

// poll reads whatever is available, waiting up to idlePollTimeout when
// blocking, or returning immediately when not.
func (r *FrameReader) poll(blocking bool) (int, error) {
	deadline := time.Now()
	if blocking {
		deadline = deadline.Add(idlePollTimeout)
	}
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	chunk := make([]byte, 64*1024)
	n, err := r.conn.Read(chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
	}
	return n, err
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
