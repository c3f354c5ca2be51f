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

package cmd

import (
	"io"
	"os"
	"time"
)

// stdioConn adapts os.Stdin/os.Stdout to engine.Conn for local testing and
// for devices wired up over a pipe rather than a socket. Pipes don't
// support read deadlines, so SetReadDeadline here is best-effort: it is
// honored only in that reads are serialized through a background goroutine
// so a blocking read can still be abandoned by the caller's timeout logic
// at the next poll, even though the underlying os.Stdin.Read itself cannot
// be interrupted mid-flight.
type stdioConn struct {
	in  *os.File
	out *os.File

	reads    chan readResult
	deadline time.Time
	pending  bool
}

type readResult struct {
	n   int
	err error
	buf []byte
}

func newStdioConn() *stdioConn {
	c := &stdioConn{in: os.Stdin, out: os.Stdout, reads: make(chan readResult, 1)}
	return c
}

func (c *stdioConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *stdioConn) SetReadDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *stdioConn) Read(p []byte) (int, error) {
	if !c.pending {
		c.pending = true
		go func() {
			buf := make([]byte, len(p))
			n, err := c.in.Read(buf)
			c.reads <- readResult{n: n, err: err, buf: buf[:n]}
		}()
	}

	var wait <-chan time.Time
	if !c.deadline.IsZero() {
		d := time.Until(c.deadline)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case r := <-c.reads:
		c.pending = false
		copy(p, r.buf)
		return r.n, r.err
	case <-wait:
		return 0, timeoutError{}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "stdio read deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ io.ReadWriter = (*stdioConn)(nil)
