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
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// safeBuffer adapts bytes.Buffer to io.WriteCloser for tests that need to
// hand NewSessionLogger something it can both write to and close.
type safeBuffer struct {
	bytes.Buffer
}

func (*safeBuffer) Close() error { return nil }

func testSessionID() uuid.UUID { return uuid.New() }

func TestSessionLoggerTagsLinesWithSessionID(t *testing.T) {
	var buf safeBuffer
	id := testSessionID()
	logger := NewSessionLogger(id, ELogLevel.Debug(), &buf)
	logger.Log(ELogLevel.Info(), "hello")

	require.Contains(t, buf.String(), id.String()[:8])
}

func TestSessionLoggerCloseLogClosesSinkUnlessNone(t *testing.T) {
	var buf safeBuffer
	logger := NewSessionLogger(testSessionID(), ELogLevel.None(), &buf)
	logger.CloseLog()
	// ELogLevel.None() short-circuits CloseLog before it touches the sink;
	// nothing to assert beyond "this does not panic".

	logger2 := NewSessionLogger(testSessionID(), ELogLevel.Error(), &buf)
	logger2.CloseLog()
	require.Contains(t, buf.String(), "closing session log")
}

func TestNopLoggerNeverLogs(t *testing.T) {
	l := NopLogger()
	require.False(t, l.ShouldLog(ELogLevel.Debug()))
	l.Log(ELogLevel.Error(), "ignored")
	l.CloseLog()
}
