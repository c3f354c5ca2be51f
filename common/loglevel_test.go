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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevelParseRoundTrips(t *testing.T) {
	var ll LogLevel
	require.NoError(t, ll.Parse("debug"))
	require.Equal(t, ELogLevel.Debug(), ll)
}

func TestLogLevelParseRejectsUnknown(t *testing.T) {
	var ll LogLevel
	require.Error(t, ll.Parse("verbose"))
}

func TestSessionLoggerFiltersBelowMinimum(t *testing.T) {
	var buf safeBuffer
	logger := NewSessionLogger(testSessionID(), ELogLevel.Warning(), &buf)
	logger.Log(ELogLevel.Info(), "should not appear")
	logger.Log(ELogLevel.Error(), "should appear")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}
