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
	"io"
	"log"

	"github.com/google/uuid"
)

// ILogger is the operational logging surface the engine writes to. It is
// distinct from the protocol's log-text sink: ILogger records server-side
// diagnostics (dropped requests, statistics), while the log-text sink
// carries bytes forwarded verbatim from the client.
type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

// sessionLogger is the default ILoggerCloser, one per server session.
type sessionLogger struct {
	sessionID         uuid.UUID
	minimumLevelToLog LogLevel
	out               io.WriteCloser
	logger            *log.Logger
}

// NewSessionLogger opens an operational logger over out, tagging every line
// with the first 8 characters of the session's uuid so interleaved sessions in a shared log file stay
// distinguishable.
func NewSessionLogger(sessionID uuid.UUID, minimumLevelToLog LogLevel, out io.WriteCloser) ILoggerCloser {
	l := &sessionLogger{
		sessionID:         sessionID,
		minimumLevelToLog: minimumLevelToLog,
		out:               out,
	}
	l.logger = log.New(l.out, fmt.Sprintf("[%s] ", sessionID.String()[:8]), log.LstdFlags|log.LUTC)
	return l
}

func (l *sessionLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= l.minimumLevelToLog
}

func (l *sessionLogger) Log(level LogLevel, msg string) {
	if !l.ShouldLog(level) {
		return
	}
	l.logger.Println(level.String() + ": " + msg)
}

func (l *sessionLogger) Panic(err error) {
	l.logger.Println("PANIC:", err)
	panic(err)
}

func (l *sessionLogger) CloseLog() {
	if l.minimumLevelToLog == ELogLevel.None() {
		return
	}
	l.logger.Println("closing session log")
	_ = l.out.Close()
}

// NopLogger discards everything; useful for tests that don't care about
// operational log content.
type nopLogger struct{}

func NopLogger() ILoggerCloser { return nopLogger{} }

func (nopLogger) ShouldLog(LogLevel) bool  { return false }
func (nopLogger) Log(LogLevel, string)     {}
func (nopLogger) Panic(err error)          { panic(err) }
func (nopLogger) CloseLog()                {}

// Logf is a convenience wrapper the engine uses everywhere instead of
// building fmt.Sprintf calls inline at every call site.
func Logf(l ILogger, level LogLevel, format string, args ...interface{}) {
	if !l.ShouldLog(level) {
		return
	}
	l.Log(level, fmt.Sprintf(format, args...))
}
