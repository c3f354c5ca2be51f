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
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/incrfs/incrd/common"
)

// readyToken is the one-shot transport-level handshake acknowledgment; it
// is not part of the framed protocol itself.
var readyToken = []byte("OKAY")

// Conn is the full-duplex byte stream the launcher hands to Serve.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// SessionStats is the running tally the server logs on SERVING_COMPLETE and
// exposes to an embedding caller via Server.Stats.
type SessionStats struct {
	Elapsed           time.Duration
	MissCount         int
	UniqueMissCount   int
	CompressedCount   int
	UncompressedCount int
	BytesSent         int64
}

// Server drives the state machine described in the design doc's server-loop
// section: it owns the file table, the frame reader, the output batcher and
// the prefetch queue, and arbitrates between on-demand misses and
// background prefetch.
type Server struct {
	SessionID uuid.UUID

	conn    Conn
	files   []*File
	reader  *FrameReader
	batcher *OutputBatcher
	sender  *BlockSender
	queue   *PrefetchQueue
	logger  common.ILoggerCloser

	state            common.SessionState
	servingComplete  bool
	doneSent         bool
	startTime        time.Time
	prefetchRequested map[int16]bool

	stats SessionStats
}

// NewServer builds a Server over conn (the device connection), logSink (the
// write-only sink for interleaved client log text), files (the session's
// file table, indexed by File.ID) and logger (operational diagnostics).
func NewServer(conn Conn, logSink io.Writer, files []*File, logger common.ILoggerCloser) *Server {
	if logger == nil {
		logger = common.NopLogger()
	}
	compressor := common.NewCompressor()
	batcher := NewOutputBatcher(conn, logger)
	return &Server{
		SessionID:          uuid.New(),
		conn:               conn,
		files:              files,
		reader:             NewFrameReader(conn, logSink),
		batcher:            batcher,
		sender:             NewBlockSender(batcher, compressor),
		queue:              NewPrefetchQueue(),
		logger:             logger,
		state:              common.ESessionState.Running(),
		prefetchRequested:  make(map[int16]bool),
	}
}

// Stats returns a snapshot of the session's running statistics.
func (s *Server) Stats() SessionStats { return s.stats }

// Serve writes the handshake token and then runs the server loop to
// completion (DESTROY, EOF, idle timeout after serving-complete, or ctx
// cancellation). It returns false only when the handshake write itself
// fails; every other termination path is a normal, successful close.
func (s *Server) Serve(ctx context.Context) bool {
	if _, err := s.conn.Write(readyToken); err != nil {
		common.Logf(s.logger, common.ELogLevel.Error(), "handshake write failed: %v", err)
		return false
	}

	for {
		select {
		case <-ctx.Done():
			s.batcher.Flush()
			s.transitionTerminated("context cancelled")
			return true
		default:
		}

		s.checkCompletion()

		blocking := s.queue.Empty()
		if blocking {
			s.batcher.Flush()
		}

		cmd, outcome, err := s.reader.ReadRequest(blocking, s.servingComplete)
		if err != nil {
			common.Logf(s.logger, common.ELogLevel.Warning(), "transport read error: %v", err)
		}

		switch outcome {
		case OutcomeTerminal:
			s.batcher.Flush()
			s.transitionTerminated("destroy or end of stream")
			return true
		case OutcomeNone:
			// nothing to dispatch this iteration; still run a prefetch pass.
		case OutcomeRequest:
			if s.startTime.IsZero() {
				s.startTime = time.Now()
			}
			if cmd.Kind == common.ERequestKind.Destroy() {
				s.batcher.Flush()
				s.transitionTerminated("destroy request")
				return true
			}
			s.dispatch(cmd)
		}

		s.queue.RunPass(s.sender, s.logger, s.recordOutcome)
	}
}

func (s *Server) transitionTerminated(reason string) {
	s.state = common.ESessionState.Terminated()
	common.Logf(s.logger, common.ELogLevel.Info(), "session terminated: %s", reason)
}

// checkCompletion implements spec step 1: once every file is fully sent and
// the prefetch queue has drained, emit the end-of-stream sentinel exactly
// once.
func (s *Server) checkCompletion() {
	if s.doneSent || !s.queue.Empty() {
		return
	}
	for _, f := range s.files {
		if !f.FullySent() {
			return
		}
	}
	s.sender.SendDone()
	s.doneSent = true
	s.state = common.ESessionState.DoneSent()
	common.Logf(s.logger, common.ELogLevel.Info(), "all blocks delivered, sentinel sent")
}

func (s *Server) dispatch(cmd common.RequestCommand) {
	switch cmd.Kind {
	case common.ERequestKind.ServingComplete():
		s.servingComplete = true
		s.stats.Elapsed = time.Since(s.startTime)
		common.Logf(s.logger, common.ELogLevel.Info(),
			"serving complete: elapsed=%s misses=%d unique=%d compressed=%d uncompressed=%d bytes=%d",
			s.stats.Elapsed, s.stats.MissCount, s.stats.UniqueMissCount,
			s.stats.CompressedCount, s.stats.UncompressedCount, s.stats.BytesSent)

	case common.ERequestKind.BlockMissing():
		s.handleBlockMissing(cmd)

	case common.ERequestKind.Prefetch():
		s.handlePrefetch(cmd)

	default:
		common.Logf(s.logger, common.ELogLevel.Warning(), "dropping request of unknown kind %d", cmd.Kind)
	}
}

func (s *Server) handleBlockMissing(cmd common.RequestCommand) {
	f := s.fileByID(cmd.FileID)
	if f == nil || cmd.Payload < 0 || int(cmd.Payload) >= f.BlockCount() {
		common.Logf(s.logger, common.ELogLevel.Warning(), "dropping out-of-range miss file=%d block=%d", cmd.FileID, cmd.Payload)
		return
	}

	s.stats.MissCount++
	outcome, err := s.sender.SendBlock(f, cmd.Payload, true)
	if err != nil {
		common.Logf(s.logger, common.ELogLevel.Error(), "miss read failed file=%q block=%d: %v", f.Path, cmd.Payload, err)
		return
	}
	s.recordOutcome(outcome)
	if outcome.Result == Sent {
		s.stats.UniqueMissCount++
		s.queue.PushFrontReadahead(f, cmd.Payload)
	}
}

func (s *Server) handlePrefetch(cmd common.RequestCommand) {
	f := s.fileByID(cmd.FileID)
	if cmd.FileID < 0 || f == nil || s.prefetchRequested[cmd.FileID] {
		common.Logf(s.logger, common.ELogLevel.Warning(), "dropping duplicate or invalid prefetch file=%d", cmd.FileID)
		return
	}
	s.prefetchRequested[cmd.FileID] = true
	s.queue.PushBack(f)
}

func (s *Server) recordOutcome(o BlockOutcome) {
	if o.Result != Sent {
		return
	}
	if o.Compressed {
		s.stats.CompressedCount++
	} else {
		s.stats.UncompressedCount++
	}
	s.stats.BytesSent += int64(o.BytesOnWire)
}

func (s *Server) fileByID(id int16) *File {
	if id < 0 || int(id) >= len(s.files) {
		return nil
	}
	return s.files[id]
}
