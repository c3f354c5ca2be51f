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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/incrfs/incrd/common"
)

// testConn is a Conn wired over an in-memory chunk sequence for the read
// side and a plain buffer for the write side; it never actually blocks, so
// ReadRequest's "blocking" poll just observes an immediate timeout once the
// chunk list is exhausted.
type testConn struct {
	fakeConn
	bytes.Buffer
}

func newTestConn(chunks ...[]byte) *testConn {
	return &testConn{fakeConn: fakeConn{chunks: chunks}}
}

// Read resolves the ambiguity between the embedded fakeConn.Read and
// bytes.Buffer.Read: reads come from the chunk sequence.
func (c *testConn) Read(p []byte) (int, error) { return c.fakeConn.Read(p) }

func missRequest(fileID int16, blockIdx int32) []byte {
	return encodedRequest(common.ERequestKind.BlockMissing(), fileID, blockIdx)
}

func prefetchRequest(fileID int16) []byte {
	return encodedRequest(common.ERequestKind.Prefetch(), fileID, 0)
}

func destroyRequest() []byte {
	return encodedRequest(common.ERequestKind.Destroy(), 0, 0)
}

func servingCompleteRequest() []byte {
	return encodedRequest(common.ERequestKind.ServingComplete(), 0, 0)
}

func compressibleFile(id int16, blocks int) *File {
	data := bytes.Repeat([]byte{0x00}, blocks*common.BlockSize)
	return NewFile(id, "compressible.bin", int64(len(data)), bytes.NewReader(data))
}

// TestServerSingleMissSendsCompressedBlock covers a miss request on a
// single-block, highly compressible file followed by an explicit destroy:
// the handshake token, the compressed response, and clean termination.
func TestServerSingleMissSendsCompressedBlock(t *testing.T) {
	conn := newTestConn(missRequest(0, 0), destroyRequest())
	f := compressibleFile(0, 1)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	ok := srv.Serve(context.Background())
	require.True(t, ok)

	out := conn.Buffer.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte("OKAY")))
	require.True(t, f.Sent(0))
	require.Equal(t, 1, srv.stats.MissCount)
	require.Equal(t, 1, srv.stats.UniqueMissCount)
	require.Equal(t, 1, srv.stats.CompressedCount)
	require.Equal(t, common.ESessionState.Terminated(), srv.state)
}

// TestServerMissTriggersReadaheadAndSentinel covers a miss that completes a
// file via its read-ahead range, driving the completion sentinel before the
// device's destroy request arrives.
func TestServerMissTriggersReadaheadAndSentinel(t *testing.T) {
	conn := newTestConn(missRequest(0, 0), destroyRequest())
	f := compressibleFile(0, 8) // readaheadSpan=7 covers blocks 1..7 after a miss on 0
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	ok := srv.Serve(context.Background())
	require.True(t, ok)
	require.True(t, f.FullySent())
	require.True(t, srv.doneSent)

	out := conn.Buffer.Bytes()
	require.Contains(t, string(out), "OKAY")
}

// TestServerHandleBlockMissingOutOfRangeIsDropped exercises the invariant
// that an out-of-range miss never reaches the sender.
func TestServerHandleBlockMissingOutOfRangeIsDropped(t *testing.T) {
	conn := newTestConn()
	f := compressibleFile(0, 1)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	srv.handleBlockMissing(common.RequestCommand{Kind: common.ERequestKind.BlockMissing(), FileID: 0, Payload: 5})
	require.Equal(t, 0, srv.stats.MissCount)
	require.False(t, f.Sent(0))
}

// TestServerHandleBlockMissingUnknownFileIsDropped covers a miss against a
// file ID outside the session's table.
func TestServerHandleBlockMissingUnknownFileIsDropped(t *testing.T) {
	conn := newTestConn()
	f := compressibleFile(0, 1)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	srv.handleBlockMissing(common.RequestCommand{Kind: common.ERequestKind.BlockMissing(), FileID: 7, Payload: 0})
	require.Equal(t, 0, srv.stats.MissCount)
}

// TestServerHandlePrefetchDuplicateIsIgnored covers the duplicate-prefetch
// dedupe rule: a second request for the same file never re-enqueues it.
func TestServerHandlePrefetchDuplicateIsIgnored(t *testing.T) {
	conn := newTestConn()
	f := compressibleFile(0, 4)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	srv.handlePrefetch(common.RequestCommand{Kind: common.ERequestKind.Prefetch(), FileID: 0})
	require.Equal(t, 1, srv.queue.items.Len())

	srv.handlePrefetch(common.RequestCommand{Kind: common.ERequestKind.Prefetch(), FileID: 0})
	require.Equal(t, 1, srv.queue.items.Len())
}

// TestServerHandlePrefetchInvalidFileIsIgnored covers an out-of-range
// prefetch file ID.
func TestServerHandlePrefetchInvalidFileIsIgnored(t *testing.T) {
	conn := newTestConn()
	f := compressibleFile(0, 4)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	srv.handlePrefetch(common.RequestCommand{Kind: common.ERequestKind.Prefetch(), FileID: 9})
	require.True(t, srv.queue.Empty())
}

// TestServerCheckCompletionFiresSentinelExactlyOnce covers the single-shot
// guarantee on the end-of-stream sentinel.
func TestServerCheckCompletionFiresSentinelExactlyOnce(t *testing.T) {
	conn := newTestConn()
	f := compressibleFile(0, 1)
	f.MarkSent(0)
	srv := NewServer(conn, &bytes.Buffer{}, []*File{f}, common.NopLogger())

	srv.checkCompletion()
	require.True(t, srv.doneSent)
	require.Equal(t, common.ESessionState.DoneSent(), srv.state)

	srv.checkCompletion() // must be a no-op the second time
	require.True(t, srv.doneSent)
}

// TestServerDispatchServingCompleteRecordsElapsed covers the stats snapshot
// taken when the device signals it has finished consuming the stream.
func TestServerDispatchServingCompleteRecordsElapsed(t *testing.T) {
	conn := newTestConn()
	srv := NewServer(conn, &bytes.Buffer{}, nil, common.NopLogger())
	srv.startTime = time.Now().Add(-time.Second)

	srv.dispatch(common.RequestCommand{Kind: common.ERequestKind.ServingComplete()})
	require.True(t, srv.servingComplete)
	require.GreaterOrEqual(t, srv.stats.Elapsed, time.Second)
}

// TestServerRecordOutcomeAggregatesCompressionStats covers the shared
// accounting path used by both miss-driven and prefetch-driven sends.
func TestServerRecordOutcomeAggregatesCompressionStats(t *testing.T) {
	conn := newTestConn()
	srv := NewServer(conn, &bytes.Buffer{}, nil, common.NopLogger())

	srv.recordOutcome(BlockOutcome{Result: Sent, Compressed: true, BytesOnWire: 10})
	srv.recordOutcome(BlockOutcome{Result: Sent, Compressed: false, BytesOnWire: 4096})
	srv.recordOutcome(BlockOutcome{Result: Skipped})

	require.Equal(t, 1, srv.stats.CompressedCount)
	require.Equal(t, 1, srv.stats.UncompressedCount)
	require.Equal(t, int64(4106), srv.stats.BytesSent)
}

// TestServerHandshakeFailurePropagates covers Serve's only false return
// path: the handshake write itself failing.
func TestServerHandshakeFailurePropagates(t *testing.T) {
	conn := newTestConn()
	srv := NewServer(failingWriteConn{conn}, &bytes.Buffer{}, nil, common.NopLogger())
	require.False(t, srv.Serve(context.Background()))
}

type failingWriteConn struct{ *testConn }

func (failingWriteConn) Write([]byte) (int, error) { return 0, errTestWrite }

var errTestWrite = &testWriteError{}

type testWriteError struct{}

func (*testWriteError) Error() string { return "write failed" }
