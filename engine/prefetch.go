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
	"container/list"

	"github.com/incrfs/incrd/common"
)

// prefetchBudget bounds how many blocks a single pass may actually send,
// so a long prefetch never starves an incoming miss for more than this.
const prefetchBudget = 128

// readaheadSpan is how many blocks follow a served miss that get queued for
// speculative delivery (a 7-block read-ahead heuristic for OS-level
// multi-page faults on the client).
const readaheadSpan = 7

// PrefetchState is an in-flight half-open block range against one file.
type PrefetchState struct {
	File   *File
	Cursor int32
	End    int32
}

// Done reports whether the range has nothing left to send.
func (p *PrefetchState) Done() bool { return p.Cursor >= p.End }

// PrefetchQueue is a FIFO of PrefetchState, consumed head-first with push to
// either end: push-back for a freshly requested full-file prefetch,
// push-front for miss-driven read-ahead so it jumps the line.
type PrefetchQueue struct {
	items *list.List
}

// NewPrefetchQueue returns an empty queue.
func NewPrefetchQueue() *PrefetchQueue {
	return &PrefetchQueue{items: list.New()}
}

// Empty reports whether the queue currently has no pending prefetch state.
func (q *PrefetchQueue) Empty() bool { return q.items.Len() == 0 }

// PushBack enqueues a full-file prefetch (cursor=0, end=BlockCount) behind
// any prefetch already pending.
func (q *PrefetchQueue) PushBack(f *File) {
	if f.BlockCount() == 0 {
		return
	}
	q.items.PushBack(&PrefetchState{File: f, Cursor: 0, End: int32(f.BlockCount())})
}

// PushFrontReadahead enqueues the read-ahead range following a served miss
// at the front of the queue, clamped to the file's block count.
func (q *PrefetchQueue) PushFrontReadahead(f *File, missedBlockIdx int32) {
	start := missedBlockIdx + 1
	end := missedBlockIdx + 1 + readaheadSpan
	if end > int32(f.BlockCount()) {
		end = int32(f.BlockCount())
	}
	if start >= end {
		return
	}
	q.items.PushFront(&PrefetchState{File: f, Cursor: start, End: end})
}

// RunPass drains up to prefetchBudget Sent blocks from the head of the
// queue. Skipped blocks (already sent) don't consume budget; Error results
// are logged and the cursor still advances. If the head range finishes, it
// is discarded; otherwise it stays at the head for the next pass.
func (q *PrefetchQueue) RunPass(sender *BlockSender, logger common.ILogger, onSent func(BlockOutcome)) {
	if q.Empty() {
		return
	}
	front := q.items.Front()
	state := front.Value.(*PrefetchState)

	budget := prefetchBudget
	for state.Cursor < state.End && budget > 0 {
		outcome, err := sender.SendBlock(state.File, state.Cursor, false)
		state.Cursor++
		if err != nil {
			common.Logf(logger, common.ELogLevel.Warning(), "prefetch read failed for %q block %d: %v",
				state.File.Path, state.Cursor-1, err)
			continue
		}
		if outcome.Result == Sent {
			budget--
			if onSent != nil {
				onSent(outcome)
			}
		}
	}

	if state.Done() {
		q.items.Remove(front)
	}
}
