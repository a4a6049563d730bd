// Copyright 2019 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements MsgQ: the bounded, cancellable FIFO that
// sits between the application and the per-pipe I/O workers.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/scalenet/spmq/message"
)

// Errors returned by Queue operations. ErrClosed and ErrTimeout are
// the cooperative-scheduling renderings of spec.md's ECLOSED and
// ETIMEDOUT; ErrSignalled is the PutSig/GetSig-only cancellation the
// core uses to unblock a pipe's workers when that pipe starts closing.
var (
	ErrClosed    = errors.New("queue: closed")
	ErrTimeout   = errors.New("queue: timed out")
	ErrSignalled = errors.New("queue: signalled")
	ErrBusy      = errors.New("queue: full")
)

// Queue is a bounded FIFO of *message.Message with blocking,
// cancellable Put/Get. The zero value is not usable; use New.
type Queue struct {
	mu       sync.Mutex
	items    chan *message.Message
	closedCh chan struct{}
	closeOne sync.Once
}

// New returns a Queue with the given capacity. Capacity zero is legal
// (an unbuffered rendezvous queue).
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		items:    make(chan *message.Message, capacity),
		closedCh: make(chan struct{}),
	}
}

// Cap returns the queue's current capacity.
func (q *Queue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cap(q.items)
}

// Resize replaces the queue's buffer with one of the given capacity,
// preserving as many already-queued messages as fit, newest-first,
// matching the teacher's own OptionReadQLen resize behavior (discard
// the oldest buffered message to make room for what's arriving, keep
// the newest data). Messages that don't fit are freed.
func (q *Queue) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	old := q.items
	next := make(chan *message.Message, capacity)
drain:
	for {
		select {
		case m := <-old:
			select {
			case next <- m:
			default:
				select {
				case stale := <-next:
					stale.Free()
					next <- m
				default:
					m.Free()
				}
			}
		default:
			break drain
		}
	}
	q.items = next
}

// Put enqueues m, blocking until there is room, the deadline passes,
// or the queue closes. A zero deadline means "wait forever."
func (q *Queue) Put(m *message.Message, deadline time.Time) error {
	return q.put(m, deadline, nil)
}

// PutSig is Put, additionally cancelled the instant sig is raised.
func (q *Queue) PutSig(m *message.Message, sig *Signal) error {
	return q.put(m, time.Time{}, sig)
}

// TryPut enqueues m if there is room right now, without blocking: it
// returns ErrBusy immediately instead of waiting, for a caller (e.g. a
// protocol's SendFilter) that must not sit with a lock held while a
// slow peer drains its queue.
func (q *Queue) TryPut(m *message.Message) error {
	q.mu.Lock()
	items := q.items
	q.mu.Unlock()

	select {
	case <-q.closedCh:
		return ErrClosed
	default:
	}

	select {
	case items <- m:
		return nil
	case <-q.closedCh:
		return ErrClosed
	default:
		return ErrBusy
	}
}

func (q *Queue) put(m *message.Message, deadline time.Time, sig *Signal) error {
	timeoutC, stop := deadlineChan(deadline)
	if stop != nil {
		defer stop()
	}
	var sigC <-chan struct{}
	if sig != nil {
		sigC = sig.C()
	}

	q.mu.Lock()
	items := q.items
	q.mu.Unlock()

	// Closed queues reject producers outright, even if there would
	// have been room.
	select {
	case <-q.closedCh:
		return ErrClosed
	default:
	}

	select {
	case items <- m:
		return nil
	case <-q.closedCh:
		return ErrClosed
	case <-timeoutC:
		return ErrTimeout
	case <-sigC:
		return ErrSignalled
	}
}

// Get dequeues the next message, blocking until one is available, the
// deadline passes, or the queue closes with nothing left to drain.
func (q *Queue) Get(deadline time.Time) (*message.Message, error) {
	return q.get(deadline, nil)
}

// GetSig is Get, additionally cancelled the instant sig is raised.
func (q *Queue) GetSig(sig *Signal) (*message.Message, error) {
	return q.get(time.Time{}, sig)
}

// GetSigDeadline is Get, cancelled by either sig or deadline, whichever
// comes first — a waiter that needs to periodically re-check state
// outside the queue (REQ's resender rearming retryMsg while a sender
// sits blocked with nothing queued) uses this instead of GetSig's
// unbounded wait.
func (q *Queue) GetSigDeadline(sig *Signal, deadline time.Time) (*message.Message, error) {
	return q.get(deadline, sig)
}

func (q *Queue) get(deadline time.Time, sig *Signal) (*message.Message, error) {
	timeoutC, stop := deadlineChan(deadline)
	if stop != nil {
		defer stop()
	}
	var sigC <-chan struct{}
	if sig != nil {
		sigC = sig.C()
	}

	q.mu.Lock()
	items := q.items
	q.mu.Unlock()

	// Prefer draining a buffered message over observing closure, so a
	// closed queue still yields everything it held (spec.md: "closed
	// queues drain on the consumer side").
	select {
	case m := <-items:
		return m, nil
	default:
	}

	select {
	case m := <-items:
		return m, nil
	case <-q.closedCh:
		return nil, ErrClosed
	case <-timeoutC:
		return nil, ErrTimeout
	case <-sigC:
		return nil, ErrSignalled
	}
}

// Close marks the queue closed: idempotent and monotonic. Producers
// blocked in Put wake with ErrClosed; consumers blocked in Get wake
// with ErrClosed once nothing remains to drain.
func (q *Queue) Close() {
	q.closeOne.Do(func() { close(q.closedCh) })
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.closedCh:
		return true
	default:
		return false
	}
}

func deadlineChan(deadline time.Time) (<-chan time.Time, func() bool) {
	if deadline.IsZero() {
		return nil, nil
	}
	t := time.NewTimer(time.Until(deadline))
	return t.C, t.Stop
}
