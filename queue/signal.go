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

package queue

import "sync"

// Signal is a one-shot cancellation flag a caller can pass to GetSig
// or PutSig to unblock a pending operation without delivering a
// message. It is the Go rendering of spec.md's "externally supplied
// signal flag" — in the core it is the per-pipe close-signal, raised
// when the pipe starts closing so its sender/receiver goroutines wake
// promptly instead of blocking forever on a queue nobody else touches.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns a ready-to-use, unraised Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Raise sets the flag and wakes every waiter observing it. Idempotent.
func (s *Signal) Raise() {
	s.once.Do(func() { close(s.ch) })
}

// C returns the channel that closes when Raise is called.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Raised reports whether Raise has already been called.
func (s *Signal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
