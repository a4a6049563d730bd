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

// Package protocol defines the vtable contract between core.Socket
// and a compile-time pattern implementation (pair, req, rep, ...): the
// Middleware interface filters and workers attach through, the Pipe
// interface a pattern uses to talk to a single live connection, and
// the SocketHandle interface a pattern uses to reach the socket's
// shared queues, mutex, and error-state slots.
package protocol

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/queue"
)

// Errors a Middleware may surface through SocketHandle.SetSendError/
// SetRecvError, or that core itself returns. Names follow spec.md §6;
// ENOMEM has no Go rendering (see SPEC_FULL.md §3).
var (
	ErrClosed       = errors.New("protocol: closed")
	ErrProtoState   = errors.New("protocol: invalid state")
	ErrProto        = errors.New("protocol: protocol mismatch")
	ErrBusy         = errors.New("protocol: busy")
	ErrTimeout      = errors.New("protocol: timed out")
	ErrNotSupported = errors.New("protocol: not supported")
	ErrBadValue     = errors.New("protocol: bad option value")
)

// Info identifies a protocol: its own SP number and name, and the
// peer protocol number and name it expects on the other end of a
// pipe (spec.md §6).
type Info struct {
	Self     uint16
	Peer     uint16
	SelfName string
	PeerName string
}

// Pipe is the single live connection a Middleware's pipe workers read
// from and write to. It is implemented by core.pipe; protocols never
// see the transport directly.
type Pipe interface {
	ID() uint32
	Send(m *message.Message) error
	Recv() (*message.Message, error)
	Close() error
	Peer() uint16
	Self() uint16

	// Signal is the per-pipe close-signal flag (spec.md §4.2/§4.4):
	// raised when the pipe begins closing, so a worker blocked in
	// queue.Queue.GetSig/PutSig wakes immediately instead of waiting
	// for its next transport I/O to fail.
	Signal() *queue.Signal
}

// PipeBinding is what Middleware.NewPipe returns: the pattern's
// per-pipe private state, bound to one Pipe. Add corresponds to
// pipe_add (and may reject with ErrBusy or ErrProto); Workers are the
// pattern's per-pipe worker functions (pipe_send/pipe_recv in
// spec.md's vocabulary), started once Add succeeds and expected to
// run until the pipe's Signal is raised or the transport errors.
type PipeBinding interface {
	Add() error
	Remove()
	Workers() []func()
}

// SocketHandle is the shared socket-level state a Middleware touches:
// the upper queues, the socket mutex (held by core across every
// filter call), a condition variable for background workers that wait
// on protocol state, and the protocol-asserted
// send/recv error slots from spec.md §4.3.
type SocketHandle interface {
	UWQ() *queue.Queue
	URQ() *queue.Queue

	// Lock/Unlock guard the fields spec.md §5 assigns to the socket
	// mutex. Filters are invoked with the lock already held; a
	// Middleware's own background workers must acquire it themselves
	// before touching shared state, and must never hold it across a
	// blocking call.
	Lock()
	Unlock()

	// Broadcast/Wait use a condition variable bound to the same mutex
	// as Lock/Unlock, the one core's reaper waits on. REQ's resender
	// does not use it; it waits on its own wake channel and a timer.
	Broadcast()
	Wait()

	SetSendError(err error)
	SetRecvError(err error)
	SendError() error
	RecvError() error

	Logger() *zerolog.Logger
}

// Middleware is the per-pattern specialization bound to a socket
// (spec.md §4.4): lifecycle hooks, option handling, send/recv filters,
// and pipe/socket worker factories.
type Middleware interface {
	Info() Info

	// Init installs the Middleware against a socket (sock_init). It
	// is called once, before the socket is reachable by applications.
	Init(h SocketHandle) error

	// Close is sock_close: cooperative, wakes background workers by
	// setting a closing flag they observe. It must not block.
	Close()

	// Shutdown is sock_fini: final teardown after every worker this
	// Middleware started has been joined.
	Shutdown()

	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)

	// SendFilter/RecvFilter run with the socket mutex held (spec.md
	// §4.4). Returning nil means the filter dropped (and freed) the
	// message; returning a non-nil message (the same one, or a
	// replacement) means deliver it onward.
	SendFilter(m *message.Message) *message.Message
	RecvFilter(m *message.Message) *message.Message

	// NewPipe is pipe_init: allocate this pattern's per-pipe private
	// state. Add/Remove/Workers on the returned PipeBinding are
	// pipe_add/pipe_rem/the per-pipe worker functions.
	NewPipe(p Pipe) PipeBinding

	// SocketWorkers are per-socket background workers (e.g. REQ's
	// resend loop), started once after Init succeeds.
	SocketWorkers() []func()
}
