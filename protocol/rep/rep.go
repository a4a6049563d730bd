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

// Package rep implements REP, REQ's peer: it is not named beyond
// "REP = 49" in spec.md's body text, so its pipe-routing behaviour is
// modeled on nng's protocol/reqrep pairing in original_source and
// detailed in full in SPEC_FULL.md §4.4.3. Every reply carries a
// back-trace frame (the originating pipe's id, high bit clear)
// prepended ahead of REQ's own correlation id, so a reply routes back
// to the right peer without the socket remembering per-request state.
package rep

import (
	"sync"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/queue"
)

// Protocol identity, per spec.md §6 and SPEC_FULL.md §4.4.3.
const (
	Self     = uint16(49)
	Peer     = uint16(48)
	SelfName = "rep"
	PeerName = "req"
)

const defaultSendQLen = 64

type socket struct {
	h protocol.SocketHandle

	mu  sync.Mutex
	raw bool

	pipes map[uint32]*pipe
}

type pipe struct {
	p protocol.Pipe
	s *socket
	q *queue.Queue // per-pipe send queue, demultiplexed by backtrace frame
}

// NewProtocol returns a fresh REP Middleware.
func NewProtocol() protocol.Middleware {
	return &socket{pipes: make(map[uint32]*pipe)}
}

func (s *socket) Info() protocol.Info {
	return protocol.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (s *socket) Init(h protocol.SocketHandle) error {
	s.h = h
	return nil
}

func (s *socket) Close()    {}
func (s *socket) Shutdown() {}

func (s *socket) SetOption(name string, value interface{}) error {
	if name == "raw" {
		b, ok := value.(bool)
		if !ok {
			return protocol.ErrBadValue
		}
		s.mu.Lock()
		s.raw = b
		s.mu.Unlock()
		return nil
	}
	return protocol.ErrNotSupported
}

func (s *socket) GetOption(name string) (interface{}, error) {
	if name == "raw" {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.raw, nil
	}
	return nil, protocol.ErrNotSupported
}

// SendFilter demultiplexes by the leading pipe-id backtrace frame: it
// never returns a message for UWQ delivery itself (there is no single
// "the" pipe for REP), instead routing directly to the addressed
// pipe's own send queue and returning nil so core's sendmsg treats
// the message as consumed.
func (s *socket) SendFilter(m *message.Message) *message.Message {
	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()
	if raw {
		return m
	}

	if len(m.Header) < 4 {
		m.Free()
		return nil
	}
	pipeID := beUint32(m.Header[:4]) &^ 0x80000000
	m.TrimHeader(4)

	s.mu.Lock()
	p, ok := s.pipes[pipeID]
	s.mu.Unlock()
	if !ok {
		// The peer this reply was addressed to is already gone; per
		// SPEC_FULL.md §4.4.3 this is a silent drop, not an error.
		m.Free()
		return nil
	}

	// TryPut, not Put: core.Socket.SendMsg calls SendFilter with the
	// socket mutex held (spec.md §5: "no worker holds the socket mutex
	// across blocking I/O"). A blocking enqueue here would let one slow
	// pipe's full queue stall every other pipe's sends, and Close,
	// behind that same mutex. A reply that can't be queued right away
	// is dropped rather than made to wait.
	if err := p.q.TryPut(m); err != nil {
		m.Free()
	}
	return nil
}

// RecvFilter is pass-through: the backtrace frame and correlation id
// are already installed on the header by the per-pipe receiver below.
func (s *socket) RecvFilter(m *message.Message) *message.Message { return m }

func (s *socket) NewPipe(p protocol.Pipe) protocol.PipeBinding {
	return &pipe{p: p, s: s, q: queue.New(defaultSendQLen)}
}

func (s *socket) SocketWorkers() []func() { return nil }

// Add is pipe_add: REP rejects any peer that isn't REQ.
func (p *pipe) Add() error {
	if p.p.Peer() != Peer {
		return protocol.ErrProto
	}
	s := p.s
	s.mu.Lock()
	s.pipes[p.p.ID()] = p
	s.mu.Unlock()
	return nil
}

func (p *pipe) Remove() {
	s := p.s
	s.mu.Lock()
	delete(s.pipes, p.p.ID())
	s.mu.Unlock()
	p.q.Close()
}

func (p *pipe) Workers() []func() {
	return []func(){p.sender, p.receiver}
}

func (p *pipe) sender() {
	sig := p.p.Signal()
	for {
		m, err := p.q.GetSig(sig)
		if err != nil {
			return
		}
		if err := p.p.Send(m); err != nil {
			m.Free()
			_ = p.p.Close()
			return
		}
	}
}

// receiver reads off the wire — the correlation id already arrives in
// the header, framed independently of the body (SPEC_FULL.md §6) —
// and prepends the originating pipe's id as a second, high-bit-clear
// header frame ahead of it, so sendmsg can route the eventual reply
// back to this pipe without the socket tracking per-request state.
func (p *pipe) receiver() {
	sig := p.p.Signal()
	for {
		m, err := p.p.Recv()
		if err != nil {
			_ = p.p.Close()
			return
		}

		var frame [4]byte
		putUint32(frame[:], p.p.ID()&^0x80000000)
		m.PrependHeader(frame[:])

		if err := p.s.h.URQ().PutSig(m, sig); err != nil {
			m.Free()
			return
		}
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
