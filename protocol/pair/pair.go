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

// Package pair implements the PAIR protocol: a strict one-to-one
// connection between two sockets. A second pipe arriving while one is
// already attached is refused with ErrBusy, and messages carry no
// protocol header — SendFilter/RecvFilter are pass-through.
package pair

import (
	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
)

// Protocol identity, per spec.md §6.
const (
	Self     = uint16(16)
	Peer     = uint16(16)
	SelfName = "pair"
	PeerName = "pair"
)

type socket struct {
	h protocol.SocketHandle
	p *pipe // the single attached pipe, or nil
}

type pipe struct {
	p protocol.Pipe
	s *socket
}

// NewProtocol returns a fresh PAIR Middleware, bound to one Socket by
// core.NewSocket's call to Init.
func NewProtocol() protocol.Middleware {
	return &socket{}
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
	return protocol.ErrNotSupported
}

func (s *socket) GetOption(name string) (interface{}, error) {
	if name == "raw" {
		return false, nil
	}
	return nil, protocol.ErrNotSupported
}

// SendFilter/RecvFilter carry no protocol header for PAIR: every
// message passes straight through.
func (s *socket) SendFilter(m *message.Message) *message.Message { return m }
func (s *socket) RecvFilter(m *message.Message) *message.Message { return m }

func (s *socket) NewPipe(p protocol.Pipe) protocol.PipeBinding {
	return &pipe{p: p, s: s}
}

func (s *socket) SocketWorkers() []func() { return nil }

// Add is pipe_add: PAIR admits exactly one live pipe at a time. A
// second connection attempt is refused outright, matching nng's
// one-peer-only pair semantics.
func (p *pipe) Add() error {
	s := p.s
	if s.p != nil {
		return protocol.ErrBusy
	}
	s.p = p
	return nil
}

func (p *pipe) Remove() {
	s := p.s
	if s.p == p {
		s.p = nil
	}
}

func (p *pipe) Workers() []func() {
	return []func(){p.sender, p.receiver}
}

// sender drains the socket's upper write queue onto this pipe, until
// either the socket closes the queue or this pipe's own close signal
// fires — the same closeq/queue race the pack's xsub reference
// resolves with a select across both channels.
func (p *pipe) sender() {
	sig := p.p.Signal()
	for {
		m, err := p.s.h.UWQ().GetSig(sig)
		if err != nil {
			return
		}
		if err := p.p.Send(m); err != nil {
			_ = p.p.Close()
			return
		}
	}
}

// receiver reads off the wire and pushes into the upper read queue,
// best-effort: if the queue is full and deadline-less Put would
// block, PAIR simply blocks the pipe (there's only one peer, so
// backpressure here is the correct behavior, not a drop).
func (p *pipe) receiver() {
	sig := p.p.Signal()
	for {
		m, err := p.p.Recv()
		if err != nil {
			_ = p.p.Close()
			return
		}
		if err := p.s.h.URQ().PutSig(m, sig); err != nil {
			return
		}
	}
}
