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

// Package req implements the REQ (request) side of request/reply: a
// single outstanding request at a time, automatically correlated and
// resent on a timer until a matching reply arrives or a new request
// cancels it.
package req

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/queue"
)

// retryPollInterval bounds how stale a pipe sender's view of retryMsg
// can get while it's otherwise idle: the resender has no way to wake a
// sender blocked on an empty UWQ (queue.Signal is one-shot, reserved
// for pipe close), so the sender re-checks retryMsg on this cadence
// instead. Negligible next to req.resend-time, which defaults to a
// minute and is never set below tens of milliseconds in practice.
const retryPollInterval = 10 * time.Millisecond

// Protocol identity, per spec.md §6.
const (
	Self     = uint16(48)
	Peer     = uint16(49)
	SelfName = "req"
	PeerName = "rep"
)

const defaultRetry = 60 * time.Second

type socket struct {
	h protocol.SocketHandle

	nextID uint32

	reqID    [4]byte
	reqMsg   *message.Message
	retryMsg *message.Message

	resend time.Time
	retry  time.Duration
	raw    bool

	closing bool

	pipes map[uint32]*pipe

	wake chan struct{} // resender wakeup, buffered 1
}

type pipe struct {
	p protocol.Pipe
	s *socket
}

// NewProtocol returns a fresh REQ Middleware.
func NewProtocol() protocol.Middleware {
	var seed [4]byte
	_, _ = rand.Read(seed[:])
	return &socket{
		nextID: binary.BigEndian.Uint32(seed[:]),
		retry:  defaultRetry,
		pipes:  make(map[uint32]*pipe),
		wake:   make(chan struct{}, 1),
	}
}

func (s *socket) Info() protocol.Info {
	return protocol.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (s *socket) Init(h protocol.SocketHandle) error {
	s.h = h
	h.SetRecvError(protocol.ErrProtoState)
	return nil
}

// Close is sock_close: cooperative. Wake the resender so it observes
// closing and returns; pipe/queue teardown is core's job.
func (s *socket) Close() {
	s.h.Lock()
	s.closing = true
	s.h.Unlock()
	s.poke()
}

func (s *socket) Shutdown() {
	s.h.Lock()
	if s.reqMsg != nil {
		s.reqMsg.Free()
		s.reqMsg = nil
	}
	if s.retryMsg != nil {
		s.retryMsg.Free()
		s.retryMsg = nil
	}
	s.h.Unlock()
}

func (s *socket) SetOption(name string, value interface{}) error {
	switch name {
	case "req.resend-time":
		d, ok := value.(time.Duration)
		if !ok {
			return protocol.ErrBadValue
		}
		s.h.Lock()
		s.retry = d
		s.h.Unlock()
		return nil
	case "raw":
		b, ok := value.(bool)
		if !ok {
			return protocol.ErrBadValue
		}
		s.h.Lock()
		s.raw = b
		if b {
			s.h.SetRecvError(nil)
		}
		s.h.Unlock()
		return nil
	}
	return protocol.ErrNotSupported
}

func (s *socket) GetOption(name string) (interface{}, error) {
	switch name {
	case "req.resend-time":
		s.h.Lock()
		defer s.h.Unlock()
		return s.retry, nil
	case "raw":
		s.h.Lock()
		defer s.h.Unlock()
		return s.raw, nil
	}
	return nil, protocol.ErrNotSupported
}

// SendFilter implements spec.md §4.4.2's nine-step send-filter,
// called with the socket mutex already held by core.
func (s *socket) SendFilter(m *message.Message) *message.Message {
	if s.raw {
		return m
	}

	id := (s.nextID | 0x80000000)
	s.nextID++
	binary.BigEndian.PutUint32(s.reqID[:], id)
	m.PrependHeader(s.reqID[:])

	if s.reqMsg != nil {
		s.reqMsg.Free()
		s.reqMsg = nil
	}
	s.reqMsg = m.Dup()

	s.retry = orDefault(s.retry)
	s.resend = time.Now().Add(s.retry)
	s.h.SetRecvError(nil)
	s.poke()

	return m
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultRetry
	}
	return d
}

// RecvFilter implements spec.md §4.4.2's five-step receive-filter.
func (s *socket) RecvFilter(m *message.Message) *message.Message {
	if s.raw {
		return m
	}
	if len(m.Header) < 4 {
		m.Free()
		return nil
	}
	if s.reqMsg == nil {
		m.Free()
		return nil
	}
	if [4]byte(m.Header[:4]) != s.reqID {
		m.Free()
		return nil
	}
	s.h.SetRecvError(protocol.ErrProtoState)
	s.reqMsg.Free()
	s.reqMsg = nil
	s.poke()
	m.TrimHeader(4)
	return m
}

func (s *socket) NewPipe(p protocol.Pipe) protocol.PipeBinding {
	return &pipe{p: p, s: s}
}

func (s *socket) SocketWorkers() []func() {
	return []func(){s.resender}
}

// Add is pipe_add. core.Socket.startPipe calls it with the socket
// mutex already held, so it must not take the lock itself.
func (p *pipe) Add() error {
	if p.p.Peer() != Peer {
		return protocol.ErrProto
	}
	s := p.s
	s.pipes[p.p.ID()] = p
	return nil
}

func (p *pipe) Remove() {
	s := p.s
	s.h.Lock()
	delete(s.pipes, p.p.ID())
	s.h.Unlock()
}

func (p *pipe) Workers() []func() {
	return []func(){p.sender, p.receiver}
}

// poke wakes the resender without blocking if it's already pending a
// wake, mirroring the socket condition variable's broadcast-is-
// idempotent semantics in a channel-based resender.
func (s *socket) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// takeOutbound returns retryMsg if one is pending (preferred, per
// spec.md §4.4.2's sender contract), else blocks on UWQ with this
// pipe's close signal, waking periodically to notice a retryMsg the
// resender armed while nothing was queued.
func (p *pipe) takeOutbound() (*message.Message, error) {
	s := p.s
	for {
		s.h.Lock()
		if s.retryMsg != nil {
			m := s.retryMsg
			s.retryMsg = nil
			s.h.Unlock()
			return m, nil
		}
		s.h.Unlock()

		m, err := s.h.UWQ().GetSigDeadline(p.p.Signal(), time.Now().Add(retryPollInterval))
		switch {
		case err == nil:
			return m, nil
		case errors.Is(err, queue.ErrTimeout):
			continue
		default:
			return nil, err
		}
	}
}

func (p *pipe) sender() {
	for {
		m, err := p.takeOutbound()
		if err != nil {
			return
		}
		if err := p.p.Send(m); err != nil {
			_ = p.p.Close()
			return
		}
	}
}

// receiver reads off the wire and pushes into the upper read queue.
// The correlation id already arrives in the header: unlike the
// single-buffer wire spec.md describes, this module's transports
// (SPEC_FULL.md §6) frame header and body as independent regions, so
// no body-to-header reclassification is needed here — that step
// collapses into what SendFilter already prepended on the way out.
func (p *pipe) receiver() {
	sig := p.p.Signal()
	for {
		m, err := p.p.Recv()
		if err != nil {
			_ = p.p.Close()
			return
		}
		if err := p.s.h.URQ().PutSig(m, sig); err != nil {
			m.Free()
			return
		}
	}
}

// resender is the per-socket worker from spec.md §4.4.2: re-arms
// retryMsg from reqMsg once the resend deadline elapses, and loops
// forever re-checking the deadline rather than trusting a single
// timed wait to fire exactly once (the Design Notes' resolution of
// the source's early-wake panic).
func (s *socket) resender() {
	for {
		s.h.Lock()
		if s.closing {
			s.h.Unlock()
			return
		}
		if s.reqMsg == nil {
			s.h.Unlock()
			<-s.wake
			continue
		}
		deadline := s.resend
		s.h.Unlock()

		wait := time.Until(deadline)
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-s.wake:
				t.Stop()
				continue
			}
		}

		s.h.Lock()
		if s.closing {
			s.h.Unlock()
			return
		}
		if s.reqMsg != nil && time.Now().Before(s.resend) {
			// Woke early (spurious or a fresh send already
			// rescheduled resend); just re-loop and re-check.
			s.h.Unlock()
			continue
		}
		if s.reqMsg != nil && s.retryMsg == nil {
			s.retryMsg = s.reqMsg.Dup()
			s.resend = time.Now().Add(orDefault(s.retry))
		}
		s.h.Unlock()
	}
}
