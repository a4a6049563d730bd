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

// Package core implements the CORE described in spec.md: the
// {Socket, Pipe, Protocol-engine} triad, the message queues that glue
// the application to per-pipe I/O workers, and the lifecycle/shutdown
// choreography that keeps workers, pending messages, and the endpoint
// supervisor mutually consistent under concurrent close.
package core

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/queue"
	"github.com/scalenet/spmq/transport"
)

const (
	defaultQLen   = 128
	defaultReconn = 100 * time.Millisecond
	defaultReconM = 0 // 0 selects Endpoint.backoffPolicy's 10s cap
)

// Socket owns the upper queues, the active-pipe and endpoint lists,
// the reaper, and the single bound Middleware — spec.md §3/§4.3.
type Socket struct {
	mu   sync.Mutex
	cond *sync.Cond

	rt *Runtime
	id uint64

	mw   protocol.Middleware
	info protocol.Info

	uwq *queue.Queue
	urq *queue.Queue

	linger     time.Duration
	sndTimeout time.Duration
	rcvTimeout time.Duration
	reconnMin  time.Duration
	reconnMax  time.Duration
	bestEffort bool

	sendErr error
	recvErr error

	pipes map[uint32]*pipe
	reap  []*pipe

	nextPipeID uint32

	endpoints map[uint64]*Endpoint
	nextEPID  uint64

	closing bool

	reaperWG  sync.WaitGroup
	workersWG sync.WaitGroup

	log *zerolog.Logger
}

// NewSocket creates a socket bound to mw, starts its reaper, and
// invokes mw.Init (sock_init).
func NewSocket(rt *Runtime, mw protocol.Middleware) (*Socket, error) {
	s := &Socket{
		rt:         rt,
		mw:         mw,
		info:       mw.Info(),
		uwq:        queue.New(defaultQLen),
		urq:        queue.New(defaultQLen),
		reconnMin:  defaultReconn,
		reconnMax:  defaultReconM,
		pipes:      make(map[uint32]*pipe),
		endpoints:  make(map[uint64]*Endpoint),
		nextPipeID: randPipeID(),
		log:        rt.logger(),
	}
	s.cond = sync.NewCond(&s.mu)
	s.id = rt.registerSocket(s)

	if err := mw.Init(s); err != nil {
		return nil, err
	}

	s.reaperWG.Add(1)
	go s.reaperLoop()

	for _, w := range mw.SocketWorkers() {
		s.workersWG.Add(1)
		go func(fn func()) {
			defer s.workersWG.Done()
			fn()
		}(w)
	}

	return s, nil
}

func randPipeID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:]) & 0x7fffffff
}

// Info returns the protocol identity this socket was created with.
func (s *Socket) Info() protocol.Info { return s.info }

// SendMsg is sendmsg from spec.md §4.3.
func (s *Socket) SendMsg(m *message.Message, deadline time.Time) error {
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return err
	}
	out := s.mw.SendFilter(m)
	s.mu.Unlock()

	if out == nil {
		// The filter consumed and freed the message itself (spec.md
		// §4.4: "on filter-null, the filter has freed the message").
		return nil
	}
	return translateQueueErr(s.uwq.Put(out, deadline))
}

// RecvMsg is recvmsg from spec.md §4.3.
func (s *Socket) RecvMsg(deadline time.Time) (*message.Message, error) {
	s.mu.Lock()
	if s.recvErr != nil {
		err := s.recvErr
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	for {
		m, err := s.urq.Get(deadline)
		if err != nil {
			return nil, translateQueueErr(err)
		}
		s.mu.Lock()
		out := s.mw.RecvFilter(m)
		s.mu.Unlock()
		if out != nil {
			return out, nil
		}
		// Dropped by the filter (e.g. stale REQ correlation id):
		// loop, preserving URQ's admission order for the messages
		// that do survive.
	}
}

// Send and Recv apply the socket's configured send/recv deadlines
// around SendMsg/RecvMsg, the entry points a Dial/Listen-oriented
// public API calls without threading an explicit deadline through.
func (s *Socket) Send(m *message.Message) error {
	return s.SendMsg(m, s.sendDeadline())
}

func (s *Socket) Recv() (*message.Message, error) {
	return s.RecvMsg(s.recvDeadline())
}

func translateQueueErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrClosed):
		return protocol.ErrClosed
	case errors.Is(err, queue.ErrTimeout):
		return protocol.ErrTimeout
	default:
		return err
	}
}

// Close implements the cascade from spec.md §5: endpoints, then
// pipes, then drain the reaper, then queues, then the protocol's own
// cooperative close and final teardown.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return protocol.ErrClosed
	}
	s.closing = true
	eps := make([]*Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		eps = append(eps, ep)
	}
	pipes := make([]*pipe, 0, len(s.pipes))
	for _, p := range s.pipes {
		pipes = append(pipes, p)
	}
	s.mu.Unlock()

	for _, ep := range eps {
		ep.Close()
	}
	for _, p := range pipes {
		_ = p.Close()
	}

	s.mu.Lock()
	for len(s.reap) > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()

	s.uwq.Close()
	s.urq.Close()

	s.cond.Broadcast() // wake the reaper so it observes closing && drained
	s.reaperWG.Wait()

	s.mw.Close()
	s.cond.Broadcast() // wake any Middleware worker waiting on our cond
	s.workersWG.Wait()

	s.mw.Shutdown()
	s.rt.unregisterSocket(s.id)
	return nil
}

func (s *Socket) reaperLoop() {
	defer s.reaperWG.Done()
	s.mu.Lock()
	for {
		for len(s.reap) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.reap) == 0 && s.closing {
			s.mu.Unlock()
			return
		}
		p := s.reap[0]
		s.mu.Unlock()

		p.wg.Wait()
		if p.binding != nil {
			p.binding.Remove()
		}

		s.mu.Lock()
		p.state = pipeDestroyed
		s.reap = s.reap[1:]
		s.cond.Broadcast()
	}
}

func (s *Socket) reapPipe(p *pipe) {
	s.mu.Lock()
	if p.state == pipeReaped || p.state == pipeDestroyed {
		s.mu.Unlock()
		return
	}
	delete(s.pipes, p.id)
	p.state = pipeReaped
	s.reap = append(s.reap, p)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// newPipe allocates a pipe id and wraps a transport.Pipe, without
// registering it on the active list yet (spec.md §4.2 create()).
func (s *Socket) newPipe(tp transport.Pipe, ep *Endpoint) *pipe {
	s.mu.Lock()
	id := s.nextPipeID
	s.nextPipeID = (s.nextPipeID + 1) & 0x7fffffff
	s.mu.Unlock()
	return &pipe{id: id, tp: tp, sock: s, ep: ep, sig: queue.NewSignal()}
}

// startPipe is start() from spec.md §4.2: it performs the wire-level
// protocol check, registers the pipe, calls the Middleware's pipe_add,
// and — only once that succeeds — launches the pattern's per-pipe
// workers.
func (s *Socket) startPipe(p *pipe) error {
	if p.tp.Peer() != s.info.Peer {
		return fmt.Errorf("%w: peer reports protocol %d, want %d", protocol.ErrProto, p.tp.Peer(), s.info.Peer)
	}

	binding := s.mw.NewPipe(p)
	p.binding = binding

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return protocol.ErrClosed
	}
	s.pipes[p.id] = p
	p.state = pipeStarted
	err := binding.Add()
	if err != nil {
		delete(s.pipes, p.id)
		p.state = pipeNew
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	for _, fn := range binding.Workers() {
		p.wg.Add(1)
		go func(fn func()) {
			defer p.wg.Done()
			fn()
		}(fn)
	}
	return nil
}

// discardRejected tears down a pipe whose startPipe call failed,
// without ever having joined the active/reap lifecycle.
func (s *Socket) discardRejected(p *pipe) {
	_ = p.tp.Close()
}

func (s *Socket) registerEndpoint(ep *Endpoint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextEPID
	s.nextEPID++
	ep.eid = id
	s.endpoints[id] = ep
	return id
}

func (s *Socket) unregisterEndpoint(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.endpoints, id)
}

func (s *Socket) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
