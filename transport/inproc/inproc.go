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

// Package inproc implements an in-process transport: Dial and Listen
// on the same address within one process hand each other a pair of
// connected pipes over Go channels, with no handshake round-trip
// delay. Every protocol test in this module uses it, the way the
// teacher's own test suite imports its inproc transport for side
// effects in every protocol package's tests.
package inproc

import (
	"errors"
	"sync"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/transport"
)

// ErrClosed is returned by Send/Recv once the pipe has closed.
var ErrClosed = errors.New("inproc: closed")

// ErrConnRefused is returned by Dial when no Listener is registered
// at the address.
var ErrConnRefused = errors.New("inproc: connection refused")

// ErrAddrInUse is returned by NewListener when the address already
// has a live listener.
var ErrAddrInUse = errors.New("inproc: address in use")

const scheme = "inproc"

// Scheme is the URL scheme this transport registers under.
func Scheme() string { return scheme }

type request struct {
	self uint16
	resp chan *pipe
	fail chan error
}

type registry struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

var reg = &registry{listeners: map[string]*listener{}}

func (r *registry) add(addr string, l *listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[addr]; ok {
		return ErrAddrInUse
	}
	r.listeners[addr] = l
	return nil
}

func (r *registry) remove(addr string, l *listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.listeners[addr]; ok && cur == l {
		delete(r.listeners, addr)
	}
}

func (r *registry) find(addr string) (*listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[addr]
	return l, ok
}

// shared is the half-close coordination between the two ends of one
// logical connection: either end closing tears down both, since
// inproc has no notion of a one-sided half-close.
type shared struct {
	once   sync.Once
	closed chan struct{}
}

func newShared() *shared {
	return &shared{closed: make(chan struct{})}
}

func (s *shared) close() {
	s.once.Do(func() { close(s.closed) })
}

type pipe struct {
	self, peer uint16
	send, recv chan *message.Message
	sh         *shared
}

func newPipePair(selfA, selfB uint16) (*pipe, *pipe) {
	ab := make(chan *message.Message)
	ba := make(chan *message.Message)
	sh := newShared()
	a := &pipe{self: selfA, peer: selfB, send: ab, recv: ba, sh: sh}
	b := &pipe{self: selfB, peer: selfA, send: ba, recv: ab, sh: sh}
	return a, b
}

func (p *pipe) Send(m *message.Message) error {
	select {
	case p.send <- m:
		return nil
	case <-p.sh.closed:
		return ErrClosed
	}
}

func (p *pipe) Recv() (*message.Message, error) {
	select {
	case m := <-p.recv:
		return m, nil
	case <-p.sh.closed:
		return nil, ErrClosed
	}
}

func (p *pipe) Close() error {
	p.sh.close()
	return nil
}

func (p *pipe) GetOption(string) (interface{}, error) {
	return nil, errors.New("inproc: option not supported")
}

func (p *pipe) Self() uint16 { return p.self }
func (p *pipe) Peer() uint16 { return p.peer }

type dialer struct {
	addr string
	self uint16
}

func (d *dialer) Dial() (transport.Pipe, error) {
	l, ok := reg.find(d.addr)
	if !ok {
		return nil, ErrConnRefused
	}
	req := &request{self: d.self, resp: make(chan *pipe, 1), fail: make(chan error, 1)}
	select {
	case l.reqs <- req:
	case <-l.closed:
		return nil, ErrConnRefused
	}
	select {
	case p := <-req.resp:
		return p, nil
	case err := <-req.fail:
		return nil, err
	case <-l.closed:
		return nil, ErrConnRefused
	}
}

type listener struct {
	addr      string
	self      uint16
	reqs      chan *request
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *listener) Accept() (transport.Pipe, error) {
	select {
	case req := <-l.reqs:
		a, b := newPipePair(l.self, req.self)
		select {
		case req.resp <- b:
			return a, nil
		case <-l.closed:
			return nil, ErrConnRefused
		}
	case <-l.closed:
		return nil, ErrConnRefused
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		reg.remove(l.addr, l)
	})
	return nil
}

type transportImpl struct{}

// NewTransport returns the inproc transport.Transport implementation.
func NewTransport() transport.Transport { return transportImpl{} }

func (transportImpl) Scheme() string { return scheme }

func (transportImpl) NewDialer(url string, self uint16) (transport.Dialer, error) {
	return &dialer{addr: url, self: self}, nil
}

func (transportImpl) NewListener(url string, self uint16) (transport.Listener, error) {
	l := &listener{addr: url, self: self, reqs: make(chan *request), closed: make(chan struct{})}
	if err := reg.add(url, l); err != nil {
		return nil, err
	}
	return l, nil
}
