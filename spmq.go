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

// Package spmq is the application-facing surface over the CORE in
// package core: a Runtime that owns registered transports and the
// sockets built against them, re-exporting the error sentinels and
// generic options an application needs without reaching into core or
// protocol directly.
package spmq

import (
	"github.com/scalenet/spmq/core"
	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/transport/inproc"
	"github.com/scalenet/spmq/transport/tcp"
)

// Error sentinels, aliased from package protocol so callers never
// need to import it directly — the same root-package-re-exports-
// internal-errors convention the teacher's own mangos.ErrProtoState/
// mangos.ErrClosed surface (confirmed against the vendored
// go.nanomsg.org/mangos/v3 copy's req_test.go usage).
var (
	ErrClosed       = protocol.ErrClosed
	ErrProtoState   = protocol.ErrProtoState
	ErrProto        = protocol.ErrProto
	ErrBusy         = protocol.ErrBusy
	ErrTimeout      = protocol.ErrTimeout
	ErrNotSupported = protocol.ErrNotSupported
	ErrBadValue     = protocol.ErrBadValue
)

// Generic option names, aliased from package core.
const (
	OptionSendDeadline  = core.OptionSendDeadline
	OptionRecvDeadline  = core.OptionRecvDeadline
	OptionLinger        = core.OptionLinger
	OptionReconnectMin  = core.OptionReconnectMin
	OptionReconnectMax  = core.OptionReconnectMax
	OptionWriteQueueLen = core.OptionWriteQueueLen
	OptionReadQueueLen  = core.OptionReadQueueLen
	OptionBestEffort    = core.OptionBestEffort
)

// Message is re-exported so callers building a payload never import
// package message directly.
type Message = message.Message

// NewMessage allocates a Message with a Body of length size, ready to
// write into directly; build one by appending instead with
// NewMessage(0) followed by AppendBody.
func NewMessage(size int) *Message { return message.New(size) }

// Socket is the application-facing handle: Send/Recv apply the
// socket's configured deadlines; SendMsg/RecvMsg/Dial/Listen take
// over once finer control (an explicit deadline, a specific
// transport) is needed.
type Socket struct {
	*core.Socket
	rt *Runtime
}

// Runtime is a transport registry plus the logger every Socket built
// from it shares — the explicit "runtime handle constructed at the
// API boundary" spec.md §9's Design Notes calls for in place of
// hidden globals.
type Runtime struct {
	rt *core.Runtime
}

// NewRuntime builds a Runtime with inproc and tcp pre-registered.
// Additional transports can be layered on with core.WithTransport
// options via NewRuntimeWith.
func NewRuntime() *Runtime {
	return NewRuntimeWith()
}

// NewRuntimeWith builds a Runtime with inproc and tcp pre-registered,
// plus any additional core.Option the caller supplies (e.g.
// core.WithLogger to redirect structured logging).
func NewRuntimeWith(opts ...core.Option) *Runtime {
	base := []core.Option{
		core.WithTransport(inproc.NewTransport()),
		core.WithTransport(tcp.NewTransport()),
	}
	rt := core.NewRuntime(append(base, opts...)...)
	return &Runtime{rt: rt}
}

func (r *Runtime) newSocket(mw protocol.Middleware) (*Socket, error) {
	s, err := r.rt.NewSocket(mw)
	if err != nil {
		return nil, err
	}
	return &Socket{Socket: s, rt: r}, nil
}

// Dial resolves url's scheme against the runtime's registered
// transports and starts a redialing endpoint against it.
func (s *Socket) Dial(url string) error {
	scheme, addr := splitURL(url)
	tr, err := s.rt.rt.Transport(scheme)
	if err != nil {
		return err
	}
	_, err = core.DialEndpoint(s.Socket, tr, addr)
	return err
}

// Listen resolves url's scheme and starts an accepting endpoint.
func (s *Socket) Listen(url string) error {
	scheme, addr := splitURL(url)
	tr, err := s.rt.rt.Transport(scheme)
	if err != nil {
		return err
	}
	_, err = core.ListenEndpoint(s.Socket, tr, addr)
	return err
}

// splitURL splits "scheme://rest" into its scheme and the address a
// transport.Transport actually consumes. Transports never see the
// scheme prefix themselves — inproc's registry key and tcp's
// net.Dial/net.Listen address are both just "rest".
func splitURL(url string) (scheme, addr string) {
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			return url[:i], url[i+3:]
		}
	}
	return url, ""
}

// SendString is a convenience helper that wraps s in a one-shot
// Message body and sends it with the socket's configured deadline.
func (s *Socket) SendString(body string) error {
	m := message.New(0)
	m.AppendBody([]byte(body))
	return s.Send(m)
}
