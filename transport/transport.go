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

// Package transport defines the byte-transport contract the core
// consumes (spec.md §6) without ever knowing whether the bytes moved
// across a socket, a pipe file, or a Go channel. Concrete transports
// (transport/inproc, transport/tcp) are external collaborators, not
// part of the CORE: they implement this interface and nothing here
// depends on them.
package transport

import (
	"github.com/scalenet/spmq/message"
)

// Pipe is a single live transport connection. Send and Recv are
// synchronous, blocking calls from the caller's goroutine; on error
// the pipe is considered broken and must be Closed by the caller.
type Pipe interface {
	Send(m *message.Message) error
	Recv() (*message.Message, error)
	Close() error
	GetOption(name string) (interface{}, error)

	// Peer and Self report the protocol numbers exchanged during the
	// transport's handshake: Self is what we told the remote side
	// about ourselves, Peer is what the remote side told us about
	// itself.
	Self() uint16
	Peer() uint16
}

// Dialer repeatedly attempts to establish one Pipe per call; the
// caller (core.Endpoint) is responsible for retry/back-off.
type Dialer interface {
	Dial() (Pipe, error)
}

// Listener accepts inbound connections, yielding one Pipe per peer.
type Listener interface {
	Accept() (Pipe, error)
	Close() error
}

// Transport resolves a URL to a Dialer or Listener. self is the local
// socket's SP protocol number, sent to the peer during handshake.
type Transport interface {
	Scheme() string
	NewDialer(url string, self uint16) (Dialer, error)
	NewListener(url string, self uint16) (Listener, error)
}
