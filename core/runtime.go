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

package core

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/transport"
)

// Runtime is the module's top-level handle: a registry of named
// transports sockets dial/listen against, a logger new sockets embed,
// and the running id/socket tables used for diagnostic enumeration.
// Transports are registered once at startup and looked up by URL
// scheme on every Dial/Listen call, so the table is read far more
// than it is written — the reason it is an xsync.MapOf rather than a
// mutex-guarded map, the same tradeoff the pack's bgpfix reference
// makes for its lock-free attribute tables.
type Runtime struct {
	id uuid.UUID

	log zerolog.Logger

	transports *xsync.MapOf[string, transport.Transport]
	sockets    *xsync.MapOf[uint64, *Socket]

	nextSocketID atomic.Uint64
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithLogger overrides the default stderr console logger.
func WithLogger(l zerolog.Logger) Option {
	return func(rt *Runtime) { rt.log = l }
}

// WithTransport registers a transport under its own Scheme(). Package
// core registers nothing by default; spmq.NewRuntime wires inproc and
// tcp in with this option before calling down to core.NewRuntime.
func WithTransport(t transport.Transport) Option {
	return func(rt *Runtime) { rt.transports.Store(t.Scheme(), t) }
}

// NewRuntime builds a fresh Runtime. Each Runtime has its own id, used
// only to tag its log lines so multiple runtimes in one process (as
// in tests that spin up several independent socket worlds) don't
// interleave indistinguishably.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		id:         uuid.New(),
		transports: xsync.NewMapOf[string, transport.Transport](),
		sockets:    xsync.NewMapOf[uint64, *Socket](),
	}
	rt.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("runtime", rt.id.String()[:8]).Logger()

	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) logger() *zerolog.Logger { return &rt.log }

// ID returns the runtime's instance identifier.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Transport looks up a registered transport by URL scheme.
func (rt *Runtime) Transport(scheme string) (transport.Transport, error) {
	t, ok := rt.transports.Load(scheme)
	if !ok {
		return nil, fmt.Errorf("%w: no transport registered for scheme %q", protocol.ErrNotSupported, scheme)
	}
	return t, nil
}

// NewSocket builds a Socket bound to mw, using this runtime's logger
// and transport registry.
func (rt *Runtime) NewSocket(mw protocol.Middleware) (*Socket, error) {
	return NewSocket(rt, mw)
}

func (rt *Runtime) registerSocket(s *Socket) uint64 {
	id := rt.nextSocketID.Add(1)
	rt.sockets.Store(id, s)
	return id
}

func (rt *Runtime) unregisterSocket(id uint64) {
	rt.sockets.Delete(id)
}

// Sockets returns every socket still registered with this runtime,
// for diagnostics (e.g. an orderly shutdown helper that closes every
// socket a process opened without the caller tracking them itself).
func (rt *Runtime) Sockets() []*Socket {
	out := make([]*Socket, 0, rt.sockets.Size())
	rt.sockets.Range(func(_ uint64, s *Socket) bool {
		out = append(out, s)
		return true
	})
	return out
}
