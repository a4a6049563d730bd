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
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scalenet/spmq/transport"
)

// endpointMode distinguishes a dialing endpoint, which redials with
// backoff after every failed dial, rejected pipe, or peer disconnect,
// from a listening endpoint, which accepts indefinitely and never
// backs off (a failed
// accept on a live listener is exceptional, not routine).
type endpointMode int

const (
	modeDial endpointMode = iota
	modeListen
)

// Endpoint is the supervisor behind one Dial or Listen call: it owns
// the transport.Dialer/Listener, redials/re-accepts across peer
// churn, and feeds every pipe it establishes through the owning
// Socket's startPipe. Reconnection backoff follows the shape the
// pack's backoffconfig reference builds around
// backoff.ExponentialBackOff, parameterized by the socket's
// reconnect-min/-max options.
type Endpoint struct {
	id   uuid.UUID
	sock *Socket
	mode endpointMode
	url  string

	dialer   transport.Dialer
	listener transport.Listener

	ctx    context.Context
	cancel context.CancelFunc
	grp    *errgroup.Group

	mu     sync.Mutex
	closed bool
	eid    uint64 // assigned by Socket.registerEndpoint
}

// DialEndpoint starts a redial supervisor against url via tr, and
// registers it with sock.
func DialEndpoint(sock *Socket, tr transport.Transport, url string) (*Endpoint, error) {
	d, err := tr.NewDialer(url, sock.info.Self)
	if err != nil {
		return nil, err
	}
	ep := newEndpoint(sock, modeDial, url)
	ep.dialer = d
	sock.registerEndpoint(ep)
	ep.grp.Go(func() error { ep.dialLoop(); return nil })
	return ep, nil
}

// ListenEndpoint starts an accept supervisor on url via tr, and
// registers it with sock.
func ListenEndpoint(sock *Socket, tr transport.Transport, url string) (*Endpoint, error) {
	l, err := tr.NewListener(url, sock.info.Self)
	if err != nil {
		return nil, err
	}
	ep := newEndpoint(sock, modeListen, url)
	ep.listener = l
	sock.registerEndpoint(ep)
	ep.grp.Go(func() error { ep.acceptLoop(); return nil })
	return ep, nil
}

func newEndpoint(sock *Socket, mode endpointMode, url string) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	grp, ctx := errgroup.WithContext(ctx)
	return &Endpoint{
		id:     uuid.New(),
		sock:   sock,
		mode:   mode,
		url:    url,
		ctx:    ctx,
		cancel: cancel,
		grp:    grp,
	}
}

func (ep *Endpoint) backoffPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ep.sock.reconnMin
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultReconn
	}
	b.MaxInterval = ep.sock.reconnMax
	if b.MaxInterval <= 0 {
		b.MaxInterval = 10 * time.Second
	}
	b.MaxElapsedTime = 0 // redial forever; only Close ends the loop
	return b
}

func (ep *Endpoint) dialLoop() {
	log := ep.sock.log.With().Str("endpoint", ep.id.String()[:8]).Str("url", ep.url).Logger()
	bo := backoff.WithContext(ep.backoffPolicy(), ep.ctx)

	for {
		p, err := ep.dialer.Dial()
		if err != nil {
			select {
			case <-ep.ctx.Done():
				return
			default:
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			log.Debug().Err(err).Dur("backoff", wait).Msg("dial failed, retrying")
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ep.ctx.Done():
				t.Stop()
				return
			}
			continue
		}

		cp := ep.sock.newPipe(p, ep)
		if err := ep.sock.startPipe(cp); err != nil {
			log.Debug().Err(err).Msg("pipe rejected")
			ep.sock.discardRejected(cp)
			if ep.sock.isClosing() {
				return
			}
			t := time.NewTimer(bo.NextBackOff())
			select {
			case <-t.C:
			case <-ep.ctx.Done():
				t.Stop()
				return
			}
			continue
		}

		// An admitted pipe resets the backoff clock, same shape as the
		// pack's backoffconfig reference resetting after a successful
		// call; the redial after it closes waits one fresh interval.
		bo.Reset()
		ep.waitPipeDone(cp)

		t := time.NewTimer(bo.NextBackOff())
		select {
		case <-t.C:
		case <-ep.ctx.Done():
			t.Stop()
			return
		}
	}
}

func (ep *Endpoint) acceptLoop() {
	log := ep.sock.log.With().Str("endpoint", ep.id.String()[:8]).Str("url", ep.url).Logger()
	for {
		p, err := ep.listener.Accept()
		if err != nil {
			select {
			case <-ep.ctx.Done():
				return
			default:
			}
			log.Debug().Err(err).Msg("accept failed")
			continue
		}
		cp := ep.sock.newPipe(p, ep)
		if err := ep.sock.startPipe(cp); err != nil {
			log.Debug().Err(err).Msg("pipe rejected")
			ep.sock.discardRejected(cp)
		}
		// Fire-and-forget: the listener keeps accepting while this
		// pipe runs its own lifecycle under the socket's pipe list.
	}
}

// waitPipeDone blocks the dial loop until cp starts closing (its close
// signal is raised), so a redial never races ahead of its
// predecessor's teardown, or until the endpoint itself is closed.
func (ep *Endpoint) waitPipeDone(cp *pipe) {
	select {
	case <-cp.sig.C():
	case <-ep.ctx.Done():
	}
}

// Close stops this endpoint's supervisor loop, closes the listener (if
// any) so a blocked Accept unblocks, and joins the goroutine. A
// dialer has no Close of its own; a Dial already in progress runs to
// completion first. It is idempotent.
func (ep *Endpoint) Close() {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}
	ep.closed = true
	ep.mu.Unlock()

	ep.cancel()
	if ep.listener != nil {
		_ = ep.listener.Close()
	}
	_ = ep.grp.Wait()
	ep.sock.unregisterEndpoint(ep.eid)
}
