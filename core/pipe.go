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
	"sync"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/queue"
	"github.com/scalenet/spmq/transport"
)

// pipeState tracks the state machine from spec.md §4.2:
// new -> started -> closing -> reaped -> destroyed.
type pipeState int

const (
	pipeNew pipeState = iota
	pipeStarted
	pipeClosing
	pipeReaped
	pipeDestroyed
)

// pipe is the core's realization of a single live peer connection. It
// implements protocol.Pipe, the interface patterns use to talk to it.
// Every field below pipeState's guard is touched only under sock.mu,
// per spec.md §5.
type pipe struct {
	id uint32
	tp transport.Pipe

	sock *Socket
	ep   *Endpoint

	sig *queue.Signal
	wg  sync.WaitGroup // per-pipe worker goroutines

	binding protocol.PipeBinding

	state pipeState // guarded by sock.mu
}

var _ protocol.Pipe = (*pipe)(nil)

func (p *pipe) ID() uint32 { return p.id }

func (p *pipe) Send(m *message.Message) error {
	return p.tp.Send(m)
}

func (p *pipe) Recv() (*message.Message, error) {
	m, err := p.tp.Recv()
	if err != nil {
		return nil, err
	}
	m.SetPipeID(p.id)
	return m, nil
}

func (p *pipe) Peer() uint16 { return p.tp.Peer() }
func (p *pipe) Self() uint16 { return p.tp.Self() }

func (p *pipe) Signal() *queue.Signal { return p.sig }

// Close is idempotent: it raises the close signal so blocked workers
// wake, closes the transport so in-flight I/O fails, and hands the
// pipe to the socket's reaper.
func (p *pipe) Close() error {
	p.sock.mu.Lock()
	switch p.state {
	case pipeClosing, pipeReaped, pipeDestroyed:
		p.sock.mu.Unlock()
		return nil
	}
	p.state = pipeClosing
	p.sock.mu.Unlock()

	p.sig.Raise()
	_ = p.tp.Close()

	p.sock.reapPipe(p)
	return nil
}
