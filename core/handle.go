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
	"github.com/rs/zerolog"

	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/queue"
)

// Socket implements protocol.SocketHandle so a Middleware can reach
// the shared queues, the socket mutex/cond, and the asserted error
// slots without core exposing anything wider.
var _ protocol.SocketHandle = (*Socket)(nil)

func (s *Socket) UWQ() *queue.Queue { return s.uwq }
func (s *Socket) URQ() *queue.Queue { return s.urq }

// Lock/Unlock expose the socket mutex. core itself holds it for the
// duration of every SendFilter/RecvFilter call; a Middleware's own
// background workers take it explicitly.
func (s *Socket) Lock()   { s.mu.Lock() }
func (s *Socket) Unlock() { s.mu.Unlock() }

func (s *Socket) Broadcast() { s.cond.Broadcast() }
func (s *Socket) Wait()      { s.cond.Wait() }

func (s *Socket) SetSendError(err error) { s.sendErr = err }
func (s *Socket) SetRecvError(err error) { s.recvErr = err }
func (s *Socket) SendError() error       { return s.sendErr }
func (s *Socket) RecvError() error       { return s.recvErr }

func (s *Socket) Logger() *zerolog.Logger { return s.log }
