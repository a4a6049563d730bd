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
	"time"

	"github.com/scalenet/spmq/protocol"
)

// Generic option names every Socket understands directly, before
// falling back to the bound Middleware — spec.md §6's option surface.
const (
	OptionSendDeadline  = "socket.send-deadline"
	OptionRecvDeadline  = "socket.recv-deadline"
	OptionLinger        = "socket.linger"
	OptionReconnectMin  = "socket.reconnect-min"
	OptionReconnectMax  = "socket.reconnect-max"
	OptionWriteQueueLen = "socket.write-queue-len"
	OptionReadQueueLen  = "socket.read-queue-len"
	OptionBestEffort    = "socket.best-effort"
)

// SetOption handles the generic options itself; anything it doesn't
// recognize is delegated to the Middleware, so a pattern's own
// options (e.g. REQ's resend-time) are reachable through the same
// call.
func (s *Socket) SetOption(name string, value interface{}) error {
	switch name {
	case OptionSendDeadline:
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %s wants a time.Duration", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.sndTimeout = d
		s.mu.Unlock()
		return nil
	case OptionRecvDeadline:
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %s wants a time.Duration", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.rcvTimeout = d
		s.mu.Unlock()
		return nil
	case OptionLinger:
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %s wants a time.Duration", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.linger = d
		s.mu.Unlock()
		return nil
	case OptionReconnectMin:
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %s wants a time.Duration", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.reconnMin = d
		s.mu.Unlock()
		return nil
	case OptionReconnectMax:
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %s wants a time.Duration", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.reconnMax = d
		s.mu.Unlock()
		return nil
	case OptionWriteQueueLen:
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: %s wants an int", protocol.ErrBadValue, name)
		}
		s.uwq.Resize(n)
		return nil
	case OptionReadQueueLen:
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: %s wants an int", protocol.ErrBadValue, name)
		}
		s.urq.Resize(n)
		return nil
	case OptionBestEffort:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants a bool", protocol.ErrBadValue, name)
		}
		s.mu.Lock()
		s.bestEffort = b
		s.mu.Unlock()
		return nil
	}
	return s.mw.SetOption(name, value)
}

// GetOption mirrors SetOption's generic/delegated split.
func (s *Socket) GetOption(name string) (interface{}, error) {
	switch name {
	case OptionSendDeadline:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.sndTimeout, nil
	case OptionRecvDeadline:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rcvTimeout, nil
	case OptionLinger:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.linger, nil
	case OptionReconnectMin:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.reconnMin, nil
	case OptionReconnectMax:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.reconnMax, nil
	case OptionWriteQueueLen:
		return s.uwq.Cap(), nil
	case OptionReadQueueLen:
		return s.urq.Cap(), nil
	case OptionBestEffort:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.bestEffort, nil
	}
	return s.mw.GetOption(name)
}

// sendDeadline/recvDeadline turn the configured timeout (zero means
// "wait forever") into an absolute time.Time for queue.Queue's Put/Get.
func (s *Socket) sendDeadline() time.Time {
	s.mu.Lock()
	d := s.sndTimeout
	s.mu.Unlock()
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func (s *Socket) recvDeadline() time.Time {
	s.mu.Lock()
	d := s.rcvTimeout
	s.mu.Unlock()
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

