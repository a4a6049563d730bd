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

package spmq_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scalenet/spmq"
)

var addrCounter atomic.Uint64

func nextInprocAddr() string {
	return fmt.Sprintf("inproc://itest/%d", addrCounter.Add(1))
}

// TestPairEchoOverTCP is scenario S1 run over a real socket, to catch
// framing bugs invisible to the zero-copy inproc transport.
func TestPairEchoOverTCP(t *testing.T) {
	rt := spmq.NewRuntime()
	addr := "tcp://127.0.0.1:18931"

	srv, err := rt.NewPair()
	require.NoError(t, err)
	defer srv.Close()
	require.NoError(t, srv.Listen(addr))

	cli, err := rt.NewPair()
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Dial(addr))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, srv.SendString("hello"))
	m, err := cli.Recv()
	require.NoError(t, err)
	require.Equal(t, "hello", string(m.Body))
}

// TestPairExclusion is scenario S2: a third PAIR peer dialing an
// already-paired socket is rejected, and the original pair keeps
// working.
func TestPairExclusion(t *testing.T) {
	rt := spmq.NewRuntime()
	addr := nextInprocAddr()

	a, err := rt.NewPair()
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Listen(addr))

	b, err := rt.NewPair()
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Dial(addr))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.SendString("first"))
	m, err := a.Recv()
	require.NoError(t, err)
	require.Equal(t, "first", string(m.Body))

	c, err := rt.NewPair()
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Dial(addr))
	time.Sleep(20 * time.Millisecond)

	// B ↔ A traffic is unaffected by C's rejected connection attempt.
	require.NoError(t, b.SendString("still working"))
	m, err = a.Recv()
	require.NoError(t, err)
	require.Equal(t, "still working", string(m.Body))
}

// TestReqRepOverTCP is scenario S3 run over a real socket.
func TestReqRepOverTCP(t *testing.T) {
	rt := spmq.NewRuntime()
	addr := "tcp://127.0.0.1:18932"

	s, err := rt.NewRep()
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Listen(addr))

	c, err := rt.NewReq()
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Dial(addr))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.SendString("hi"))
	m, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "hi", string(m.Body))

	m.Body = []byte("there")
	require.NoError(t, s.Send(m))

	reply, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, "there", string(reply.Body))
}

// TestPairCloseRace is scenario S6: many concurrent senders on a PAIR
// socket that the test closes mid-flight. Every send must return
// rather than hang or panic; which result each send gets is not
// checked.
func TestPairCloseRace(t *testing.T) {
	rt := spmq.NewRuntime()
	addr := nextInprocAddr()

	a, err := rt.NewPair()
	require.NoError(t, err)
	require.NoError(t, a.Listen(addr))

	b, err := rt.NewPair()
	require.NoError(t, err)
	require.NoError(t, b.Dial(addr))
	defer b.Close()

	time.Sleep(20 * time.Millisecond)

	const senders = 200
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func(n int) {
			defer wg.Done()
			_ = a.SendString(fmt.Sprintf("msg-%d", n))
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, a.Close())
	wg.Wait()
}
