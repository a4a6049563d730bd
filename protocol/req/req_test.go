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

package req_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scalenet/spmq/core"
	itest "github.com/scalenet/spmq/internal/test"
	"github.com/scalenet/spmq/protocol"
	"github.com/scalenet/spmq/protocol/rep"
	"github.com/scalenet/spmq/protocol/req"
	"github.com/scalenet/spmq/transport/inproc"
)

func connectReqRep(t *testing.T) (*core.Socket, *core.Socket) {
	t.Helper()
	rt := core.NewRuntime()
	tr := inproc.NewTransport()
	addr := itest.AddrTestInp()

	c, err := rt.NewSocket(req.NewProtocol())
	require.NoError(t, err)
	s, err := rt.NewSocket(rep.NewProtocol())
	require.NoError(t, err)

	_, err = core.ListenEndpoint(s, tr, addr)
	require.NoError(t, err)
	_, err = core.DialEndpoint(c, tr, addr)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	return c, s
}

// TestReqRecvStateBeforeSend verifies invariant 4: recvmsg on a REQ
// socket with no outstanding request returns ESTATE.
func TestReqRecvStateBeforeSend(t *testing.T) {
	rt := core.NewRuntime()
	c, err := rt.NewSocket(req.NewProtocol())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Recv()
	itest.MustBeError(t, err, protocol.ErrProtoState)
}

// TestReqRepRoundTrip is scenario S3: a request/reply round trip, and
// ESTATE on a second recv with nothing outstanding. The REP side
// replies by mutating the Body of the message it received — its
// Header (the backtrace frame plus REQ's correlation id) must survive
// untouched for SendFilter to route the reply back to the right pipe.
func TestReqRepRoundTrip(t *testing.T) {
	c, s := connectReqRep(t)
	defer c.Close()
	defer s.Close()

	itest.MustSendString(t, c.Send, "ping")

	msg, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "ping", string(msg.Body))

	msg.Body = []byte("pong")
	require.NoError(t, s.Send(msg))

	itest.MustRecvString(t, c.Recv, "pong")

	_, err = c.Recv()
	require.Error(t, err)
}

// TestReqResend is scenario S4: with a short resend interval and a
// peer that never replies, the same request arrives on the REP side
// repeatedly until the test stops reading.
func TestReqResend(t *testing.T) {
	c, s := connectReqRep(t)
	defer c.Close()
	defer s.Close()

	require.NoError(t, c.SetOption("req.resend-time", 80*time.Millisecond))
	itest.MustSendString(t, c.Send, "slow")

	first, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "slow", string(first.Body))

	second, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "slow", string(second.Body))
	require.Equal(t, first.Header, second.Header)
}

// TestReqCancelBySecondSend is scenario S5: sending a new request
// before any reply arrives invalidates the first's correlation id, so
// a stale reply for it is dropped.
func TestReqCancelBySecondSend(t *testing.T) {
	c, s := connectReqRep(t)
	defer c.Close()
	defer s.Close()

	require.NoError(t, c.SetOption("req.resend-time", time.Hour))
	itest.MustSendString(t, c.Send, "first")
	firstReq, err := s.Recv()
	require.NoError(t, err)

	itest.MustSendString(t, c.Send, "second")
	secondReq, err := s.Recv()
	require.NoError(t, err)

	// Reply to the now-stale first request: REQ's recv-filter must
	// drop it silently rather than delivering it to the application.
	firstReq.Body = []byte("stale reply")
	require.NoError(t, s.Send(firstReq))

	secondReq.Body = []byte("current reply")
	require.NoError(t, s.Send(secondReq))

	itest.MustRecvString(t, c.Recv, "current reply")
}
