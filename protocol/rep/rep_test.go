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

package rep_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scalenet/spmq/core"
	itest "github.com/scalenet/spmq/internal/test"
	"github.com/scalenet/spmq/protocol/rep"
	"github.com/scalenet/spmq/protocol/req"
	"github.com/scalenet/spmq/transport/inproc"
)

// TestRepFanInNoCrossDelivery is SPEC_FULL.md §8's additional REP
// property: two REQ sockets talking concurrently to one REP socket
// never get each other's reply, because the backtrace frame routes
// each reply to the pipe it came from.
func TestRepFanInNoCrossDelivery(t *testing.T) {
	rt := core.NewRuntime()
	tr := inproc.NewTransport()
	addr := itest.AddrTestInp()

	srv, err := rt.NewSocket(rep.NewProtocol())
	require.NoError(t, err)
	defer srv.Close()
	_, err = core.ListenEndpoint(srv, tr, addr)
	require.NoError(t, err)

	c1, err := rt.NewSocket(req.NewProtocol())
	require.NoError(t, err)
	defer c1.Close()
	_, err = core.DialEndpoint(c1, tr, addr)
	require.NoError(t, err)

	c2, err := rt.NewSocket(req.NewProtocol())
	require.NoError(t, err)
	defer c2.Close()
	_, err = core.DialEndpoint(c2, tr, addr)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	itest.MustSendString(t, c1.Send, "from-c1")
	itest.MustSendString(t, c2.Send, "from-c2")

	for i := 0; i < 2; i++ {
		msg, err := srv.Recv()
		require.NoError(t, err)
		reply := "reply-to-" + string(msg.Body)
		msg.Body = []byte(reply)
		require.NoError(t, srv.Send(msg))
	}

	got1, err := c1.Recv()
	require.NoError(t, err)
	require.Equal(t, "reply-to-from-c1", string(got1.Body))

	got2, err := c2.Recv()
	require.NoError(t, err)
	require.Equal(t, "reply-to-from-c2", string(got2.Body))
}
