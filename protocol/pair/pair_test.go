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

package pair_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	itest "github.com/scalenet/spmq/internal/test"
	"github.com/scalenet/spmq/core"
	"github.com/scalenet/spmq/protocol/pair"
	"github.com/scalenet/spmq/transport/inproc"
)

func newPairSocket(t *testing.T, rt *core.Runtime) *core.Socket {
	t.Helper()
	s, err := rt.NewSocket(pair.NewProtocol())
	require.NoError(t, err)
	return s
}

func TestPairEcho(t *testing.T) {
	rt := core.NewRuntime()
	addr := itest.AddrTestInp()
	tr := inproc.NewTransport()

	srv := newPairSocket(t, rt)
	defer srv.Close()
	_, err := core.ListenEndpoint(srv, tr, addr)
	require.NoError(t, err)

	cli := newPairSocket(t, rt)
	defer cli.Close()
	_, err = core.DialEndpoint(cli, tr, addr)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	itest.MustSendString(t, cli.Send, "ping")
	itest.MustRecvString(t, srv.Recv, "ping")

	itest.MustSendString(t, srv.Send, "pong")
	itest.MustRecvString(t, cli.Recv, "pong")
}

func TestPairRejectsSecondPeer(t *testing.T) {
	rt := core.NewRuntime()
	addr := itest.AddrTestInp()
	tr := inproc.NewTransport()

	srv := newPairSocket(t, rt)
	defer srv.Close()
	_, err := core.ListenEndpoint(srv, tr, addr)
	require.NoError(t, err)

	cli1 := newPairSocket(t, rt)
	defer cli1.Close()
	_, err = core.DialEndpoint(cli1, tr, addr)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	itest.MustSendString(t, cli1.Send, "hello")
	itest.MustRecvString(t, srv.Recv, "hello")

	// A second connection attempt against the same server is refused
	// at pipe_add (EBUSY) since PAIR is strictly 1:1; the first
	// session must continue to work afterward.
	cli2 := newPairSocket(t, rt)
	defer cli2.Close()
	_, err = core.DialEndpoint(cli2, tr, addr)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	itest.MustSendString(t, cli1.Send, "still here")
	itest.MustRecvString(t, srv.Recv, "still here")
}
