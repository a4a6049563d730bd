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

package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scalenet/spmq/message"
	"github.com/scalenet/spmq/transport"
)

func TestDialListenHandshakeAndEcho(t *testing.T) {
	tr := NewTransport()
	l, err := tr.NewListener("127.0.0.1:0", 16)
	require.NoError(t, err)
	defer l.Close()

	addr := l.(*listenerImpl).ln.Addr().String()

	acceptCh := make(chan transport.Pipe, 1)
	go func() {
		p, aerr := l.Accept()
		require.NoError(t, aerr)
		acceptCh <- p
	}()

	d, err := tr.NewDialer(addr, 48)
	require.NoError(t, err)
	client, err := d.Dial()
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, uint16(48), client.Self())
	require.Equal(t, uint16(16), client.Peer())

	acc := <-acceptCh
	defer acc.Close()
	require.Equal(t, uint16(16), acc.Self())
	require.Equal(t, uint16(48), acc.Peer())

	m := message.New(0)
	m.AppendHeader([]byte{1, 2, 3, 4})
	m.AppendBody([]byte("hello over tcp"))
	require.NoError(t, client.Send(m))

	got, err := acc.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got.Header)
	require.Equal(t, "hello over tcp", string(got.Body))
}
