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

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scalenet/spmq/message"
)

func TestPutGetFIFO(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		m := message.New(0)
		m.AppendBody([]byte{byte(i)})
		require.NoError(t, q.Put(m, time.Time{}))
	}
	for i := 0; i < 4; i++ {
		m, err := q.Get(time.Time{})
		require.NoError(t, err)
		require.Equal(t, byte(i), m.Body[0])
	}
}

func TestPutTimeout(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Put(message.New(0), time.Time{}))
	err := q.Put(message.New(0), time.Now().Add(20*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGetTimeout(t *testing.T) {
	q := New(1)
	_, err := q.Get(time.Now().Add(20 * time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Put(message.New(0), time.Time{}))
	q.Close()

	// Producers are rejected immediately after close, even though
	// there's still room.
	require.ErrorIs(t, q.Put(message.New(0), time.Time{}), ErrClosed)

	// Consumers drain what's already buffered first.
	_, err := q.Get(time.Time{})
	require.NoError(t, err)

	// Once drained, consumers see the close too.
	_, err = q.Get(time.Time{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseIdempotent(t *testing.T) {
	q := New(1)
	q.Close()
	q.Close()
	require.True(t, q.Closed())
}

func TestGetSigCancelled(t *testing.T) {
	q := New(0)
	sig := NewSignal()
	done := make(chan error, 1)
	go func() {
		_, err := q.GetSig(sig)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	sig.Raise()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSignalled)
	case <-time.After(time.Second):
		t.Fatal("GetSig did not wake on signal")
	}
}

func TestPutSigCancelled(t *testing.T) {
	q := New(0)
	sig := NewSignal()
	done := make(chan error, 1)
	go func() {
		err := q.PutSig(message.New(0), sig)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	sig.Raise()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSignalled)
	case <-time.After(time.Second):
		t.Fatal("PutSig did not wake on signal")
	}
}

func TestGetSigDeadlineTimesOutThenDelivers(t *testing.T) {
	q := New(1)
	sig := NewSignal()

	_, err := q.GetSigDeadline(sig, time.Now().Add(20*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)

	m := message.New(0)
	require.NoError(t, q.Put(m, time.Time{}))
	got, err := q.GetSigDeadline(sig, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Same(t, m, got)
}

func TestResizeKeepsNewest(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		m := message.New(0)
		m.AppendBody([]byte{byte(i)})
		require.NoError(t, q.Put(m, time.Time{}))
	}
	q.Resize(2)
	require.Equal(t, 2, q.Cap())
	m, err := q.Get(time.Time{})
	require.NoError(t, err)
	require.Equal(t, byte(2), m.Body[0])
}
