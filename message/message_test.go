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

package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	m := New(10)
	require.Len(t, m.Body, 10)
	require.Len(t, m.Header, 0)
}

func TestHeaderPrependAppend(t *testing.T) {
	m := New(0)
	m.AppendHeader([]byte{1, 2, 3})
	m.PrependHeader([]byte{0})
	require.Equal(t, []byte{0, 1, 2, 3}, m.Header)
}

func TestBodyPrependAppendTrim(t *testing.T) {
	m := New(0)
	m.AppendBody([]byte{1, 2, 3})
	m.PrependBody([]byte{0})
	require.Equal(t, []byte{0, 1, 2, 3}, m.Body)
	m.TrimBody(2)
	require.Equal(t, []byte{2, 3}, m.Body)
}

func TestTrimHeaderPastEndPanics(t *testing.T) {
	m := New(0)
	m.AppendHeader([]byte{1})
	require.Panics(t, func() { m.TrimHeader(2) })
}

func TestDupIsIndependent(t *testing.T) {
	m := New(0)
	m.AppendBody([]byte("hello"))
	m.AppendHeader([]byte("head"))
	m.SetPipeID(7)

	d := m.Dup()
	require.Equal(t, m.Body, d.Body)
	require.Equal(t, m.Header, d.Header)
	require.Equal(t, m.PipeID(), d.PipeID())

	d.Body[0] = 'H'
	d.Header[0] = 'H'
	require.NotEqual(t, m.Body[0], d.Body[0])
	require.NotEqual(t, m.Header[0], d.Header[0])
}
