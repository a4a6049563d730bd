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

// Package test holds the small Must*-style assertion helpers the
// protocol test suites share, plus AddrTestInp, the inproc address
// generator every protocol test dials/listens against.
package test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/scalenet/spmq/message"
)

var inpCounter atomic.Uint64

// AddrTestInp returns a fresh inproc address, so concurrently running
// tests never collide on the same listener.
func AddrTestInp() string {
	return fmt.Sprintf("inproc://test/%d", inpCounter.Add(1))
}

// MustSucceed fails the test immediately if err is non-nil.
func MustSucceed(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// MustFail fails the test if err is nil.
func MustFail(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil")
	}
}

// MustBeError fails the test unless err wraps want.
func MustBeError(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected error %v, got %v", want, err)
	}
}

// MustBeTrue fails the test if b is false.
func MustBeTrue(t *testing.T, b bool) {
	t.Helper()
	if !b {
		t.Fatalf("expected true")
	}
}

// MustBeFalse fails the test if b is true.
func MustBeFalse(t *testing.T, b bool) {
	t.Helper()
	if b {
		t.Fatalf("expected false")
	}
}

// MustBeNil fails the test if v is a non-nil error-shaped value.
func MustBeNil(t *testing.T, v interface{}) {
	t.Helper()
	if v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

// MustSendString builds a single-body message from s and sends it.
func MustSendString(t *testing.T, send func(*message.Message) error, s string) {
	t.Helper()
	m := message.New(0)
	m.AppendBody([]byte(s))
	MustSucceed(t, send(m))
}

// MustRecvString receives a message and asserts its body equals want.
func MustRecvString(t *testing.T, recv func() (*message.Message, error), want string) {
	t.Helper()
	m, err := recv()
	MustSucceed(t, err)
	if string(m.Body) != want {
		t.Fatalf("got body %q, want %q", m.Body, want)
	}
}
