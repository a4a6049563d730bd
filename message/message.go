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

// Package message implements the length-delimited buffer that moves
// between sockets, filters, and transports. A Message has two
// independent regions, Header and Body; protocols grow and shrink
// either region without touching the other.
package message

// Message carries application payload (Body) and protocol-private
// framing (Header) between a socket's queues, its protocol's filters,
// and a pipe's transport I/O. At any instant a Message has exactly one
// owner; ownership moves by assignment, never by aliasing.
type Message struct {
	Header []byte
	Body   []byte

	// pipeID records which pipe delivered this message, for protocols
	// that need to route a reply back (see protocol/rep). Zero means
	// "not associated with any pipe" (e.g. freshly allocated by the
	// application).
	pipeID uint32
}

const minAlloc = 64

// New allocates a Message with a Body of length size (zero-filled) and
// at least that capacity. A caller building a message by appending
// (rather than writing directly into Body) wants New(0), not New(len(...)),
// since AppendBody grows onto whatever length New already gave it.
func New(size int) *Message {
	if size < 0 {
		size = 0
	}
	cap := size
	if cap < minAlloc {
		cap = minAlloc
	}
	return &Message{
		Header: make([]byte, 0, 16),
		Body:   make([]byte, size, cap),
	}
}

// PipeID returns the id of the pipe this message arrived on, or zero
// if the message did not arrive from a pipe.
func (m *Message) PipeID() uint32 {
	return m.pipeID
}

// SetPipeID tags the message with the pipe it arrived on. Only the
// core calls this, on receipt from a transport.
func (m *Message) SetPipeID(id uint32) {
	m.pipeID = id
}

// AppendHeader appends b to the end of the header region.
func (m *Message) AppendHeader(b []byte) {
	m.Header = append(m.Header, b...)
}

// PrependHeader inserts b at the start of the header region.
func (m *Message) PrependHeader(b []byte) {
	m.Header = prepend(m.Header, b)
}

// TrimHeader removes n bytes from the front of the header region. It
// panics if n exceeds the current header length, which indicates a
// protocol bug rather than a recoverable condition.
func (m *Message) TrimHeader(n int) {
	m.Header = trim(m.Header, n)
}

// AppendBody appends b to the end of the body region.
func (m *Message) AppendBody(b []byte) {
	m.Body = append(m.Body, b...)
}

// PrependBody inserts b at the start of the body region.
func (m *Message) PrependBody(b []byte) {
	m.Body = prepend(m.Body, b)
}

// TrimBody removes n bytes from the front of the body region.
func (m *Message) TrimBody(n int) {
	m.Body = trim(m.Body, n)
}

func prepend(dst, b []byte) []byte {
	out := make([]byte, 0, len(b)+len(dst))
	out = append(out, b...)
	out = append(out, dst...)
	return out
}

func trim(b []byte, n int) []byte {
	if n > len(b) {
		panic("message: trim past end of region")
	}
	return b[n:]
}

// Dup returns a deep copy of the message: byte-for-byte equal to m,
// but sharing no backing storage with it, so mutating one never
// affects the other. The pipe-of-origin tag is preserved.
func (m *Message) Dup() *Message {
	d := &Message{
		Header: make([]byte, len(m.Header)),
		Body:   make([]byte, len(m.Body)),
		pipeID: m.pipeID,
	}
	copy(d.Header, m.Header)
	copy(d.Body, m.Body)
	return d
}

// Free releases the message. Go's garbage collector reclaims the
// backing arrays; Free exists so that call sites read the same way
// the ownership-transfer discipline in spec.md describes it ("the
// filter has freed the message"), and so that a future pooled
// allocator can be dropped in without touching call sites.
func (m *Message) Free() {
}
