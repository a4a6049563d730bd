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

package spmq

import (
	"github.com/scalenet/spmq/protocol/pair"
	"github.com/scalenet/spmq/protocol/req"
	"github.com/scalenet/spmq/protocol/rep"
)

// NewPair opens a PAIR socket on the runtime.
func (r *Runtime) NewPair() (*Socket, error) {
	return r.newSocket(pair.NewProtocol())
}

// NewReq opens a REQ socket on the runtime.
func (r *Runtime) NewReq() (*Socket, error) {
	return r.newSocket(req.NewProtocol())
}

// NewRep opens a REP socket on the runtime.
func (r *Runtime) NewRep() (*Socket, error) {
	return r.newSocket(rep.NewProtocol())
}
