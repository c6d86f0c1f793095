// Copyright 2024 Redpanda Data, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"sync"
)

var (
	endpointsMut sync.RWMutex
	endpoints    = map[string]*Endpoint{}
)

// RegisterEndpoint makes an endpoint available by name, replacing any
// endpoint previously registered with the same name. Endpoints stay registered
// after their input closes so that results can be inspected once a stream has
// ended, one endpoint is retained per name until it is replaced or removed
// with DeregisterEndpoint.
func RegisterEndpoint(ep *Endpoint) {
	endpointsMut.Lock()
	endpoints[ep.Name()] = ep
	endpointsMut.Unlock()
}

// LookupEndpoint returns the endpoint registered under name.
func LookupEndpoint(name string) (*Endpoint, bool) {
	endpointsMut.RLock()
	defer endpointsMut.RUnlock()
	ep, exists := endpoints[name]
	return ep, exists
}

// DeregisterEndpoint removes ep, unless it has since been replaced.
func DeregisterEndpoint(ep *Endpoint) {
	endpointsMut.Lock()
	if endpoints[ep.Name()] == ep {
		delete(endpoints, ep.Name())
	}
	endpointsMut.Unlock()
}
