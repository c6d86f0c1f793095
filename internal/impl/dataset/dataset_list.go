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
	"github.com/redpanda-data/benthos/v4/public/service"
)

// ListDataSet cycles through an ordered list of bodies. The body at index N is
// always bodies[N % len(bodies)], including indexes beyond Size.
type ListDataSet struct {
	support
	bodies [][]byte
}

// NewListDataSet creates a dataset sized to the list unless WithSize is
// provided.
func NewListDataSet(bodies [][]byte, opts ...Option) (*ListDataSet, error) {
	if len(bodies) == 0 {
		return nil, ErrEmptyDataSet
	}
	cp := make([][]byte, len(bodies))
	for i, b := range bodies {
		cp[i] = append([]byte(nil), b...)
	}
	return &ListDataSet{
		support: newSupport(int64(len(cp)), opts),
		bodies:  cp,
	}, nil
}

// Body returns the body produced for index.
func (l *ListDataSet) Body(index int64) []byte {
	return l.bodies[index%int64(len(l.bodies))]
}

// Len returns the number of distinct bodies.
func (l *ListDataSet) Len() int {
	return len(l.bodies)
}

// PopulateMessage sets the body for index and the configured headers.
func (l *ListDataSet) PopulateMessage(msg *service.Message, index int64) error {
	return l.populate(msg, l.Body(index))
}
