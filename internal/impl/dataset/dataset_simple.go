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

// SimpleDataSet produces the same body for every index.
type SimpleDataSet struct {
	support
	body []byte
}

// NewSimpleDataSet creates a dataset of ten copies of body unless WithSize is
// provided. A nil body selects a default payload.
func NewSimpleDataSet(body []byte, opts ...Option) *SimpleDataSet {
	if body == nil {
		body = []byte(defaultSimpleBody)
	}
	return &SimpleDataSet{
		support: newSupport(defaultSimpleSize, opts),
		body:    append([]byte(nil), body...),
	}
}

// PopulateMessage sets the fixed body and headers.
func (s *SimpleDataSet) PopulateMessage(msg *service.Message, _ int64) error {
	return s.populate(msg, s.body)
}
