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

// Package dataset implements a deterministic message generator and verifier
// for exercising pipelines. A DataSet describes the message expected at each
// zero-based index, an Endpoint synthesises and verifies those messages, and a
// Consumer feeds them into a pipeline in strict index order.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// IndexMetaKey is the metadata key stamped on every generated message with its
// zero-based position within the dataset.
const IndexMetaKey = "dataset_index"

const (
	defaultSimpleBody = "<hello>world!</hello>"
	defaultSimpleSize = 10
)

var (
	// ErrMismatch is matched by every verification failure.
	ErrMismatch = errors.New("dataset message mismatch")

	// ErrUnsatisfied is returned when an endpoint did not receive the number
	// of messages it expected.
	ErrUnsatisfied = errors.New("dataset expectations not satisfied")

	// ErrEmptyDataSet is returned when a list or file dataset has no bodies.
	ErrEmptyDataSet = errors.New("dataset has no bodies")
)

// DataSet produces the message expected at a given index and decides whether
// a received message matches it.
//
// PopulateMessage must be a pure function of the index and the dataset
// configuration, verification rebuilds the expected message on demand.
type DataSet interface {
	Size() int64
	ReportCount() int64
	PopulateMessage(msg *service.Message, index int64) error
	AssertMessageExpected(endpoint string, expected, actual *service.Message, index int64) error
}

// Transformer mutates a message after its body and headers have been set.
type Transformer func(msg *service.Message) error

// Option customises the shared configuration of a DataSet.
type Option func(s *support)

// WithSize overrides the number of messages a dataset produces.
func WithSize(n int64) Option {
	return func(s *support) {
		s.size = n
	}
}

// WithReportCount sets how many messages are grouped into each progress log.
func WithReportCount(n int64) Option {
	return func(s *support) {
		s.reportCount = n
	}
}

// WithHeaders sets metadata applied to every message.
func WithHeaders(headers map[string]any) Option {
	return func(s *support) {
		s.headers = make(map[string]any, len(headers))
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

// WithOutputTransformer sets a hook that runs after the default body and
// headers are applied.
func WithOutputTransformer(fn Transformer) Option {
	return func(s *support) {
		s.transformer = fn
	}
}

// support holds the configuration shared by every dataset strategy.
type support struct {
	size        int64
	reportCount int64
	headers     map[string]any
	transformer Transformer
}

func newSupport(defaultSize int64, opts []Option) support {
	s := support{size: defaultSize}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s *support) Size() int64 {
	return s.size
}

func (s *support) ReportCount() int64 {
	if s.reportCount > 0 {
		return s.reportCount
	}
	if rc := s.size / 5; rc > 0 {
		return rc
	}
	return 1
}

func (s *support) populate(msg *service.Message, body []byte) error {
	msg.SetBytes(append([]byte(nil), body...))
	for k, v := range s.headers {
		msg.MetaSetMut(k, v)
	}
	if s.transformer != nil {
		if err := s.transformer(msg); err != nil {
			return fmt.Errorf("output transformer: %w", err)
		}
	}
	return nil
}

// AssertMessageExpected compares the body and every configured header.
func (s *support) AssertMessageExpected(endpoint string, expected, actual *service.Message, index int64) error {
	expBytes, err := expected.AsBytes()
	if err != nil {
		return err
	}
	actBytes, err := actual.AsBytes()
	if err != nil {
		return err
	}
	if exp, act := string(expBytes), string(actBytes); exp != act {
		return &MismatchError{
			Endpoint:    endpoint,
			Index:       index,
			Description: "message body",
			Expected:    exp,
			Actual:      act,
			Diff:        cmp.Diff(exp, act),
			Metadata:    metadataOf(actual),
		}
	}

	for _, k := range sortedKeys(s.headers) {
		exp, _ := expected.MetaGetMut(k)
		act, exists := actual.MetaGetMut(k)
		if !exists {
			return &MismatchError{
				Endpoint:    endpoint,
				Index:       index,
				Header:      k,
				Description: "missing header " + k,
				Expected:    exp,
				Actual:      nil,
				Metadata:    metadataOf(actual),
			}
		}
		if !cmp.Equal(exp, act) {
			return &MismatchError{
				Endpoint:    endpoint,
				Index:       index,
				Header:      k,
				Description: "header " + k,
				Expected:    exp,
				Actual:      act,
				Diff:        cmp.Diff(exp, act),
				Metadata:    metadataOf(actual),
			}
		}
	}
	return nil
}

//------------------------------------------------------------------------------

// MismatchError describes the first divergence between an expected and an
// actual message.
type MismatchError struct {
	Endpoint    string
	Index       int64
	Header      string
	Description string
	Expected    any
	Actual      any
	Diff        string
	Metadata    map[string]any
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dataset %v: %v mismatch at index %v: expected %v, got %v", e.Endpoint, e.Description, e.Index, e.Expected, e.Actual)
	if len(e.Metadata) > 0 {
		fmt.Fprintf(&b, " (metadata: %v)", e.Metadata)
	}
	if e.Diff != "" {
		b.WriteString("\n")
		b.WriteString(e.Diff)
	}
	return b.String()
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

//------------------------------------------------------------------------------

func metadataOf(msg *service.Message) map[string]any {
	m := map[string]any{}
	_ = msg.MetaWalkMut(func(k string, v any) error {
		m[k] = v
		return nil
	})
	return m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// indexFromMeta extracts the index stamped on a message. Strings are accepted
// as metadata tends to be stringified when crossing a broker.
func indexFromMeta(msg *service.Message) (index int64, exists bool, err error) {
	v, exists := msg.MetaGetMut(IndexMetaKey)
	if !exists {
		return 0, false, nil
	}
	switch t := v.(type) {
	case int64:
		return t, true, nil
	case int:
		return int64(t), true, nil
	case int32:
		return int64(t), true, nil
	case uint64:
		return int64(t), true, nil
	case uint32:
		return int64(t), true, nil
	case string:
		i, perr := strconv.ParseInt(t, 10, 64)
		if perr != nil {
			return 0, true, fmt.Errorf("header %v is not an integer: %q", IndexMetaKey, t)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("header %v has unexpected type %T", IndexMetaKey, v)
}
