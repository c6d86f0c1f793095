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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// IndexMode controls how the index metadata is stamped and verified.
type IndexMode string

const (
	// IndexModeStrict stamps the index and requires it on every received
	// message.
	IndexModeStrict IndexMode = "strict"
	// IndexModeLenient stamps the index and verifies it only when present.
	IndexModeLenient IndexMode = "lenient"
	// IndexModeOff neither stamps nor verifies the index.
	IndexModeOff IndexMode = "off"
)

const (
	// rateWindow is the interval over which MinRate is measured.
	rateWindow = time.Second

	defaultWaitTimeout = 10 * time.Second
)

// EndpointConfig holds the timing knobs of an Endpoint.
type EndpointConfig struct {
	ProduceDelay time.Duration
	ConsumeDelay time.Duration
	PreloadSize  int64
	InitialDelay time.Duration
	MinRate      int64
	IndexMode    IndexMode

	// MaxWaitExtension caps how long MinRate may extend a completion wait,
	// zero means no cap.
	MaxWaitExtension time.Duration
}

// NewEndpointConfig returns an EndpointConfig with default values.
func NewEndpointConfig() EndpointConfig {
	return EndpointConfig{
		ProduceDelay: 3 * time.Millisecond,
		InitialDelay: time.Second,
		IndexMode:    IndexModeStrict,
	}
}

// Endpoint synthesises the expected message for any index and verifies
// received messages against them in arrival order.
type Endpoint struct {
	name string
	ds   DataSet
	conf EndpointConfig
	log  *service.Logger

	mReceived *service.MetricCounter
	mMismatch *service.MetricCounter

	received atomic.Int64
	expected atomic.Int64

	reporterMut sync.Mutex
	reporter    Reporter
	ownReporter *throughputLogger

	// arrived is closed and replaced each time a message is verified.
	arrivedMut sync.Mutex
	arrived    chan struct{}
	failure    error
}

// NewEndpoint creates an endpoint for a dataset.
func NewEndpoint(name string, ds DataSet, conf EndpointConfig, mgr *service.Resources) *Endpoint {
	if conf.IndexMode == "" {
		conf.IndexMode = IndexModeStrict
	}
	return &Endpoint{
		name:      name,
		ds:        ds,
		conf:      conf,
		log:       mgr.Logger(),
		mReceived: mgr.Metrics().NewCounter("dataset_received", "dataset"),
		mMismatch: mgr.Metrics().NewCounter("dataset_mismatch", "dataset"),
		arrived:   make(chan struct{}),
	}
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string {
	return e.name
}

// DataSet returns the dataset of the endpoint.
func (e *Endpoint) DataSet() DataSet {
	return e.ds
}

// Config returns the endpoint configuration.
func (e *Endpoint) Config() EndpointConfig {
	return e.conf
}

// Received returns the number of messages verified since the last reset.
func (e *Endpoint) Received() int64 {
	return e.received.Load()
}

// ExpectedCount returns the number of messages expected, set by Start.
func (e *Endpoint) ExpectedCount() int64 {
	return e.expected.Load()
}

// Failure returns the first verification failure since the last reset.
func (e *Endpoint) Failure() error {
	e.arrivedMut.Lock()
	defer e.arrivedMut.Unlock()
	return e.failure
}

// SetReporter replaces the reporter invoked for each verified message. It
// must be called before Start in order to prevent the default reporter.
func (e *Endpoint) SetReporter(r Reporter) {
	e.reporterMut.Lock()
	e.reporter = r
	e.reporterMut.Unlock()
}

// Start sets the expected count and installs a throughput logger when no
// reporter was provided.
func (e *Endpoint) Start() {
	e.expected.Store(e.ds.Size())

	e.reporterMut.Lock()
	defer e.reporterMut.Unlock()
	if e.reporter == nil {
		e.ownReporter = newThroughputLogger(e.log, "Received", e.ds.ReportCount())
		e.reporter = e.ownReporter
	}
}

// Stop releases resources held by the default reporter.
func (e *Endpoint) Stop() {
	e.reporterMut.Lock()
	defer e.reporterMut.Unlock()
	if e.ownReporter != nil {
		e.ownReporter.Close()
		e.ownReporter = nil
		e.reporter = nil
	}
}

// Reset zeroes the received counter and forgets any recorded failure.
func (e *Endpoint) Reset() {
	e.arrivedMut.Lock()
	e.received.Store(0)
	e.failure = nil
	e.arrivedMut.Unlock()
}

// CreateExchange returns a new message populated for index.
func (e *Endpoint) CreateExchange(index int64) (*service.Message, error) {
	msg := service.NewMessage(nil)
	if err := e.ds.PopulateMessage(msg, index); err != nil {
		return nil, fmt.Errorf("failed to populate message %v: %w", index, err)
	}
	if e.conf.IndexMode != IndexModeOff {
		msg.MetaSetMut(IndexMetaKey, index)
	}
	return msg, nil
}

// PerformAssertions verifies a received message against the expected message
// for its arrival position. Messages must therefore arrive in index order.
func (e *Endpoint) PerformAssertions(ctx context.Context, actual *service.Message) error {
	index := e.received.Add(1) - 1
	e.mReceived.Incr(1, e.name)
	defer e.notify()

	if err := e.verify(actual, index); err != nil {
		e.mMismatch.Incr(1, e.name)
		e.recordFailure(err)
		return err
	}

	e.reporterMut.Lock()
	r := e.reporter
	e.reporterMut.Unlock()
	if r != nil {
		r.Report(actual)
	}

	if e.conf.ConsumeDelay > 0 {
		select {
		case <-time.After(e.conf.ConsumeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Endpoint) verify(actual *service.Message, index int64) error {
	expected, err := e.CreateExchange(index)
	if err != nil {
		return err
	}

	if e.conf.IndexMode != IndexModeOff {
		got, exists, err := indexFromMeta(actual)
		switch {
		case err != nil:
			v, _ := actual.MetaGetMut(IndexMetaKey)
			return &MismatchError{
				Endpoint:    e.name,
				Index:       index,
				Header:      IndexMetaKey,
				Description: err.Error(),
				Expected:    index,
				Actual:      v,
				Metadata:    metadataOf(actual),
			}
		case !exists && e.conf.IndexMode == IndexModeStrict:
			return &MismatchError{
				Endpoint:    e.name,
				Index:       index,
				Header:      IndexMetaKey,
				Description: "missing header " + IndexMetaKey,
				Expected:    index,
				Actual:      nil,
				Metadata:    metadataOf(actual),
			}
		case exists && got != index:
			return &MismatchError{
				Endpoint:    e.name,
				Index:       index,
				Header:      IndexMetaKey,
				Description: "header " + IndexMetaKey,
				Expected:    index,
				Actual:      got,
				Metadata:    metadataOf(actual),
			}
		}
	}

	return e.ds.AssertMessageExpected(e.name, expected, actual, index)
}

func (e *Endpoint) recordFailure(err error) {
	e.arrivedMut.Lock()
	if e.failure == nil {
		e.failure = err
	}
	e.arrivedMut.Unlock()
}

func (e *Endpoint) notify() {
	e.arrivedMut.Lock()
	close(e.arrived)
	e.arrived = make(chan struct{})
	e.arrivedMut.Unlock()
}

// waitForCount blocks until n messages have been received, the timeout
// elapses or the context ends. Returns true when the count was reached.
func (e *Endpoint) waitForCount(ctx context.Context, n int64, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		e.arrivedMut.Lock()
		arrived := e.arrived
		e.arrivedMut.Unlock()

		if e.received.Load() >= n {
			return true, nil
		}
		select {
		case <-arrived:
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// WaitForCompleteLatch waits up to timeout for the expected count, a timeout of
// zero or less waits ten seconds. When MinRate is set the wait is then extended
// one window at a time for as long as at least MinRate messages arrive within
// each window. Without a MaxWaitExtension a sender that never slows down
// extends the wait forever.
func (e *Endpoint) WaitForCompleteLatch(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	expected := e.expected.Load()
	if _, err := e.waitForCount(ctx, expected, timeout); err != nil {
		return err
	}
	if e.conf.MinRate <= 0 {
		return nil
	}

	var deadline time.Time
	if e.conf.MaxWaitExtension > 0 {
		deadline = time.Now().Add(e.conf.MaxWaitExtension)
	}

	last := e.received.Load()
	for {
		window := rateWindow
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				e.log.Debugf("Dataset %v rate wait extension capped after %v", e.name, e.conf.MaxWaitExtension)
				return nil
			}
			window = min(window, remaining)
		}
		if _, err := e.waitForCount(ctx, expected, window); err != nil {
			return err
		}
		now := e.received.Load()
		delta := now - last
		last = now
		if delta < e.conf.MinRate {
			return nil
		}
		e.log.Debugf("Dataset %v still receiving %v messages per window, extending wait", e.name, delta)
	}
}

// AssertIsSatisfied waits like WaitForCompleteLatch and then reports the first
// verification failure combined with an ErrUnsatisfied error when the received
// count differs from the expected count.
func (e *Endpoint) AssertIsSatisfied(ctx context.Context, timeout time.Duration) error {
	if err := e.WaitForCompleteLatch(ctx, timeout); err != nil {
		return err
	}
	err := e.Failure()
	if got, exp := e.Received(), e.ExpectedCount(); got != exp {
		err = multierr.Append(err, fmt.Errorf("%w: dataset %v received %v of %v messages", ErrUnsatisfied, e.name, got, exp))
	}
	return err
}
