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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpanda-data/benthos/v4/public/service"
)

type recordedMessage struct {
	index int64
	body  string
	at    time.Time
}

type recordingProcessor struct {
	mut  sync.Mutex
	msgs []recordedMessage
	fn   func(index int64) error
}

func (r *recordingProcessor) Process(ctx context.Context, msg *service.Message) error {
	index, _, err := indexFromMeta(msg)
	if err != nil {
		return err
	}
	b, err := msg.AsBytes()
	if err != nil {
		return err
	}
	r.mut.Lock()
	r.msgs = append(r.msgs, recordedMessage{index: index, body: string(b), at: time.Now()})
	r.mut.Unlock()
	if r.fn != nil {
		return r.fn(index)
	}
	return nil
}

func (r *recordingProcessor) recorded() []recordedMessage {
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]recordedMessage(nil), r.msgs...)
}

func (r *recordingProcessor) indexes() []int64 {
	var indexes []int64
	for _, m := range r.recorded() {
		indexes = append(indexes, m.index)
	}
	return indexes
}

func waitDone(t testing.TB, c *Consumer) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting for consumer")
	}
}

func TestConsumerSendsInOrder(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(5)), nil)
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()
	waitDone(t, c)

	require.NoError(t, c.Err())
	assert.Equal(t, int64(5), c.Sent())
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, proc.indexes())
	for _, m := range proc.recorded() {
		assert.Equal(t, "X", m.body)
	}
	require.NoError(t, c.Stop(t.Context()))
}

func TestConsumerIntoEndpoint(t *testing.T) {
	ds, err := NewListDataSet([][]byte{[]byte("a"), []byte("b"), []byte("c")}, WithSize(9))
	require.NoError(t, err)
	ep := testEndpoint(t, ds, nil)

	c := NewConsumer(ep, ProcessorFunc(ep.PerformAssertions), service.MockResources())
	c.Start()
	require.NoError(t, ep.AssertIsSatisfied(t.Context(), time.Second*10))
	waitDone(t, c)
	require.NoError(t, c.Err())
}

func TestConsumerStopsOnError(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(10)), nil)
	proc := &recordingProcessor{fn: func(index int64) error {
		if index == 3 {
			return errors.New("rejected")
		}
		return nil
	}}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()
	waitDone(t, c)

	require.ErrorContains(t, c.Err(), "rejected")
	require.ErrorContains(t, c.Err(), "message 3")
	assert.Equal(t, int64(3), c.Sent())
	assert.Equal(t, []int64{0, 1, 2, 3}, proc.indexes())
}

func TestConsumerPreloadAndInitialDelay(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(5)), func(c *EndpointConfig) {
		c.PreloadSize = 2
		c.InitialDelay = time.Millisecond * 200
	})
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()
	waitDone(t, c)
	require.NoError(t, c.Err())

	msgs := proc.recorded()
	require.Len(t, msgs, 5)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, proc.indexes())
	assert.GreaterOrEqual(t, msgs[2].at.Sub(msgs[1].at), time.Millisecond*200)
	assert.Less(t, msgs[1].at.Sub(msgs[0].at), time.Millisecond*200)
}

func TestConsumerPreloadLargerThanSize(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(3)), func(c *EndpointConfig) {
		c.PreloadSize = 10
	})
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()
	waitDone(t, c)
	require.NoError(t, c.Err())
	assert.Equal(t, []int64{0, 1, 2}, proc.indexes())
}

func TestConsumerInterrupt(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(2)), func(c *EndpointConfig) {
		c.ProduceDelay = time.Hour
	})
	first := make(chan struct{})
	proc := &recordingProcessor{fn: func(index int64) error {
		if index == 0 {
			close(first)
		}
		return nil
	}}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()

	select {
	case <-first:
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for first message")
	}

	// The loop may not have reached the pause yet, the wake up is buffered.
	c.Interrupt()

	waitDone(t, c)
	require.NoError(t, c.Err())
	assert.Equal(t, []int64{0, 1}, proc.indexes())
}

func TestConsumerStopDuringDelay(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(5)), func(c *EndpointConfig) {
		c.ProduceDelay = time.Hour
	})
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()

	assert.Eventually(t, func() bool {
		return len(proc.recorded()) == 1
	}, time.Second*5, time.Millisecond*10)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second*5)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Err())
	assert.Equal(t, []int64{0}, proc.indexes())
}

func TestConsumerStopDuringInitialDelay(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(5)), func(c *EndpointConfig) {
		c.InitialDelay = time.Hour
	})
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second*5)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.Empty(t, proc.recorded())
}

func TestConsumerStopBeforeStart(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X")), nil)
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	require.NoError(t, c.Stop(t.Context()))
	waitDone(t, c)

	// Starting after a stop does nothing.
	c.Start()
	assert.Empty(t, proc.recorded())
	assert.Equal(t, int64(0), c.Sent())
}

func TestConsumerHardStop(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(5)), nil)
	proc := ProcessorFunc(func(ctx context.Context, msg *service.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})

	c := NewConsumer(ep, proc, service.MockResources())
	c.Start()

	ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*50)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Err())
	assert.Equal(t, int64(0), c.Sent())
}

func TestConsumerSentDuringStart(t *testing.T) {
	ep := testEndpoint(t, NewSimpleDataSet([]byte("X"), WithSize(20)), nil)
	proc := &recordingProcessor{}

	c := NewConsumer(ep, proc, service.MockResources())
	assert.Equal(t, int64(0), c.Sent())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 100 {
			_ = c.Sent()
		}
	}()
	c.Start()
	wg.Wait()

	waitDone(t, c)
	require.NoError(t, c.Err())
	assert.Equal(t, int64(20), c.Sent())
}
