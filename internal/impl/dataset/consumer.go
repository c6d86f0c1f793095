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
	"fmt"
	"sync"
	"time"

	"github.com/Jeffail/shutdown"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// Processor receives each generated message. Process must not return until
// the message has been fully handled.
type Processor interface {
	Process(ctx context.Context, msg *service.Message) error
}

// ProcessorFunc adapts a function into a Processor.
type ProcessorFunc func(ctx context.Context, msg *service.Message) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, msg *service.Message) error {
	return f(ctx, msg)
}

var errStopped = errors.New("dataset consumer stopped")

// Consumer sends the messages of an endpoint's dataset to a processor from a
// single background goroutine, in strict index order.
type Consumer struct {
	ep   *Endpoint
	proc Processor
	log  *service.Logger

	mSent    *service.MetricCounter
	reporter *throughputLogger

	startOnce sync.Once
	shutSig   *shutdown.Signaller
	wake      chan struct{}

	errMut sync.Mutex
	err    error
}

// NewConsumer creates a consumer that feeds proc from ep.
func NewConsumer(ep *Endpoint, proc Processor, mgr *service.Resources) *Consumer {
	return &Consumer{
		ep:       ep,
		proc:     proc,
		log:      mgr.Logger(),
		mSent:    mgr.Metrics().NewCounter("dataset_sent", "dataset"),
		reporter: newThroughputLogger(mgr.Logger(), "Sent", ep.DataSet().ReportCount()),
		shutSig:  shutdown.NewSignaller(),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the generation loop. Subsequent calls do nothing.
func (c *Consumer) Start() {
	c.startOnce.Do(func() {
		go c.loop()
	})
}

// Interrupt cuts short a pending produce delay. The loop carries on with the
// next message.
func (c *Consumer) Interrupt() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the generation loop has exited.
func (c *Consumer) Done() <-chan struct{} {
	return c.shutSig.HasStoppedChan()
}

// Err returns the error that ended the generation loop, if any.
func (c *Consumer) Err() error {
	c.errMut.Lock()
	defer c.errMut.Unlock()
	return c.err
}

// Sent returns the number of messages successfully handed to the processor.
func (c *Consumer) Sent() int64 {
	return c.reporter.Count()
}

// Stop asks the loop to exit at the next message boundary and waits for it.
// When ctx ends first the in-flight message is abandoned.
func (c *Consumer) Stop(ctx context.Context) error {
	c.shutSig.TriggerSoftStop()
	c.startOnce.Do(func() {
		c.reporter.Close()
		c.shutSig.TriggerHasStopped()
	})
	select {
	case <-c.shutSig.HasStoppedChan():
		return nil
	case <-ctx.Done():
	}
	c.shutSig.TriggerHardStop()
	select {
	case <-c.shutSig.HasStoppedChan():
		return nil
	case <-time.After(time.Second):
		return ctx.Err()
	}
}

func (c *Consumer) loop() {
	defer func() {
		c.reporter.Close()
		c.shutSig.TriggerHasStopped()
	}()

	// Messages in flight are only abandoned on a hard stop.
	ctx, done := c.shutSig.HardStopCtx(context.Background())
	defer done()

	size := c.ep.DataSet().Size()
	conf := c.ep.Config()
	preload := min(conf.PreloadSize, size)

	err := c.sendMessages(ctx, 0, preload)
	if err == nil && conf.InitialDelay > 0 {
		select {
		case <-time.After(conf.InitialDelay):
		case <-c.shutSig.SoftStopChan():
			err = errStopped
		}
	}
	if err == nil {
		err = c.sendMessages(ctx, preload, size)
	}

	switch {
	case err == nil:
		c.log.Debugf("Dataset %v finished sending %v messages", c.ep.Name(), size)
	case errors.Is(err, errStopped):
		c.log.Debugf("Dataset %v stopped before sending all messages", c.ep.Name())
	default:
		c.log.Errorf("Dataset %v stopped sending messages: %v", c.ep.Name(), err)
		c.errMut.Lock()
		c.err = err
		c.errMut.Unlock()
	}
}

func (c *Consumer) sendMessages(ctx context.Context, start, end int64) error {
	delay := c.ep.Config().ProduceDelay
	for i := start; i < end; i++ {
		if c.shutSig.IsSoftStopSignalled() {
			return errStopped
		}

		msg, err := c.ep.CreateExchange(i)
		if err != nil {
			return err
		}
		if err := c.proc.Process(ctx, msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, errStopped) {
				return errStopped
			}
			return fmt.Errorf("message %v: %w", i, err)
		}
		c.mSent.Incr(1, c.ep.Name())
		c.reporter.Report(msg)

		if delay > 0 && i+1 < end {
			c.pause(ctx, delay, i+1)
		}
	}
	return nil
}

func (c *Consumer) pause(ctx context.Context, delay time.Duration, next int64) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.wake:
		c.log.Debugf("Dataset %v produce delay interrupted, continuing with message %v", c.ep.Name(), next)
	case <-c.shutSig.SoftStopChan():
	case <-ctx.Done():
	}
}
