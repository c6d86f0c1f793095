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
	"sync"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func inputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Utility").
		Summary("Generates a deterministic sequence of messages that a `dataset` output of the same name verifies.").
		Description(`
Each message is populated from a dataset (a fixed body, a list of bodies, or bodies split out of a file) and stamped with its zero-based position in the metadata field ` + "`" + IndexMetaKey + "`" + `. Messages are sent one at a time and the next message is only created once the previous one has been acknowledged, so the order in which they reach the output matches their index.

Once every message has been sent the input closes, which gracefully terminates the stream. A rejected message stops generation permanently.

The ` + "`dataset`" + ` output with the same ` + "`name`" + ` rebuilds the expected message for each arrival and fails loudly on the first difference.`).
		Fields(dataSetFields()...).
		Example("Soak a pipeline", "Send a thousand fixed messages through a pipeline and verify that they arrive unchanged.", `
input:
  dataset:
    name: soak
    body: '{"id":"static"}'
    size: 1000
    produce_delay: 0s
    initial_delay: 0s

output:
  dataset:
    name: soak
`)
}

func init() {
	err := service.RegisterInput("dataset", inputSpec(), func(conf *service.ParsedConfig, mgr *service.Resources) (service.Input, error) {
		return newDataSetInput(conf, mgr)
	})
	if err != nil {
		panic(err)
	}
}

type pendingMessage struct {
	msg *service.Message
	res chan error
}

type dataSetInput struct {
	ep       *Endpoint
	consumer *Consumer
	log      *service.Logger

	msgChan   chan pendingMessage
	closeOnce sync.Once
	closing   chan struct{}
}

func newDataSetInput(conf *service.ParsedConfig, mgr *service.Resources) (*dataSetInput, error) {
	name, err := conf.FieldString(dsFieldName)
	if err != nil {
		return nil, err
	}
	ds, err := dataSetFromParsed(conf, mgr)
	if err != nil {
		return nil, err
	}
	epConf, err := endpointConfigFromParsed(conf)
	if err != nil {
		return nil, err
	}

	d := &dataSetInput{
		ep:      NewEndpoint(name, ds, epConf, mgr),
		log:     mgr.Logger(),
		msgChan: make(chan pendingMessage),
		closing: make(chan struct{}),
	}
	d.consumer = NewConsumer(d.ep, ProcessorFunc(d.handOff), mgr)
	RegisterEndpoint(d.ep)
	return d, nil
}

// handOff blocks until the message has been read and acknowledged.
func (d *dataSetInput) handOff(ctx context.Context, msg *service.Message) error {
	p := pendingMessage{msg: msg, res: make(chan error, 1)}
	select {
	case d.msgChan <- p:
	case <-d.closing:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-p.res:
		return err
	case <-d.closing:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dataSetInput) Connect(ctx context.Context) error {
	d.ep.Start()
	d.consumer.Start()
	return nil
}

func (d *dataSetInput) Read(ctx context.Context) (*service.Message, service.AckFunc, error) {
	select {
	case p := <-d.msgChan:
		return p.msg, func(ctx context.Context, err error) error {
			p.res <- err
			return nil
		}, nil
	case <-d.consumer.Done():
		if err := d.consumer.Err(); err != nil {
			d.log.Warnf("Dataset %v ended early after %v of %v messages: %v", d.ep.Name(), d.consumer.Sent(), d.ep.DataSet().Size(), err)
		} else {
			d.log.Infof("Dataset %v finished after sending %v messages", d.ep.Name(), d.consumer.Sent())
		}
		return nil, nil, service.ErrEndOfInput
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (d *dataSetInput) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		close(d.closing)
	})
	err := d.consumer.Stop(ctx)
	d.ep.Stop()
	return err
}
