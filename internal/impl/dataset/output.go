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

	"github.com/redpanda-data/benthos/v4/public/service"
)

func outputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Utility").
		Summary("Verifies messages generated by a `dataset` input of the same name.").
		Description(`
Each message written is compared with the message the dataset expects at its arrival position, the first message is compared with index zero, the second with index one, and so on. The metadata field ` + "`" + IndexMetaKey + "`" + ` must match the arrival position unless the input disables it with ` + "`index_mode`" + `.

A mismatch rejects the message, which stops the ` + "`dataset`" + ` input from generating any further messages. Messages are written one at a time as verification depends on their order.`).
		Field(nameField())
}

func init() {
	err := service.RegisterOutput("dataset", outputSpec(), func(conf *service.ParsedConfig, mgr *service.Resources) (service.Output, int, error) {
		o, err := newDataSetOutput(conf, mgr)
		return o, 1, err
	})
	if err != nil {
		panic(err)
	}
}

type dataSetOutput struct {
	name string
	log  *service.Logger

	epMut sync.Mutex
	ep    *Endpoint
}

func newDataSetOutput(conf *service.ParsedConfig, mgr *service.Resources) (*dataSetOutput, error) {
	name, err := conf.FieldString(dsFieldName)
	if err != nil {
		return nil, err
	}
	return &dataSetOutput{
		name: name,
		log:  mgr.Logger(),
	}, nil
}

func (d *dataSetOutput) Connect(ctx context.Context) error {
	ep, exists := LookupEndpoint(d.name)
	if !exists {
		return fmt.Errorf("dataset %v has not been created by an input", d.name)
	}

	d.epMut.Lock()
	d.ep = ep
	d.epMut.Unlock()

	d.log.Infof("Verifying messages of dataset %v", d.name)
	return nil
}

func (d *dataSetOutput) Write(ctx context.Context, msg *service.Message) error {
	d.epMut.Lock()
	ep := d.ep
	d.epMut.Unlock()
	if ep == nil {
		return service.ErrNotConnected
	}

	if err := ep.PerformAssertions(ctx, msg); err != nil {
		return err
	}
	if received, expected := ep.Received(), ep.ExpectedCount(); received == expected {
		d.log.Infof("Dataset %v received all %v expected messages", d.name, expected)
	}
	return nil
}

func (d *dataSetOutput) Close(ctx context.Context) error {
	d.epMut.Lock()
	d.ep = nil
	d.epMut.Unlock()
	return nil
}
