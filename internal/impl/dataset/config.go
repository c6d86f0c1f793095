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
	"errors"
	"fmt"

	"github.com/redpanda-data/benthos/v4/public/bloblang"
	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	dsFieldName             = "name"
	dsFieldBody             = "body"
	dsFieldBodies           = "bodies"
	dsFieldFile             = "file"
	dsFieldFilePath         = "path"
	dsFieldFileDelimiter    = "delimiter"
	dsFieldHeaders          = "headers"
	dsFieldMapping          = "mapping"
	dsFieldSize             = "size"
	dsFieldReportCount      = "report_count"
	dsFieldProduceDelay     = "produce_delay"
	dsFieldConsumeDelay     = "consume_delay"
	dsFieldPreloadSize      = "preload_size"
	dsFieldInitialDelay     = "initial_delay"
	dsFieldMinRate          = "min_rate"
	dsFieldIndexMode        = "index_mode"
	dsFieldMaxWaitExtension = "max_wait_extension"
)

func nameField() *service.ConfigField {
	return service.NewStringField(dsFieldName).
		Description("An identifier shared by a `dataset` input and the `dataset` output that verifies its messages.").
		Example("orders_soak")
}

func dataSetFields() []*service.ConfigField {
	return []*service.ConfigField{
		nameField(),
		service.NewStringField(dsFieldBody).
			Description("A fixed body sent for every message. When none of `body`, `bodies` or `file` are set the body `" + defaultSimpleBody + "` is used.").
			Optional(),
		service.NewStringListField(dsFieldBodies).
			Description("A list of bodies, the message at index N receives the body at N modulo the length of the list. An empty list is the same as leaving the field unset.").
			Example([]string{"foo", "bar", "baz"}).
			Optional(),
		service.NewObjectField(dsFieldFile,
			service.NewStringField(dsFieldFilePath).
				Description("The path of a file read once when the input is created."),
			service.NewStringField(dsFieldFileDelimiter).
				Description("A regular expression used to split the file into bodies. When empty the whole file is a single body. Empty bodies are dropped.").
				Default("").
				Example(`\n`),
		).
			Description("Load the bodies of the dataset from a file.").
			Optional(),
		service.NewStringMapField(dsFieldHeaders).
			Description("Metadata set on every message and verified on arrival.").
			Default(map[string]any{}),
		service.NewBloblangField(dsFieldMapping).
			Description("An optional mapping applied to each message after its body and headers are set. The mapping must be deterministic as expected messages are rebuilt with it during verification.").
			Optional().
			Advanced(),
		service.NewIntField(dsFieldSize).
			Description("The number of messages to send. Defaults to 10 for a fixed body and the number of bodies otherwise.").
			Optional(),
		service.NewIntField(dsFieldReportCount).
			Description("Progress is logged every this many messages. Zero selects a fifth of the dataset size.").
			Default(0).
			Advanced(),
		service.NewDurationField(dsFieldProduceDelay).
			Description("A pause between sending each message.").
			Default("3ms"),
		service.NewDurationField(dsFieldConsumeDelay).
			Description("A pause after verifying each message, simulating a slow consumer.").
			Default("0s"),
		service.NewIntField(dsFieldPreloadSize).
			Description("A number of messages sent before the initial delay.").
			Default(0),
		service.NewDurationField(dsFieldInitialDelay).
			Description("A pause before sending messages beyond the preload.").
			Default("1s"),
		service.NewIntField(dsFieldMinRate).
			Description("When greater than zero, waiting for completion is extended for as long as at least this many messages arrive per second.").
			Default(0).
			Advanced(),
		service.NewStringEnumField(dsFieldIndexMode, string(IndexModeStrict), string(IndexModeLenient), string(IndexModeOff)).
			Description("Whether the `" + IndexMetaKey + "` metadata is required (`strict`), verified only when present (`lenient`), or neither set nor verified (`off`).").
			Default(string(IndexModeStrict)).
			Advanced(),
		service.NewDurationField(dsFieldMaxWaitExtension).
			Description("An upper bound on how long `min_rate` may extend a completion wait. Zero means no bound.").
			Default("0s").
			Advanced(),
	}
}

func dataSetFromParsed(conf *service.ParsedConfig, mgr *service.Resources) (DataSet, error) {
	var opts []Option

	if conf.Contains(dsFieldSize) {
		size, err := conf.FieldInt(dsFieldSize)
		if err != nil {
			return nil, err
		}
		if size < 0 {
			return nil, fmt.Errorf("field %v must not be negative", dsFieldSize)
		}
		opts = append(opts, WithSize(int64(size)))
	}

	reportCount, err := conf.FieldInt(dsFieldReportCount)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithReportCount(int64(reportCount)))

	headers, err := conf.FieldStringMap(dsFieldHeaders)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		h := make(map[string]any, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		opts = append(opts, WithHeaders(h))
	}

	if conf.Contains(dsFieldMapping) {
		exec, err := conf.FieldBloblang(dsFieldMapping)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithOutputTransformer(mappingTransformer(exec)))
	}

	// An unset string list parses as an empty list, so only a non-empty list
	// selects the list dataset.
	var bodies [][]byte
	if conf.Contains(dsFieldBodies) {
		bodyStrs, err := conf.FieldStringList(dsFieldBodies)
		if err != nil {
			return nil, err
		}
		for _, b := range bodyStrs {
			bodies = append(bodies, []byte(b))
		}
	}

	var set []string
	if conf.Contains(dsFieldBody) {
		set = append(set, dsFieldBody)
	}
	if len(bodies) > 0 {
		set = append(set, dsFieldBodies)
	}
	if conf.Contains(dsFieldFile) {
		set = append(set, dsFieldFile)
	}
	if len(set) > 1 {
		return nil, fmt.Errorf("only one of %v, %v or %v may be set, found %v", dsFieldBody, dsFieldBodies, dsFieldFile, set)
	}

	switch {
	case len(bodies) > 0:
		return NewListDataSet(bodies, opts...)
	case conf.Contains(dsFieldFile):
		path, err := conf.FieldString(dsFieldFile, dsFieldFilePath)
		if err != nil {
			return nil, err
		}
		delim, err := conf.FieldString(dsFieldFile, dsFieldFileDelimiter)
		if err != nil {
			return nil, err
		}
		return NewFileDataSet(mgr.FS(), path, delim, opts...)
	}

	var body []byte
	if conf.Contains(dsFieldBody) {
		b, err := conf.FieldString(dsFieldBody)
		if err != nil {
			return nil, err
		}
		body = []byte(b)
	}
	return NewSimpleDataSet(body, opts...), nil
}

func endpointConfigFromParsed(conf *service.ParsedConfig) (c EndpointConfig, err error) {
	c = NewEndpointConfig()
	if c.ProduceDelay, err = conf.FieldDuration(dsFieldProduceDelay); err != nil {
		return
	}
	if c.ConsumeDelay, err = conf.FieldDuration(dsFieldConsumeDelay); err != nil {
		return
	}
	if c.InitialDelay, err = conf.FieldDuration(dsFieldInitialDelay); err != nil {
		return
	}
	if c.MaxWaitExtension, err = conf.FieldDuration(dsFieldMaxWaitExtension); err != nil {
		return
	}

	var preload, minRate int
	if preload, err = conf.FieldInt(dsFieldPreloadSize); err != nil {
		return
	}
	if minRate, err = conf.FieldInt(dsFieldMinRate); err != nil {
		return
	}
	c.PreloadSize, c.MinRate = int64(preload), int64(minRate)

	var mode string
	if mode, err = conf.FieldString(dsFieldIndexMode); err != nil {
		return
	}
	switch c.IndexMode = IndexMode(mode); c.IndexMode {
	case IndexModeStrict, IndexModeLenient, IndexModeOff:
	default:
		err = fmt.Errorf("invalid %v: %v", dsFieldIndexMode, mode)
	}
	return
}

// mappingTransformer copies the result of a Bloblang mapping back onto the
// message being populated.
func mappingTransformer(exec *bloblang.Executor) Transformer {
	return func(msg *service.Message) error {
		res, err := msg.BloblangQuery(exec)
		if err != nil {
			return err
		}
		if res == nil {
			return errors.New("mapping deleted the message")
		}
		b, err := res.AsBytes()
		if err != nil {
			return err
		}
		msg.SetBytes(b)
		return res.MetaWalkMut(func(k string, v any) error {
			msg.MetaSetMut(k, v)
			return nil
		})
	}
}
