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
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	gmetrics "github.com/rcrowley/go-metrics"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// Reporter is invoked once for each message sent or verified.
type Reporter interface {
	Report(msg *service.Message)
}

// ReporterFunc adapts a function into a Reporter.
type ReporterFunc func(msg *service.Message)

// Report calls f.
func (f ReporterFunc) Report(msg *service.Message) {
	f(msg)
}

// throughputLogger logs progress every groupSize messages.
type throughputLogger struct {
	log       *service.Logger
	action    string
	groupSize int64

	count atomic.Int64
	meter gmetrics.Meter

	groupMut   sync.Mutex
	groupStart time.Time
}

func newThroughputLogger(log *service.Logger, action string, groupSize int64) *throughputLogger {
	if groupSize < 1 {
		groupSize = 1
	}
	return &throughputLogger{
		log:        log,
		action:     action,
		groupSize:  groupSize,
		meter:      gmetrics.NewMeter(),
		groupStart: time.Now(),
	}
}

func (t *throughputLogger) Report(*service.Message) {
	n := t.count.Add(1)
	t.meter.Mark(1)
	if n%t.groupSize != 0 {
		return
	}

	t.groupMut.Lock()
	now := time.Now()
	took := now.Sub(t.groupStart)
	t.groupStart = now
	t.groupMut.Unlock()

	var rate float64
	if secs := took.Seconds(); secs > 0 {
		rate = float64(t.groupSize) / secs
	}
	t.log.Infof(
		"%v: %v messages so far. Last group took: %v which is: %v messages per second. Average: %v",
		t.action, humanize.Comma(n), took,
		humanize.FormatFloat("#,###.##", rate),
		humanize.FormatFloat("#,###.##", t.meter.RateMean()),
	)
}

func (t *throughputLogger) Count() int64 {
	return t.count.Load()
}

func (t *throughputLogger) Close() {
	t.meter.Stop()
}
