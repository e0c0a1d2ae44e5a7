// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metric

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var latencyBucketsMillis = []float64{
	1, 5, 10, 50, 100, 500, 1_000, 2_000, 5_000, 10_000, 30_000, 60_000, 120_000, 300_000,
}

type Counter interface {
	Inc()
	Add(incr int)
}

type counter struct {
	c     metric.Int64Counter
	attrs metric.MeasurementOption
}

func (c *counter) Inc() {
	c.Add(1)
}

func (c *counter) Add(incr int) {
	c.c.Add(context.Background(), int64(incr), c.attrs)
}

func NewCounter(name string, description string, unit Unit, labels map[string]any) Counter {
	c, err := meter.Int64Counter(name,
		metric.WithUnit(string(unit)),
		metric.WithDescription(description))
	fatalOnErr(err, name)
	return &counter{
		c:     c,
		attrs: metric.WithAttributes(getAttrs(labels)...),
	}
}

// CounterVec is a counter whose instances differ by the values of extra labels.
type CounterVec interface {
	// With binds the values, in the order of the labels given at creation.
	With(values ...string) Counter
}

type counterVec struct {
	c      metric.Int64Counter
	keys   []string
	labels []attribute.KeyValue
}

func (v *counterVec) With(values ...string) Counter {
	return &counter{
		c:     v.c,
		attrs: metric.WithAttributes(bind(v.labels, v.keys, values)...),
	}
}

func NewCounterVec(name string, description string, unit Unit, labels map[string]any, keys ...string) CounterVec {
	c, err := meter.Int64Counter(name,
		metric.WithUnit(string(unit)),
		metric.WithDescription(description))
	fatalOnErr(err, name)
	return &counterVec{
		c:      c,
		keys:   keys,
		labels: getAttrs(labels),
	}
}

func bind(labels []attribute.KeyValue, keys []string, values []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+len(keys))
	attrs = append(attrs, labels...)
	for i, k := range keys {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type Timer struct {
	histo *latencyHistogram
	start time.Time
}

func (tm Timer) Done() {
	tm.histo.h.Record(context.Background(), float64(time.Since(tm.start).Microseconds())/1000.0, tm.histo.attrs)
}

type LatencyHistogram interface {
	Timer() Timer
}

type latencyHistogram struct {
	h     metric.Float64Histogram
	attrs metric.MeasurementOption
}

func (t *latencyHistogram) Timer() Timer {
	return Timer{t, time.Now()}
}

func NewLatencyHistogram(name string, description string, labels map[string]any) LatencyHistogram {
	h, err := meter.Float64Histogram(
		name,
		metric.WithUnit(string(Milliseconds)),
		metric.WithDescription(description),
	)
	fatalOnErr(err, name)

	return &latencyHistogram{h: h, attrs: metric.WithAttributes(getAttrs(labels)...)}
}

// LatencyHistogramVec is a latency histogram whose instances differ by the values of
// extra labels.
type LatencyHistogramVec interface {
	With(values ...string) LatencyHistogram
}

type latencyHistogramVec struct {
	h      metric.Float64Histogram
	keys   []string
	labels []attribute.KeyValue
}

func (v *latencyHistogramVec) With(values ...string) LatencyHistogram {
	return &latencyHistogram{
		h:     v.h,
		attrs: metric.WithAttributes(bind(v.labels, v.keys, values)...),
	}
}

func NewLatencyHistogramVec(name string, description string, labels map[string]any, keys ...string) LatencyHistogramVec {
	h, err := meter.Float64Histogram(
		name,
		metric.WithUnit(string(Milliseconds)),
		metric.WithDescription(description),
	)
	fatalOnErr(err, name)

	return &latencyHistogramVec{h: h, keys: keys, labels: getAttrs(labels)}
}
