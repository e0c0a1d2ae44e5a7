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

package scaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/streamnative/streamscaler/common/logging"
	"github.com/streamnative/streamscaler/model"
)

func TestMain(m *testing.M) {
	logging.LogLevel = logging.DefaultLogLevel
	logging.ConfigureLogger()
	goleak.VerifyTestMain(m)
}

type mergeCall struct {
	stream string
	lower  string
	higher string
}

type mergeResponse struct {
	status CallStatus
	err    error
}

// mockProvider replays the scripted merge responses in order, then answers CallOK.
type mockProvider struct {
	sync.Mutex

	responses  map[string][]mergeResponse
	mergeCalls []mergeCall

	waitErr    error
	waitCalls  []model.StreamStatus
	openShards map[string]model.ShardRef
	listErr    error
	listCalls  int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		responses:  map[string][]mergeResponse{},
		openShards: map[string]model.ShardRef{},
	}
}

func (m *mockProvider) respond(lower string, responses ...mergeResponse) {
	m.Lock()
	defer m.Unlock()
	m.responses[lower] = append(m.responses[lower], responses...)
}

func (m *mockProvider) addOpenShards(shards ...model.ShardRef) {
	m.Lock()
	defer m.Unlock()
	for _, s := range shards {
		m.openShards[s.ShardId] = s
	}
}

func (m *mockProvider) calls() []mergeCall {
	m.Lock()
	defer m.Unlock()
	res := make([]mergeCall, len(m.mergeCalls))
	copy(res, m.mergeCalls)
	return res
}

func (m *mockProvider) MergeShards(_ context.Context, stream string, lower string, higher string) (CallStatus, error) {
	m.Lock()
	defer m.Unlock()

	m.mergeCalls = append(m.mergeCalls, mergeCall{stream, lower, higher})
	queue := m.responses[lower]
	if len(queue) == 0 {
		return CallOK, nil
	}
	r := queue[0]
	m.responses[lower] = queue[1:]
	return r.status, r.err
}

func (m *mockProvider) WaitForStreamStatus(_ context.Context, _ string, status model.StreamStatus) error {
	m.Lock()
	defer m.Unlock()
	m.waitCalls = append(m.waitCalls, status)
	return m.waitErr
}

func (m *mockProvider) ListOpenShards(_ context.Context, _ string) (map[string]model.ShardRef, error) {
	m.Lock()
	defer m.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	res := make(map[string]model.ShardRef, len(m.openShards))
	for k, v := range m.openShards {
		res[k] = v
	}
	return res, nil
}

/////////////////////////////////////////////////////////////////

// recordingWait replaces the retry sleep and keeps track of the requested durations.
type recordingWait struct {
	sync.Mutex
	waits []time.Duration
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.Lock()
	defer r.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func (r *recordingWait) get() []time.Duration {
	r.Lock()
	defer r.Unlock()
	res := make([]time.Duration, len(r.waits))
	copy(res, r.waits)
	return res
}

/////////////////////////////////////////////////////////////////

const testStream = "orders"

func shard(id string, start, end string) model.ShardRef {
	return model.ShardRef{
		StreamName: testStream,
		ShardId:    id,
		HashRange:  model.MustParseHashRange(start, end),
		Status:     model.ShardStatusOpen,
	}
}

func child(id string, lower, higher model.ShardRef) model.ShardRef {
	return model.ShardRef{
		StreamName:            testStream,
		ShardId:               id,
		HashRange:             lower.HashRange.Union(higher.HashRange),
		ParentShardId:         lower.ShardId,
		AdjacentParentShardId: higher.ShardId,
		Status:                model.ShardStatusOpen,
	}
}

func testConfig() Config {
	return Config{
		BaseRetry:         10 * time.Millisecond,
		ModifyRetries:     5,
		BusyRetryInterval: time.Second,
	}
}

/////////////////////////////////////////////////////////////////

// slowProvider holds every merge call for a while and records how many overlap.
type slowProvider struct {
	*mockProvider

	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func (s *slowProvider) MergeShards(ctx context.Context, stream string, lower string, higher string) (CallStatus, error) {
	s.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.Unlock()

	time.Sleep(s.delay)

	s.Lock()
	s.inFlight--
	s.Unlock()
	return s.mockProvider.MergeShards(ctx, stream, lower, higher)
}

func (s *slowProvider) peak() int {
	s.Lock()
	defer s.Unlock()
	return s.maxInFlight
}
