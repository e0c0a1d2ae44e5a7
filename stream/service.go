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

package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	time2 "github.com/streamnative/streamscaler/common/time"
	"github.com/streamnative/streamscaler/model"
)

const maxShardCount = 10_000

var streamNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// Service is the control plane of the streams: stream lifecycle, shard listing and
// shard merges.
type Service interface {
	io.Closer

	CreateStream(ctx context.Context, name string, shardCount int) error
	DeleteStream(ctx context.Context, name string) error
	ListStreams(ctx context.Context) ([]string, error)
	DescribeStreamSummary(ctx context.Context, name string) (model.StreamSummary, error)

	// ListShards returns every shard of the stream, open and closed.
	ListShards(ctx context.Context, name string) ([]model.ShardRef, error)

	// MergeShards merges two adjacent open shards. The child records shardToMerge as its
	// parent and adjacentShardToMerge as its adjacent parent.
	MergeShards(ctx context.Context, name string, shardToMerge string, adjacentShardToMerge string) error
}

type Options struct {
	// SettleDelay is how long a stream stays CREATING or UPDATING after a mutation.
	SettleDelay time.Duration `json:"settleDelay" yaml:"settleDelay" mapstructure:"settleDelay"`

	// Requests per second accepted for mutations and for reads. Zero means unlimited.
	MutationRate  float64 `json:"mutationRate" yaml:"mutationRate" mapstructure:"mutationRate"`
	MutationBurst int     `json:"mutationBurst" yaml:"mutationBurst" mapstructure:"mutationBurst"`
	DescribeRate  float64 `json:"describeRate" yaml:"describeRate" mapstructure:"describeRate"`
	DescribeBurst int     `json:"describeBurst" yaml:"describeBurst" mapstructure:"describeBurst"`

	Clock time2.Clock `json:"-" yaml:"-" mapstructure:"-"`
}

func NewOptions() Options {
	return Options{
		SettleDelay:   2 * time.Second,
		MutationRate:  5,
		MutationBurst: 5,
		DescribeRate:  20,
		DescribeBurst: 20,
	}
}

func newLimiter(r float64, burst int) *rate.Limiter {
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

type localService struct {
	sync.Mutex

	metadata MetadataProvider
	options  Options
	clock    time2.Clock

	mutationLimiter *rate.Limiter
	describeLimiter *rate.Limiter
	log             *slog.Logger
}

// NewLocalService returns a control plane that keeps its state in the metadata provider.
// The service owns the provider and closes it.
func NewLocalService(metadata MetadataProvider, options Options) Service {
	clock := options.Clock
	if clock == nil {
		clock = time2.SystemClock
	}

	return &localService{
		metadata:        metadata,
		options:         options,
		clock:           clock,
		mutationLimiter: newLimiter(options.MutationRate, options.MutationBurst),
		describeLimiter: newLimiter(options.DescribeRate, options.DescribeBurst),
		log: slog.With(
			slog.String("component", "stream-service"),
		),
	}
}

func (s *localService) Close() error {
	return s.metadata.Close()
}

func (s *localService) admit(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !limiter.AllowN(s.clock.Now(), 1) {
		return ErrorLimitExceeded
	}
	return nil
}

// load reads the stream state, moving it to ACTIVE if its settle time has passed.
func (s *localService) load(name string) (*StreamState, Version, error) {
	if err := validateStreamName(name); err != nil {
		return nil, MetadataNotExists, err
	}

	state, version, err := s.metadata.Get(name)
	if err != nil {
		return nil, MetadataNotExists, errors.Wrapf(err, "failed to read stream %s", name)
	}
	if state == nil {
		return nil, MetadataNotExists, errorResourceNotFound("stream %s not found", name)
	}

	if (state.Status == model.StreamStatusCreating || state.Status == model.StreamStatusUpdating) &&
		!s.clock.Now().Before(state.SettlesAt) {
		state.Status = model.StreamStatusActive
		state.SettlesAt = time.Time{}
	}
	return state, version, nil
}

// Names end up in file paths and database keys.
func validateStreamName(name string) error {
	if !streamNameRegex.MatchString(name) {
		return errorInvalidArgument("invalid stream name %q", name)
	}
	return nil
}

func (s *localService) store(state *StreamState, version Version) error {
	if _, err := s.metadata.Store(state, version); err != nil {
		if errors.Is(err, ErrMetadataBadVersion) {
			return errorResourceInUse("stream %s was modified concurrently", state.Name)
		}
		return errors.Wrapf(err, "failed to store stream %s", state.Name)
	}
	return nil
}

func (s *localService) nextShardId(state *StreamState) string {
	id := fmt.Sprintf("shardId-%012d", state.ShardIdGenerator)
	state.ShardIdGenerator++
	return id
}

func (s *localService) CreateStream(ctx context.Context, name string, shardCount int) error {
	if err := s.admit(ctx, s.mutationLimiter); err != nil {
		return err
	}
	if err := validateStreamName(name); err != nil {
		return err
	}
	if shardCount < 1 || shardCount > maxShardCount {
		return errorInvalidArgument("shard count must be between 1 and %d, got %d", maxShardCount, shardCount)
	}

	s.Lock()
	defer s.Unlock()

	existing, version, err := s.metadata.Get(name)
	if err != nil {
		return errors.Wrapf(err, "failed to read stream %s", name)
	}
	if existing != nil {
		return errorResourceInUse("stream %s already exists", name)
	}

	ranges, err := model.SplitKeySpace(shardCount)
	if err != nil {
		return errorInvalidArgument("%v", err)
	}

	state := &StreamState{
		Name:      name,
		Status:    model.StreamStatusCreating,
		SettlesAt: s.clock.Now().Add(s.options.SettleDelay),
		Shards:    make([]model.ShardRef, 0, shardCount),
	}
	for _, hr := range ranges {
		state.Shards = append(state.Shards, model.ShardRef{
			StreamName: name,
			ShardId:    s.nextShardId(state),
			HashRange:  hr,
			Status:     model.ShardStatusOpen,
		})
	}

	if err := s.store(state, version); err != nil {
		return err
	}

	s.log.Info(
		"Created stream",
		slog.String("stream", name),
		slog.Int("shards", shardCount),
	)
	return nil
}

func (s *localService) DeleteStream(ctx context.Context, name string) error {
	if err := s.admit(ctx, s.mutationLimiter); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	state, version, err := s.load(name)
	if err != nil {
		return err
	}
	if state.Status != model.StreamStatusActive {
		return errorResourceInUse("stream %s is %s", name, state.Status)
	}

	if err := s.metadata.Delete(name, version); err != nil {
		if errors.Is(err, ErrMetadataBadVersion) {
			return errorResourceInUse("stream %s was modified concurrently", name)
		}
		return errors.Wrapf(err, "failed to delete stream %s", name)
	}

	s.log.Info(
		"Deleted stream",
		slog.String("stream", name),
	)
	return nil
}

func (s *localService) ListStreams(ctx context.Context) ([]string, error) {
	if err := s.admit(ctx, s.describeLimiter); err != nil {
		return nil, err
	}
	return s.metadata.List()
}

func (s *localService) DescribeStreamSummary(ctx context.Context, name string) (model.StreamSummary, error) {
	if err := s.admit(ctx, s.describeLimiter); err != nil {
		return model.StreamSummary{}, err
	}

	s.Lock()
	defer s.Unlock()

	state, _, err := s.load(name)
	if err != nil {
		return model.StreamSummary{}, err
	}

	return model.StreamSummary{
		StreamName:     name,
		Status:         state.Status,
		OpenShardCount: state.openShardCount(),
	}, nil
}

func (s *localService) ListShards(ctx context.Context, name string) ([]model.ShardRef, error) {
	if err := s.admit(ctx, s.describeLimiter); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	state, _, err := s.load(name)
	if err != nil {
		return nil, err
	}

	shards := make([]model.ShardRef, len(state.Shards))
	copy(shards, state.Shards)
	return shards, nil
}

func (s *localService) MergeShards(ctx context.Context, name string, shardToMerge string, adjacentShardToMerge string) error {
	if err := s.admit(ctx, s.mutationLimiter); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	state, version, err := s.load(name)
	if err != nil {
		return err
	}
	if state.Status != model.StreamStatusActive {
		return errorResourceInUse("stream %s is %s", name, state.Status)
	}

	i, ok := state.shard(shardToMerge)
	if !ok {
		return errorResourceNotFound("shard %s not found in stream %s", shardToMerge, name)
	}
	j, ok := state.shard(adjacentShardToMerge)
	if !ok {
		return errorResourceNotFound("shard %s not found in stream %s", adjacentShardToMerge, name)
	}

	a, b := state.Shards[i], state.Shards[j]
	if !a.IsOpen() || !b.IsOpen() {
		return errorInvalidArgument("shards %s and %s must both be open", a.ShardId, b.ShardId)
	}
	if !a.HashRange.IsAdjacentTo(b.HashRange) && !b.HashRange.IsAdjacentTo(a.HashRange) {
		return errorInvalidArgument("shards %s %s and %s %s are not adjacent",
			a.ShardId, a.HashRange, b.ShardId, b.HashRange)
	}

	child := model.ShardRef{
		StreamName:            name,
		ShardId:               s.nextShardId(state),
		HashRange:             a.HashRange.Union(b.HashRange),
		ParentShardId:         a.ShardId,
		AdjacentParentShardId: b.ShardId,
		Status:                model.ShardStatusOpen,
	}

	state.Shards[i].Status = model.ShardStatusClosed
	state.Shards[j].Status = model.ShardStatusClosed
	state.Shards = append(state.Shards, child)
	state.Status = model.StreamStatusUpdating
	state.SettlesAt = s.clock.Now().Add(s.options.SettleDelay)

	if err := s.store(state, version); err != nil {
		return err
	}

	s.log.Info(
		"Merged shards",
		slog.String("stream", name),
		slog.String("shard", a.ShardId),
		slog.String("adjacent-shard", b.ShardId),
		slog.String("child", child.ShardId),
	)
	return nil
}
