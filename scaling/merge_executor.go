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
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/streamnative/streamscaler/common/metric"
	time2 "github.com/streamnative/streamscaler/common/time"
	"github.com/streamnative/streamscaler/model"
)

// MergeExecutor drives the merge of an AdjacentPair against the control plane:
//
//	REQUESTED -> RETRY_WAIT -> REQUESTED ... -> SUBMITTED -> AWAITING_STABLE -> RESOLVED
//
// with any state able to end in a failure. Busy and rate limited responses share a
// single attempt counter and a single budget of Config.ModifyRetries requests.
type MergeExecutor struct {
	provider Provider
	config   Config
	log      *slog.Logger

	wait func(ctx context.Context, d time.Duration) error
}

func NewMergeExecutor(provider Provider, config Config) (*MergeExecutor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid merge configuration")
	}

	return &MergeExecutor{
		provider: provider,
		config:   config,
		log: slog.With(
			slog.String("component", "merge-executor"),
		),
		wait: time2.Sleep,
	}, nil
}

var (
	mergeLatency = metric.NewLatencyHistogramVec("streamscaler_merge_latency",
		"The time it takes to merge two shards and resolve the child shard", nil, "stream")
	mergeRequests = metric.NewCounterVec("streamscaler_merge_requests",
		"The number of merge requests sent to the control plane, by outcome", metric.Dimensionless, nil, "stream", "outcome")
	mergeFailures = metric.NewCounterVec("streamscaler_merge_failures",
		"The number of merges that did not complete, by failure kind", metric.Dimensionless, nil, "stream", "kind")
)

// mergeMetrics binds the shared instruments to the stream of one merge.
type mergeMetrics struct {
	stream  string
	latency metric.LatencyHistogram
}

func newMergeMetrics(stream string) *mergeMetrics {
	return &mergeMetrics{
		stream:  stream,
		latency: mergeLatency.With(stream),
	}
}

func (m *mergeMetrics) request(status CallStatus) {
	mergeRequests.With(m.stream, status.String()).Inc()
}

func (m *mergeMetrics) failure(kind error) {
	mergeFailures.With(m.stream, kindLabel(kind)).Inc()
}

// Merge runs the merge protocol for the pair and returns the child shard. Every failure
// is a *MergeError, except for the cancellation of ctx during a retry wait.
func (e *MergeExecutor) Merge(ctx context.Context, pair *AdjacentPair) (model.ShardRef, error) {
	log := e.log.With(
		slog.String("merge-id", uuid.NewString()),
		slog.String("stream", pair.streamName),
		slog.String("lower", pair.lower.ShardId),
		slog.String("higher", pair.higher.ShardId),
	)
	metrics := newMergeMetrics(pair.streamName)
	timer := metrics.latency.Timer()

	child, err := e.merge(ctx, log, pair, metrics)
	if err != nil {
		var me *MergeError
		if errors.As(err, &me) {
			metrics.failure(me.Kind)
		} else {
			metrics.failure(err)
		}
		log.Warn(
			"Failed to merge shards",
			slog.Any("error", err),
		)
		return model.ShardRef{}, err
	}

	timer.Done()
	log.Info(
		"Merged shards",
		slog.String("child", child.ShardId),
		slog.Any("hash-range", child.HashRange),
	)
	return child, nil
}

func (e *MergeExecutor) merge(ctx context.Context, log *slog.Logger, pair *AdjacentPair, metrics *mergeMetrics) (model.ShardRef, error) {
	attempts, err := e.submit(ctx, log, pair, metrics)
	if err != nil {
		return model.ShardRef{}, err
	}

	log.Debug(
		"Merge submitted, waiting for the stream to become active",
		slog.Int("attempts", attempts),
	)
	if err := e.provider.WaitForStreamStatus(ctx, pair.streamName, model.StreamStatusActive); err != nil {
		return model.ShardRef{}, newMergeError(ErrStreamNotStable, pair, attempts, err)
	}

	openShards, err := e.provider.ListOpenShards(ctx, pair.streamName)
	if err != nil {
		return model.ShardRef{}, newMergeError(ErrChildShardNotFound, pair, attempts,
			errors.Wrap(err, "failed to list open shards"))
	}

	child, matches := resolveChild(openShards, pair.lower.ShardId, pair.higher.ShardId)
	switch {
	case matches == 0:
		return model.ShardRef{}, newMergeError(ErrChildShardNotFound, pair, attempts,
			errors.Errorf("none of the %d open shards descends from both shards", len(openShards)))
	case matches > 1:
		log.Warn(
			"Multiple open shards carry the lineage of the merge, using the lowest shard id",
			slog.Int("matches", matches),
			slog.String("child", child.ShardId),
		)
	}
	return child, nil
}

// submit issues merge requests until one is accepted and returns the number of
// attempts it took.
func (e *MergeExecutor) submit(ctx context.Context, log *slog.Logger, pair *AdjacentPair, metrics *mergeMetrics) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.config.ModifyRetries; attempt++ {
		status, err := e.provider.MergeShards(ctx, pair.streamName, pair.lower.ShardId, pair.higher.ShardId)
		metrics.request(status)

		var wait time.Duration
		switch status {
		case CallOK:
			return attempt, nil
		case CallBusy:
			wait = e.config.BusyRetryInterval
		case CallRateLimited:
			wait = e.config.rateLimitWait(attempt)
		default:
			if err == nil {
				err = errors.New("unknown merge failure")
			}
			return attempt, newMergeError(ErrMergeFailed, pair, attempt, err)
		}

		lastErr = err
		if attempt == e.config.ModifyRetries {
			break
		}

		log.Info(
			"Merge request was not accepted, retrying later",
			slog.String("outcome", status.String()),
			slog.Int("attempt", attempt),
			slog.Duration("retry-after", wait),
			slog.Any("error", err),
		)
		if err := e.wait(ctx, wait); err != nil {
			return attempt, errors.Wrapf(err, "merge of %s and %s interrupted", pair.lower.ShardId, pair.higher.ShardId)
		}
	}

	return e.config.ModifyRetries, newMergeError(ErrRetriesExhausted, pair, e.config.ModifyRetries, lastErr)
}

// resolveChild looks for the open shard whose parent is lower and whose adjacent parent
// is higher. The control plane produces exactly one such shard per merge; when more
// than one is listed the lowest shard id is returned along with the number of matches.
func resolveChild(openShards map[string]model.ShardRef, lower, higher string) (model.ShardRef, int) {
	var matches []model.ShardRef
	for _, shard := range openShards {
		if shard.IsChildOf(lower, higher) {
			matches = append(matches, shard)
		}
	}

	if len(matches) == 0 {
		return model.ShardRef{}, 0
	}

	slices.SortFunc(matches, func(a, b model.ShardRef) int {
		return strings.Compare(a.ShardId, b.ShardId)
	})
	return matches[0], len(matches)
}
