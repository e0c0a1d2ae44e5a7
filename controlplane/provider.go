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

package controlplane

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"
	"google.golang.org/grpc/status"

	time2 "github.com/streamnative/streamscaler/common/time"
	"github.com/streamnative/streamscaler/model"
	"github.com/streamnative/streamscaler/scaling"
	"github.com/streamnative/streamscaler/stream"
)

var ErrShardNotFound = errors.New("shard not found")

type Options struct {
	// StatusTimeout bounds the wait for a stream to reach a status.
	StatusTimeout time.Duration `json:"statusTimeout" yaml:"statusTimeout" mapstructure:"statusTimeout"`
	// PollInterval is the first delay between two status checks. It grows exponentially.
	PollInterval    time.Duration `json:"pollInterval" yaml:"pollInterval" mapstructure:"pollInterval"`
	MaxPollInterval time.Duration `json:"maxPollInterval" yaml:"maxPollInterval" mapstructure:"maxPollInterval"`
}

func NewOptions() Options {
	return Options{
		StatusTimeout:   5 * time.Minute,
		PollInterval:    500 * time.Millisecond,
		MaxPollInterval: 10 * time.Second,
	}
}

// Provider adapts a stream service to the collaborators of the merge executor.
type Provider struct {
	service stream.Service
	options Options
	log     *slog.Logger
}

var _ scaling.Provider = (*Provider)(nil)

func NewProvider(service stream.Service, options Options) *Provider {
	return &Provider{
		service: service,
		options: options,
		log: slog.With(
			slog.String("component", "control-plane-provider"),
		),
	}
}

// Classify maps a stream service error to the status understood by the merge executor.
func Classify(err error) scaling.CallStatus {
	if err == nil {
		return scaling.CallOK
	}

	switch status.Code(err) {
	case stream.CodeResourceInUse:
		return scaling.CallBusy
	case stream.CodeLimitExceeded:
		return scaling.CallRateLimited
	default:
		return scaling.CallFailed
	}
}

func (p *Provider) MergeShards(ctx context.Context, streamName string, lower string, higher string) (scaling.CallStatus, error) {
	err := p.service.MergeShards(ctx, streamName, lower, higher)
	return Classify(err), err
}

func (p *Provider) WaitForStreamStatus(ctx context.Context, streamName string, expected model.StreamStatus) error {
	bo := time2.NewBoundedBackOff(ctx, p.options.PollInterval, p.options.MaxPollInterval, p.options.StatusTimeout)
	last := model.StreamStatusUnknown
	aborted := false

	err := backoff.RetryNotify(func() error {
		summary, err := p.service.DescribeStreamSummary(ctx, streamName)
		if err != nil {
			if Classify(err) == scaling.CallRateLimited {
				return err
			}
			aborted = true
			return backoff.Permanent(err)
		}

		last = summary.Status
		if last != expected {
			return errors.Errorf("stream %s is %s", streamName, last)
		}
		return nil
	}, bo, func(err error, duration time.Duration) {
		p.log.Debug(
			"Waiting for stream status",
			slog.String("stream", streamName),
			slog.String("expected", expected.String()),
			slog.Duration("retry-after", duration),
			slog.Any("error", err),
		)
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case aborted:
		return errors.Wrapf(err, "failed to describe stream %s", streamName)
	default:
		return errors.Wrapf(scaling.ErrStreamNotStable, "stream %s is %s after %v, expected %s",
			streamName, last, p.options.StatusTimeout, expected)
	}
}

func (p *Provider) ListOpenShards(ctx context.Context, streamName string) (map[string]model.ShardRef, error) {
	shards, err := p.service.ListShards(ctx, streamName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list shards of stream %s", streamName)
	}

	open := make(map[string]model.ShardRef, len(shards))
	for _, s := range shards {
		if s.IsOpen() {
			open[s.ShardId] = s
		}
	}
	return open, nil
}

// Neighbours are the open shards whose hash ranges touch the one of Shard.
type Neighbours struct {
	Shard  model.ShardRef
	Lower  *model.ShardRef
	Higher *model.ShardRef
}

// Ranges are ordered by starting key, then by ending key.
func hashRangeComparator(a, b interface{}) int {
	x, y := a.(model.HashRange), b.(model.HashRange)
	if c := x.Compare(y); c != 0 {
		return c
	}
	return x.End().Cmp(y.End())
}

// SortByHashRange orders the shards by hash range. Shards with the same range collapse
// into one entry, which cannot happen among the open shards of a stream.
func SortByHashRange(shards map[string]model.ShardRef) *treemap.Map {
	m := treemap.NewWith(hashRangeComparator)
	for _, s := range shards {
		m.Put(s.HashRange, s)
	}
	return m
}

func (p *Provider) Neighbours(ctx context.Context, streamName string, shardId string) (Neighbours, error) {
	open, err := p.ListOpenShards(ctx, streamName)
	if err != nil {
		return Neighbours{}, err
	}

	shard, ok := open[shardId]
	if !ok {
		return Neighbours{}, errors.Wrapf(ErrShardNotFound, "no open shard %s in stream %s", shardId, streamName)
	}

	byRange := SortByHashRange(open)
	n := Neighbours{Shard: shard}
	start := shard.HashRange.Start()

	if start.Sign() > 0 {
		key, err := model.NewHashRange(new(big.Int).Sub(start, big.NewInt(1)), model.MaxHashKey)
		if err != nil {
			return Neighbours{}, errors.Wrapf(err, "invalid range below shard %s", shardId)
		}
		if _, v := byRange.Floor(key); v != nil {
			if lower := v.(model.ShardRef); lower.HashRange.IsAdjacentTo(shard.HashRange) {
				n.Lower = &lower
			}
		}
	}

	if shard.HashRange.End().Cmp(model.MaxHashKey) < 0 {
		next := new(big.Int).Add(start, big.NewInt(1))
		key, err := model.NewHashRange(next, next)
		if err != nil {
			return Neighbours{}, errors.Wrapf(err, "invalid range above shard %s", shardId)
		}
		if _, v := byRange.Ceiling(key); v != nil {
			if higher := v.(model.ShardRef); shard.HashRange.IsAdjacentTo(higher.HashRange) {
				n.Higher = &higher
			}
		}
	}

	return n, nil
}
