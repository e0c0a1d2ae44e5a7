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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	time2 "github.com/streamnative/streamscaler/common/time"
	"github.com/streamnative/streamscaler/model"
	"github.com/streamnative/streamscaler/scaling"
	"github.com/streamnative/streamscaler/stream"
)

func testOptions() Options {
	return Options{
		StatusTimeout:   200 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	for _, test := range []struct {
		err      error
		expected scaling.CallStatus
	}{
		{nil, scaling.CallOK},
		{status.Error(stream.CodeResourceInUse, "in use"), scaling.CallBusy},
		{stream.ErrorLimitExceeded, scaling.CallRateLimited},
		{status.Error(stream.CodeResourceNotFound, "not found"), scaling.CallFailed},
		{status.Error(stream.CodeInvalidArgument, "invalid"), scaling.CallFailed},
		{status.Error(codes.Unavailable, "unavailable"), scaling.CallFailed},
		{errors.New("generic"), scaling.CallFailed},
	} {
		assert.Equal(t, test.expected, Classify(test.err), "error: %v", test.err)
	}
}

func TestProvider_WaitForStreamStatus(t *testing.T) {
	clock := time2.NewManualClock(time.UnixMilli(1_700_000_000_000))
	service := stream.NewLocalService(stream.NewMetadataProviderMemory(), stream.Options{
		SettleDelay: time.Minute,
		Clock:       clock,
	})
	defer service.Close()
	p := NewProvider(service, testOptions())
	ctx := context.Background()

	require.NoError(t, service.CreateStream(ctx, "orders", 2))

	err := p.WaitForStreamStatus(ctx, "orders", model.StreamStatusActive)
	assert.ErrorIs(t, err, scaling.ErrStreamNotStable)

	clock.Advance(time.Minute)
	assert.NoError(t, p.WaitForStreamStatus(ctx, "orders", model.StreamStatusActive))

	err = p.WaitForStreamStatus(ctx, "missing", model.StreamStatusActive)
	assert.Equal(t, stream.CodeResourceNotFound, status.Code(errors.Cause(err)))
	assert.NotErrorIs(t, err, scaling.ErrStreamNotStable)
}

func TestProvider_WaitForStreamStatus_Cancelled(t *testing.T) {
	clock := time2.NewManualClock(time.UnixMilli(1_700_000_000_000))
	service := stream.NewLocalService(stream.NewMetadataProviderMemory(), stream.Options{
		SettleDelay: time.Minute,
		Clock:       clock,
	})
	defer service.Close()
	options := testOptions()
	options.StatusTimeout = time.Minute
	p := NewProvider(service, options)

	require.NoError(t, service.CreateStream(context.Background(), "orders", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitForStreamStatus(ctx, "orders", model.StreamStatusActive), context.DeadlineExceeded)
}

func TestProvider_ListOpenShardsAndNeighbours(t *testing.T) {
	service := stream.NewLocalService(stream.NewMetadataProviderMemory(), stream.Options{})
	defer service.Close()
	p := NewProvider(service, testOptions())
	ctx := context.Background()

	require.NoError(t, service.CreateStream(ctx, "orders", 4))
	require.NoError(t, service.MergeShards(ctx, "orders", "shardId-000000000001", "shardId-000000000002"))

	open, err := p.ListOpenShards(ctx, "orders")
	assert.NoError(t, err)
	assert.Len(t, open, 3)
	assert.Contains(t, open, "shardId-000000000000")
	assert.Contains(t, open, "shardId-000000000003")
	assert.Contains(t, open, "shardId-000000000004")

	n, err := p.Neighbours(ctx, "orders", "shardId-000000000000")
	assert.NoError(t, err)
	assert.Nil(t, n.Lower)
	require.NotNil(t, n.Higher)
	assert.Equal(t, "shardId-000000000004", n.Higher.ShardId)

	n, err = p.Neighbours(ctx, "orders", "shardId-000000000004")
	assert.NoError(t, err)
	require.NotNil(t, n.Lower)
	require.NotNil(t, n.Higher)
	assert.Equal(t, "shardId-000000000000", n.Lower.ShardId)
	assert.Equal(t, "shardId-000000000003", n.Higher.ShardId)

	n, err = p.Neighbours(ctx, "orders", "shardId-000000000003")
	assert.NoError(t, err)
	require.NotNil(t, n.Lower)
	assert.Equal(t, "shardId-000000000004", n.Lower.ShardId)
	assert.Nil(t, n.Higher)

	_, err = p.Neighbours(ctx, "orders", "shardId-000000000001")
	assert.ErrorIs(t, err, ErrShardNotFound)

	_, err = p.ListOpenShards(ctx, "missing")
	assert.Equal(t, stream.CodeResourceNotFound, status.Code(errors.Cause(err)))
}

func TestProvider_Neighbours_WholeKeySpace(t *testing.T) {
	service := stream.NewLocalService(stream.NewMetadataProviderMemory(), stream.Options{})
	defer service.Close()
	p := NewProvider(service, testOptions())
	ctx := context.Background()

	require.NoError(t, service.CreateStream(ctx, "single", 1))
	n, err := p.Neighbours(ctx, "single", "shardId-000000000000")
	assert.NoError(t, err)
	assert.Nil(t, n.Lower)
	assert.Nil(t, n.Higher)
	assert.Equal(t, 0, n.Shard.HashRange.Start().Sign())
	assert.Equal(t, 0, n.Shard.HashRange.End().Cmp(model.MaxHashKey))

	require.NoError(t, service.CreateStream(ctx, "pair", 2))
	n, err = p.Neighbours(ctx, "pair", "shardId-000000000001")
	assert.NoError(t, err)
	require.NotNil(t, n.Lower)
	assert.Equal(t, "shardId-000000000000", n.Lower.ShardId)
	assert.Nil(t, n.Higher)
}

func TestProvider_MergeEndToEnd(t *testing.T) {
	service := stream.NewLocalService(stream.NewMetadataProviderMemory(), stream.Options{
		SettleDelay: 20 * time.Millisecond,
	})
	defer service.Close()
	p := NewProvider(service, Options{
		StatusTimeout:   5 * time.Second,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, service.CreateStream(ctx, "orders", 2))
	require.NoError(t, p.WaitForStreamStatus(ctx, "orders", model.StreamStatusActive))

	open, err := p.ListOpenShards(ctx, "orders")
	require.NoError(t, err)
	lower, higher := open["shardId-000000000000"], open["shardId-000000000001"]

	pair, err := scaling.NewAdjacentPair("orders", lower, higher)
	require.NoError(t, err)

	config := scaling.NewConfig()
	config.BaseRetry = 10 * time.Millisecond
	child, err := pair.Merge(ctx, p, config)
	require.NoError(t, err)

	assert.Equal(t, "shardId-000000000002", child.ShardId)
	assert.True(t, child.IsChildOf(lower.ShardId, higher.ShardId))
	assert.Equal(t, 0, child.HashRange.Start().Sign())
	assert.Equal(t, 0, child.HashRange.End().Cmp(model.MaxHashKey))

	summary, err := service.DescribeStreamSummary(ctx, "orders")
	assert.NoError(t, err)
	assert.Equal(t, model.StreamStatusActive, summary.Status)
	assert.Equal(t, 1, summary.OpenShardCount)

	// The parents are closed now: the service refuses the merge and it is not retried
	_, err = pair.Merge(ctx, p, config)
	assert.ErrorIs(t, err, scaling.ErrMergeFailed)
	var mergeErr *scaling.MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, 1, mergeErr.Attempts)
}
