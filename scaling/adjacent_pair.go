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

	"github.com/pkg/errors"

	"github.com/streamnative/streamscaler/model"
)

// AdjacentPair is a validated pair of open shards sharing a hash key boundary: the
// range of higher starts right after the end of the range of lower.
// The pair keeps the snapshots it was built from and never refreshes them.
type AdjacentPair struct {
	streamName string
	lower      model.ShardRef
	higher     model.ShardRef
}

// NewAdjacentPair fails with ErrAdjacencyViolation, without contacting the control
// plane, when the two shards are not adjacent.
func NewAdjacentPair(streamName string, lower model.ShardRef, higher model.ShardRef) (*AdjacentPair, error) {
	p := &AdjacentPair{
		streamName: streamName,
		lower:      lower,
		higher:     higher,
	}

	if !lower.HashRange.IsAdjacentTo(higher.HashRange) {
		return nil, newMergeError(ErrAdjacencyViolation, p, 0,
			errors.Errorf("range %s of %s does not end right before range %s of %s",
				lower.HashRange, lower.ShardId, higher.HashRange, higher.ShardId))
	}
	return p, nil
}

func (p *AdjacentPair) StreamName() string {
	return p.streamName
}

func (p *AdjacentPair) Lower() model.ShardRef {
	return p.lower
}

func (p *AdjacentPair) Higher() model.ShardRef {
	return p.higher
}

// Merge merges the two shards and returns the resulting child shard.
func (p *AdjacentPair) Merge(ctx context.Context, provider Provider, config Config) (model.ShardRef, error) {
	executor, err := NewMergeExecutor(provider, config)
	if err != nil {
		return model.ShardRef{}, err
	}
	return executor.Merge(ctx, p)
}
