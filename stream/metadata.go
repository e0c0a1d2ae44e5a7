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
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/streamnative/streamscaler/model"
)

type Version string

var (
	ErrMetadataNotInitialized = errors.New("metadata not initialized")
	ErrMetadataBadVersion     = errors.New("metadata bad version")
)

const MetadataNotExists Version = "-1"

// StreamState is the control plane record of a stream, with every shard it ever had.
type StreamState struct {
	Name             string             `json:"name"`
	Status           model.StreamStatus `json:"status"`
	SettlesAt        time.Time          `json:"settlesAt,omitempty"`
	ShardIdGenerator int64              `json:"shardIdGenerator"`
	Shards           []model.ShardRef   `json:"shards"`
}

func (s *StreamState) Clone() *StreamState {
	r := &StreamState{
		Name:             s.Name,
		Status:           s.Status,
		SettlesAt:        s.SettlesAt,
		ShardIdGenerator: s.ShardIdGenerator,
		Shards:           make([]model.ShardRef, len(s.Shards)),
	}
	copy(r.Shards, s.Shards)
	return r
}

func (s *StreamState) shard(shardId string) (int, bool) {
	for i, sh := range s.Shards {
		if sh.ShardId == shardId {
			return i, true
		}
	}
	return -1, false
}

func (s *StreamState) openShardCount() int {
	count := 0
	for _, sh := range s.Shards {
		if sh.IsOpen() {
			count++
		}
	}
	return count
}

// MetadataProvider persists stream states with optimistic concurrency: a Store or a
// Delete only succeeds when the expected version matches the stored one.
type MetadataProvider interface {
	io.Closer

	// Get returns a nil state and MetadataNotExists when the stream is unknown.
	Get(stream string) (state *StreamState, version Version, err error)

	Store(state *StreamState, expectedVersion Version) (newVersion Version, err error)

	Delete(stream string, expectedVersion Version) error

	List() ([]string, error)
}

// MetadataContainer is the persisted form of a stream state.
type MetadataContainer struct {
	State   *StreamState `json:"state"`
	Version Version      `json:"version"`
}

func incrVersion(version Version) Version {
	i, err := strconv.ParseInt(string(version), 10, 64)
	if err != nil {
		return ""
	}
	i++
	return Version(strconv.FormatInt(i, 10))
}
