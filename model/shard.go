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

package model

import "fmt"

// ShardRef is a read-only snapshot of a shard, as reported by the control plane.
// A fresher listing produces new values; a snapshot is never updated in place.
type ShardRef struct {
	StreamName string    `json:"streamName"`
	ShardId    string    `json:"shardId"`
	HashRange  HashRange `json:"hashRange"`

	// Lineage pointers. Empty when the shard was not produced by a split or a merge.
	ParentShardId         string `json:"parentShardId,omitempty"`
	AdjacentParentShardId string `json:"adjacentParentShardId,omitempty"`

	Status ShardStatus `json:"status"`
}

func (s ShardRef) IsOpen() bool {
	return s.Status == ShardStatusOpen
}

// IsChildOf reports whether s carries the lineage signature of the merge of lower and higher.
func (s ShardRef) IsChildOf(lower, higher string) bool {
	return s.ParentShardId == lower && s.AdjacentParentShardId == higher
}

func (s ShardRef) String() string {
	return fmt.Sprintf("%s/%s %s", s.StreamName, s.ShardId, s.HashRange)
}

// StreamSummary is the status of a stream, without its shard listing.
type StreamSummary struct {
	StreamName     string       `json:"streamName"`
	Status         StreamStatus `json:"status"`
	OpenShardCount int          `json:"openShardCount"`
}
