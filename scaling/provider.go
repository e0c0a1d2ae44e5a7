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

	"github.com/streamnative/streamscaler/model"
)

// CallStatus is the outcome of a merge request, as classified by the MergeClient.
type CallStatus int

const (
	CallOK CallStatus = iota
	// CallBusy means the stream or one of the shards is being mutated by another operation.
	CallBusy
	// CallRateLimited means the caller exceeded the control plane request rate.
	CallRateLimited
	// CallFailed covers any other failure. It is never retried.
	CallFailed
)

func (s CallStatus) String() string {
	switch s {
	case CallOK:
		return "ok"
	case CallBusy:
		return "busy"
	case CallRateLimited:
		return "rate-limited"
	default:
		return "failed"
	}
}

type MergeClient interface {
	// MergeShards asks the control plane to merge lower and higher. The error carries the
	// detail of any status other than CallOK.
	MergeShards(ctx context.Context, stream string, lower string, higher string) (CallStatus, error)
}

type StatusWaiter interface {
	// WaitForStreamStatus blocks until the stream reports the given status. The returned
	// error wraps ErrStreamNotStable when the stream did not get there in time.
	WaitForStreamStatus(ctx context.Context, stream string, status model.StreamStatus) error
}

type ShardLister interface {
	// ListOpenShards returns the currently open shards of the stream, by shard id.
	ListOpenShards(ctx context.Context, stream string) (map[string]model.ShardRef, error)
}

type Provider interface {
	MergeClient
	StatusWaiter
	ShardLister
}
