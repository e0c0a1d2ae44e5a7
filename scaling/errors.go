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
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAdjacencyViolation = errors.New("shards are not adjacent")
	ErrMergeFailed        = errors.New("merge request failed")
	ErrRetriesExhausted   = errors.New("unable to merge shards, retries exhausted")
	ErrStreamNotStable    = errors.New("stream did not become active")
	ErrChildShardNotFound = errors.New("merged child shard not found")
	ErrShardNotOpen       = errors.New("shard is not open")
)

// MergeError is returned for every unsuccessful merge. Kind is one of the sentinel errors
// of this package and Cause, when present, is the underlying failure. Both are visible
// to errors.Is and errors.As.
type MergeError struct {
	Kind     error
	Stream   string
	Lower    string
	Higher   string
	Attempts int
	Cause    error
}

func newMergeError(kind error, pair *AdjacentPair, attempts int, cause error) *MergeError {
	return &MergeError{
		Kind:     kind,
		Stream:   pair.streamName,
		Lower:    pair.lower.ShardId,
		Higher:   pair.higher.ShardId,
		Attempts: attempts,
		Cause:    cause,
	}
}

func (e *MergeError) Error() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%v: stream %s, shards %s and %s", e.Kind, e.Stream, e.Lower, e.Higher))
	if e.Attempts > 0 {
		sb.WriteString(fmt.Sprintf(" after %d attempts", e.Attempts))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *MergeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func kindLabel(kind error) string {
	switch kind {
	case ErrAdjacencyViolation:
		return "adjacency-violation"
	case ErrMergeFailed:
		return "merge-failed"
	case ErrRetriesExhausted:
		return "retries-exhausted"
	case ErrStreamNotStable:
		return "stream-not-stable"
	case ErrChildShardNotFound:
		return "child-shard-not-found"
	default:
		return "other"
	}
}
