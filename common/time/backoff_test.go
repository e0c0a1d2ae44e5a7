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

package time

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestSleep(t *testing.T) {
	t1 := time.Now()
	assert.NoError(t, Sleep(context.Background(), 50*time.Millisecond))
	assert.WithinDuration(t, t1.Add(50*time.Millisecond), time.Now(), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	t2 := time.Now()
	assert.ErrorIs(t, Sleep(ctx, 10*time.Second), context.Canceled)
	assert.WithinDuration(t, t2, time.Now(), 100*time.Millisecond)

	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestBoundedBackOff(t *testing.T) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("not yet")
	}, NewBoundedBackOff(context.Background(), time.Millisecond, 5*time.Millisecond, 50*time.Millisecond))

	assert.Error(t, err)
	assert.Greater(t, attempts, 1)
}

func TestBackOffStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("not yet")
	}, NewBackOffWithInitialInterval(ctx, time.Millisecond))

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), c.Now())
}
