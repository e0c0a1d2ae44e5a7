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
	"math"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultBaseRetry         = 100 * time.Millisecond
	DefaultModifyRetries     = 10
	DefaultBusyRetryInterval = 1 * time.Second

	maxModifyRetries = 30
)

type Config struct {
	// BaseRetry is the unit of the exponential wait applied when the control plane
	// rate limits a merge request: attempt n waits 2^n * BaseRetry.
	BaseRetry time.Duration `json:"baseRetry" yaml:"baseRetry" mapstructure:"baseRetry"`

	// ModifyRetries is the maximum number of merge requests issued before giving up.
	ModifyRetries int `json:"modifyRetries" yaml:"modifyRetries" mapstructure:"modifyRetries"`

	// BusyRetryInterval is the flat wait applied when the stream is being mutated.
	BusyRetryInterval time.Duration `json:"busyRetryInterval" yaml:"busyRetryInterval" mapstructure:"busyRetryInterval"`
}

func NewConfig() Config {
	return Config{
		BaseRetry:         DefaultBaseRetry,
		ModifyRetries:     DefaultModifyRetries,
		BusyRetryInterval: DefaultBusyRetryInterval,
	}
}

func (c Config) Validate() error {
	if c.ModifyRetries < 1 || c.ModifyRetries > maxModifyRetries {
		return errors.Errorf("modifyRetries must be between 1 and %d, got %d", maxModifyRetries, c.ModifyRetries)
	}
	if c.BaseRetry <= 0 {
		return errors.Errorf("baseRetry must be positive, got %v", c.BaseRetry)
	}
	if c.BaseRetry > time.Duration(math.MaxInt64>>c.ModifyRetries) {
		return errors.Errorf("baseRetry %v is too large for %d retries", c.BaseRetry, c.ModifyRetries)
	}
	if c.BusyRetryInterval < 0 {
		return errors.Errorf("busyRetryInterval must not be negative, got %v", c.BusyRetryInterval)
	}
	return nil
}

func (c Config) rateLimitWait(attempt int) time.Duration {
	return time.Duration(int64(1)<<attempt) * c.BaseRetry
}
