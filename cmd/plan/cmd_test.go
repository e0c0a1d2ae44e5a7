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

package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/streamscaler/cmd/common"
	"github.com/streamnative/streamscaler/model"
	"github.com/streamnative/streamscaler/scaling"
)

const testConfig = `
stream:
  settleDelay: 10ms
  mutationRate: 0
  describeRate: 0
controlPlane:
  statusTimeout: 5s
  pollInterval: 5ms
  maxPollInterval: 20ms
merge:
  baseRetry: 10ms
  modifyRetries: 10
  busyRetryInterval: 20ms
`

const testPlan = `
stream: orders
merges:
  - lower: shardId-000000000000
    higher: shardId-000000000001
  - lower: shardId-000000000002
    higher: shardId-000000000003
  - lower: shardId-000000000001
    higher: shardId-000000000003
`

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(testConfig), 0640))
	planFile := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planFile, []byte(testPlan), 0640))

	common.MetadataProvider = common.Pebble
	common.DataDir = filepath.Join(dir, "streams")
	common.ConfigFile = conf
	defer func() {
		common.MetadataProvider = common.File
		common.ConfigFile = ""
	}()

	ctx := context.Background()
	require.NoError(t, common.WithSession(viper.New(), func(s *common.Session) error {
		if err := s.Service.CreateStream(ctx, "orders", 4); err != nil {
			return err
		}
		return s.Provider.WaitForStreamStatus(ctx, "orders", model.StreamStatusActive)
	}))

	parallelism = 1
	metricsAddr = "localhost:0"
	buf := new(bytes.Buffer)
	Cmd.SetArgs([]string{planFile, "--parallelism", "2"})
	Cmd.SetOut(buf)
	err := Cmd.Execute()

	// The third entry is not adjacent, the two others merge
	assert.ErrorIs(t, err, scaling.ErrAdjacencyViolation)
	assert.Contains(t, buf.String(), "LOWER")
	assert.Contains(t, buf.String(), "merged")

	require.NoError(t, common.WithSession(viper.New(), func(s *common.Session) error {
		open, err := s.Provider.ListOpenShards(ctx, "orders")
		assert.NoError(t, err)
		assert.Len(t, open, 2)
		assert.Contains(t, open, "shardId-000000000004")
		assert.Contains(t, open, "shardId-000000000005")
		return nil
	}))

	Cmd.SetArgs([]string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, Cmd.Execute())
}
