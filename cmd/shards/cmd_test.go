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

package shards

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/streamscaler/cmd/common"
)

func TestList(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("stream:\n  settleDelay: 0s\n"), 0640))
	common.MetadataProvider = common.File
	common.DataDir = filepath.Join(dir, "streams")
	common.ConfigFile = conf
	defer func() { common.ConfigFile = "" }()

	ctx := context.Background()
	require.NoError(t, common.WithSession(viper.New(), func(s *common.Session) error {
		if err := s.Service.CreateStream(ctx, "orders", 4); err != nil {
			return err
		}
		return s.Service.MergeShards(ctx, "orders", "shardId-000000000002", "shardId-000000000003")
	}))

	for _, test := range []struct {
		name     string
		args     []string
		expected []string
	}{
		{"open", []string{"list", "orders"}, []string{
			"shardId-000000000000", "shardId-000000000001", "shardId-000000000004",
		}},
		{"all", []string{"list", "orders", "--all"}, []string{
			"shardId-000000000000", "shardId-000000000001", "shardId-000000000002",
			"shardId-000000000004", "shardId-000000000003",
		}},
	} {
		t.Run(test.name, func(t *testing.T) {
			all = false
			buf := new(bytes.Buffer)
			Cmd.SetArgs(test.args)
			Cmd.SetOut(buf)
			err := Cmd.Execute()
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, len(test.expected)+1)
			assert.True(t, strings.HasPrefix(lines[0], "SHARD"))
			for i, id := range test.expected {
				assert.True(t, strings.HasPrefix(lines[i+1], id), lines[i+1])
			}
		})
	}

	// One quarter of the key space, 2^126 keys
	buf := new(bytes.Buffer)
	all = false
	Cmd.SetArgs([]string{"list", "orders"})
	Cmd.SetOut(buf)
	require.NoError(t, Cmd.Execute())
	assert.Contains(t, buf.String(), "85,070,591,730,234,615,865,843,651,857,942,052,864")
	assert.Contains(t, buf.String(), "shardId-000000000002")

	Cmd.SetArgs([]string{"list", "missing"})
	assert.Error(t, Cmd.Execute())
}
