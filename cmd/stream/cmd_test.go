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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/streamscaler/cmd/common"
)

func setup(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	conf := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("stream:\n  settleDelay: 0s\n"), 0640))

	common.MetadataProvider = common.File
	common.DataDir = filepath.Join(dir, "streams")
	common.ConfigFile = conf
	t.Cleanup(func() {
		common.ConfigFile = ""
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	shardCount = 1
	buf := new(bytes.Buffer)
	Cmd.SetArgs(args)
	Cmd.SetOut(buf)
	Cmd.SetErr(buf)
	err := Cmd.Execute()
	return buf.String(), err
}

func TestCmd(t *testing.T) {
	setup(t)

	out, err := run(t, "create", "orders", "--shards", "3")
	assert.NoError(t, err)
	assert.Equal(t, "Created stream orders with 3 shards\n", out)

	_, err = run(t, "create", "payments")
	assert.NoError(t, err)

	_, err = run(t, "create", "orders")
	assert.Error(t, err)

	out, err = run(t, "describe", "orders")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"streamName":"orders","status":"ACTIVE","openShardCount":3}`, out)

	out, err = run(t, "list")
	assert.NoError(t, err)
	assert.Equal(t, []string{"orders", "payments"}, strings.Fields(out))

	out, err = run(t, "delete", "payments")
	assert.NoError(t, err)
	assert.Equal(t, "Deleted stream payments\n", out)

	_, err = run(t, "describe", "payments")
	assert.Error(t, err)

	_, err = run(t, "create")
	assert.Error(t, err)
}
