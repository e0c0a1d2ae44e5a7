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

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for _, test := range []struct {
		input    string
		expected slog.Level
		isErr    bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"Warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	} {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLogLevel(test.input)
			assert.Equal(t, test.expected, level)
			if test.isErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigureLoggerJSON(t *testing.T) {
	defer func(l *slog.Logger) { slog.SetDefault(l) }(slog.Default())
	LogJSON = true
	defer func() { LogJSON = false }()

	buf := &bytes.Buffer{}
	ConfigureLoggerWithWriter(buf)

	slog.Info("merged shards", slog.String("stream", "orders"), slog.Int("attempts", 2))

	line := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "merged shards", line["message"])
	assert.Equal(t, "orders", line["stream"])
	assert.EqualValues(t, 2, line["attempts"])
	assert.Equal(t, "info", line["level"])
}
