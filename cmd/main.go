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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/streamnative/streamscaler/cmd/common"
	"github.com/streamnative/streamscaler/cmd/merge"
	"github.com/streamnative/streamscaler/cmd/plan"
	"github.com/streamnative/streamscaler/cmd/shards"
	"github.com/streamnative/streamscaler/cmd/stream"
	"github.com/streamnative/streamscaler/common/logging"
	"github.com/streamnative/streamscaler/common/process"
)

var (
	logLevelStr string
	profiler    io.Closer

	rootCmd = &cobra.Command{
		Use:                "streamscaler",
		Short:              "Merge the shards of a stream",
		Long:               `Manage the shards of a stream and merge adjacent shards, retrying while the control plane is busy or throttling.`,
		SilenceUsage:       true,
		PersistentPreRunE:  configure,
		PersistentPostRunE: shutdown,
	}
)

type LogLevelError string

func (l LogLevelError) Error() string {
	return fmt.Sprintf("unknown log level (%s)", string(l))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevelStr, "log-level", "l", logging.DefaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&process.PprofEnable, "profile", false, "Enable pprof profiler")
	rootCmd.PersistentFlags().StringVar(&process.PprofBindAddress, "profile-bind-address", "127.0.0.1:6060", "Bind address for pprof")
	common.AddFlags(rootCmd)

	rootCmd.AddCommand(stream.Cmd)
	rootCmd.AddCommand(shards.Cmd)
	rootCmd.AddCommand(merge.Cmd)
	rootCmd.AddCommand(plan.Cmd)
}

func configure(*cobra.Command, []string) error {
	level, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return LogLevelError(logLevelStr)
	}
	logging.LogLevel = level
	logging.ConfigureLogger()

	profiler = process.RunProfiling()
	return nil
}

func shutdown(*cobra.Command, []string) error {
	if profiler == nil {
		return nil
	}
	return profiler.Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	process.DoWithLabels(ctx, map[string]string{
		"streamscaler": "main",
	}, func() {
		if _, err := maxprocs.Set(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			stop()
			os.Exit(1)
		}
	})
}
