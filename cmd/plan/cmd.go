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
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/streamscaler/cmd/common"
	"github.com/streamnative/streamscaler/common/metric"
	"github.com/streamnative/streamscaler/scaling"
)

var (
	parallelism int
	metricsAddr string

	Cmd = &cobra.Command{
		Use:   "plan <file>",
		Short: "Run a merge plan",
		Long: `Run the merges listed in a YAML plan file:

  stream: orders
  merges:
    - lower: shardId-000000000000
      higher: shardId-000000000001

Changes to the configuration file are applied to the merges that have not started yet.`,
		Args: cobra.ExactArgs(1),
		RunE: exec,
	}
)

func init() {
	Cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 1, "Maximum number of merges running at the same time")
	Cmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", "", "Serve Prometheus metrics on this address while the plan runs")
}

func exec(cmd *cobra.Command, args []string) error {
	plan, err := scaling.LoadPlan(args[0])
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		metrics, err := metric.Start(metricsAddr)
		if err != nil {
			return err
		}
		defer metrics.Close()
	}

	v := viper.New()
	return common.WithSession(v, func(s *common.Session) error {
		current, err := common.WatchConfig(v, func(err error) {
			slog.Warn(
				"Ignoring invalid configuration change",
				slog.Any("error", err),
			)
		})
		if err != nil {
			return err
		}

		results, err := scaling.RunPlan(cmd.Context(), s.Provider, func() (scaling.Config, error) {
			return current.Load().Merge, nil
		}, plan, parallelism)
		if results == nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "LOWER\tHIGHER\tCHILD\tRESULT")
		for _, r := range results {
			if r.Err != nil {
				_, _ = fmt.Fprintf(w, "%s\t%s\t-\t%v\n", r.Entry.Lower, r.Entry.Higher, r.Err)
			} else {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\tmerged\n", r.Entry.Lower, r.Entry.Higher, r.Child.ShardId)
			}
		}
		if flushErr := w.Flush(); flushErr != nil {
			return flushErr
		}
		return err
	})
}
