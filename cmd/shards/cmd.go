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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/streamscaler/cmd/common"
	"github.com/streamnative/streamscaler/controlplane"
	"github.com/streamnative/streamscaler/model"
)

var (
	all bool

	Cmd = &cobra.Command{
		Use:   "shards",
		Short: "Inspect the shards of a stream",
	}

	listCmd = &cobra.Command{
		Use:   "list <stream>",
		Short: "List the shards of a stream",
		Long:  `List the shards of a stream, ordered by starting hash key`,
		Args:  cobra.ExactArgs(1),
		RunE:  list,
	}
)

func init() {
	listCmd.Flags().BoolVarP(&all, "all", "a", false, "Include closed shards")

	Cmd.AddCommand(listCmd)
}

func list(cmd *cobra.Command, args []string) error {
	return common.WithSession(viper.New(), func(s *common.Session) error {
		shards, err := s.Service.ListShards(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		selected := map[string]model.ShardRef{}
		for _, shard := range shards {
			if all || shard.IsOpen() {
				selected[shard.ShardId] = shard
			}
		}
		return printShards(cmd.OutOrStdout(), selected)
	})
}

func printShards(out io.Writer, shards map[string]model.ShardRef) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SHARD\tSTATUS\tSTART\tEND\tWIDTH\tPARENT\tADJACENT PARENT")

	it := controlplane.SortByHashRange(shards).Iterator()
	for it.Next() {
		shard := it.Value().(model.ShardRef)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shard.ShardId,
			shard.Status,
			shard.HashRange.Start(),
			shard.HashRange.End(),
			humanize.BigComma(shard.HashRange.Width()),
			orNone(shard.ParentShardId),
			orNone(shard.AdjacentParentShardId),
		)
	}
	return w.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
