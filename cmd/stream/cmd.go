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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/streamscaler/cmd/common"
)

var (
	shardCount int

	Cmd = &cobra.Command{
		Use:   "stream",
		Short: "Manage streams",
		Long:  `Create, describe, list and delete streams`,
	}

	createCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a stream",
		Long:  `Create a stream whose shards evenly split the hash key space`,
		Args:  cobra.ExactArgs(1),
		RunE:  create,
	}

	describeCmd = &cobra.Command{
		Use:   "describe <name>",
		Short: "Describe a stream",
		Args:  cobra.ExactArgs(1),
		RunE:  describe,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stream",
		Args:  cobra.ExactArgs(1),
		RunE:  remove,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the streams",
		Args:  cobra.NoArgs,
		RunE:  list,
	}
)

func init() {
	createCmd.Flags().IntVarP(&shardCount, "shards", "s", 1, "Number of shards")

	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(describeCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(listCmd)
}

func create(cmd *cobra.Command, args []string) error {
	return common.WithSession(viper.New(), func(s *common.Session) error {
		if err := s.Service.CreateStream(cmd.Context(), args[0], shardCount); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created stream %s with %d shards\n", args[0], shardCount)
		return err
	})
}

func describe(cmd *cobra.Command, args []string) error {
	return common.WithSession(viper.New(), func(s *common.Session) error {
		summary, err := s.Service.DescribeStreamSummary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	})
}

func remove(cmd *cobra.Command, args []string) error {
	return common.WithSession(viper.New(), func(s *common.Session) error {
		if err := s.Service.DeleteStream(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted stream %s\n", args[0])
		return err
	})
}

func list(cmd *cobra.Command, _ []string) error {
	return common.WithSession(viper.New(), func(s *common.Session) error {
		names, err := s.Service.ListStreams(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
				return err
			}
		}
		return nil
	})
}
