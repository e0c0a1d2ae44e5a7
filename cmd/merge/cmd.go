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

package merge

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/streamscaler/cmd/common"
	"github.com/streamnative/streamscaler/model"
	"github.com/streamnative/streamscaler/scaling"
)

const (
	withLower  = "lower"
	withHigher = "higher"
)

var (
	lower  string
	higher string
	shard  string
	with   string

	ErrorInconsistentFlags = errors.New("inconsistent flags; use either --lower and --higher, or --shard and --with")
	ErrorInvalidDirection  = errors.New("invalid value for --with, expected lower or higher")
	ErrorNoNeighbour       = errors.New("the shard has no open neighbour on that side")

	Cmd = &cobra.Command{
		Use:   "merge <stream>",
		Short: "Merge two adjacent shards",
		Long: `Merge two adjacent open shards of a stream into a single shard.

The shards are given either explicitly with --lower and --higher, or as one shard and
the side of its neighbour with --shard and --with.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	Cmd.Flags().StringVar(&lower, "lower", "", "Shard owning the lower hash range")
	Cmd.Flags().StringVar(&higher, "higher", "", "Shard owning the higher hash range")
	Cmd.Flags().StringVar(&shard, "shard", "", "Shard to merge with one of its neighbours")
	Cmd.Flags().StringVar(&with, "with", "", "Neighbour to merge with: lower or higher")
}

func validate(*cobra.Command, []string) error {
	explicit := lower != "" || higher != ""
	neighbour := shard != "" || with != ""

	switch {
	case explicit && neighbour:
		return ErrorInconsistentFlags
	case explicit:
		if lower == "" || higher == "" {
			return ErrorInconsistentFlags
		}
	case neighbour:
		if shard == "" {
			return ErrorInconsistentFlags
		}
		if with != withLower && with != withHigher {
			return ErrorInvalidDirection
		}
	default:
		return ErrorInconsistentFlags
	}
	return nil
}

func exec(cmd *cobra.Command, args []string) error {
	streamName := args[0]

	return common.WithSession(viper.New(), func(s *common.Session) error {
		pair, err := resolvePair(cmd, s, streamName)
		if err != nil {
			return err
		}

		child, err := pair.Merge(cmd.Context(), s.Provider, s.Config.Merge)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Merged %s and %s into %s %s\n",
			pair.Lower().ShardId, pair.Higher().ShardId, child.ShardId, child.HashRange)
		return err
	})
}

func resolvePair(cmd *cobra.Command, s *common.Session, streamName string) (*scaling.AdjacentPair, error) {
	if shard == "" {
		open, err := s.Provider.ListOpenShards(cmd.Context(), streamName)
		if err != nil {
			return nil, err
		}
		l, ok := open[lower]
		if !ok {
			return nil, errors.Wrap(scaling.ErrShardNotOpen, lower)
		}
		h, ok := open[higher]
		if !ok {
			return nil, errors.Wrap(scaling.ErrShardNotOpen, higher)
		}
		return scaling.NewAdjacentPair(streamName, l, h)
	}

	n, err := s.Provider.Neighbours(cmd.Context(), streamName, shard)
	if err != nil {
		return nil, err
	}

	var other *model.ShardRef
	if with == withLower {
		other = n.Lower
	} else {
		other = n.Higher
	}
	if other == nil {
		return nil, errors.Wrapf(ErrorNoNeighbour, "%s has no %s neighbour", shard, with)
	}

	if with == withLower {
		return scaling.NewAdjacentPair(streamName, *other, n.Shard)
	}
	return scaling.NewAdjacentPair(streamName, n.Shard, *other)
}
