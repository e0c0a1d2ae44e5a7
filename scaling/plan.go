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
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/streamnative/streamscaler/common/process"
	"github.com/streamnative/streamscaler/model"
)

type PlanEntry struct {
	Lower  string `json:"lower" yaml:"lower"`
	Higher string `json:"higher" yaml:"higher"`
}

// Plan is a list of independent merges on the same stream.
type Plan struct {
	Stream string      `json:"stream" yaml:"stream"`
	Merges []PlanEntry `json:"merges" yaml:"merges"`
}

type PlanResult struct {
	Entry PlanEntry
	Child model.ShardRef
	Err   error
}

func ParsePlan(content []byte) (*Plan, error) {
	plan := &Plan{}
	if err := yaml.Unmarshal(content, plan); err != nil {
		return nil, errors.Wrap(err, "failed to parse merge plan")
	}

	if plan.Stream == "" {
		return nil, errors.New("merge plan has no stream")
	}
	for i, m := range plan.Merges {
		if m.Lower == "" || m.Higher == "" {
			return nil, errors.Errorf("merge plan entry %d is missing a shard id", i)
		}
	}
	return plan, nil
}

func LoadPlan(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read merge plan %s", path)
	}
	return ParsePlan(content)
}

// RunPlan merges every entry of the plan, running up to parallelism merges at the same
// time. Pairs are built from a single listing of the open shards taken before any merge
// starts. The configuration is read again before each merge.
//
// Results are in plan order. The returned error combines the failure of every entry.
func RunPlan(ctx context.Context, provider Provider, configSupplier func() (Config, error),
	plan *Plan, parallelism int) ([]PlanResult, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	log := slog.With(
		slog.String("component", "merge-plan"),
		slog.String("stream", plan.Stream),
	)

	openShards, err := provider.ListOpenShards(ctx, plan.Stream)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list open shards of %s", plan.Stream)
	}

	log.Info(
		"Starting merge plan",
		slog.Int("merges", len(plan.Merges)),
		slog.Int("open-shards", len(openShards)),
		slog.Int("parallelism", parallelism),
	)

	results := make([]PlanResult, len(plan.Merges))
	eg := errgroup.Group{}
	eg.SetLimit(parallelism)

	for i, entry := range plan.Merges {
		i, entry := i, entry
		results[i].Entry = entry

		pair, err := pairFor(plan.Stream, openShards, entry)
		if err != nil {
			results[i].Err = err
			continue
		}

		// Each entry reports its own failure, the group never stops early
		eg.Go(func() error {
			process.DoWithLabels(ctx, map[string]string{
				"streamscaler": "merge",
				"stream":       plan.Stream,
				"lower":        entry.Lower,
			}, func() {
				config, err := configSupplier()
				if err != nil {
					results[i].Err = errors.Wrap(err, "failed to load configuration")
					return
				}
				results[i].Child, results[i].Err = pair.Merge(ctx, provider, config)
			})
			return nil
		})
	}

	_ = eg.Wait()

	var errs error
	for _, r := range results {
		if r.Err != nil {
			errs = multierr.Append(errs, errors.Wrapf(r.Err, "merge of %s and %s", r.Entry.Lower, r.Entry.Higher))
		}
	}

	log.Info(
		"Merge plan completed",
		slog.Int("failed", len(multierr.Errors(errs))),
	)
	return results, errs
}

func pairFor(stream string, openShards map[string]model.ShardRef, entry PlanEntry) (*AdjacentPair, error) {
	lower, ok := openShards[entry.Lower]
	if !ok {
		return nil, errors.Wrap(ErrShardNotOpen, entry.Lower)
	}
	higher, ok := openShards[entry.Higher]
	if !ok {
		return nil, errors.Wrap(ErrShardNotOpen, entry.Higher)
	}
	return NewAdjacentPair(stream, lower, higher)
}
