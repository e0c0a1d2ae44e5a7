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
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/fslock"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const fileSuffix = ".json"

// metadataProviderFile keeps each stream state in a json file of the data directory,
// using a lock file to prevent missing updates across processes.
type metadataProviderFile struct {
	dir string
}

func NewMetadataProviderFile(dir string) MetadataProvider {
	return &metadataProviderFile{
		dir: dir,
	}
}

func (m *metadataProviderFile) Close() error {
	return nil
}

func (m *metadataProviderFile) path(stream string) string {
	return filepath.Join(m.dir, stream+fileSuffix)
}

func (m *metadataProviderFile) Get(stream string) (state *StreamState, version Version, err error) {
	content, err := os.ReadFile(m.path(stream))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, MetadataNotExists, nil
		}
		return nil, MetadataNotExists, err
	}

	if len(content) == 0 {
		return nil, MetadataNotExists, nil
	}

	mc := MetadataContainer{}
	if err = json.Unmarshal(content, &mc); err != nil {
		return nil, MetadataNotExists, errors.Wrapf(err, "failed to decode metadata of stream %s", stream)
	}

	return mc.State, mc.Version, nil
}

func (m *metadataProviderFile) Store(state *StreamState, expectedVersion Version) (newVersion Version, err error) {
	// Ensure directory exists
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return MetadataNotExists, err
	}

	unlock, err := m.lock(state.Name)
	if err != nil {
		return MetadataNotExists, err
	}
	defer unlock()

	_, existingVersion, err := m.Get(state.Name)
	if err != nil {
		return MetadataNotExists, err
	}

	if expectedVersion != existingVersion {
		return MetadataNotExists, ErrMetadataBadVersion
	}

	newVersion = incrVersion(existingVersion)
	newContent, err := json.Marshal(MetadataContainer{
		State:   state,
		Version: newVersion,
	})
	if err != nil {
		return MetadataNotExists, err
	}

	if err := os.WriteFile(m.path(state.Name), newContent, 0640); err != nil {
		return MetadataNotExists, err
	}

	return newVersion, nil
}

func (m *metadataProviderFile) Delete(stream string, expectedVersion Version) error {
	unlock, err := m.lock(stream)
	if err != nil {
		return err
	}
	defer unlock()

	_, existingVersion, err := m.Get(stream)
	if err != nil {
		return err
	}
	if expectedVersion != existingVersion {
		return ErrMetadataBadVersion
	}

	if err := os.Remove(m.path(stream)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *metadataProviderFile) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(m.dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, strings.TrimSuffix(filepath.Base(f), fileSuffix))
	}
	slices.Sort(names)
	return names, nil
}

func (m *metadataProviderFile) lock(stream string) (unlock func(), err error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, err
	}

	fileLock := fslock.New(filepath.Join(m.dir, stream+".lock"))
	if err := fileLock.Lock(); err != nil {
		return nil, errors.Wrap(err, "failed to acquire file lock")
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Warn(
				"Failed to release file lock on metadata",
				slog.String("stream", stream),
				slog.Any("error", err),
			)
		}
	}, nil
}
