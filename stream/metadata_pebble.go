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
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	streamKeyPrefix = "streams/"
	// First key after every key with the streams prefix
	streamKeyUpperBound = "streams0"
)

type PebbleOptions struct {
	DataDir string
	// InMemory keeps the database in memory, for unit tests
	InMemory bool
}

// metadataProviderPebble stores each stream state under its own key of a pebble database.
type metadataProviderPebble struct {
	sync.Mutex

	db *pebble.DB
}

func NewMetadataProviderPebble(options PebbleOptions) (MetadataProvider, error) {
	pbOptions := &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	}
	if options.InMemory {
		pbOptions.FS = vfs.NewMem()
	}

	db, err := pebble.Open(options.DataDir, pbOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", options.DataDir)
	}

	return &metadataProviderPebble{db: db}, nil
}

func (m *metadataProviderPebble) Close() error {
	return m.db.Close()
}

func streamKey(stream string) []byte {
	return []byte(streamKeyPrefix + stream)
}

func (m *metadataProviderPebble) Get(stream string) (state *StreamState, version Version, err error) {
	mc, err := m.get(stream)
	if err != nil || mc == nil {
		return nil, MetadataNotExists, err
	}
	return mc.State, mc.Version, nil
}

func (m *metadataProviderPebble) get(stream string) (*MetadataContainer, error) {
	value, closer, err := m.db.Get(streamKey(stream))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	mc := &MetadataContainer{}
	err = json.Unmarshal(value, mc)
	if err = multierr.Combine(err, closer.Close()); err != nil {
		return nil, errors.Wrapf(err, "failed to decode metadata of stream %s", stream)
	}
	return mc, nil
}

func (m *metadataProviderPebble) versionOf(stream string) (Version, error) {
	mc, err := m.get(stream)
	if err != nil {
		return MetadataNotExists, err
	}
	if mc == nil {
		return MetadataNotExists, nil
	}
	return mc.Version, nil
}

func (m *metadataProviderPebble) Store(state *StreamState, expectedVersion Version) (newVersion Version, err error) {
	m.Lock()
	defer m.Unlock()

	existingVersion, err := m.versionOf(state.Name)
	if err != nil {
		return MetadataNotExists, err
	}
	if expectedVersion != existingVersion {
		return MetadataNotExists, ErrMetadataBadVersion
	}

	newVersion = incrVersion(existingVersion)
	value, err := json.Marshal(MetadataContainer{
		State:   state,
		Version: newVersion,
	})
	if err != nil {
		return MetadataNotExists, err
	}

	if err := m.db.Set(streamKey(state.Name), value, pebble.Sync); err != nil {
		return MetadataNotExists, err
	}
	return newVersion, nil
}

func (m *metadataProviderPebble) Delete(stream string, expectedVersion Version) error {
	m.Lock()
	defer m.Unlock()

	existingVersion, err := m.versionOf(stream)
	if err != nil {
		return err
	}
	if expectedVersion != existingVersion {
		return ErrMetadataBadVersion
	}

	return m.db.Delete(streamKey(stream), pebble.Sync)
}

func (m *metadataProviderPebble) List() (names []string, err error) {
	it, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(streamKeyPrefix),
		UpperBound: []byte(streamKeyUpperBound),
	})
	if err != nil {
		return nil, err
	}

	for it.First(); it.Valid(); it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), streamKeyPrefix))
	}

	return names, multierr.Combine(it.Error(), it.Close())
}
