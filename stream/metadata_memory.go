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
	"sync"

	"golang.org/x/exp/slices"
)

// metadataProviderMemory is a provider that just keeps the stream states in memory.
type metadataProviderMemory struct {
	sync.Mutex

	streams map[string]MetadataContainer
}

func NewMetadataProviderMemory() MetadataProvider {
	return &metadataProviderMemory{
		streams: map[string]MetadataContainer{},
	}
}

func (m *metadataProviderMemory) Close() error {
	return nil
}

func (m *metadataProviderMemory) Get(stream string) (state *StreamState, version Version, err error) {
	m.Lock()
	defer m.Unlock()

	mc, ok := m.streams[stream]
	if !ok {
		return nil, MetadataNotExists, nil
	}
	return mc.State.Clone(), mc.Version, nil
}

func (m *metadataProviderMemory) Store(state *StreamState, expectedVersion Version) (newVersion Version, err error) {
	m.Lock()
	defer m.Unlock()

	if expectedVersion != m.versionOf(state.Name) {
		return MetadataNotExists, ErrMetadataBadVersion
	}

	newVersion = incrVersion(expectedVersion)
	m.streams[state.Name] = MetadataContainer{
		State:   state.Clone(),
		Version: newVersion,
	}
	return newVersion, nil
}

func (m *metadataProviderMemory) Delete(stream string, expectedVersion Version) error {
	m.Lock()
	defer m.Unlock()

	if expectedVersion != m.versionOf(stream) {
		return ErrMetadataBadVersion
	}
	delete(m.streams, stream)
	return nil
}

func (m *metadataProviderMemory) List() ([]string, error) {
	m.Lock()
	defer m.Unlock()

	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *metadataProviderMemory) versionOf(stream string) Version {
	if mc, ok := m.streams[stream]; ok {
		return mc.Version
	}
	return MetadataNotExists
}
