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

package common

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/streamnative/streamscaler/controlplane"
	"github.com/streamnative/streamscaler/scaling"
	"github.com/streamnative/streamscaler/stream"
)

type MetadataProviderImpl string

const (
	Memory MetadataProviderImpl = "memory"
	File   MetadataProviderImpl = "file"
	Pebble MetadataProviderImpl = "pebble"
)

var ErrInvalidMetadataProvider = errors.New("invalid metadata provider, expected one of: memory, file, pebble")

func (m *MetadataProviderImpl) String() string {
	return string(*m)
}

func (m *MetadataProviderImpl) Set(s string) error {
	switch MetadataProviderImpl(s) {
	case Memory, File, Pebble:
		*m = MetadataProviderImpl(s)
		return nil
	default:
		return ErrInvalidMetadataProvider
	}
}

func (*MetadataProviderImpl) Type() string {
	return "MetadataProviderImpl"
}

// Config holds the settings that can be read from the configuration file.
type Config struct {
	Stream       stream.Options       `json:"stream" yaml:"stream" mapstructure:"stream"`
	ControlPlane controlplane.Options `json:"controlPlane" yaml:"controlPlane" mapstructure:"controlPlane"`
	Merge        scaling.Config       `json:"merge" yaml:"merge" mapstructure:"merge"`
}

func NewConfig() Config {
	return Config{
		Stream:       stream.NewOptions(),
		ControlPlane: controlplane.NewOptions(),
		Merge:        scaling.NewConfig(),
	}
}

var (
	MetadataProvider = File
	DataDir          string
	ConfigFile       string
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Var(&MetadataProvider, "metadata", "Metadata provider implementation: file, pebble or memory")
	cmd.PersistentFlags().StringVar(&DataDir, "data-dir", "./data/streams", "Directory where the stream metadata is stored")
	cmd.PersistentFlags().StringVarP(&ConfigFile, "conf", "f", "", "Configuration file")
}

func SetConfigPath(v *viper.Viper) {
	v.SetConfigType("yaml")
	if ConfigFile != "" {
		v.SetConfigFile(ConfigFile)
	}
}

// LoadConfig returns the defaults, overridden by the configuration file when there is one.
func LoadConfig(v *viper.Viper) (Config, error) {
	conf := NewConfig()
	if ConfigFile == "" {
		return conf, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return conf, errors.Wrapf(err, "failed to read configuration file %s", ConfigFile)
	}

	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(), // default hook
		mapstructure.StringToSliceHookFunc(","),     // default hook
	))); err != nil {
		return conf, errors.Wrap(err, "failed to decode configuration")
	}

	if err := conf.Merge.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

// WatchConfig keeps the returned value up to date with the configuration file. A
// change that fails to load is ignored and the previous configuration stays in place.
func WatchConfig(v *viper.Viper, onError func(error)) (*atomic.Pointer[Config], error) {
	conf, err := LoadConfig(v)
	if err != nil {
		return nil, err
	}

	current := &atomic.Pointer[Config]{}
	current.Store(&conf)

	if ConfigFile == "" {
		return current, nil
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		updated, err := LoadConfig(v)
		if err != nil {
			onError(err)
			return
		}
		current.Store(&updated)
	})
	v.WatchConfig()
	return current, nil
}

func NewMetadataProvider() (stream.MetadataProvider, error) {
	switch MetadataProvider {
	case Memory:
		return stream.NewMetadataProviderMemory(), nil
	case File:
		return stream.NewMetadataProviderFile(DataDir), nil
	case Pebble:
		return stream.NewMetadataProviderPebble(stream.PebbleOptions{
			DataDir: filepath.Join(DataDir, "db"),
		})
	default:
		return nil, ErrInvalidMetadataProvider
	}
}

func NewService(conf Config) (stream.Service, error) {
	metadata, err := NewMetadataProvider()
	if err != nil {
		return nil, err
	}
	return stream.NewLocalService(metadata, conf.Stream), nil
}

// Session is what a command needs to talk to the control plane.
type Session struct {
	Config   Config
	Service  stream.Service
	Provider *controlplane.Provider
}

// WithSession loads the configuration, opens the stream service and closes it once f
// returns.
func WithSession(v *viper.Viper, f func(s *Session) error) (err error) {
	SetConfigPath(v)
	conf, err := LoadConfig(v)
	if err != nil {
		return err
	}

	service, err := NewService(conf)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, service.Close())
	}()

	return f(&Session{
		Config:   conf,
		Service:  service,
		Provider: controlplane.NewProvider(service, conf.ControlPlane),
	})
}
