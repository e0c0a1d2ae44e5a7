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

package model

import (
	"bytes"
	"encoding/json"
)

type ShardStatus uint16

const (
	ShardStatusUnknown ShardStatus = iota
	ShardStatusOpen
	ShardStatusClosed
)

var shardStatusToString = map[ShardStatus]string{
	ShardStatusUnknown: "UNKNOWN",
	ShardStatusOpen:    "OPEN",
	ShardStatusClosed:  "CLOSED",
}

var stringToShardStatus = map[string]ShardStatus{
	"UNKNOWN": ShardStatusUnknown,
	"OPEN":    ShardStatusOpen,
	"CLOSED":  ShardStatusClosed,
}

func (s ShardStatus) String() string {
	return shardStatusToString[s]
}

// MarshalJSON marshals the enum as a quoted json string
func (s ShardStatus) MarshalJSON() ([]byte, error) {
	return quote(shardStatusToString[s]), nil
}

// UnmarshalJSON unmarshals a quoted json string to the enum value
func (s *ShardStatus) UnmarshalJSON(b []byte) error {
	var j string
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	// If the string cannot be found then it will be set to the Unknown status value.
	*s = stringToShardStatus[j]
	return nil
}

type StreamStatus uint16

const (
	StreamStatusUnknown StreamStatus = iota
	StreamStatusCreating
	StreamStatusActive
	StreamStatusUpdating
	StreamStatusDeleting
)

var streamStatusToString = map[StreamStatus]string{
	StreamStatusUnknown:  "UNKNOWN",
	StreamStatusCreating: "CREATING",
	StreamStatusActive:   "ACTIVE",
	StreamStatusUpdating: "UPDATING",
	StreamStatusDeleting: "DELETING",
}

var stringToStreamStatus = map[string]StreamStatus{
	"UNKNOWN":  StreamStatusUnknown,
	"CREATING": StreamStatusCreating,
	"ACTIVE":   StreamStatusActive,
	"UPDATING": StreamStatusUpdating,
	"DELETING": StreamStatusDeleting,
}

func (s StreamStatus) String() string {
	return streamStatusToString[s]
}

// MarshalJSON marshals the enum as a quoted json string
func (s StreamStatus) MarshalJSON() ([]byte, error) {
	return quote(streamStatusToString[s]), nil
}

// UnmarshalJSON unmarshals a quoted json string to the enum value
func (s *StreamStatus) UnmarshalJSON(b []byte) error {
	var j string
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*s = stringToStreamStatus[j]
	return nil
}

func quote(s string) []byte {
	buffer := bytes.NewBufferString(`"`)
	buffer.WriteString(s)
	buffer.WriteString(`"`)
	return buffer.Bytes()
}
