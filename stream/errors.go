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
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	CodeResourceNotFound codes.Code = 100
	CodeResourceInUse    codes.Code = 101
	CodeLimitExceeded    codes.Code = 102
	CodeInvalidArgument  codes.Code = 103
)

var (
	ErrorLimitExceeded = status.Error(CodeLimitExceeded, "stream: rate exceeded")
)

func errorResourceNotFound(format string, args ...any) error {
	return status.Error(CodeResourceNotFound, "stream: "+fmt.Sprintf(format, args...))
}

func errorResourceInUse(format string, args ...any) error {
	return status.Error(CodeResourceInUse, "stream: "+fmt.Sprintf(format, args...))
}

func errorInvalidArgument(format string, args ...any) error {
	return status.Error(CodeInvalidArgument, "stream: "+fmt.Sprintf(format, args...))
}
