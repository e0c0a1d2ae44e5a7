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
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

var (
	one = big.NewInt(1)

	// MaxHashKey is the highest key of the 128 bits hash key space.
	MaxHashKey = new(big.Int).Sub(new(big.Int).Lsh(one, 128), one)

	ErrInvalidHashRange = errors.New("invalid hash range")
)

// HashRange is the closed interval [start, end] of the hash key space owned by a shard.
// Values are never mutated after construction.
type HashRange struct {
	start *big.Int
	end   *big.Int
}

func NewHashRange(start, end *big.Int) (HashRange, error) {
	if start == nil || end == nil {
		return HashRange{}, errors.Wrap(ErrInvalidHashRange, "missing bound")
	}
	if start.Sign() < 0 || end.Cmp(MaxHashKey) > 0 {
		return HashRange{}, errors.Wrapf(ErrInvalidHashRange, "[%s, %s] is outside of the key space", start, end)
	}
	if start.Cmp(end) > 0 {
		return HashRange{}, errors.Wrapf(ErrInvalidHashRange, "start %s is greater than end %s", start, end)
	}

	return HashRange{
		start: new(big.Int).Set(start),
		end:   new(big.Int).Set(end),
	}, nil
}

// ParseHashRange builds a range from the decimal representation used by the control plane.
func ParseHashRange(start, end string) (HashRange, error) {
	s, ok := new(big.Int).SetString(start, 10)
	if !ok {
		return HashRange{}, errors.Wrapf(ErrInvalidHashRange, "malformed starting hash key %q", start)
	}
	e, ok := new(big.Int).SetString(end, 10)
	if !ok {
		return HashRange{}, errors.Wrapf(ErrInvalidHashRange, "malformed ending hash key %q", end)
	}
	return NewHashRange(s, e)
}

// MustParseHashRange is ParseHashRange for literals that are known to be valid.
func MustParseHashRange(start, end string) HashRange {
	hr, err := ParseHashRange(start, end)
	if err != nil {
		panic(err)
	}
	return hr
}

func (hr HashRange) Start() *big.Int {
	return new(big.Int).Set(hr.bound(hr.start))
}

func (hr HashRange) End() *big.Int {
	return new(big.Int).Set(hr.bound(hr.end))
}

// The zero value behaves as [0, 0].
func (HashRange) bound(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// IsAdjacentTo reports whether other starts exactly one key after the end of hr,
// with no gap and no overlap.
func (hr HashRange) IsAdjacentTo(other HashRange) bool {
	next := new(big.Int).Add(hr.bound(hr.end), one)
	return next.Cmp(other.bound(other.start)) == 0
}

// Union returns the smallest range covering both hr and other.
func (hr HashRange) Union(other HashRange) HashRange {
	start, end := hr.bound(hr.start), hr.bound(hr.end)
	if s := other.bound(other.start); s.Cmp(start) < 0 {
		start = s
	}
	if e := other.bound(other.end); e.Cmp(end) > 0 {
		end = e
	}
	return HashRange{
		start: new(big.Int).Set(start),
		end:   new(big.Int).Set(end),
	}
}

// Width is the number of keys in the range.
func (hr HashRange) Width() *big.Int {
	w := new(big.Int).Sub(hr.bound(hr.end), hr.bound(hr.start))
	return w.Add(w, one)
}

// Compare orders ranges by their starting key.
func (hr HashRange) Compare(other HashRange) int {
	return hr.bound(hr.start).Cmp(other.bound(other.start))
}

func (hr HashRange) Equal(other HashRange) bool {
	return hr.bound(hr.start).Cmp(other.bound(other.start)) == 0 &&
		hr.bound(hr.end).Cmp(other.bound(other.end)) == 0
}

func (hr HashRange) String() string {
	return fmt.Sprintf("[%s, %s]", hr.bound(hr.start), hr.bound(hr.end))
}

type hashRangeJSON struct {
	StartingHashKey string `json:"startingHashKey"`
	EndingHashKey   string `json:"endingHashKey"`
}

func (hr HashRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(hashRangeJSON{
		StartingHashKey: hr.bound(hr.start).String(),
		EndingHashKey:   hr.bound(hr.end).String(),
	})
}

func (hr *HashRange) UnmarshalJSON(b []byte) error {
	var j hashRangeJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	parsed, err := ParseHashRange(j.StartingHashKey, j.EndingHashKey)
	if err != nil {
		return err
	}
	*hr = parsed
	return nil
}

// SplitKeySpace partitions the whole hash key space into n contiguous ranges of equal
// width. The last range absorbs the remainder.
func SplitKeySpace(n int) ([]HashRange, error) {
	if n <= 0 {
		return nil, errors.Errorf("invalid number of ranges: %d", n)
	}

	size := new(big.Int).Add(MaxHashKey, one)
	bucket := size.Div(size, big.NewInt(int64(n)))

	ranges := make([]HashRange, n)
	for i := 0; i < n; i++ {
		start := new(big.Int).Mul(bucket, big.NewInt(int64(i)))
		end := new(big.Int).Add(start, bucket)
		end.Sub(end, one)
		if i == n-1 {
			end.Set(MaxHashKey)
		}
		ranges[i] = HashRange{start: start, end: end}
	}
	return ranges, nil
}
