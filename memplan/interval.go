// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package memplan implements the memory planner (spec C6): rewriting
// a schedule's buffer tuples so that non-overlapping intermediate
// lifetimes share the same backing storage, adapted from
// ints/interval.go's half-open range algebra.
package memplan

import "golang.org/x/exp/slices"

// Interval is a half-open range [Start, End) of schedule-item indices
// during which a buffer is live (or, for a free segment, available).
// Unlike ints.Interval (byte ranges within one buffer), this tracks
// positions in the schedule's item list.
type Interval struct {
	Start, End int
}

// Empty reports whether in covers no indices.
func (in Interval) Empty() bool { return in.Start >= in.End }

// Len returns the number of indices in in.
func (in Interval) Len() int {
	if in.End <= in.Start {
		return 0
	}
	return in.End - in.Start
}

// Contains reports whether x lies entirely within in.
func (in Interval) Contains(x Interval) bool {
	return in.Start <= x.Start && x.End <= in.End
}

// Sub removes x from in, returning the up-to-two remaining pieces
// (spec §4.5 step 4: "split the free segment into up-to-two remaining
// segments excluding [start, end]"). x is assumed to lie within in.
func (in Interval) Sub(x Interval) Intervals {
	var out Intervals
	if in.Start < x.Start {
		out = append(out, Interval{in.Start, x.Start})
	}
	if x.End < in.End {
		out = append(out, Interval{x.End, in.End})
	}
	return out
}

// Intervals is a series of half-open index ranges.
type Intervals []Interval

// Clone returns a copy of in.
func (in Intervals) Clone() Intervals {
	return slices.Clone(in)
}

// Compress sorts and merges overlapping/adjacent ranges in place.
func (in *Intervals) Compress() {
	slices.SortFunc(*in, func(x, y Interval) int {
		if x.Start == y.Start {
			return x.End - y.End
		}
		return x.Start - y.Start
	})
	*in = slices.Compact(*in)

	merged := (*in)[:0]
	for i := 0; i < len(*in); i++ {
		cur := (*in)[i]
		for i+1 < len(*in) && (*in)[i+1].Start <= cur.End {
			i++
			if (*in)[i].End > cur.End {
				cur.End = (*in)[i].End
			}
		}
		merged = append(merged, cur)
	}
	*in = merged
}
