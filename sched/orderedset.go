// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package sched implements the realization decider (spec C3) and the
// topological emitter (spec C5): the core of the scheduler.
package sched

import "github.com/kernelsched/fusion/ir"

// lbSet is an insertion-ordered set of LazyBuffers keyed by identity
// (arena id). Go's map iteration order is randomized, and spec
// invariant 9 ("Determinism") requires that the walk in §4.2.1 stay
// in insertion order, so every set that ends up driving emission
// order is one of these rather than a bare map.
type lbSet struct {
	order []*ir.LazyBuffer
	idx   map[int]int
}

func newLBSet() *lbSet { return &lbSet{idx: map[int]int{}} }

// Add inserts b if not already present; reports whether it was newly added.
func (s *lbSet) Add(b *ir.LazyBuffer) bool {
	if _, ok := s.idx[b.ID()]; ok {
		return false
	}
	s.idx[b.ID()] = len(s.order)
	s.order = append(s.order, b)
	return true
}

// Has reports whether b is a member.
func (s *lbSet) Has(b *ir.LazyBuffer) bool {
	_, ok := s.idx[b.ID()]
	return ok
}

// Delete removes b if present.
func (s *lbSet) Delete(b *ir.LazyBuffer) {
	i, ok := s.idx[b.ID()]
	if !ok {
		return
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.idx, b.ID())
	for id, pos := range s.idx {
		if pos > i {
			s.idx[id] = pos - 1
		}
	}
}

// Order returns the members in insertion order.
func (s *lbSet) Order() []*ir.LazyBuffer { return s.order }

// Len returns the member count.
func (s *lbSet) Len() int { return len(s.order) }
