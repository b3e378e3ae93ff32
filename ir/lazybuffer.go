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

package ir

import (
	"fmt"

	"github.com/kernelsched/fusion/st"
)

// Metadata is a provenance tag threaded from user-facing construction
// code down into emitted ScheduleItems, for debugging/diagnostics
// only; the scheduler never branches on it.
type Metadata struct {
	Name string
}

// LazyBuffer is a node in the unscheduled DAG (spec §3). Identity is
// by pointer: two LazyBuffers are the "same" node iff they are the
// same Go pointer, never by structural comparison (spec §9).
//
// If Base is nil, this LazyBuffer is itself a base (the spec's
// "base == self" invariant, expressed in Go as "no separate base
// pointer needed"). If Base is non-nil, this LazyBuffer is a view: it
// carries Op == View, a single src (the base), and ST re-indexes that
// base; it performs no computation of its own.
type LazyBuffer struct {
	id int // arena-local identity, used as a map key substitute

	Op       Op
	Srcs     []*LazyBuffer
	Arg      interface{}
	DType    DType
	ST       st.ShapeTracker
	Base     *LazyBuffer
	Realized *Buffer
	// Device is the target device string for this buffer. The spec's
	// data model (§3) omits a device field from LazyBuffer since
	// device assignment belongs to the out-of-scope construction API;
	// it is carried here anyway because the memory planner (C6) and
	// Buffer construction in the topological emitter (C5) both need
	// to bucket/allocate per device.
	Device string

	ForcedRealize bool
	Metadata      []Metadata

	// scheduled marks a buffer whose Srcs have been discarded after
	// being folded into an emitted ScheduleItem, preventing it from
	// being traversed again (spec §9 "Lazy deletion of srcs").
	scheduled bool
}

// ID returns the LazyBuffer's arena-local identity. Two LazyBuffers
// from different Arenas may share an ID; IDs are only meaningful
// within one scheduling call's Arena, per spec §9.
func (b *LazyBuffer) ID() int { return b.id }

// IsView reports whether b re-indexes a distinct base rather than
// being a base itself.
func (b *LazyBuffer) IsView() bool { return b.Base != nil }

// BaseOf returns the ultimate base LazyBuffer: b itself if b is
// already a base, else b.Base (which is always itself a base by
// construction — views of views are built by composing the
// ShapeTracker against the original base, never by chaining Base
// pointers).
func (b *LazyBuffer) BaseOf() *LazyBuffer {
	if b.Base != nil {
		return b.Base
	}
	return b
}

// Shape returns the LazyBuffer's logical shape.
func (b *LazyBuffer) Shape() []st.Expr { return b.ST.Shape() }

// Scheduled reports whether b's srcs have already been discarded
// because b was folded into an emitted ScheduleItem.
func (b *LazyBuffer) Scheduled() bool { return b.scheduled }

// MarkScheduled discards b's srcs and marks it scheduled, so that any
// attempt to re-traverse it is caught rather than silently redone
// (spec §9).
func (b *LazyBuffer) MarkScheduled() {
	b.Srcs = nil
	b.scheduled = true
}

func (b *LazyBuffer) String() string {
	if b.IsView() {
		return fmt.Sprintf("LazyBuffer#%d(VIEW of #%d, %s)", b.id, b.Base.id, b.DType)
	}
	return fmt.Sprintf("LazyBuffer#%d(%s, %s)", b.id, b.Op, b.DType)
}
