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
	"github.com/google/uuid"
	"github.com/kernelsched/fusion/st"
)

// Arena owns every LazyBuffer created during one scheduling session.
// LazyBuffers are read-only DAG nodes for the duration of the
// session; the Arena is discarded (and its LazyBuffers become
// unreachable) once a schedule has been emitted, per spec §9
// ("implement with arena + indices; free the arena after schedule
// emission").
type Arena struct {
	Session uuid.UUID
	bufs    []*LazyBuffer
}

// NewArena creates an empty Arena stamped with a fresh session id,
// grounded on tenant.go/fsenv.go's use of uuid.New() for session ids.
func NewArena() *Arena {
	return &Arena{Session: uuid.New()}
}

// Len returns the number of LazyBuffers allocated so far.
func (a *Arena) Len() int { return len(a.bufs) }

// At returns the LazyBuffer with the given arena-local id.
func (a *Arena) At(id int) *LazyBuffer { return a.bufs[id] }

func (a *Arena) alloc(b *LazyBuffer) *LazyBuffer {
	b.id = len(a.bufs)
	a.bufs = append(a.bufs, b)
	return b
}

// NewBase allocates a new base LazyBuffer (an operation node: it
// computes something, rather than merely re-indexing another node).
func (a *Arena) NewBase(op Op, dtype DType, shape st.ShapeTracker, arg interface{}, srcs ...*LazyBuffer) *LazyBuffer {
	return a.alloc(&LazyBuffer{Op: op, Srcs: srcs, Arg: arg, DType: dtype, ST: shape})
}

// NewView allocates a view LazyBuffer re-indexing base through
// viewST. base must itself be a base LazyBuffer (IsView() == false);
// composing a view over an existing view is done by composing the
// ShapeTracker before calling NewView, not by nesting view nodes,
// keeping BaseOf() a single indirection (spec §3 invariant).
func (a *Arena) NewView(base *LazyBuffer, viewST st.ShapeTracker) *LazyBuffer {
	if base.IsView() {
		panic("ir: NewView requires a base LazyBuffer")
	}
	return a.alloc(&LazyBuffer{Op: View, Srcs: []*LazyBuffer{base}, DType: base.DType, ST: viewST, Base: base})
}

// NewRealized wraps an already-materialized Buffer as a leaf
// LazyBuffer (spec §3: "realized is not None iff the value is
// already materialized").
func (a *Arena) NewRealized(dtype DType, shape st.ShapeTracker, buf *Buffer) *LazyBuffer {
	b := a.alloc(&LazyBuffer{Op: Empty, DType: dtype, ST: shape})
	b.Realized = buf
	return b
}
