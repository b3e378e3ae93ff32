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
	"reflect"

	"github.com/kernelsched/fusion/st"
)

// MemBuffer is a BufferOps leaf payload referencing buffer slot Idx
// in the enclosing kernel's bufs list.
type MemBuffer struct {
	Idx   int
	DType DType
	ST    st.ShapeTracker
}

func (m MemBuffer) String() string {
	return fmt.Sprintf("MemBuffer(idx=%d, dtype=%s)", m.Idx, m.DType)
}

// ConstBuffer is a BufferOps leaf payload broadcasting a scalar across
// a ShapeTracker's logical shape.
type ConstBuffer struct {
	Value interface{}
	DType DType
	ST    st.ShapeTracker
}

func (c ConstBuffer) String() string {
	return fmt.Sprintf("ConstBuffer(value=%v, dtype=%s)", c.Value, c.DType)
}

// LazyOp is an immutable kernel-AST tree node. Unlike LazyBuffer
// (which is a node in the unscheduled DAG, with sharing and
// identity), a LazyOp tree is a frozen expression belonging to
// exactly one kernel body and is safe to treat as a plain value.
type LazyOp struct {
	Op   Op
	Srcs []*LazyOp
	Arg  interface{} // axis tuple for ReduceOps, MemBuffer/ConstBuffer for BufferOps, dtype for Cast
}

// NewLazyOp constructs a LazyOp node.
func NewLazyOp(op Op, arg interface{}, srcs ...*LazyOp) *LazyOp {
	return &LazyOp{Op: op, Srcs: srcs, Arg: arg}
}

// Walk visits n and every descendant in depth-first order.
func Walk(n *LazyOp, visit func(*LazyOp)) {
	if n == nil {
		return
	}
	for _, s := range n.Srcs {
		Walk(s, visit)
	}
	visit(n)
}

// Rewrite applies fn bottom-up, rebuilding nodes only when a child
// actually changed (so unaffected subtrees are shared, not copied).
func Rewrite(n *LazyOp, fn func(*LazyOp) *LazyOp) *LazyOp {
	if n == nil {
		return nil
	}
	changed := false
	newSrcs := make([]*LazyOp, len(n.Srcs))
	for i, s := range n.Srcs {
		ns := Rewrite(s, fn)
		newSrcs[i] = ns
		if ns != s {
			changed = true
		}
	}
	cur := n
	if changed {
		cur = &LazyOp{Op: n.Op, Srcs: newSrcs, Arg: n.Arg}
	}
	return fn(cur)
}

// Equal reports deep structural equality between two LazyOp trees.
func Equal(a, b *LazyOp) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Op != b.Op || len(a.Srcs) != len(b.Srcs) {
		return false
	}
	if !equalArg(a.Arg, b.Arg) {
		return false
	}
	for i := range a.Srcs {
		if !Equal(a.Srcs[i], b.Srcs[i]) {
			return false
		}
	}
	return true
}

func equalArg(a, b interface{}) bool {
	switch av := a.(type) {
	case MemBuffer:
		bv, ok := b.(MemBuffer)
		return ok && av.Idx == bv.Idx && av.DType == bv.DType && reflect.DeepEqual(av.ST, bv.ST)
	case ConstBuffer:
		bv, ok := b.(ConstBuffer)
		return ok && av.Value == bv.Value && av.DType == bv.DType && reflect.DeepEqual(av.ST, bv.ST)
	case []int:
		bv, ok := b.([]int)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func (n *LazyOp) String() string {
	if n == nil {
		return "<nil>"
	}
	if len(n.Srcs) == 0 {
		return fmt.Sprintf("%s(%v)", n.Op, n.Arg)
	}
	return fmt.Sprintf("%s(%v, %v)", n.Op, n.Arg, n.Srcs)
}
