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

package sched

import (
	"testing"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
)

func newTestWalker() *walker {
	return &walker{
		allbufs:       map[int]*ir.LazyBuffer{},
		children:      map[int][]*ir.LazyBuffer{},
		visited:       map[int]bool{},
		realizeSet:    newLBSet(),
		candidatePads: newLBSet(),
		assignTargets: map[int]*ir.LazyBuffer{},
		doubleReduce:  map[int]*ir.LazyBuffer{},
		seen:          map[int]bool{},
	}
}

// TestGroupReduceFusesSoleElementwiseConsumer covers the common case
// of spec §4.2.3: a reduce with exactly one, shape-preserving,
// uniquely-referencing elementwise consumer fuses directly into that
// consumer's kernel rather than realizing on its own.
func TestGroupReduceFusesSoleElementwiseConsumer(t *testing.T) {
	a := ir.NewArena()
	inShape := st.FromShapeTracker(st.Const(4), st.Const(8))
	outShape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := newBase(a, ir.Empty, inShape, "CPU")
	r := a.NewBase(ir.Sum, ir.Float32, outShape, []int{1}, x)
	r.Device = "CPU"
	y := a.NewBase(ir.Neg, ir.Float32, outShape, nil, r)
	y.Device = "CPU"

	w := newTestWalker()
	w.children[r.ID()] = []*ir.LazyBuffer{y}
	w.markRealize(y)

	reduceForOp := map[int]*ir.LazyBuffer{}
	groupReduce(w, r, reduceForOp)

	if len(reduceForOp) != 0 {
		t.Fatalf("expected no standalone reduce grouping, got %v", reduceForOp)
	}
	if w.realizeSet.Has(r) {
		t.Fatalf("expected the reduce to stay unrealized and fuse into its consumer")
	}
}

// TestGroupReduceForcesRealizeOnShapeMismatch covers spec §4.2.3 step
// 1(i): a realized child reached through a non-contiguous or
// differently-sized reindex forces the reduce itself to realize.
func TestGroupReduceForcesRealizeOnShapeMismatch(t *testing.T) {
	a := ir.NewArena()
	outShape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := newBase(a, ir.Empty, st.FromShapeTracker(st.Const(4), st.Const(8)), "CPU")
	r := a.NewBase(ir.Sum, ir.Float32, outShape, []int{1}, x)
	r.Device = "CPU"

	expanded := []st.Expr{st.Const(4), st.Const(8)}
	z := a.NewView(r, r.ST.Expand(expanded))

	w := newTestWalker()
	w.children[r.ID()] = []*ir.LazyBuffer{z}
	w.markRealize(z)

	reduceForOp := map[int]*ir.LazyBuffer{}
	groupReduce(w, r, reduceForOp)

	if !w.realizeSet.Has(r.BaseOf()) {
		t.Fatalf("expected the reduce to be forced into the realize set on shape mismatch")
	}
}

func TestChaseTargetDescendsThroughSingleChild(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := newBase(a, ir.Empty, st.FromShapeTracker(st.Const(4), st.Const(8)), "CPU")
	r := a.NewBase(ir.Sum, ir.Float32, shape, []int{1}, x)
	r.Device = "CPU"
	c1 := a.NewBase(ir.Neg, ir.Float32, shape, nil, r)
	c1.Device = "CPU"

	w := newTestWalker()
	w.children[r.ID()] = []*ir.LazyBuffer{c1}

	if got := chaseTarget(w, r); got != c1 {
		t.Fatalf("expected chaseTarget to descend to the sole consumer, got %v", got)
	}
}

// TestChaseTargetBacksOffUpcast covers spec §4.2.3 step 6: chasing
// through a single widening CAST backs off to the CAST's own input so
// the wider dtype is never paid at the store boundary.
func TestChaseTargetBacksOffUpcast(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := newBase(a, ir.Empty, st.FromShapeTracker(st.Const(4), st.Const(8)), "CPU")
	r := a.NewBase(ir.Sum, ir.Float32, shape, []int{1}, x)
	r.Device = "CPU"
	cast := a.NewBase(ir.Cast, ir.Float64, shape, nil, r)
	cast.Device = "CPU"

	w := newTestWalker()
	w.children[r.ID()] = []*ir.LazyBuffer{cast}

	if got := chaseTarget(w, r); got != r {
		t.Fatalf("expected chaseTarget to back off the upcast to the reduce itself, got %v", got)
	}
}
