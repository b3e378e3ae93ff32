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
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

func realizedLeaf(a *ir.Arena, shape st.ShapeTracker, device string) *ir.LazyBuffer {
	buf := ir.NewBuffer(device, 32, ir.Float32, ir.BufferOptions{})
	b := a.NewRealized(ir.Float32, shape, buf)
	b.Device = device
	return b
}

func TestRealizeMarksForcedRealizeOutputs(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := realizedLeaf(a, shape, "CPU")
	y := newBase(a, ir.Neg, shape, "CPU")
	y.Srcs = []*ir.LazyBuffer{x}
	y.ForcedRealize = true

	res := Realize([]*ir.LazyBuffer{y}, nil, schedconfig.Config{})
	if !res.RealizeSet.Has(y) {
		t.Fatalf("expected ForcedRealize output to be in the realize set")
	}
}

func TestRealizeTracksAssignTarget(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := realizedLeaf(a, shape, "CPU")
	y := realizedLeaf(a, shape, "CPU")

	value := a.NewBase(ir.Add, ir.Float32, shape, nil, x, y)
	value.Device = "CPU"
	assign := a.NewBase(ir.Assign, ir.Float32, shape, nil, value, x)
	assign.Device = "CPU"
	assign.ForcedRealize = true

	res := Realize([]*ir.LazyBuffer{assign}, nil, schedconfig.Config{})
	if res.AssignTargets[x.ID()] != assign {
		t.Fatalf("expected x to be tracked as assign's target")
	}
}

// TestRealizeExpandBarrier covers spec §8's E3: a broadcasting view
// that enlarges an unrealized base's element count forces the base to
// realize rather than fusing the broadcast into the consumer's kernel.
func TestRealizeExpandBarrier(t *testing.T) {
	a := ir.NewArena()
	baseShape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := realizedLeaf(a, st.FromShapeTracker(st.Const(4)), "CPU")

	base := a.NewBase(ir.Neg, ir.Float32, baseShape, nil, x)
	base.Device = "CPU"

	expandedShape := []st.Expr{st.Const(4), st.Const(8)}
	viewST := base.ST.Expand(expandedShape)
	view := a.NewView(base, viewST)

	consumer := a.NewBase(ir.Neg, ir.Float32, st.FromShapeTracker(expandedShape...), nil, view)
	consumer.Device = "CPU"
	consumer.ForcedRealize = true

	res := Realize([]*ir.LazyBuffer{consumer}, nil, schedconfig.Config{})
	if !res.RealizeSet.Has(base) {
		t.Fatalf("expected the broadcast's base to be forced into the realize set")
	}
}

// TestRealizeFuseAsOneKernelSuppressesExpandBarrier covers the
// FuseAsOneKernel escape hatch from spec §4.2.1: with it set, the same
// broadcasting view from TestRealizeExpandBarrier does not force its
// base to realize.
func TestRealizeFuseAsOneKernelSuppressesExpandBarrier(t *testing.T) {
	a := ir.NewArena()
	baseShape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := realizedLeaf(a, st.FromShapeTracker(st.Const(4)), "CPU")

	base := a.NewBase(ir.Neg, ir.Float32, baseShape, nil, x)
	base.Device = "CPU"

	expandedShape := []st.Expr{st.Const(4), st.Const(8)}
	viewST := base.ST.Expand(expandedShape)
	view := a.NewView(base, viewST)

	consumer := a.NewBase(ir.Neg, ir.Float32, st.FromShapeTracker(expandedShape...), nil, view)
	consumer.Device = "CPU"
	consumer.ForcedRealize = true

	res := Realize([]*ir.LazyBuffer{consumer}, nil, schedconfig.Config{FuseAsOneKernel: true})
	if res.RealizeSet.Has(base) {
		t.Fatalf("expected FuseAsOneKernel to suppress the expand barrier")
	}
}

func TestPadSafeAcceptsRealizedLeaf(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := realizedLeaf(a, shape, "CPU")
	realizeSet := newLBSet()
	memo := map[int]bool{}
	if !padSafe(x, realizeSet, memo) {
		t.Fatalf("expected an already-realized leaf to be pad safe")
	}
}

func TestPadSafeRejectsNonPadSafeOp(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := realizedLeaf(a, shape, "CPU")
	// Sum is a reduce op, not in the pad-safe allowlist.
	r := a.NewBase(ir.Sum, ir.Float32, shape, []int{0}, x)
	r.Device = "CPU"

	realizeSet := newLBSet()
	memo := map[int]bool{}
	if padSafe(r, realizeSet, memo) {
		t.Fatalf("expected a reduce op to be rejected as pad unsafe")
	}
}
