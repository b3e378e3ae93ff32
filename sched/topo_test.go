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
	"errors"
	"testing"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

func newBase(a *ir.Arena, op ir.Op, shape st.ShapeTracker, device string) *ir.LazyBuffer {
	b := a.NewBase(op, ir.Float32, shape, nil)
	b.Device = device
	return b
}

func TestEmitOrdersProducerBeforeConsumer(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))

	producer := newBase(a, ir.Empty, shape, "CPU")
	consumer := newBase(a, ir.Empty, shape, "CPU")

	groups := []*LoweredGroup{
		{Outputs: []*ir.LazyBuffer{consumer}, Inputs: []*ir.LazyBuffer{producer}, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}},
		{Outputs: []*ir.LazyBuffer{producer}, Inputs: nil, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}},
	}

	items, _, err := Emit(groups, schedconfig.Config{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Bufs[0] != producer.Realized {
		t.Fatalf("expected producer's group to run first")
	}
}

func TestEmitAssignOrdering(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))

	target := newBase(a, ir.Empty, shape, "CPU")
	producerGroup := &LoweredGroup{Outputs: []*ir.LazyBuffer{target}, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}}

	assignVal := a.NewBase(ir.Const, ir.Float32, shape, int64(1))
	assign := a.NewBase(ir.Assign, ir.Float32, shape, nil, assignVal, target)
	assign.Device = "CPU"
	assignGroup := &LoweredGroup{Outputs: []*ir.LazyBuffer{assign}, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}}

	// list the assign group first to verify the edge reorders it after
	// the producer regardless of input order.
	groups := []*LoweredGroup{assignGroup, producerGroup}

	items, _, err := Emit(groups, schedconfig.Config{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if items[0].Bufs[0] != target.Realized {
		t.Fatalf("expected target's producer group to run before the assign")
	}
}

func TestEmitCycleDetected(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := newBase(a, ir.Empty, shape, "CPU")
	y := newBase(a, ir.Empty, shape, "CPU")

	groups := []*LoweredGroup{
		{Outputs: []*ir.LazyBuffer{x}, Inputs: []*ir.LazyBuffer{y}, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}},
		{Outputs: []*ir.LazyBuffer{y}, Inputs: []*ir.LazyBuffer{x}, AST: ir.NewLazyOp(ir.Kernel, nil), VarVals: st.VarVals{}},
	}

	_, _, err := Emit(groups, schedconfig.Config{})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}
