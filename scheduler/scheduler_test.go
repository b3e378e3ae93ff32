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

package scheduler

import (
	"testing"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

func leaf(a *ir.Arena, shape st.ShapeTracker, dtype ir.DType, device string) *ir.LazyBuffer {
	buf := ir.NewBuffer(device, 32, dtype, ir.BufferOptions{})
	b := a.NewRealized(dtype, shape, buf)
	b.Device = device
	return b
}

// TestCreateScheduleElementwiseChain covers spec §8's E1: a chain of
// elementwise ops over realized leaves fuses into exactly one KERNEL
// schedule item.
func TestCreateScheduleElementwiseChain(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4), st.Const(8))
	x := leaf(a, shape, ir.Float32, "CPU")
	y := leaf(a, shape, ir.Float32, "CPU")
	add := a.NewBase(ir.Add, ir.Float32, shape, nil, x, y)
	add.Device = "CPU"
	mul := a.NewBase(ir.Mul, ir.Float32, shape, nil, add, x)
	mul.Device = "CPU"
	mul.ForcedRealize = true

	items, err := CreateSchedule([]*ir.LazyBuffer{mul}, nil)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the elementwise chain to fuse into 1 item, got %d", len(items))
	}
	if items[0].AST.Op != ir.Kernel {
		t.Fatalf("expected a KERNEL item, got %s", items[0].AST.Op)
	}
}

// TestCreateScheduleReduceThenConsumer: a reduction and an elementwise
// consumer of it, both forced to realize, produce two KERNEL schedule
// items.
func TestCreateScheduleReduceThenConsumer(t *testing.T) {
	a := ir.NewArena()
	inShape := st.FromShapeTracker(st.Const(4), st.Const(8))
	outShape := st.FromShapeTracker(st.Const(4), st.Const(1))
	x := leaf(a, inShape, ir.Float32, "CPU")
	sum := a.NewBase(ir.Sum, ir.Float32, outShape, []int{1}, x)
	sum.Device = "CPU"
	sum.ForcedRealize = true
	neg := a.NewBase(ir.Neg, ir.Float32, outShape, nil, sum)
	neg.Device = "CPU"
	neg.ForcedRealize = true

	items, err := CreateSchedule([]*ir.LazyBuffer{sum, neg}, nil)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 schedule items (reduce, consumer), got %d", len(items))
	}
	if items[0].AST.Op != ir.Kernel || items[1].AST.Op != ir.Kernel {
		t.Fatalf("expected both items to be KERNEL, got %s, %s", items[0].AST.Op, items[1].AST.Op)
	}
}

// TestCreateScheduleAssign covers spec §8's E4: assigning into an
// already-realized buffer (x = zeros(3).realize(); x.assign(x + y))
// produces a single KERNEL whose output is the target's own buffer.
func TestCreateScheduleAssign(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := leaf(a, shape, ir.Float32, "CPU") // already realize()d
	y := leaf(a, shape, ir.Float32, "CPU")

	value := a.NewBase(ir.Add, ir.Float32, shape, nil, x, y)
	value.Device = "CPU"
	assign := a.NewBase(ir.Assign, ir.Float32, shape, nil, value, x)
	assign.Device = "CPU"
	assign.ForcedRealize = true

	items, err := CreateSchedule([]*ir.LazyBuffer{assign}, nil)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 schedule item, got %d", len(items))
	}
	if items[0].Bufs[0] != x.Realized {
		t.Fatalf("expected the assign's output buffer to be the target's own buffer")
	}
}

// TestCreateScheduleWithVarsSurfacesSymbolicBindings covers spec §4.4:
// a schedule over a symbolic dimension returns the variable's binding
// alongside the schedule.
func TestCreateScheduleWithVarsSurfacesSymbolicBindings(t *testing.T) {
	a := ir.NewArena()
	n := st.NewVariable("n", 1, 16)
	shape := st.FromShapeTracker(st.FromVar(n), st.Const(8))
	x := leaf(a, shape, ir.Float32, "CPU")
	y := leaf(a, shape, ir.Float32, "CPU")
	add := a.NewBase(ir.Add, ir.Float32, shape, nil, x, y)
	add.Device = "CPU"
	add.ForcedRealize = true

	_, vars, err := CreateScheduleWithVars([]*ir.LazyBuffer{add}, nil, schedconfig.Config{})
	if err != nil {
		t.Fatalf("CreateScheduleWithVars: %v", err)
	}
	if _, ok := vars[n]; !ok {
		t.Fatalf("expected variable %q to be bound in the returned VarVals", n.Name)
	}
}

// TestCreateScheduleNoMemoryPlannerLeavesBuffersDistinct covers the
// NoMemoryPlanner escape hatch (spec §4.5): with it set, two
// non-overlapping buffers are not coalesced onto shared storage.
func TestCreateScheduleNoMemoryPlannerLeavesBuffersDistinct(t *testing.T) {
	a := ir.NewArena()
	shape := st.FromShapeTracker(st.Const(4))
	x := leaf(a, shape, ir.Float32, "CPU")
	y := leaf(a, shape, ir.Float32, "CPU")

	first := a.NewBase(ir.Neg, ir.Float32, shape, nil, x)
	first.Device = "CPU"
	first.ForcedRealize = true
	second := a.NewBase(ir.Neg, ir.Float32, shape, nil, y)
	second.Device = "CPU"
	second.ForcedRealize = true

	items, _, err := CreateScheduleWithVars([]*ir.LazyBuffer{first, second}, nil, schedconfig.Config{NoMemoryPlanner: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 schedule items, got %d", len(items))
	}
	if items[0].Bufs[0] == items[1].Bufs[0] {
		t.Fatalf("expected the two outputs to keep distinct buffers with NoMemoryPlanner set")
	}
}
