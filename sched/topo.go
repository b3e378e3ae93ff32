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
	"fmt"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

// ErrCycleDetected is raised when the dependency graph among lowered
// groups cannot be fully ordered (spec §7).
var ErrCycleDetected = errors.New("sched: cannot topologically order lowered groups")

// LoweredGroup is the minimal view of one already-lowered kernel group
// that the topological emitter needs (spec C4's output). It is
// declared here rather than imported from package lower: lower
// imports sched for Result, so sched cannot import lower back; package
// scheduler bridges the two by copying a lower.LoweredGroup's fields
// into this type.
type LoweredGroup struct {
	Outputs  []*ir.LazyBuffer
	Inputs   []*ir.LazyBuffer
	AST      *ir.LazyOp
	VarVals  st.VarVals
	Metadata []ir.Metadata
}

// Emit implements spec C5: a Kahn's-algorithm topological ordering of
// groups, with edges from a group's inputs back to whichever group (if
// any) produces them, plus an edge from the producer of an ASSIGN
// target to the group performing the assign, then allocates a fresh
// ir.Buffer for each newly realized output and returns the final
// []*ir.ScheduleItem in execution order. Grounded on plan/tree.go's
// dependency-node shape and plan/exec.go's dependency walk.
func Emit(groups []*LoweredGroup, cfg schedconfig.Config) ([]*ir.ScheduleItem, st.VarVals, error) {
	n := len(groups)
	producerOf := make(map[int]int, n)
	for gi, g := range groups {
		for _, o := range g.Outputs {
			producerOf[o.BaseOf().ID()] = gi
		}
	}

	deps := make([]map[int]bool, n)
	dependents := make([][]int, n)
	for i := range deps {
		deps[i] = map[int]bool{}
	}
	addEdge := func(producer, consumer int) {
		if producer == consumer || deps[consumer][producer] {
			return
		}
		deps[consumer][producer] = true
		dependents[producer] = append(dependents[producer], consumer)
	}

	for gi, g := range groups {
		for _, in := range g.Inputs {
			if pi, ok := producerOf[in.BaseOf().ID()]; ok {
				addEdge(pi, gi)
			}
		}
		for _, o := range g.Outputs {
			if o.Op != ir.Assign || len(o.Srcs) < 2 {
				continue
			}
			target := o.Srcs[1].BaseOf()
			if pi, ok := producerOf[target.ID()]; ok {
				addEdge(pi, gi)
			}
		}
	}

	indegree := make([]int, n)
	for i := range deps {
		indegree[i] = len(deps[i])
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		gi := ready[0]
		ready = ready[1:]
		order = append(order, gi)
		for _, ci := range dependents[gi] {
			indegree[ci]--
			if indegree[ci] == 0 {
				ready = append(ready, ci)
			}
		}
	}
	if len(order) != n {
		return nil, nil, fmt.Errorf("%w: ordered %d of %d groups", ErrCycleDetected, len(order), n)
	}

	varVals := st.VarVals{}
	bufferOf := make(map[int]*ir.Buffer, n)
	items := make([]*ir.ScheduleItem, 0, n)

	for _, gi := range order {
		g := groups[gi]
		varVals.Merge(g.VarVals)

		bufs := make([]*ir.Buffer, 0, len(g.Outputs)+len(g.Inputs))
		for _, o := range g.Outputs {
			// An ASSIGN's output is the target it writes into, not a
			// fresh allocation of its own (spec E4: "1 KERNEL whose
			// output buffer is x.buffer"): resolve and reuse the
			// target's buffer instead of bufferFor(o, ...).
			if o.Op == ir.Assign && len(o.Srcs) >= 2 {
				target := o.Srcs[1].BaseOf()
				buf := bufferFor(target, bufferOf)
				o.Realized = buf
				bufs = append(bufs, buf)
				continue
			}
			bufs = append(bufs, bufferFor(o, bufferOf))
		}
		for _, in := range g.Inputs {
			buf := bufferFor(in, bufferOf)
			if buf.Size == 0 {
				// spec §4.4: input bufs with size 0 (pure symbolic
				// placeholders) are not threaded into the item.
				continue
			}
			bufs = append(bufs, buf)
		}

		items = append(items, &ir.ScheduleItem{AST: g.AST, Bufs: bufs, Metadata: g.Metadata})

		for _, o := range g.Outputs {
			if !o.Scheduled() {
				o.MarkScheduled()
			}
		}
	}

	return items, varVals, nil
}

// bufferFor returns the Buffer already backing b's base (either
// pre-existing or allocated earlier in this same Emit call), or
// allocates a fresh one sized from the base's constant shape.
func bufferFor(b *ir.LazyBuffer, bufferOf map[int]*ir.Buffer) *ir.Buffer {
	base := b.BaseOf()
	if base.Realized != nil {
		return base.Realized
	}
	if buf, ok := bufferOf[base.ID()]; ok {
		return buf
	}
	size, ok := constVolume(base.Shape())
	if !ok {
		size = 0 // symbolic shape: size is resolved by the runtime from var_vals at alloc time
	}
	buf := ir.NewBuffer(base.Device, size, base.DType, ir.BufferOptions{})
	base.Realized = buf
	bufferOf[base.ID()] = buf
	return buf
}
