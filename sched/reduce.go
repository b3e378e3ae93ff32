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
	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
)

// groupReduce implements spec §4.2.3 for a single reduce r: it either
// records every member of r's fusion group in reduceForOp, or forces
// a chase target into the realize set and records that instead.
func groupReduce(w *walker, r *ir.LazyBuffer, reduceForOp map[int]*ir.LazyBuffer) {
	group, forced := recursiveGroup(w, r)

	canChase := true
	for _, tr := range group {
		if _, claimed := reduceForOp[tr.ID()]; claimed {
			canChase = false
			break
		}
	}
	if !canChase {
		forced = true
	}

	if !forced && len(group) > 1 {
		group = isolatedChildren(w, r, group)
	}

	if !forced && hasAssign(group) {
		forced = assignBoundaryViolated(w, group)
	}

	if forced {
		tr := chaseTarget(w, r)
		w.markRealize(tr)
		reduceForOp[tr.BaseOf().ID()] = r
		return
	}

	for _, tr := range group {
		reduceForOp[tr.ID()] = r
	}
}

// recursiveGroup walks forward from r through w.children, accumulating
// a ShapeTracker, and returns the set of elementwise consumers that
// stay fused with r plus whether the walk detected that r feeds back
// into its own group (a "cycle", spec step 2).
func recursiveGroup(w *walker, r *ir.LazyBuffer) ([]*ir.LazyBuffer, bool) {
	group := newLBSet()
	cycle := false
	var visit func(cur *ir.LazyBuffer, acc accumulated)
	visit = func(cur *ir.LazyBuffer, acc accumulated) {
		for _, c := range w.children[cur.ID()] {
			if c.ID() == r.ID() {
				cycle = true
				continue
			}
			if w.isRealized(c) {
				cAcc := acc.through(c)
				if !cAcc.contiguousSameSize(r) {
					w.markRealize(r)
				}
				continue
			}
			if c.Op.IsReduceOp() {
				continue
			}
			cAcc := acc.through(c)
			if !cAcc.contiguousSameSize(r) {
				continue
			}
			if countRefs(c, cur) != 1 {
				continue
			}
			if group.Add(c) {
				visit(c, cAcc)
			}
		}
	}
	visit(r, accStart(r))
	return group.Order(), cycle
}

// accumulated tracks the composed ShapeTracker along a chase/group
// walk starting at a reduce's output shape.
type accumulated struct {
	tracker st.ShapeTracker
}

func accStart(r *ir.LazyBuffer) accumulated {
	return accumulated{tracker: r.ST}
}

// through composes the accumulated tracker with child c's own
// reindex: a VIEW node re-reads through its ShapeTracker, anything
// else (an elementwise op) preserves the iteration shape as-is.
func (a accumulated) through(c *ir.LazyBuffer) accumulated {
	if c.IsView() {
		return accumulated{tracker: a.tracker.Compose(c.ST)}
	}
	return a
}

// contiguousSameSize reports whether the accumulated tracker is still
// contiguous and has the same element count as r's own ShapeTracker
// (spec §4.2.3 step 1(i)).
func (a accumulated) contiguousSameSize(r *ir.LazyBuffer) bool {
	if !a.tracker.Contiguous() {
		return false
	}
	av, aok := constVolume(a.tracker.Shape())
	rv, rok := constVolume(r.ST.Shape())
	if aok && rok {
		return av == rv
	}
	// symbolic shapes: fall back to structural equality of the Size
	// expression, which is exact when the shapes truly match and
	// conservative (rejects the match) otherwise.
	return exprEqual(a.tracker.Size(), r.ST.Size())
}

func exprEqual(a, b st.Expr) bool {
	return a.Equal(b)
}

func countRefs(c, target *ir.LazyBuffer) int {
	n := 0
	for _, s := range c.Srcs {
		if s == target || s.BaseOf() == target {
			n++
		}
	}
	return n
}

func hasAssign(group []*ir.LazyBuffer) bool {
	for _, b := range group {
		if b.Op == ir.Assign {
			return true
		}
	}
	return false
}

// assignBoundaryViolated implements spec §4.2.3 step 5.
func assignBoundaryViolated(w *walker, group []*ir.LazyBuffer) bool {
	inGroup := map[int]bool{}
	var assignInGroup *ir.LazyBuffer
	for _, b := range group {
		inGroup[b.ID()] = true
		if b.Op == ir.Assign {
			assignInGroup = b
		}
	}
	for _, m := range group {
		for _, p := range m.Srcs {
			base := p.BaseOf()
			if base.Realized == nil && !w.realizeSet.Has(base) {
				continue
			}
			otherAssign, isTarget := w.assignTargets[base.ID()]
			if !isTarget {
				continue
			}
			if otherAssign == assignInGroup {
				continue
			}
			if !inGroup[otherAssign.ID()] {
				return true
			}
		}
	}
	return false
}

// isolatedChildren implements spec §4.2.3 step 4: prune the group to
// descendants of r reachable only through other group members, with
// no parent outside {r} ∪ group other than already-realized buffers.
func isolatedChildren(w *walker, r *ir.LazyBuffer, group []*ir.LazyBuffer) []*ir.LazyBuffer {
	inGroup := map[int]bool{r.ID(): true}
	for _, b := range group {
		inGroup[b.ID()] = true
	}
	var out []*ir.LazyBuffer
	for _, c := range group {
		isolated := true
		for _, p := range c.Srcs {
			if !inGroup[p.BaseOf().ID()] && p.BaseOf().Realized == nil {
				isolated = false
				break
			}
		}
		if isolated {
			out = append(out, c)
		}
	}
	return out
}

// chaseTarget implements spec §4.2.3 step 6: descend from r as far
// downstream as a single, uniquely-referencing, contiguous,
// non-reduce child chain allows, then back off an upcasting CAST.
func chaseTarget(w *walker, r *ir.LazyBuffer) *ir.LazyBuffer {
	tr := r
	acc := accStart(r)
	for {
		kids := w.children[tr.ID()]
		if len(kids) != 1 {
			break
		}
		c := kids[0]
		if c.Op.IsReduceOp() || countRefs(c, tr) != 1 {
			break
		}
		nextAcc := acc.through(c)
		if !nextAcc.contiguousSameSize(r) {
			break
		}
		tr = c
		acc = nextAcc
	}
	if tr.Op == ir.Cast && isUpcast(tr) && len(tr.Srcs) > 0 {
		tr = tr.Srcs[0]
	}
	return tr
}

// isUpcast reports whether a CAST widens the element size (spec
// §4.2.3 step 6: "avoid paying the widened bytes at the store
// boundary").
func isUpcast(tr *ir.LazyBuffer) bool {
	if len(tr.Srcs) == 0 {
		return false
	}
	return tr.DType.Bytes() > tr.Srcs[0].DType.Bytes()
}
