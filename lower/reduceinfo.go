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

// Package lower implements AST lowering (spec C4): turning a group of
// realized LazyBuffers into a single KERNEL LazyOp with STORE/LOAD/
// CONST leaves and an input buffer list, grounded on plan/lower.go's
// per-op dispatch idiom and vm/exprcompile.go's recursive-compile-
// with-cache idiom.
package lower

import "github.com/kernelsched/fusion/ir"

// reduceEntry is one top-level reduction discovered while walking a
// single output's sub-DAG (spec §4.3 step 4a, "_recurse_reduceops").
type reduceEntry struct {
	Reduce *ir.LazyBuffer
	Axis   []int
}

// recurseReduceOps walks node's sub-DAG without crossing a boundary
// (a realized or realize-destined buffer), collecting every
// reduction. A second reduce whose output shape matches an
// already-recorded one is merged into it by extending its axis tuple
// (this implements double-reduce fusion at lowering time).
func recurseReduceOps(node *ir.LazyBuffer, isBoundary func(*ir.LazyBuffer) bool) []*reduceEntry {
	visited := map[int]bool{}
	var found []*reduceEntry

	var walk func(n *ir.LazyBuffer)
	walk = func(n *ir.LazyBuffer) {
		if n == nil || visited[n.ID()] {
			return
		}
		visited[n.ID()] = true
		if isBoundary(n) {
			return
		}
		if n.Op.IsReduceOp() {
			axis, _ := n.Arg.([]int)
			merged := false
			for _, e := range found {
				if reduceShapeMatches(e.Reduce, n) {
					e.Axis = append(e.Axis, axis...)
					merged = true
					break
				}
			}
			if !merged {
				found = append(found, &reduceEntry{Reduce: n, Axis: append([]int(nil), axis...)})
			}
			if len(n.Srcs) > 0 {
				walk(n.Srcs[0])
			}
			return
		}
		for _, s := range n.Srcs {
			walk(s)
		}
	}
	walk(node)
	return found
}

func reduceShapeMatches(a, b *ir.LazyBuffer) bool {
	sa, sb := a.ST.Shape(), b.ST.Shape()
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if !sa[i].Equal(sb[i]) {
			if !(sa[i].IsConst() && sb[i].IsConst() && sa[i].ConstValue() == sb[i].ConstValue()) {
				return false
			}
		}
	}
	return true
}
