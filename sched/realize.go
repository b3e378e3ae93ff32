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
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

// Result is the output of the realization decider (spec §4.2): which
// LazyBuffers must materialize, how reductions group with their
// elementwise consumers, and how realized buffers bucket into
// multi-output kernel groups.
type Result struct {
	AllBufs       map[int]*ir.LazyBuffer
	Children      map[int][]*ir.LazyBuffer // parent id -> children that reference it
	RealizeSet    *lbSet
	ReduceForOp   map[int]*ir.LazyBuffer // tr.id -> the reduce r it is grouped under
	AssignTargets map[int]*ir.LazyBuffer // target.id -> the ASSIGN LazyBuffer writing it
	OutputGroups  [][]*ir.LazyBuffer      // deterministic order of first encounter
}

type walker struct {
	cfg           schedconfig.Config
	seen          map[int]bool
	allbufs       map[int]*ir.LazyBuffer
	children      map[int][]*ir.LazyBuffer
	visited       map[int]bool
	realizeSet    *lbSet
	candidatePads *lbSet
	assignTargets map[int]*ir.LazyBuffer
	doubleReduce  map[int]*ir.LazyBuffer // outer reduce id -> inner reduce
}

// Realize runs the DAG walk (§4.2.1), the pad safety pass (§4.2.2),
// reduce grouping (§4.2.3), double-reduce fusion (§4.2.4), output
// grouping (§4.2.5) and image dtype demotion (§4.2.6) over outs.
func Realize(outs []*ir.LazyBuffer, seen map[int]bool, cfg schedconfig.Config) *Result {
	w := &walker{
		cfg:           cfg,
		seen:          seen,
		allbufs:       map[int]*ir.LazyBuffer{},
		children:      map[int][]*ir.LazyBuffer{},
		visited:       map[int]bool{},
		realizeSet:    newLBSet(),
		candidatePads: newLBSet(),
		assignTargets: map[int]*ir.LazyBuffer{},
		doubleReduce:  map[int]*ir.LazyBuffer{},
	}
	for _, o := range outs {
		w.walk(o)
	}
	w.padSafetyPass()

	reduceForOp := map[int]*ir.LazyBuffer{}
	for _, b := range w.allbufs {
		if !b.Op.IsReduceOp() {
			continue
		}
		if w.realizeSet.Has(b) || b.Scheduled() || w.seen[b.ID()] {
			continue
		}
		groupReduce(w, b, reduceForOp)
	}

	if cfg.FuseConvBW {
		for outer, inner := range w.doubleReduce {
			if len(w.children[inner.ID()]) == 1 {
				w.realizeSet.Delete(inner)
			}
			_ = outer
		}
	}

	outputGroups := buildOutputGroups(w, reduceForOp, cfg)
	demoteImageBuffers(w.realizeSet.Order())

	return &Result{
		AllBufs:       w.allbufs,
		Children:      w.children,
		RealizeSet:    w.realizeSet,
		ReduceForOp:   reduceForOp,
		AssignTargets: w.assignTargets,
		OutputGroups:  outputGroups,
	}
}

func (w *walker) markRealize(b *ir.LazyBuffer) {
	w.realizeSet.Add(b.BaseOf())
}

func (w *walker) isRealized(b *ir.LazyBuffer) bool {
	base := b.BaseOf()
	return base.Realized != nil || w.realizeSet.Has(base) || base.Scheduled()
}

// walk implements spec §4.2.1.
func (w *walker) walk(b *ir.LazyBuffer) {
	if b == nil || w.visited[b.ID()] {
		return
	}
	w.visited[b.ID()] = true

	if b.BaseOf().Realized != nil {
		// already a leaf; do not descend further.
		w.allbufs[b.ID()] = b
		return
	}

	if b.IsView() {
		classifyView(w, b)
	}

	for _, s := range b.Srcs {
		w.walk(s)
		w.children[s.ID()] = append(w.children[s.ID()], b)
	}

	w.allbufs[b.ID()] = b

	if b.ForcedRealize || b.Op.IsMetaOp() {
		w.markRealize(b)
	}
	if b.Op == ir.Assign {
		if len(b.Srcs) > 1 {
			w.assignTargets[b.Srcs[1].BaseOf().ID()] = b
		}
	}
	if b.Op == ir.Copy || b.Op == ir.View {
		if len(b.Srcs) > 0 {
			w.markRealize(b.Srcs[0])
		}
	}
	if b.Op.IsReduceOp() && len(b.Srcs) > 0 {
		inner := b.Srcs[0].BaseOf()
		if inner.Op == b.Op {
			w.doubleReduce[b.ID()] = inner
		}
	}
}

// classifyView implements the view-classification bullets of §4.2.1.
func classifyView(w *walker, b *ir.LazyBuffer) {
	base := b.Base
	last := b.ST.Views[len(b.ST.Views)-1]

	if last.HasMask() {
		if padFitsBase(b.ST, base) {
			w.candidatePads.Add(base)
			return
		}
	}

	outVol, outOK := constVolume(b.ST.Shape())
	baseVol, baseOK := constVolume(base.Shape())
	isImageCast := b.Op == ir.BitCast && b.DType.IsImage() && base.DType.IsImage()
	if outOK && baseOK && outVol > baseVol && !w.cfg.FuseAsOneKernel && !isImageCast {
		w.markRealize(base)
		return
	}

	if anyMasked(b.ST) {
		w.candidatePads.Add(base)
	}
}

// padFitsBase reports whether a masked view's valid region fits
// within the base's own shape, i.e. the pad can be satisfied by the
// base without materializing extra elements.
func padFitsBase(s st.ShapeTracker, base *ir.LazyBuffer) bool {
	baseShape := base.Shape()
	last := s.Views[len(s.Views)-1]
	if len(last.Mask) != len(baseShape) {
		return false
	}
	for i, m := range last.Mask {
		hi, ok := m.Hi.Add(m.Lo.MulConst(-1))
		if !ok {
			return false
		}
		if hi.IsConst() && baseShape[i].IsConst() && hi.ConstValue() > baseShape[i].ConstValue() {
			return false
		}
	}
	return true
}

func anyMasked(s st.ShapeTracker) bool {
	for _, v := range s.Views {
		if v.HasMask() {
			return true
		}
	}
	return false
}

func constVolume(shape []st.Expr) (int64, bool) {
	vol := int64(1)
	for _, e := range shape {
		if !e.IsConst() {
			return 0, false
		}
		vol *= e.ConstValue()
	}
	return vol, true
}

// padSafetyPass implements spec §4.2.2.
func (w *walker) padSafetyPass() {
	memo := map[int]bool{}
	for _, p := range w.candidatePads.Order() {
		if w.realizeSet.Has(p) {
			continue
		}
		if !padSafe(p, w.realizeSet, memo) {
			w.realizeSet.Add(p)
		}
	}
}

func padSafe(b *ir.LazyBuffer, realizeSet *lbSet, memo map[int]bool) bool {
	id := b.ID()
	if v, ok := memo[id]; ok {
		return v
	}
	memo[id] = true // break cycles optimistically; DAG is acyclic by construction anyway
	if b.Realized != nil || realizeSet.Has(b.BaseOf()) {
		memo[id] = true
		return true
	}
	result := true
	if len(b.Srcs) > 0 && !b.Op.IsPadSafe() {
		result = false
	} else {
		for _, s := range b.Srcs {
			if !padSafe(s.BaseOf(), realizeSet, memo) {
				result = false
				break
			}
		}
	}
	memo[id] = result
	return result
}
