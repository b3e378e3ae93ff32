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

package lower

import (
	"fmt"
	"strings"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/sched"
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/st"
)

// LoweredGroup is one output group (spec §4.2.5) after AST lowering
// (spec C4): a single KERNEL (or direct meta-op) LazyOp ready for the
// topological emitter to schedule, plus the concrete input/output
// LazyBuffer order that its MemBuffer indices refer to.
type LoweredGroup struct {
	Outputs  []*ir.LazyBuffer
	Inputs   []*ir.LazyBuffer
	AST      *ir.LazyOp
	VarVals  st.VarVals
	Metadata []ir.Metadata
}

// Lower implements spec §4.3: turning one output group produced by
// sched.Realize into a LoweredGroup.
func Lower(group []*ir.LazyBuffer, res *sched.Result, cfg schedconfig.Config) (*LoweredGroup, error) {
	if len(group) == 0 {
		return nil, fmt.Errorf("lower: empty output group")
	}

	if len(group) == 1 && isDirectMetaOp(group[0]) {
		return lowerMetaOp(group[0], cfg)
	}

	memberIdx := make(map[int]int, len(group))
	for i, b := range group {
		memberIdx[b.ID()] = i
	}
	isBoundary := func(b *ir.LazyBuffer) bool {
		base := b.BaseOf()
		if _, ok := memberIdx[base.ID()]; ok {
			return false
		}
		return base.Realized != nil || res.RealizeSet.Has(base) || base.Scheduled()
	}

	ctx := &lowerCtx{
		cache:       newLowerCache(),
		dedup:       ir.NewDedupSet(),
		isBoundary:  isBoundary,
		inputIndex:  map[int]int{},
		reduceByID:  map[int]*reduceEntry{},
		outputCount: len(group),
	}

	stores := make([]*ir.LazyOp, 0, len(group))
	varVals := st.VarVals{}
	var metadata []ir.Metadata
	seenMeta := map[string]bool{}

	for outIdx, out := range group {
		for _, e := range recurseReduceOps(out, isBoundary) {
			if _, ok := ctx.reduceByID[e.Reduce.ID()]; !ok {
				ctx.reduceByID[e.Reduce.ID()] = e
			}
		}

		root := out
		target := out
		if out.Op == ir.Assign {
			if len(out.Srcs) < 2 {
				return nil, fmt.Errorf("%w: #%d has no target operand", ir.ErrBadAssign, out.ID())
			}
			root = out.Srcs[0]
			target = out.Srcs[1].BaseOf()
			if target.Realized == nil {
				return nil, fmt.Errorf("%w: #%d", ir.ErrAssignTargetUnrealized, target.ID())
			}
			if !out.Srcs[1].ST.Contiguous() {
				return nil, fmt.Errorf("%w: #%d target view is not contiguous", ir.ErrBadAssign, out.ID())
			}
		}

		expr, err := ctx.lowerNode(root)
		if err != nil {
			return nil, err
		}

		mb := ir.MemBuffer{Idx: outIdx, DType: out.DType, ST: target.ST}
		stores = append(stores, ir.NewLazyOp(ir.Store, mb, expr))

		addVars(varVals, out.ST)
		for _, m := range out.Metadata {
			if !seenMeta[m.Name] {
				seenMeta[m.Name] = true
				metadata = append(metadata, m)
			}
		}
	}

	for _, in := range ctx.inputOrder {
		addVars(varVals, in.ST)
	}

	ast := ir.NewLazyOp(ir.Kernel, nil, stores...)

	return &LoweredGroup{
		Outputs:  append([]*ir.LazyBuffer(nil), group...),
		Inputs:   append([]*ir.LazyBuffer(nil), ctx.inputOrder...),
		AST:      ast,
		VarVals:  varVals,
		Metadata: metadata,
	}, nil
}

func addVars(vv st.VarVals, s st.ShapeTracker) {
	_, vars := s.Unbind()
	for _, v := range vars {
		if _, ok := vv[v]; !ok {
			vv[v] = v.Min
		}
	}
}

// lowerCtx carries the state threaded through one group's recursive
// lowering: the memoization cache (spec §4.3 step 4c), the discovered
// reduce entries (step 4a) and the interned input-buffer order.
type lowerCtx struct {
	cache       *lowerCache
	dedup       *ir.DedupSet
	isBoundary  func(*ir.LazyBuffer) bool
	inputIndex  map[int]int
	inputOrder  []*ir.LazyBuffer
	reduceByID  map[int]*reduceEntry
	outputCount int
}

func (c *lowerCtx) internInput(b *ir.LazyBuffer) int {
	base := b.BaseOf()
	if idx, ok := c.inputIndex[base.ID()]; ok {
		return idx
	}
	idx := c.outputCount + len(c.inputOrder)
	c.inputIndex[base.ID()] = idx
	c.inputOrder = append(c.inputOrder, base)
	return idx
}

// lowerNode recursively compiles n into a value-producing LazyOp
// expression (spec §4.3 step 4, "_recursive_lazyop"), following
// vm/exprcompile.go's recursive-compile-with-cache idiom: boundary
// nodes become LOAD leaves, CONST nodes become CONST leaves, VIEW and
// CONTIGUOUS are metadata-only passthroughs, reductions substitute
// their discovered axis tuple, and everything else reconstructs the
// node's op over its lowered srcs.
func (c *lowerCtx) lowerNode(n *ir.LazyBuffer) (*ir.LazyOp, error) {
	if cached, ok := c.cache.get(n, n.ST); ok {
		return cached, nil
	}

	var result *ir.LazyOp
	var err error

	switch {
	case c.isBoundary(n):
		idx := c.internInput(n)
		result = ir.NewLazyOp(ir.Load, ir.MemBuffer{Idx: idx, DType: n.DType, ST: n.ST})

	case n.Op == ir.Const || n.Op == ir.MetaConst:
		result, err = lowerConst(n)

	case n.Op == ir.View || n.Op == ir.Contiguous:
		if len(n.Srcs) == 0 {
			return nil, fmt.Errorf("lower: %s node #%d has no source", n.Op, n.ID())
		}
		result, err = c.lowerNode(n.Srcs[0])

	case n.Op.IsReduceOp():
		if len(n.Srcs) == 0 {
			return nil, fmt.Errorf("lower: reduce node #%d has no source", n.ID())
		}
		srcExpr, e := c.lowerNode(n.Srcs[0])
		if e != nil {
			return nil, e
		}
		axis := n.Arg
		if entry, ok := c.reduceByID[n.ID()]; ok {
			axis = entry.Axis
		}
		result = ir.NewLazyOp(n.Op, axis, srcExpr)

	case n.Op == ir.Assign:
		if len(n.Srcs) == 0 {
			return nil, fmt.Errorf("%w: #%d has no value operand", ir.ErrBadAssign, n.ID())
		}
		result, err = c.lowerNode(n.Srcs[0])

	default:
		srcs := make([]*ir.LazyOp, len(n.Srcs))
		for i, s := range n.Srcs {
			srcs[i], err = c.lowerNode(s)
			if err != nil {
				return nil, err
			}
		}
		result = ir.NewLazyOp(n.Op, n.Arg, srcs...)
	}

	if err != nil {
		return nil, err
	}
	// Intern before caching: two LazyBuffers that lower to the same
	// expression (e.g. two outputs of a MULTIOUTPUT group reading the
	// same boundary buffer) share one *ir.LazyOp pointer rather than
	// each holding their own copy.
	result = c.dedup.Intern(result)
	c.cache.put(n, n.ST, result)
	return result, nil
}

func lowerConst(n *ir.LazyBuffer) (*ir.LazyOp, error) {
	switch n.Arg.(type) {
	case int64, float64, bool, *st.Variable:
		return ir.NewLazyOp(ir.Const, ir.ConstBuffer{Value: n.Arg, DType: n.DType, ST: n.ST}), nil
	default:
		return nil, fmt.Errorf("%w: #%d has arg of type %T", ir.ErrBadConst, n.ID(), n.Arg)
	}
}

// isDirectMetaOp reports whether b is a single-buffer group that
// passes through the lowerer untouched rather than compiling into a
// KERNEL AST (spec §4.3 step 2).
func isDirectMetaOp(b *ir.LazyBuffer) bool {
	switch b.Op {
	case ir.Copy, ir.Empty, ir.Custom, ir.View:
		return true
	}
	return false
}

// lowerMetaOp builds the LoweredGroup for a direct meta-op passthrough
// (spec §4.3 steps 1-2). A COPY between buffers of the same device
// family is, when USE_COPY_KERNEL is set, instead routed through a
// generated copy kernel (DESIGN.md Open Question 2 defines "same
// family" as matching device string up to an optional ":N" suffix):
// one STORE, in the destination's dtype and view, of a LOAD of the
// source in the source's dtype and the COPY operand's view. The data
// is not reinterpreted as a 1-D byte buffer.
func lowerMetaOp(b *ir.LazyBuffer, cfg schedconfig.Config) (*LoweredGroup, error) {
	if b.Op == ir.Copy && cfg.UseCopyKernel && len(b.Srcs) > 0 {
		src := b.Srcs[0].BaseOf()
		if deviceFamily(b.Device) == deviceFamily(src.Device) {
			return lowerCopyKernel(b, src)
		}
	}

	inputs := make([]*ir.LazyBuffer, 0, len(b.Srcs))
	srcs := make([]*ir.LazyOp, len(b.Srcs))
	for i, s := range b.Srcs {
		base := s.BaseOf()
		inputs = append(inputs, base)
		srcs[i] = ir.NewLazyOp(ir.Load, ir.MemBuffer{Idx: i + 1, DType: base.DType, ST: s.ST})
	}

	varVals := st.VarVals{}
	addVars(varVals, b.ST)

	return &LoweredGroup{
		Outputs:  []*ir.LazyBuffer{b},
		Inputs:   inputs,
		AST:      ir.NewLazyOp(b.Op, b.Arg, srcs...),
		VarVals:  varVals,
		Metadata: append([]ir.Metadata(nil), b.Metadata...),
	}, nil
}

func lowerCopyKernel(dst *ir.LazyBuffer, src *ir.LazyBuffer) (*LoweredGroup, error) {
	load := ir.NewLazyOp(ir.Load, ir.MemBuffer{Idx: 1, DType: src.DType, ST: dst.Srcs[0].ST})
	store := ir.NewLazyOp(ir.Store, ir.MemBuffer{Idx: 0, DType: dst.DType, ST: dst.ST}, load)

	varVals := st.VarVals{}
	addVars(varVals, dst.ST)

	return &LoweredGroup{
		Outputs:  []*ir.LazyBuffer{dst},
		Inputs:   []*ir.LazyBuffer{src},
		AST:      ir.NewLazyOp(ir.Kernel, nil, store),
		VarVals:  varVals,
		Metadata: append([]ir.Metadata(nil), dst.Metadata...),
	}, nil
}

func deviceFamily(device string) string {
	if i := strings.IndexByte(device, ':'); i >= 0 {
		return device[:i]
	}
	return device
}
