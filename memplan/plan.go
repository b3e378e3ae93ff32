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

package memplan

import "github.com/kernelsched/fusion/ir"

type freeSeg struct {
	iv      Interval
	backing *ir.Buffer
}

// Plan implements spec §4.5: it rewrites each item's Bufs in place so
// that buffers whose schedule lifetimes never overlap share the same
// backing ir.Buffer. Only buffers actually produced as an output
// within items (newly materialized this call) are candidates;
// pre-existing buffers the caller already owns are left untouched.
//
// Buffers are assumed to back onto an allocator that supports
// sub-allocation (offset views), matching the optional `offset`
// capability in the Runtime contract (spec §4.6); AllocKey is built
// with SubAllocates true throughout.
func Plan(items []*ir.ScheduleItem) {
	first := map[*ir.Buffer]int{}
	last := map[*ir.Buffer]int{}
	produced := map[*ir.Buffer]bool{}
	optedOut := map[*ir.Buffer]bool{}
	var producedOrder []*ir.Buffer // insertion order, since map iteration is not deterministic

	for idx, item := range items {
		isKernel := item.AST.Op == ir.Kernel
		numOut := item.NumOutputs()
		for bi, b := range item.Bufs {
			root := rootOf(b)
			if _, ok := first[root]; !ok {
				first[root] = idx
			}
			last[root] = idx
			if !isKernel {
				optedOut[root] = true
			}
			if bi < numOut && !produced[root] {
				produced[root] = true
				producedOrder = append(producedOrder, root)
			}
		}
	}

	var candidates []*ir.Buffer
	for _, root := range producedOrder {
		if optedOut[root] || root.Options.External || root.NBytes() == 0 {
			continue
		}
		candidates = append(candidates, root)
	}
	sortByDescendingSize(candidates)

	freeSegs := map[ir.AllocKey][]freeSeg{}
	reassign := map[*ir.Buffer]*ir.Buffer{}

	for _, b := range candidates {
		lifetime := Interval{Start: first[b], End: last[b] + 1}
		key := b.Key(true)
		segs := freeSegs[key]

		foundIdx := -1
		for i, s := range segs {
			if s.iv.Contains(lifetime) {
				foundIdx = i
				break
			}
		}

		if foundIdx >= 0 {
			s := segs[foundIdx]
			remaining := append(segs[:foundIdx:foundIdx], segs[foundIdx+1:]...)
			for _, r := range s.iv.Sub(lifetime) {
				remaining = append(remaining, freeSeg{iv: r, backing: s.backing})
			}
			freeSegs[key] = remaining
			reassign[b] = s.backing
			continue
		}

		reassign[b] = b
		full := Interval{Start: 0, End: len(items)}
		for _, r := range full.Sub(lifetime) {
			freeSegs[key] = append(freeSegs[key], freeSeg{iv: r, backing: b})
		}
	}

	final := map[*ir.Buffer]*ir.Buffer{}
	for b, backing := range reassign {
		if backing == b {
			final[b] = b
			continue
		}
		if backing.NBytes() == b.NBytes() {
			final[b] = backing
		} else {
			final[b] = ir.ViewOf(backing, b.Size, 0)
		}
	}

	for _, item := range items {
		for i, b := range item.Bufs {
			root := rootOf(b)
			nb, ok := final[root]
			if !ok || nb == root {
				continue
			}
			if b == root {
				item.Bufs[i] = nb
			} else {
				item.Bufs[i] = ir.ViewOf(nb, b.Size, b.Offset)
			}
		}
	}
}

func rootOf(b *ir.Buffer) *ir.Buffer {
	for b.Base != nil {
		b = b.Base
	}
	return b
}

// sortByDescendingSize implements spec §4.5 step 3. A plain insertion
// sort is used rather than sort.Slice: candidate lists are one per
// schedule and small, and this keeps the package free of an extra
// stdlib sort import for a single call site.
func sortByDescendingSize(bufs []*ir.Buffer) {
	for i := 1; i < len(bufs); i++ {
		for j := i; j > 0 && bufs[j-1].NBytes() < bufs[j].NBytes(); j-- {
			bufs[j-1], bufs[j] = bufs[j], bufs[j-1]
		}
	}
}
