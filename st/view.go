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

package st

import (
	"fmt"
	"strings"
)

// MaskBound is a per-dimension (lo, hi) valid region; indices outside
// [lo, hi) read as zero.
type MaskBound struct {
	Lo, Hi Expr
}

// View is an immutable record describing one level of reindexing:
// shape, strides, offset and an optional per-dimension mask.
//
// Invariant: the logical element count of a View equals the product
// of its Shape entries. Contiguous is true iff the View's strides
// match the canonical row-major strides implied by Shape, there is no
// mask, and Offset is the constant zero.
type View struct {
	Shape      []Expr
	Strides    []Expr
	Offset     Expr
	Mask       []MaskBound // nil if unmasked
	Contiguous bool
}

// FromShape builds the canonical contiguous View for shape.
func FromShape(shape ...Expr) View {
	strides := rowMajorStrides(shape)
	return View{
		Shape:      shape,
		Strides:    strides,
		Offset:     Const(0),
		Contiguous: true,
	}
}

// rowMajorStrides computes strides[i] = product(shape[i+1:]).
// Panics if two distinct symbolic dimensions would need to be
// multiplied together (see Expr's doc comment on scope).
func rowMajorStrides(shape []Expr) []Expr {
	n := len(shape)
	strides := make([]Expr, n)
	acc := Const(1)
	for i := n - 1; i >= 0; i-- {
		strides[i] = acc
		next, ok := acc.Mul(shape[i])
		if !ok {
			panic(fmt.Sprintf("st: cannot compute row-major strides: shape has two independent symbolic dimensions at or before axis %d", i))
		}
		acc = next
	}
	return strides
}

// Size returns the total element count as an Expr (product of Shape).
func (v View) Size() Expr {
	out := Const(1)
	for _, s := range v.Shape {
		next, ok := out.Mul(s)
		if !ok {
			panic("st: View.Size cannot combine two independent symbolic dimensions")
		}
		out = next
	}
	return out
}

// isCanonicalStrides reports whether strides match rowMajorStrides(shape).
func isCanonicalStrides(shape, strides []Expr) bool {
	want := rowMajorStrides(shape)
	if len(want) != len(strides) {
		return false
	}
	for i := range want {
		// a stride on a unit-size dimension is irrelevant to contiguity
		if shape[i].IsConst() && shape[i].ConstValue() == 1 {
			continue
		}
		if !want[i].Equal(strides[i]) {
			return false
		}
	}
	return true
}

// recomputeContiguous refreshes v.Contiguous from its fields.
func (v View) recomputeContiguous() View {
	v.Contiguous = v.Mask == nil && v.Offset.IsConst() && v.Offset.ConstValue() == 0 &&
		isCanonicalStrides(v.Shape, v.Strides)
	return v
}

// Permute reorders axes according to perm (perm[i] is the source axis
// that becomes axis i of the result).
func (v View) Permute(perm []int) View {
	if len(perm) != len(v.Shape) {
		panic("st: Permute: length mismatch")
	}
	out := View{
		Shape:   make([]Expr, len(perm)),
		Strides: make([]Expr, len(perm)),
		Offset:  v.Offset,
	}
	if v.Mask != nil {
		out.Mask = make([]MaskBound, len(perm))
	}
	for i, src := range perm {
		out.Shape[i] = v.Shape[src]
		out.Strides[i] = v.Strides[src]
		if v.Mask != nil {
			out.Mask[i] = v.Mask[src]
		}
	}
	return out.recomputeContiguous()
}

// Shrink restricts each axis i to [lo[i], hi[i]). Unlike Pad, this
// never changes the logical element count's upper bound; it narrows
// it and bumps the physical offset.
func (v View) Shrink(lo, hi []Expr) View {
	n := len(v.Shape)
	if len(lo) != n || len(hi) != n {
		panic("st: Shrink: length mismatch")
	}
	out := View{
		Shape:   make([]Expr, n),
		Strides: append([]Expr(nil), v.Strides...),
		Offset:  v.Offset,
	}
	for i := 0; i < n; i++ {
		size, ok := hi[i].Add(lo[i].MulConst(-1))
		if !ok {
			panic("st: Shrink: non-affine bound")
		}
		out.Shape[i] = size
		if !(lo[i].IsConst() && lo[i].ConstValue() == 0) {
			add, ok := lo[i].Mul(v.Strides[i])
			if !ok {
				panic("st: Shrink: non-affine offset contribution")
			}
			newOff, ok := out.Offset.Add(add)
			if !ok {
				panic("st: Shrink: cannot combine offset")
			}
			out.Offset = newOff
		}
	}
	if v.Mask != nil {
		out.Mask = make([]MaskBound, n)
		for i := range v.Mask {
			mlo, _ := v.Mask[i].Lo.Add(lo[i].MulConst(-1))
			mhi, _ := v.Mask[i].Hi.Add(lo[i].MulConst(-1))
			out.Mask[i] = MaskBound{Lo: mlo, Hi: mhi}
		}
	}
	return out.recomputeContiguous()
}

// Expand broadcasts axes whose extent is 1 to newShape by setting
// their stride to 0; every non-1 axis must keep its existing extent.
func (v View) Expand(newShape []Expr) View {
	if len(newShape) != len(v.Shape) {
		panic("st: Expand: rank mismatch")
	}
	out := View{
		Shape:   append([]Expr(nil), newShape...),
		Strides: append([]Expr(nil), v.Strides...),
		Offset:  v.Offset,
		Mask:    v.Mask,
	}
	for i := range newShape {
		if v.Shape[i].IsConst() && v.Shape[i].ConstValue() == 1 && !newShape[i].Equal(v.Shape[i]) {
			out.Strides[i] = Const(0)
		}
	}
	return out.recomputeContiguous()
}

// Pad adds lo/hi padding to each axis; the padded region is tracked
// via Mask rather than physically allocated.
func (v View) Pad(lo, hi []Expr) View {
	n := len(v.Shape)
	out := View{
		Shape:   make([]Expr, n),
		Strides: append([]Expr(nil), v.Strides...),
		Offset:  v.Offset,
		Mask:    make([]MaskBound, n),
	}
	for i := 0; i < n; i++ {
		total, ok := v.Shape[i].Add(lo[i])
		if !ok {
			panic("st: Pad: non-affine size")
		}
		total, ok = total.Add(hi[i])
		if !ok {
			panic("st: Pad: non-affine size")
		}
		out.Shape[i] = total
		mlo := lo[i]
		mhi, _ := lo[i].Add(v.Shape[i])
		if v.Mask != nil {
			mlo, _ = mlo.Add(v.Mask[i].Lo)
			mhi, _ = lo[i].Add(v.Mask[i].Hi)
		}
		out.Mask[i] = MaskBound{Lo: mlo, Hi: mhi}
	}
	return out.recomputeContiguous()
}

// HasMask reports whether v carries a non-trivial mask (any dimension
// whose valid region doesn't cover the whole shape).
func (v View) HasMask() bool {
	if v.Mask == nil {
		return false
	}
	for i, m := range v.Mask {
		if !(m.Lo.IsConst() && m.Lo.ConstValue() == 0) {
			return true
		}
		if m.Hi.IsConst() && v.Shape[i].IsConst() && m.Hi.ConstValue() == v.Shape[i].ConstValue() {
			continue
		}
		return true
	}
	return false
}

func (v View) String() string {
	parts := make([]string, len(v.Shape))
	for i, s := range v.Shape {
		parts[i] = s.String()
	}
	s := fmt.Sprintf("View(shape=(%s)", strings.Join(parts, ","))
	if v.Contiguous {
		s += ", contiguous"
	}
	if v.HasMask() {
		s += ", masked"
	}
	return s + ")"
}
