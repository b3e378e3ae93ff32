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

import "fmt"

// ShapeTracker is an ordered, non-empty sequence of Views interpreted
// as function composition from outer indexing to physical offset:
// for a tracker with views [v0, v1], (v0+v1).idx(i) == v0.idx(v1.idx(i)).
//
// Invariant: a single-view ShapeTracker is canonical. Multi-view
// ShapeTrackers only arise when Simplify could not collapse the
// sequence without changing semantics (e.g. a reshape across a
// non-contiguous view).
type ShapeTracker struct {
	Views []View
}

// FromShapeTracker builds the canonical single-view tracker for shape.
func FromShapeTracker(shape ...Expr) ShapeTracker {
	return ShapeTracker{Views: []View{FromShape(shape...)}}
}

// Shape returns the logical (outermost) shape: the first view's shape.
func (s ShapeTracker) Shape() []Expr {
	if len(s.Views) == 0 {
		return nil
	}
	return s.Views[0].Shape
}

// Size returns the logical element count.
func (s ShapeTracker) Size() Expr {
	return s.Views[0].Size()
}

// Contiguous reports whether this tracker is a single canonical view.
func (s ShapeTracker) Contiguous() bool {
	return len(s.Views) == 1 && s.Views[0].Contiguous
}

// Compose appends other "underneath" s: the combined tracker re-indexes
// through s first, then through other, i.e. (s + other).idx(i) ==
// s.idx(other.idx(i)). This models further reindexing a value that is
// itself already a reindex of some base buffer.
func (s ShapeTracker) Compose(other ShapeTracker) ShapeTracker {
	out := make([]View, 0, len(s.Views)+len(other.Views))
	out = append(out, s.Views...)
	out = append(out, other.Views...)
	return ShapeTracker{Views: out}.Simplify()
}

// Permute reorders the axes of the outermost view.
func (s ShapeTracker) Permute(perm []int) ShapeTracker {
	out := append([]View(nil), s.Views...)
	out[0] = out[0].Permute(perm)
	return ShapeTracker{Views: out}
}

// Shrink narrows each axis of the outermost view to [lo[i], hi[i]).
func (s ShapeTracker) Shrink(lo, hi []Expr) ShapeTracker {
	out := append([]View(nil), s.Views...)
	out[0] = out[0].Shrink(lo, hi)
	return ShapeTracker{Views: out}
}

// Expand broadcasts unit axes of the outermost view to newShape.
func (s ShapeTracker) Expand(newShape []Expr) ShapeTracker {
	out := append([]View(nil), s.Views...)
	out[0] = out[0].Expand(newShape)
	return ShapeTracker{Views: out}
}

// Pad adds lo/hi padding to the outermost view.
func (s ShapeTracker) Pad(lo, hi []Expr) ShapeTracker {
	out := append([]View(nil), s.Views...)
	out[0] = out[0].Pad(lo, hi)
	return ShapeTracker{Views: out}
}

// Reshape changes the logical shape to newShape. If the outermost
// view is contiguous and unmasked, reshape is always legal and the
// outermost view is replaced by a new canonical view. Otherwise a
// fresh contiguous view is pushed on top of the existing stack,
// which is only sound when the tracker as a whole reads contiguous
// memory; callers that reach this branch on a non-contiguous tracker
// receive a ShapeTracker whose Contiguous() is false and must realize
// before reshaping further (the same "expand/reshape force a realize"
// discipline the scheduler's C3 pass enforces upstream).
func (s ShapeTracker) Reshape(newShape []Expr) ShapeTracker {
	if s.Views[0].Contiguous {
		nv := FromShape(newShape...)
		out := append([]View{nv}, s.Views[1:]...)
		return ShapeTracker{Views: out}
	}
	out := append([]View{FromShape(newShape...)}, s.Views...)
	return ShapeTracker{Views: out}
}

// Simplify attempts to collapse adjacent mergeable views into one,
// never altering semantics. Two adjacent views merge when both are
// contiguous and unmasked and they have the same element count (a
// pure reinterpret), in which case the composed view is the canonical
// view of the outer view's shape.
func (s ShapeTracker) Simplify() ShapeTracker {
	views := append([]View(nil), s.Views...)
	changed := true
	for changed {
		changed = false
		for i := 0; i+1 < len(views); i++ {
			if merged, ok := tryMerge(views[i], views[i+1]); ok {
				next := append([]View(nil), views[:i]...)
				next = append(next, merged)
				next = append(next, views[i+2:]...)
				views = next
				changed = true
				break
			}
		}
	}
	return ShapeTracker{Views: views}
}

// tryMerge attempts to fold outer (applied second-to-last) and inner
// (the base-most view) into a single equivalent view. Only the
// "both views are plain contiguous reinterpretations" case is
// attempted; anything else is left as two views (conservative but
// always correct).
func tryMerge(outer, inner View) (View, bool) {
	if !inner.Contiguous || outer.HasMask() {
		return View{}, false
	}
	if !exprSliceEqual(outer.Size(), inner.Size()) {
		return View{}, false
	}
	if !outer.Contiguous {
		return View{}, false
	}
	// both are plain contiguous reinterpretations of the same
	// element count: the composition is simply the outer shape.
	return FromShape(outer.Shape...), true
}

func exprSliceEqual(a, b Expr) bool {
	// structural equality is sufficient here since both sides are
	// always derived by the same Size() computation path.
	return a.Equal(b) || (a.IsConst() && b.IsConst() && a.ConstValue() == b.ConstValue())
}

// Unbind collects every Variable referenced by this tracker, each
// once, in first-occurrence order; it binds no values. It returns the
// tracker unchanged (ShapeTrackers remain symbolic) plus that list of
// Variables.
func (s ShapeTracker) Unbind() (ShapeTracker, []*Variable) {
	seen := map[*Variable]struct{}{}
	var out []*Variable
	collect := func(e Expr) {
		if e.Var != nil {
			if _, ok := seen[e.Var]; !ok {
				seen[e.Var] = struct{}{}
				out = append(out, e.Var)
			}
		}
	}
	for _, v := range s.Views {
		for _, e := range v.Shape {
			collect(e)
		}
		for _, e := range v.Strides {
			collect(e)
		}
		collect(v.Offset)
		for _, m := range v.Mask {
			collect(m.Lo)
			collect(m.Hi)
		}
	}
	return s, out
}

// UnitStrideAxes returns the indices of the outermost view's axes
// whose stride is the constant 1.
func (s ShapeTracker) UnitStrideAxes() []int {
	var out []int
	for i, st := range s.Views[0].Strides {
		if st.IsConst() && st.ConstValue() == 1 {
			out = append(out, i)
		}
	}
	return out
}

func (s ShapeTracker) String() string {
	return fmt.Sprintf("ShapeTracker(%v)", s.Views)
}
