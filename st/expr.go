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

// Expr is a non-negative integer-or-symbolic extent: either a plain
// constant, or an affine function of a single Variable (Scale*var +
// Offset). Shapes, strides, offsets and mask bounds are all Exprs so
// that dynamic dimensions can flow through the whole View/ShapeTracker
// algebra uniformly.
//
// Only one Variable may appear per Expr: products of two distinct
// symbolic Exprs are not representable in this affine form and Mul
// reports ok=false in that case. Real workloads overwhelmingly use a
// single dynamic axis (e.g. a dynamic batch dimension), so this is a
// deliberate scope restriction rather than an oversight.
type Expr struct {
	Var    *Variable
	Scale  int64
	Offset int64
}

// Const returns a constant Expr.
func Const(v int64) Expr { return Expr{Offset: v} }

// FromVar returns the Expr equal to v itself (Scale 1, Offset 0).
func FromVar(v *Variable) Expr { return Expr{Var: v, Scale: 1} }

// IsConst reports whether e carries no Variable.
func (e Expr) IsConst() bool { return e.Var == nil }

// ConstValue returns the constant value of e; only valid if IsConst().
func (e Expr) ConstValue() int64 { return e.Offset }

// Eval evaluates e given a binding for its Variable (if any).
func (e Expr) Eval(vals VarVals) int64 {
	if e.Var == nil {
		return e.Offset
	}
	val, ok := vals[e.Var]
	if !ok {
		panic(fmt.Sprintf("st: unbound variable %s in Expr.Eval", e.Var))
	}
	return e.Scale*val + e.Offset
}

// Add returns e + other if representable; ok is false only when both
// operands carry distinct Variables.
func (e Expr) Add(other Expr) (Expr, bool) {
	switch {
	case e.Var == nil:
		return Expr{Var: other.Var, Scale: other.Scale, Offset: e.Offset + other.Offset}, true
	case other.Var == nil:
		return Expr{Var: e.Var, Scale: e.Scale, Offset: e.Offset + other.Offset}, true
	case e.Var == other.Var:
		return Expr{Var: e.Var, Scale: e.Scale + other.Scale, Offset: e.Offset + other.Offset}, true
	default:
		return Expr{}, false
	}
}

// MulConst returns e * k (k a plain constant).
func (e Expr) MulConst(k int64) Expr {
	return Expr{Var: e.Var, Scale: e.Scale * k, Offset: e.Offset * k}
}

// Mul returns e * other if representable; ok is false when both
// operands carry a Variable (see the Expr doc comment).
func (e Expr) Mul(other Expr) (Expr, bool) {
	switch {
	case e.IsConst():
		return other.MulConst(e.Offset), true
	case other.IsConst():
		return e.MulConst(other.Offset), true
	default:
		return Expr{}, false
	}
}

// Equal reports structural equality (same Variable pointer, same
// scale/offset); it is not a semantic equivalence check.
func (e Expr) Equal(other Expr) bool {
	return e.Var == other.Var && e.Scale == other.Scale && e.Offset == other.Offset
}

func (e Expr) String() string {
	if e.Var == nil {
		return fmt.Sprintf("%d", e.Offset)
	}
	if e.Offset == 0 {
		if e.Scale == 1 {
			return e.Var.Name
		}
		return fmt.Sprintf("%d*%s", e.Scale, e.Var.Name)
	}
	return fmt.Sprintf("%d*%s+%d", e.Scale, e.Var.Name, e.Offset)
}

// MinValue returns the smallest value e can take, using the
// Variable's range when e is not constant.
func (e Expr) MinValue() int64 {
	if e.IsConst() {
		return e.Offset
	}
	if e.Scale >= 0 {
		return e.Scale*e.Var.Min + e.Offset
	}
	return e.Scale*e.Var.Max + e.Offset
}

// MaxValue returns the largest value e can take.
func (e Expr) MaxValue() int64 {
	if e.IsConst() {
		return e.Offset
	}
	if e.Scale >= 0 {
		return e.Scale*e.Var.Max + e.Offset
	}
	return e.Scale*e.Var.Min + e.Offset
}
