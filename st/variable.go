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

// Package st implements the ShapeTracker and View algebra: composable
// shape/stride/mask metadata describing how a logical iteration order
// maps onto a physical buffer offset, plus symbolic (Variable-bound)
// dynamic dimensions.
package st

import "fmt"

// Variable is a named symbolic integer with an inclusive range.
// Variables stand in for dynamic dimensions: a shape entry or stride
// may reference a Variable instead of a concrete extent, and the
// concrete value is only known once the caller supplies a binding.
type Variable struct {
	Name     string
	Min, Max int64
}

// NewVariable constructs a Variable, panicking if the range is invalid.
func NewVariable(name string, min, max int64) *Variable {
	if min > max {
		panic(fmt.Sprintf("st: variable %q has min %d > max %d", name, min, max))
	}
	return &Variable{Name: name, Min: min, Max: max}
}

// Contains reports whether v is within the variable's inclusive range.
func (v *Variable) Contains(val int64) bool {
	return val >= v.Min && val <= v.Max
}

func (v *Variable) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Min == v.Max {
		return fmt.Sprintf("%s[%d]", v.Name, v.Min)
	}
	return fmt.Sprintf("%s[%d:%d]", v.Name, v.Min, v.Max)
}

// VarVals is a binding of symbolic Variables to concrete values,
// threaded through ShapeTracker.Unbind and merged across a whole
// schedule by the topological emitter.
type VarVals map[*Variable]int64

// Merge writes every binding in other into vv, in place. A binding
// collision is resolved by letting other win (the spec's source
// unconditionally overwrites; see DESIGN.md Open Question 4).
func (vv VarVals) Merge(other VarVals) {
	for k, val := range other {
		vv[k] = val
	}
}

// Clone returns a shallow copy of vv.
func (vv VarVals) Clone() VarVals {
	out := make(VarVals, len(vv))
	for k, v := range vv {
		out[k] = v
	}
	return out
}
