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

package ir

import "fmt"

// Op is a tagged-variant operation kind. The recursive walks in
// sched/lower dispatch on this tag rather than using interface
// dynamic dispatch (spec §9 "Polymorphism over op kinds").
type Op uint16

const (
	opInvalid Op = iota

	// BufferOps: leaves of kernel ASTs.
	Load
	Store
	Const

	// UnaryOps
	Neg
	Exp2
	Log2
	Sin
	Sqrt
	Recip
	Cast
	BitCast

	// BinaryOps
	Add
	Sub
	Mul
	Div
	Mod
	Max2
	CmpLt
	CmpEq
	And
	Or
	Xor

	// TernaryOps
	Where
	MulAcc

	// ReduceOps: arg is the axis tuple ([]int)
	Sum
	Max

	// MetaOps
	Kernel
	Copy
	Empty
	Custom
	View
	Contiguous
	Assign
	// MetaConst is the meta-level "this whole LazyBuffer is a
	// constant fill" op, distinct from the BufferOps Const leaf used
	// inside kernel ASTs.
	MetaConst
)

var opNames = map[Op]string{
	opInvalid: "INVALID",
	Load:      "LOAD", Store: "STORE", Const: "CONST",
	Neg: "NEG", Exp2: "EXP2", Log2: "LOG2", Sin: "SIN", Sqrt: "SQRT", Recip: "RECIP", Cast: "CAST", BitCast: "BITCAST",
	Add: "ADD", Sub: "SUB", Mul: "MUL", Div: "DIV", Mod: "MOD", Max2: "MAX2",
	CmpLt: "CMPLT", CmpEq: "CMPEQ", And: "AND", Or: "OR", Xor: "XOR",
	Where: "WHERE", MulAcc: "MULACC",
	Sum: "SUM", Max: "MAX",
	Kernel: "KERNEL", Copy: "COPY", Empty: "EMPTY", Custom: "CUSTOM",
	View: "VIEW", Contiguous: "CONTIGUOUS", Assign: "ASSIGN", MetaConst: "CONST",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", o)
}

// IsBufferOp reports whether o is one of the kernel-AST leaf ops.
func (o Op) IsBufferOp() bool { return o == Load || o == Store || o == Const }

// IsReduceOp reports whether o is a reduction.
func (o Op) IsReduceOp() bool { return o == Sum || o == Max }

// IsMetaOp reports whether o is a MetaOps-kind op.
func (o Op) IsMetaOp() bool {
	switch o {
	case Kernel, Copy, Empty, Custom, View, Contiguous, Assign, MetaConst:
		return true
	}
	return false
}

// padSafeOps is the set of ops that distribute over a masked-zero input
// (spec §4.2.2 "pad-safe set"): arithmetic ops where f(0) == 0 and f
// is otherwise unaffected by zero-extension.
var padSafeOps = map[Op]bool{
	Add: true, Sub: true, Mul: true, Neg: true,
	Cast: true, BitCast: true,
	Sqrt: true, // sqrt(0) == 0
}

// IsPadSafe reports whether o distributes over zero, i.e. is eligible
// to stay fused across a masked (padded) boundary. Everything not in
// the explicit pad-safe set is treated as UNSAFE_PAD_OPS, per spec
// §4.2.2 (division, exponentials, comparisons are excluded since they
// do not map zero to zero).
func (o Op) IsPadSafe() bool {
	return padSafeOps[o]
}
