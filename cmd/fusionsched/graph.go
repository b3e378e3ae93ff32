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

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
)

// graphDoc is the on-disk JSON shape fusionsched reads. Nodes must be
// listed in dependency order (every src must name an earlier node);
// there is no forward-reference resolution pass, matching the
// "single top-to-bottom build" shape a host program itself follows
// when it calls ir.Arena methods directly.
type graphDoc struct {
	Nodes   []nodeDoc `json:"nodes"`
	Outputs []string  `json:"outputs"`
}

type nodeDoc struct {
	Name          string          `json:"name"`
	Op            string          `json:"op"`
	DType         string          `json:"dtype"`
	Shape         []int64         `json:"shape"`
	Srcs          []string        `json:"srcs"`
	Arg           json.RawMessage `json:"arg,omitempty"`
	Axis          []int           `json:"axis,omitempty"`
	Device        string          `json:"device,omitempty"`
	ForcedRealize bool            `json:"forced_realize,omitempty"`
}

var opByName = map[string]ir.Op{
	"EMPTY": ir.Empty, "COPY": ir.Copy, "CUSTOM": ir.Custom,
	"CONTIGUOUS": ir.Contiguous, "ASSIGN": ir.Assign, "CONST": ir.MetaConst,
	"NEG": ir.Neg, "EXP2": ir.Exp2, "LOG2": ir.Log2, "SIN": ir.Sin,
	"SQRT": ir.Sqrt, "RECIP": ir.Recip, "CAST": ir.Cast, "BITCAST": ir.BitCast,
	"ADD": ir.Add, "SUB": ir.Sub, "MUL": ir.Mul, "DIV": ir.Div, "MOD": ir.Mod,
	"MAX2": ir.Max2, "CMPLT": ir.CmpLt, "CMPEQ": ir.CmpEq,
	"AND": ir.And, "OR": ir.Or, "XOR": ir.Xor,
	"WHERE": ir.Where, "MULACC": ir.MulAcc,
	"SUM": ir.Sum, "MAX": ir.Max,
}

var dtypeByName = map[string]ir.DType{
	"bool": ir.Bool,
	"int8": ir.Int8, "int16": ir.Int16, "int32": ir.Int32, "int64": ir.Int64,
	"uint8": ir.Uint8, "uint16": ir.Uint16, "uint32": ir.Uint32, "uint64": ir.Uint64,
	"float16": ir.Float16, "float32": ir.Float32, "float64": ir.Float64,
	"image": ir.Image,
}

// build constructs the LazyBuffer DAG g describes inside a fresh
// Arena and returns the requested output buffers, ready to pass to
// scheduler.CreateSchedule.
func (g *graphDoc) build() ([]*ir.LazyBuffer, error) {
	a := ir.NewArena()
	byName := make(map[string]*ir.LazyBuffer, len(g.Nodes))

	for _, n := range g.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node with no name")
		}
		if _, ok := byName[n.Name]; ok {
			return nil, fmt.Errorf("duplicate node name %q", n.Name)
		}

		dtype, ok := dtypeByName[strings.ToLower(n.DType)]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown dtype %q", n.Name, n.DType)
		}

		shape := make([]st.Expr, len(n.Shape))
		for i, d := range n.Shape {
			shape[i] = st.Const(d)
		}
		tracker := st.FromShapeTracker(shape...)

		device := n.Device
		if device == "" {
			device = "CPU"
		}

		opName := strings.ToUpper(n.Op)

		if opName == "REALIZED" {
			// A pre-materialized leaf: required as the target operand
			// of an ASSIGN node, since lower.Lower refuses to lower an
			// ASSIGN whose target isn't already realized.
			size := int64(1)
			for _, d := range n.Shape {
				size *= d
			}
			buf := ir.NewBuffer(device, size, dtype, ir.BufferOptions{})
			b := a.NewRealized(dtype, tracker, buf)
			b.Device = device
			byName[n.Name] = b
			continue
		}

		if opName == "VIEW" {
			if len(n.Srcs) != 1 {
				return nil, fmt.Errorf("node %q: VIEW requires exactly one src", n.Name)
			}
			base, ok := byName[n.Srcs[0]]
			if !ok {
				return nil, fmt.Errorf("node %q: unknown src %q", n.Name, n.Srcs[0])
			}
			if base.IsView() {
				return nil, fmt.Errorf("node %q: VIEW src %q is itself a view; expand from a base buffer", n.Name, n.Srcs[0])
			}
			b := a.NewView(base, base.ST.Expand(shape))
			byName[n.Name] = b
			continue
		}

		op, ok := opByName[opName]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown op %q", n.Name, n.Op)
		}

		srcs := make([]*ir.LazyBuffer, len(n.Srcs))
		for i, s := range n.Srcs {
			src, ok := byName[s]
			if !ok {
				return nil, fmt.Errorf("node %q: unknown src %q (nodes must be listed in dependency order)", n.Name, s)
			}
			srcs[i] = src
		}

		var arg interface{}
		switch {
		case op.IsReduceOp():
			arg = n.Axis
		case op == ir.MetaConst:
			v, err := constArg(n.Arg, dtype)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.Name, err)
			}
			arg = v
		}

		b := a.NewBase(op, dtype, tracker, arg, srcs...)
		b.Device = device
		b.ForcedRealize = n.ForcedRealize
		byName[n.Name] = b
	}

	if len(g.Outputs) == 0 {
		return nil, fmt.Errorf("graph has no outputs")
	}
	outs := make([]*ir.LazyBuffer, len(g.Outputs))
	for i, name := range g.Outputs {
		b, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("output %q: no such node", name)
		}
		outs[i] = b
	}
	return outs, nil
}

// constArg decodes a CONST node's fill value into the Go type
// lower.lowerConst expects (int64, float64 or bool), chosen by dtype.
func constArg(raw json.RawMessage, dtype ir.DType) (interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("CONST node requires an \"arg\" value")
	}
	if dtype == ir.Bool {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding bool arg: %w", err)
		}
		return v, nil
	}
	if dtype.IsFloat() {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding float arg: %w", err)
		}
		return v, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding int arg: %w", err)
	}
	return v, nil
}
