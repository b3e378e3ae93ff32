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
	"testing"

	"github.com/kernelsched/fusion/ir"
)

func mustDoc(t *testing.T, src string) graphDoc {
	t.Helper()
	var doc graphDoc
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("decoding test graph: %s", err)
	}
	return doc
}

func TestBuildElementwiseChain(t *testing.T) {
	doc := mustDoc(t, `{
		"nodes": [
			{"name": "a", "op": "empty", "dtype": "float32", "shape": [2, 4]},
			{"name": "b", "op": "empty", "dtype": "float32", "shape": [2, 4]},
			{"name": "c", "op": "add", "dtype": "float32", "shape": [2, 4], "srcs": ["a", "b"]},
			{"name": "d", "op": "neg", "dtype": "float32", "shape": [2, 4], "srcs": ["c"]}
		],
		"outputs": ["d"]
	}`)

	outs, err := doc.build()
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	if outs[0].Op != ir.Neg {
		t.Fatalf("expected output op NEG, got %s", outs[0].Op)
	}
	if outs[0].Srcs[0].Op != ir.Add {
		t.Fatalf("expected NEG's source to be ADD, got %s", outs[0].Srcs[0].Op)
	}
}

func TestBuildConstAndReduce(t *testing.T) {
	doc := mustDoc(t, `{
		"nodes": [
			{"name": "a", "op": "empty", "dtype": "float32", "shape": [2, 4]},
			{"name": "k", "op": "const", "dtype": "float32", "shape": [2, 4], "arg": 2.5},
			{"name": "m", "op": "mul", "dtype": "float32", "shape": [2, 4], "srcs": ["a", "k"]},
			{"name": "s", "op": "sum", "dtype": "float32", "shape": [2, 1], "srcs": ["m"], "axis": [1]}
		],
		"outputs": ["s"]
	}`)

	outs, err := doc.build()
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if outs[0].Op != ir.Sum {
		t.Fatalf("expected SUM output, got %s", outs[0].Op)
	}
	axis, ok := outs[0].Arg.([]int)
	if !ok || len(axis) != 1 || axis[0] != 1 {
		t.Fatalf("expected axis [1], got %v", outs[0].Arg)
	}
	k := outs[0].Srcs[0].Srcs[1]
	if k.Op != ir.MetaConst {
		t.Fatalf("expected CONST source, got %s", k.Op)
	}
	if v, ok := k.Arg.(float64); !ok || v != 2.5 {
		t.Fatalf("expected const arg 2.5, got %v", k.Arg)
	}
}

func TestBuildAssignRequiresRealizedTarget(t *testing.T) {
	doc := mustDoc(t, `{
		"nodes": [
			{"name": "t", "op": "realized", "dtype": "float32", "shape": [2, 4]},
			{"name": "a", "op": "empty", "dtype": "float32", "shape": [2, 4]},
			{"name": "v", "op": "add", "dtype": "float32", "shape": [2, 4], "srcs": ["a", "a"]},
			{"name": "x", "op": "assign", "dtype": "float32", "shape": [2, 4], "srcs": ["v", "t"]}
		],
		"outputs": ["x"]
	}`)

	outs, err := doc.build()
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	target := outs[0].Srcs[1]
	if target.Realized == nil {
		t.Fatalf("expected the ASSIGN target to already be realized")
	}
}

func TestBuildRejectsUnknownOp(t *testing.T) {
	doc := mustDoc(t, `{
		"nodes": [{"name": "a", "op": "frobnicate", "dtype": "float32", "shape": [1]}],
		"outputs": ["a"]
	}`)

	if _, err := doc.build(); err == nil {
		t.Fatalf("expected an error for an unknown op")
	}
}

func TestBuildRejectsUnknownOutput(t *testing.T) {
	doc := mustDoc(t, `{
		"nodes": [{"name": "a", "op": "empty", "dtype": "float32", "shape": [1]}],
		"outputs": ["b"]
	}`)

	if _, err := doc.build(); err == nil {
		t.Fatalf("expected an error for an output naming no node")
	}
}
