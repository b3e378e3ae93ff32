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
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
)

// tabify/tabfprintf, grounded on plan/tree.go's indent-printing
// helpers, back the describe() dump below.
func tabify(w io.Writer, n int) {
	for ; n > 0; n-- {
		fmt.Fprint(w, "  ")
	}
}

func tabfprintf(w io.Writer, indent int, f string, args ...interface{}) {
	tabify(w, indent)
	fmt.Fprintf(w, f, args...)
}

// describe prints a human-readable dump of a finished schedule: one
// block per ScheduleItem, with its output/input Buffers summarized
// and its AST printed as an indented tree.
func describe(w io.Writer, items []*ir.ScheduleItem, vars st.VarVals) {
	fmt.Fprintf(w, "schedule: %d item(s)\n", len(items))
	for i, item := range items {
		n := item.NumOutputs()
		outs, ins := item.Bufs[:n], item.Bufs[n:]
		fmt.Fprintf(w, "[%d] %s\n", i, item.AST.Op)
		tabfprintf(w, 1, "outputs: %s\n", describeBufs(outs))
		tabfprintf(w, 1, "inputs:  %s\n", describeBufs(ins))
		if len(item.Metadata) > 0 {
			names := make([]string, len(item.Metadata))
			for j, m := range item.Metadata {
				names[j] = m.Name
			}
			tabfprintf(w, 1, "metadata: %v\n", names)
		}
		describeAST(w, 1, item.AST)
	}
	if len(vars) > 0 {
		fmt.Fprintln(w, "variables:")
		describeVars(w, vars)
	}
}

func describeBufs(bufs []*ir.Buffer) string {
	if len(bufs) == 0 {
		return "[]"
	}
	parts := make([]string, len(bufs))
	for i, b := range bufs {
		parts[i] = b.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func describeAST(w io.Writer, indent int, n *ir.LazyOp) {
	if n == nil {
		return
	}
	tabfprintf(w, indent, "%s", n.Op)
	if n.Arg != nil {
		fmt.Fprintf(w, " %v", n.Arg)
	}
	fmt.Fprintln(w)
	for _, s := range n.Srcs {
		describeAST(w, indent+1, s)
	}
}

func describeVars(w io.Writer, vars st.VarVals) {
	type kv struct {
		name string
		val  int64
	}
	flat := make([]kv, 0, len(vars))
	for v, val := range vars {
		flat = append(flat, kv{v.Name, val})
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].name < flat[j].name })
	for _, e := range flat {
		tabfprintf(w, 1, "%s = %d\n", e.name, e.val)
	}
}
