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

// ScheduleItem is one unit of work: a KERNEL, COPY, EMPTY, CUSTOM or
// VIEW LazyOp plus the concrete Buffers it reads and writes (spec
// §3). If AST.Op == Kernel, the first N Bufs (N = number of STORE
// children) are outputs and the rest are inputs; otherwise Bufs[0] is
// the output and Bufs[1:] are inputs.
type ScheduleItem struct {
	AST      *LazyOp
	Bufs     []*Buffer
	Metadata []Metadata
}

// NumOutputs returns how many of Bufs are outputs.
func (s *ScheduleItem) NumOutputs() int {
	if s.AST.Op != Kernel {
		return 1
	}
	n := 0
	for _, c := range s.AST.Srcs {
		if c.Op == Store {
			n++
		}
	}
	return n
}
