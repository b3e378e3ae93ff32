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

package sched

import (
	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/schedconfig"
)

// buildOutputGroups implements spec §4.2.5: buffers in the realize
// set (excluding CONST, already-seen, already-realized) with the same
// group key become the outputs of a single kernel. Order is the
// deterministic order of first encounter in the realize set.
func buildOutputGroups(w *walker, reduceForOp map[int]*ir.LazyBuffer, cfg schedconfig.Config) [][]*ir.LazyBuffer {
	keyOrder := newLBSet()
	members := map[int][]*ir.LazyBuffer{}

	for _, b := range w.realizeSet.Order() {
		if b.Op == ir.MetaConst {
			continue
		}
		if w.seen[b.ID()] || b.Scheduled() {
			continue
		}
		if b.Realized != nil {
			continue
		}
		key := b
		if cfg.MultiOutput {
			if tr, ok := reduceForOp[b.ID()]; ok {
				key = tr
			}
		}
		keyOrder.Add(key)
		members[key.ID()] = append(members[key.ID()], b)
	}

	groups := make([][]*ir.LazyBuffer, 0, keyOrder.Len())
	for _, key := range keyOrder.Order() {
		groups = append(groups, members[key.ID()])
	}
	return groups
}
