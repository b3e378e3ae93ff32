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

import "github.com/kernelsched/fusion/ir"

// demoteImageBuffers implements spec §4.2.6: a realized buffer with
// image dtype whose shape can't satisfy the packed-texture layout
// constraint is demoted to float32 in place. This is the one
// irreversible, idempotent mutation the decider performs (spec §7).
func demoteImageBuffers(realized []*ir.LazyBuffer) {
	for _, b := range realized {
		if !b.DType.IsImage() {
			continue
		}
		if imageLayoutOK(b) {
			continue
		}
		b.DType = b.DType.Demote()
	}
}

func imageLayoutOK(b *ir.LazyBuffer) bool {
	shape := b.Shape()
	vol, volOK := constVolume(shape)
	if img, ok := b.Arg.(ir.ImageShape); ok {
		if !volOK || vol != img.Volume() {
			return false
		}
	}
	for _, ax := range b.ST.UnitStrideAxes() {
		if shape[ax].IsConst() && shape[ax].ConstValue()%4 == 0 {
			return true
		}
	}
	return false
}
