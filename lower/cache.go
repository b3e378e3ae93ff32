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

package lower

import (
	"encoding/binary"
	"fmt"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
	"golang.org/x/crypto/blake2b"
)

// memoKey identifies a (LazyBuffer, current ShapeTracker) pair for
// the recursive-lowering cache (spec §4.3 step 4c), content-hashed
// with blake2b the way ion/blockfmt/index.go hashes block contents.
type memoKey [blake2b.Size256]byte

func makeMemoKey(b *ir.LazyBuffer, s st.ShapeTracker) memoKey {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 with a nil key never errors
	}
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], uint64(b.ID()))
	h.Write(idBuf[:])
	fmt.Fprintf(h, "|%s", s.String())
	var out memoKey
	copy(out[:], h.Sum(nil))
	return out
}

// lowerCache memoizes lowered sub-expressions so shared subtrees in
// the original DAG are only compiled once per output group.
type lowerCache struct {
	m map[memoKey]*ir.LazyOp
}

func newLowerCache() *lowerCache { return &lowerCache{m: map[memoKey]*ir.LazyOp{}} }

func (c *lowerCache) get(b *ir.LazyBuffer, s st.ShapeTracker) (*ir.LazyOp, bool) {
	v, ok := c.m[makeMemoKey(b, s)]
	return v, ok
}

func (c *lowerCache) put(b *ir.LazyBuffer, s st.ShapeTracker, v *ir.LazyOp) {
	c.m[makeMemoKey(b, s)] = v
}
