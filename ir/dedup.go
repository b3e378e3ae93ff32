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

import (
	"strconv"

	"github.com/dchest/siphash"
)

// DedupSet interns LazyOp trees by structural value: building the
// same subexpression (same op, same arg, same sources) at two
// different points in a lowered kernel's store list returns the same
// *LazyOp pointer the second time. A MULTIOUTPUT group (spec §4.2.5)
// lowers each output's expression independently, so the same reduce
// read or boundary LOAD can otherwise be reconstructed once per
// output; interning lets a codegen backend downstream treat pointer
// identity as proof of shared work instead of re-walking with Equal.
//
// Hashing is a fast siphash-keyed fingerprint used only to bucket
// candidates; every candidate in a bucket is confirmed with Equal
// before being returned, so a hash collision only costs an extra
// comparison, never a wrong answer. Grounded on
// vm/siphash_generic.go's use of siphash to bucket hash-aggregate
// keys.
type DedupSet struct {
	k0, k1  uint64
	buckets map[uint64][]*LazyOp
}

// NewDedupSet returns an empty set. The keys are fixed, arbitrary
// constants: this hash buckets structurally-identical trees within
// one lowering pass, not untrusted input, so key secrecy is
// irrelevant.
func NewDedupSet() *DedupSet {
	return &DedupSet{
		k0:      0x5df7b3c1a9e2f408,
		k1:      0x1b873593cc9e2d51,
		buckets: map[uint64][]*LazyOp{},
	}
}

// Intern returns a structurally-equal node already in the set, or
// records n and returns n if none exists yet.
func (d *DedupSet) Intern(n *LazyOp) *LazyOp {
	h := structuralHash(d.k0, d.k1, n)
	for _, cand := range d.buckets[h] {
		if Equal(cand, n) {
			return cand
		}
	}
	d.buckets[h] = append(d.buckets[h], n)
	return n
}

func structuralHash(k0, k1 uint64, n *LazyOp) uint64 {
	if n == nil {
		return siphash.Hash(k0, k1, []byte("nil"))
	}
	buf := make([]byte, 0, 24+8*len(n.Srcs))
	buf = strconv.AppendUint(buf, uint64(n.Op), 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, argFingerprint(n.Arg), 10)
	for _, s := range n.Srcs {
		buf = append(buf, ':')
		buf = strconv.AppendUint(buf, structuralHash(k0, k1, s), 10)
	}
	return siphash.Hash(k0, k1, buf)
}

// argFingerprint folds a LazyOp's Arg payload into a single integer
// for structuralHash. It only needs to distinguish values that Equal
// distinguishes (via equalArg); false collisions are fine, Intern
// always confirms with Equal before returning a match.
func argFingerprint(a interface{}) uint64 {
	switch v := a.(type) {
	case MemBuffer:
		return uint64(v.Idx)*1000003 + uint64(v.DType) + 1
	case ConstBuffer:
		return uint64(v.DType) + 2
	case []int:
		h := uint64(3)
		for _, x := range v {
			h = h*1000003 + uint64(x)
		}
		return h
	case int64:
		return uint64(v)*1000003 + 4
	case nil:
		return 0
	default:
		return 5
	}
}
