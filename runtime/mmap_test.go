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

package runtime

import (
	"bytes"
	"testing"

	"github.com/kernelsched/fusion/ir"
)

func TestHostAllocatorCopyRoundTrip(t *testing.T) {
	a := NewHostAllocator()
	p, err := a.Alloc(8, ir.BufferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Free(p, 8, ir.BufferOptions{})

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := a.CopyIn(p, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 8)
	if err := a.CopyOut(got, p); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("CopyOut = %v, want %v", got, want)
	}
}

func TestHostAllocatorAsBuffer(t *testing.T) {
	var hv HostVisible = NewHostAllocator()
	a := NewHostAllocator()
	p, err := a.Alloc(4, ir.BufferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Free(p, 4, ir.BufferOptions{})

	buf, err := hv.AsBuffer(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 4 {
		t.Fatalf("AsBuffer returned %d bytes, want 4", len(buf))
	}
}
