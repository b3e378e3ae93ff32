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
	"errors"
	"testing"

	"github.com/kernelsched/fusion/ir"
)

// countingAllocator is a fake backend that counts Alloc/Free calls and
// can be made to fail the next N Allocs, to exercise the cache's
// drain-and-retry path.
type countingAllocator struct {
	allocs, frees int
	failNext      int
	next          int
}

func (c *countingAllocator) Alloc(size int64, opts ir.BufferOptions) (Ptr, error) {
	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("out of memory")
	}
	c.allocs++
	c.next++
	return c.next, nil
}

func (c *countingAllocator) Free(p Ptr, size int64, opts ir.BufferOptions) error {
	c.frees++
	return nil
}

func (c *countingAllocator) CopyIn(dst Ptr, src []byte) error  { return nil }
func (c *countingAllocator) CopyOut(dst []byte, src Ptr) error { return nil }

func TestCachingAllocatorReusesFreedBlock(t *testing.T) {
	backend := &countingAllocator{}
	c := NewCachingAllocator(backend)

	p, err := c.Alloc("CPU", ir.Float32, 16, ir.BufferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Free("CPU", ir.Float32, p, 16, ir.BufferOptions{}); err != nil {
		t.Fatal(err)
	}

	p2, err := c.Alloc("CPU", ir.Float32, 16, ir.BufferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if p2 != p {
		t.Fatalf("expected Alloc to reuse the freed block, got new allocation")
	}
	if backend.allocs != 1 {
		t.Fatalf("expected exactly one backend Alloc, got %d", backend.allocs)
	}
}

func TestCachingAllocatorNolruBypassesCache(t *testing.T) {
	backend := &countingAllocator{}
	c := NewCachingAllocator(backend)
	opts := ir.BufferOptions{Nolru: true}

	p, err := c.Alloc("CPU", ir.Float32, 16, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Free("CPU", ir.Float32, p, 16, opts); err != nil {
		t.Fatal(err)
	}
	if backend.frees != 1 {
		t.Fatalf("expected Nolru Free to release to the backend immediately, got %d frees", backend.frees)
	}

	if _, err := c.Alloc("CPU", ir.Float32, 16, opts); err != nil {
		t.Fatal(err)
	}
	if backend.allocs != 2 {
		t.Fatalf("expected a fresh backend Alloc since Nolru bypasses the cache, got %d", backend.allocs)
	}
}

func TestCachingAllocatorDrainsOnFailure(t *testing.T) {
	backend := &countingAllocator{}
	c := NewCachingAllocator(backend)

	p1, _ := c.Alloc("CPU", ir.Float32, 16, ir.BufferOptions{})
	_ = c.Free("CPU", ir.Float32, p1, 16, ir.BufferOptions{})
	p2, _ := c.Alloc("CPU", ir.Float32, 32, ir.BufferOptions{})
	_ = c.Free("CPU", ir.Float32, p2, 32, ir.BufferOptions{})

	backend.failNext = 1
	if _, err := c.Alloc("CPU", ir.Float32, 64, ir.BufferOptions{}); err != nil {
		t.Fatalf("expected drain-and-retry to succeed, got %v", err)
	}
	if backend.frees != 2 {
		t.Fatalf("expected drain to free both cached entries, got %d", backend.frees)
	}
}
