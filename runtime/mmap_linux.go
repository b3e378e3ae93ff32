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

//go:build linux

package runtime

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kernelsched/fusion/ir"
)

// HostAllocator is a demo Allocator backend: every allocation is a
// page-aligned anonymous mmap region, directly host-visible. It
// implements Allocator, HostVisible, and SubAllocator, and exists to
// give the Runtime contract (spec C7) a concrete, exercisable
// implementation; it is not a production device backend.
type HostAllocator struct{}

// NewHostAllocator returns the mmap-backed demo Allocator.
func NewHostAllocator() *HostAllocator { return &HostAllocator{} }

const pageSize = 1 << 12

func roundPage(n int64) int {
	if n <= 0 {
		n = 1
	}
	return int((n + pageSize - 1) &^ (pageSize - 1))
}

// Alloc maps a fresh anonymous, read-write region of at least size
// bytes and returns it wrapped as a Ptr.
func (*HostAllocator) Alloc(size int64, opts ir.BufferOptions) (Ptr, error) {
	buf, err := unix.Mmap(-1, 0, roundPage(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("runtime: mmap %d bytes: %w", size, err)
	}
	// buf has cap == roundPage(size); keep the full capacity reachable
	// so Free can recover the whole mapped region to unmap.
	return buf[:size], nil
}

// Free unmaps the region backing p.
func (*HostAllocator) Free(p Ptr, size int64, opts ir.BufferOptions) error {
	buf, ok := p.([]byte)
	if !ok {
		return fmt.Errorf("runtime: Free called with foreign Ptr %T", p)
	}
	return unix.Munmap(buf[:cap(buf)])
}

// CopyIn copies src into the host-visible region backing dst.
func (*HostAllocator) CopyIn(dst Ptr, src []byte) error {
	buf, ok := dst.([]byte)
	if !ok {
		return fmt.Errorf("runtime: CopyIn called with foreign Ptr %T", dst)
	}
	if len(src) > len(buf) {
		return fmt.Errorf("runtime: CopyIn source (%d bytes) overflows destination (%d bytes)", len(src), len(buf))
	}
	copy(buf, src)
	return nil
}

// CopyOut copies the region backing src into dst.
func (*HostAllocator) CopyOut(dst []byte, src Ptr) error {
	buf, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("runtime: CopyOut called with foreign Ptr %T", src)
	}
	if len(dst) > len(buf) {
		return fmt.Errorf("runtime: CopyOut destination (%d bytes) overflows source (%d bytes)", len(dst), len(buf))
	}
	copy(dst, buf)
	return nil
}

// AsBuffer returns the host-visible slice backing p directly: every
// allocation from this backend is already host memory.
func (*HostAllocator) AsBuffer(p Ptr) ([]byte, error) {
	buf, ok := p.([]byte)
	if !ok {
		return nil, fmt.Errorf("runtime: AsBuffer called with foreign Ptr %T", p)
	}
	return buf, nil
}

// Offset returns a sub-slice view of base without a fresh mmap call.
func (*HostAllocator) Offset(base Ptr, size, offset int64) (Ptr, error) {
	buf, ok := base.([]byte)
	if !ok {
		return nil, fmt.Errorf("runtime: Offset called with foreign Ptr %T", base)
	}
	if offset+size > int64(len(buf)) {
		return nil, fmt.Errorf("runtime: Offset [%d:%d) overflows base region of %d bytes", offset, offset+size, len(buf))
	}
	return buf[offset : offset+size : offset+size], nil
}
