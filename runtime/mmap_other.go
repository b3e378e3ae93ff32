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

//go:build !linux

package runtime

import (
	"fmt"

	"github.com/kernelsched/fusion/ir"
)

// HostAllocator on non-Linux platforms falls back to plain heap
// allocation (no mmap syscall available via golang.org/x/sys/unix
// here); it still satisfies Allocator and HostVisible so the Runtime
// contract is exercisable on any platform, just without the real
// page-mapping behavior the linux build provides.
type HostAllocator struct{}

// NewHostAllocator returns the heap-backed demo Allocator.
func NewHostAllocator() *HostAllocator { return &HostAllocator{} }

func (*HostAllocator) Alloc(size int64, opts ir.BufferOptions) (Ptr, error) {
	if size < 0 {
		return nil, fmt.Errorf("runtime: negative alloc size %d", size)
	}
	return make([]byte, size), nil
}

func (*HostAllocator) Free(p Ptr, size int64, opts ir.BufferOptions) error { return nil }

func (*HostAllocator) CopyIn(dst Ptr, src []byte) error {
	buf, ok := dst.([]byte)
	if !ok {
		return fmt.Errorf("runtime: CopyIn called with foreign Ptr %T", dst)
	}
	copy(buf, src)
	return nil
}

func (*HostAllocator) CopyOut(dst []byte, src Ptr) error {
	buf, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("runtime: CopyOut called with foreign Ptr %T", src)
	}
	copy(dst, buf)
	return nil
}

func (*HostAllocator) AsBuffer(p Ptr) ([]byte, error) {
	buf, ok := p.([]byte)
	if !ok {
		return nil, fmt.Errorf("runtime: AsBuffer called with foreign Ptr %T", p)
	}
	return buf, nil
}
