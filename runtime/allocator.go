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

// Package runtime specifies the contract a device backend must
// satisfy to execute a schedule (spec C7): an Allocator capability
// set, an LRU free-list discipline on top of it, and a hardware
// command queue (HCQ) shape. No concrete GPU/accelerator backend is
// implemented; the narrow interfaces here mirror how plan.Transport
// and vm.QuerySink let the core packages depend on a capability
// without implementing it.
package runtime

import "github.com/kernelsched/fusion/ir"

// Ptr is an opaque, backend-defined handle to a device allocation.
type Ptr interface{}

// Allocator is the minimal capability set a device backend exposes
// (spec §4.6 "Allocator capability set").
type Allocator interface {
	Alloc(size int64, opts ir.BufferOptions) (Ptr, error)
	Free(p Ptr, size int64, opts ir.BufferOptions) error
	CopyIn(dst Ptr, src []byte) error
	CopyOut(dst []byte, src Ptr) error
}

// HostVisible is an optional Allocator capability: zero-copy host
// visibility into a device allocation.
type HostVisible interface {
	AsBuffer(p Ptr) ([]byte, error)
}

// SubAllocator is an optional Allocator capability: offset views into
// an existing allocation, without a fresh alloc call.
type SubAllocator interface {
	Offset(base Ptr, size, offset int64) (Ptr, error)
}

// Transferer is an optional Allocator capability: device-to-device
// copies that do not stage through the host.
type Transferer interface {
	Transfer(dst, src Ptr, size int64, srcDevice, dstDevice string) error
}
