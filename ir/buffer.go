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

import "fmt"

// BufferOptions carries allocator hints that participate in the
// memory planner's allocation-key bucketing (spec §4.5 step 2) and
// the Runtime's LRU cache discipline (spec §4.6).
type BufferOptions struct {
	// Nolru opts a buffer out of the allocator's free-list cache:
	// Free() releases it immediately rather than deferring to the
	// per-(size,options) cache.
	Nolru bool
	// Host requests a host-visible (as_buffer-capable) allocation.
	Host bool
	// External marks a buffer the scheduler must not reuse storage
	// for (spec §4.5 step 1 "externally-retained").
	External bool
}

// AllocKey is the (device, dtype, options[, size]) bucket the memory
// planner groups interchangeable buffers by (spec §4.5 step 2).
type AllocKey struct {
	Device       string
	DType        DType
	Options      BufferOptions
	Size         int64 // only significant when SubAllocates is false
	SubAllocates bool
}

func (k AllocKey) String() string {
	if k.SubAllocates {
		return fmt.Sprintf("%s/%s/%+v", k.Device, k.DType, k.Options)
	}
	return fmt.Sprintf("%s/%s/%+v/%d", k.Device, k.DType, k.Options, k.Size)
}

// Buffer is an opaque handle for a device-resident allocation. It may
// be a view into another Buffer (Base != nil), sharing physical
// storage at a distinct Offset. Buffer itself never talks to the
// Runtime directly; it is the currency the scheduler and the Runtime
// exchange (spec §3 "Buffer" / §4.6).
type Buffer struct {
	Device  string
	Size    int64 // element count
	DType   DType
	Options BufferOptions
	Offset  int64 // in elements, relative to Base when Base != nil
	Base    *Buffer

	refcount int32
}

// NewBuffer constructs a root (non-view) Buffer.
func NewBuffer(device string, size int64, dtype DType, opts BufferOptions) *Buffer {
	return &Buffer{Device: device, Size: size, DType: dtype, Options: opts, refcount: 1}
}

// ViewOf constructs a Buffer that shares base's storage at the given
// element offset.
func ViewOf(base *Buffer, size, offset int64) *Buffer {
	root := base
	for root.Base != nil {
		offset += root.Offset
		root = root.Base
	}
	root.refcount++
	return &Buffer{Device: root.Device, Size: size, DType: root.DType, Options: root.Options, Offset: offset, Base: root, refcount: 1}
}

// IsView reports whether b shares storage with another Buffer.
func (b *Buffer) IsView() bool { return b.Base != nil }

// NBytes returns the buffer's size in bytes.
func (b *Buffer) NBytes() int64 { return b.Size * int64(b.DType.Bytes()) }

// Key returns the allocation-bucket key for b, given whether the
// target device's allocator supports sub-allocation (offset views
// into a larger buffer) — when it doesn't, Size participates in the
// key so only same-size buffers are considered interchangeable.
func (b *Buffer) Key(subAllocates bool) AllocKey {
	k := AllocKey{Device: b.Device, DType: b.DType, Options: b.Options, SubAllocates: subAllocates}
	if !subAllocates {
		k.Size = b.NBytes()
	}
	return k
}

// Ref increments the lazy-reference count, distinct from the
// underlying allocation's lifecycle (spec §3 "Refcount tracks lazy
// references separately from allocation").
func (b *Buffer) Ref() { b.refcount++ }

// Unref decrements the lazy-reference count and reports whether it
// reached zero (the caller is then responsible for invoking the
// Runtime's Allocator.Free exactly once).
func (b *Buffer) Unref() bool {
	b.refcount--
	if b.refcount < 0 {
		panic("ir: Buffer.Unref called more times than Ref")
	}
	return b.refcount == 0
}

func (b *Buffer) String() string {
	if b.IsView() {
		return fmt.Sprintf("Buffer(view, device=%s, size=%d, off=%d)", b.Device, b.Size, b.Offset)
	}
	return fmt.Sprintf("Buffer(device=%s, size=%d, dtype=%s)", b.Device, b.Size, b.DType)
}
