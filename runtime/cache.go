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
	"sync"

	"github.com/kernelsched/fusion/ir"
)

// CachingAllocator layers the LRU free-list discipline spec §4.6
// describes on top of a backend Allocator: Free defers to a per-
// (size, options) cache unless the buffer opts out via Nolru; Alloc
// pops from the cache first and, on a backend allocation failure,
// drains the whole cache once and retries exactly once, grounded on
// tenant/dcache.Cache's reuse-before-refill discipline.
type CachingAllocator struct {
	Backend Allocator

	mu    sync.Mutex
	cache map[ir.AllocKey][]Ptr
}

// NewCachingAllocator wraps backend with the LRU discipline.
func NewCachingAllocator(backend Allocator) *CachingAllocator {
	return &CachingAllocator{Backend: backend, cache: map[ir.AllocKey][]Ptr{}}
}

func bucketKey(device string, dtype ir.DType, size int64, opts ir.BufferOptions) ir.AllocKey {
	return ir.AllocKey{Device: device, DType: dtype, Options: opts, Size: size}
}

// Alloc allocates size with the cache-first policy. Unlike
// Allocator.Alloc it also takes the device and dtype, which with size
// and opts form the cache key, so CachingAllocator does not itself
// satisfy the Allocator interface.
func (c *CachingAllocator) Alloc(device string, dtype ir.DType, size int64, opts ir.BufferOptions) (Ptr, error) {
	key := bucketKey(device, dtype, size, opts)

	c.mu.Lock()
	if entries := c.cache[key]; len(entries) > 0 {
		p := entries[len(entries)-1]
		c.cache[key] = entries[:len(entries)-1]
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := c.Backend.Alloc(size, opts)
	if err == nil {
		return p, nil
	}

	c.drain()
	return c.Backend.Alloc(size, opts)
}

// Free returns p to its bucket's cache, unless opts.Nolru requests an
// immediate release to the backend.
func (c *CachingAllocator) Free(device string, dtype ir.DType, p Ptr, size int64, opts ir.BufferOptions) error {
	if opts.Nolru {
		return c.Backend.Free(p, size, opts)
	}
	key := bucketKey(device, dtype, size, opts)
	c.mu.Lock()
	c.cache[key] = append(c.cache[key], p)
	c.mu.Unlock()
	return nil
}

// drain releases every cached allocation back to the backend.
func (c *CachingAllocator) drain() {
	c.mu.Lock()
	cache := c.cache
	c.cache = map[ir.AllocKey][]Ptr{}
	c.mu.Unlock()

	for key, entries := range cache {
		for _, p := range entries {
			_ = c.Backend.Free(p, key.Size, key.Options)
		}
	}
}
