// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

// ring maps the logical order of a fixed-capacity history onto storage slots.
// Logical index 0 is the oldest entry and len()-1 the newest.
type ring struct {
	cap  int
	head int // slot of the oldest entry
	size int
}

func newRing(capacity int) ring {
	return ring{cap: capacity}
}

func (r *ring) len() int { return r.size }

func (r *ring) full() bool { return r.size == r.cap }

func (r *ring) clear() { r.head, r.size = 0, 0 }

// slot returns the storage slot of logical index i.
func (r *ring) slot(i int) int {
	if i < 0 || i >= r.size {
		panic("bound check error")
	}
	j := r.head + i
	if j >= r.cap {
		j -= r.cap
	}
	return j
}

// newest returns the slot of the most recent entry.
func (r *ring) newest() int {
	return r.slot(r.size - 1)
}

// push appends an entry and returns its slot. The oldest entry is evicted when full.
func (r *ring) push() int {
	if r.cap == 0 {
		panic("bound check error")
	}
	if r.full() {
		r.popOldest()
	}
	r.size++
	return r.slot(r.size - 1)
}

// popOldest removes the oldest entry and returns its slot.
func (r *ring) popOldest() int {
	if r.size == 0 {
		panic("bound check error")
	}
	j := r.head
	r.head++
	if r.head == r.cap {
		r.head = 0
	}
	r.size--
	return j
}
