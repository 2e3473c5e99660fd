// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package stability implements the network-wide stability validator
// that blocks observers until every node's update loop has quiesced,
// and a runtime guard against illegal mutation during "must-be-stable"
// read regions.
package stability

import (
	"sync"

	"github.com/tigera/dcnetsim/simerr"
)

// Validator tracks the network-wide invalidation counter n (stable iff
// n == 0) and the should-be-stable counter s. Two mutexes are used —
// one for n, one for s — acquired in a fixed
// lexicographic order (the n-mutex before the s-mutex) to rule out
// deadlock between Invalidate and CheckIsStableWhile.
type Validator struct {
	mu   sync.Mutex // guards n and the invalidators' local valid flags
	cond *sync.Cond
	n    int

	sMu sync.Mutex // guards s
	s   int
}

// New returns a Validator in the stable (n=0) state.
func New() *Validator {
	v := &Validator{}
	v.cond = sync.NewCond(&v.mu)
	return v
}

// Invalidator is held by exactly one node and tracks whether that node
// currently has an outstanding invalidation counted against n.
type Invalidator struct {
	v     *Validator
	valid bool
}

// NewInvalidator returns an Invalidator bound to v, initially valid
// (no outstanding invalidation).
func (v *Validator) NewInvalidator() *Invalidator {
	return &Invalidator{v: v, valid: true}
}

// Invalidate declares that the owning node has pending work. If the
// node was already counted as invalid, this is a no-op. Transitioning
// 0->1 on n acquires the stability lock (AwaitStability will block).
// Panics (simerr.IllegalInvalidate) if called while the network is in
// a CheckIsStableWhile region.
func (inv *Invalidator) Invalidate() {
	v := inv.v
	v.mu.Lock()
	defer v.mu.Unlock()

	v.sMu.Lock()
	sVal := v.s
	v.sMu.Unlock()
	if sVal > 0 {
		simerr.Fatal(simerr.IllegalInvalidate, "invalidate() called during a stable-while region")
	}

	if !inv.valid {
		return
	}
	inv.valid = false
	v.n++
}

// Validate declares that the owning node's update loop has returned to
// its suspend point with no further pending work. If the node was
// already counted as valid, this is a no-op. Transitioning 1->0 on n
// releases the stability lock, waking any AwaitStability callers.
func (inv *Invalidator) Validate() {
	v := inv.v
	v.mu.Lock()
	defer v.mu.Unlock()

	if inv.valid {
		return
	}
	inv.valid = true
	v.n--
	if v.n == 0 {
		v.cond.Broadcast()
	}
}

// AwaitStability blocks until n == 0. Calling it twice in succession
// with no intervening invalidation returns immediately both times.
func (v *Validator) AwaitStability() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.n != 0 {
		v.cond.Wait()
	}
}

// IsStable reports whether n == 0 right now, without blocking.
func (v *Validator) IsStable() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.n == 0
}

// CheckIsStableWhile asserts the network is currently stable, marks it
// should-be-stable for the duration of block, and runs block. Any
// Invalidate call that occurs while block is running is a fatal error.
// Used to guard read-only consistency regions such as snapshotting.
func (v *Validator) CheckIsStableWhile(block func()) {
	v.mu.Lock()
	if v.n != 0 {
		v.mu.Unlock()
		simerr.Fatal(simerr.IllegalInvalidate, "check_is_stable_while called while n != 0")
	}
	v.sMu.Lock()
	v.s++
	v.sMu.Unlock()
	v.mu.Unlock()

	defer func() {
		v.sMu.Lock()
		v.s--
		v.sMu.Unlock()
	}()
	block()
}

// Reset discards all in-flight invalidations, forcing n back to 0. Used
// only when tearing down and rebuilding a Network; it does not notify
// the Invalidators that minted the discarded invalidations, so callers
// must not reuse them afterward.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.n = 0
	v.cond.Broadcast()
}
