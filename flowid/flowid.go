// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package flowid assigns monotonically increasing flow identifiers,
// scoped to a single Network instance rather than process-wide.
package flowid

import (
	"math"
	"sync"
)

// ID is a flow identifier: strictly increasing within the Network that
// minted it, never reused.
type ID uint64

// Invalid is the zero value, never handed out by Allocator.Next.
const Invalid ID = 0

// Allocator hands out strictly increasing FlowIds. It is safe for
// concurrent use, though in the single-threaded cooperative scheduling
// model this simulator runs, all calls happen on the one executor
// goroutine.
type Allocator struct {
	mu   sync.Mutex
	next ID
}

// NewAllocator returns an Allocator whose first Next() call returns 1.
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Next returns the next FlowId, or ErrExhausted if the counter is
// exhausted — a fatal condition for the owning Network.
func (a *Allocator) Next() (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next == math.MaxUint64 {
		return Invalid, ErrExhausted
	}
	id := a.next
	a.next++
	return id, nil
}

// ErrExhausted is returned by Next when the counter has reached its
// maximum representable value.
var ErrExhausted = errExhausted{}

type errExhausted struct{}

func (errExhausted) Error() string { return "flowid: counter exhausted" }
