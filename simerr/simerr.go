// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package simerr collects the error taxonomy of the flow simulator.
// UnknownNode, NoRoute and ConvergenceTimeout are ordinary returned
// errors; CapacityExceeded, IllegalInvalidate and FlowIDExhausted
// denote internal invariant violations and are raised as panics,
// wrapped with github.com/pkg/errors so the originating stack survives
// recovery at the controller boundary.
package simerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a simulator error.
type Kind int

const (
	// UnknownNode: a flow start/stop referenced an absent NodeId.
	UnknownNode Kind = iota
	// NoRoute: the routing table had no entry for the destination.
	NoRoute
	// CapacityExceeded: a port write would exceed max_speed. Fatal.
	CapacityExceeded
	// IllegalInvalidate: invalidate() called during a stable-while block. Fatal.
	IllegalInvalidate
	// FlowIDExhausted: the FlowId counter reached its maximum. Fatal.
	FlowIDExhausted
	// ConvergenceTimeout: update cycles exceeded the oscillation bound.
	ConvergenceTimeout
)

func (k Kind) String() string {
	switch k {
	case UnknownNode:
		return "unknown_node"
	case NoRoute:
		return "no_route"
	case CapacityExceeded:
		return "capacity_exceeded"
	case IllegalInvalidate:
		return "illegal_invalidate"
	case FlowIDExhausted:
		return "flow_id_exhausted"
	case ConvergenceTimeout:
		return "convergence_timeout"
	default:
		return "unknown"
	}
}

// Error is a library-surface error carrying one Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an *Error of the given kind.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a simerr.Error of kind k, supporting
// errors.Is-style matching.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// Fatal panics with a wrapped *Error, used for the internal-invariant
// kinds (CapacityExceeded, IllegalInvalidate, FlowIDExhausted). The
// simulator is not expected to survive these; they are assertions, not
// recoverable control flow.
func Fatal(k Kind, format string, args ...interface{}) {
	panic(errors.Wrap(New(k, format, args...), "simerr: fatal invariant violation"))
}
