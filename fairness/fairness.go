// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package fairness reconciles aggregate per-flow demand at a port with
// the port's capacity, producing per-flow allocations.
package fairness

import (
	"sort"

	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/units"
)

// Demand is one flow's contending demand at a port.
type Demand struct {
	Flow   flowid.ID
	Demand units.DataRate
}

// Input bundles everything a Policy needs to recompute allocations for
// one port in one update cycle.
type Input struct {
	// Capacity is the port's current max_speed.
	Capacity units.DataRate
	// PriorCapacity is max_speed as of the previous recomputation,
	// used to detect link-capacity changes.
	PriorCapacity units.DataRate
	// Demands is the current set of flows contending for the port.
	Demands []Demand
	// Prior is the port's current outgoing_rate_of map before this
	// recomputation, used by MaxMin's no-forced-reduction rule.
	Prior map[flowid.ID]units.DataRate
	// ArrivalOrder returns the order in which a flow first arrived at
	// this port (lower = earlier), used by FirstComeFirstServed.
	ArrivalOrder func(flowid.ID) (int, bool)
}

// Policy assigns throughput allocations to a set of contending flows at
// a port, subject to a_i <= d_i and Σ a_i <= C.
type Policy interface {
	Allocate(in Input) map[flowid.ID]units.DataRate
}

// FirstComeFirstServed grants each flow its full demand, in arrival
// order, until capacity is exhausted; later flows get zero. Ties
// (flows with no recorded arrival, which should not occur in practice)
// fall back to FlowId ascending.
type FirstComeFirstServed struct{}

// NewFCFS returns a FirstComeFirstServed fairness policy.
func NewFCFS() *FirstComeFirstServed { return &FirstComeFirstServed{} }

// Allocate implements Policy.
func (FirstComeFirstServed) Allocate(in Input) map[flowid.ID]units.DataRate {
	demands := append([]Demand(nil), in.Demands...)
	sort.Slice(demands, func(i, j int) bool {
		oi, oki := arrivalOf(in, demands[i].Flow)
		oj, okj := arrivalOf(in, demands[j].Flow)
		switch {
		case oki && okj && oi != oj:
			return oi < oj
		case oki != okj:
			return oki // flows with a recorded arrival sort before those without
		default:
			return demands[i].Flow < demands[j].Flow
		}
	})

	out := make(map[flowid.ID]units.DataRate, len(demands))
	remaining := in.Capacity
	for _, d := range demands {
		if remaining.Approx(0) || remaining.ApproxLess(0) {
			out[d.Flow] = 0
			continue
		}
		if d.Demand.ApproxGreater(remaining) {
			out[d.Flow] = remaining
			remaining = 0
			continue
		}
		out[d.Flow] = d.Demand
		remaining = remaining.Sub(d.Demand)
	}
	return out
}

func arrivalOf(in Input, f flowid.ID) (int, bool) {
	if in.ArrivalOrder == nil {
		return 0, false
	}
	return in.ArrivalOrder(f)
}

// MaxMin implements classical max-min fairness with the "no forced
// reduction" damping clause: a flow's allocation never drops below the
// lesser of its prior value and its current demand unless the port's
// capacity decreased or the contending flow set changed this cycle.
type MaxMin struct{}

// NewMaxMin returns a MaxMin fairness policy.
func NewMaxMin() *MaxMin { return &MaxMin{} }

// Allocate implements Policy.
func (MaxMin) Allocate(in Input) map[flowid.ID]units.DataRate {
	reductionPermitted := in.Capacity.ApproxLess(in.PriorCapacity) || contendingSetChanged(in)

	floor := make(map[flowid.ID]units.DataRate, len(in.Demands))
	var floorSum units.DataRate
	residual := make([]Demand, 0, len(in.Demands))
	for _, d := range in.Demands {
		prior, hadPrior := in.Prior[d.Flow]
		f := units.DataRate(0)
		if !reductionPermitted && hadPrior {
			if prior.ApproxGreater(d.Demand) {
				f = d.Demand
			} else {
				f = prior
			}
		}
		floor[d.Flow] = f
		floorSum = floorSum.Add(f)
		if d.Demand.ApproxGreater(f) {
			residual = append(residual, Demand{Flow: d.Flow, Demand: d.Demand.Sub(f)})
		}
	}

	remaining := in.Capacity.Sub(floorSum)
	if remaining.Less(0) {
		remaining = 0
	}
	additional := progressiveFilling(residual, remaining)

	out := make(map[flowid.ID]units.DataRate, len(in.Demands))
	for _, d := range in.Demands {
		out[d.Flow] = floor[d.Flow].Add(additional[d.Flow])
	}
	return out
}

// contendingSetChanged reports whether the set of flows present in
// in.Demands differs from the set of flows with a prior allocation.
func contendingSetChanged(in Input) bool {
	if len(in.Demands) != len(in.Prior) {
		return true
	}
	for _, d := range in.Demands {
		if _, ok := in.Prior[d.Flow]; !ok {
			return true
		}
	}
	return false
}

// progressiveFilling is the textbook water-filling max-min algorithm:
// process flows ascending by demand (ties broken by FlowId ascending),
// at each step giving the flow either its full remaining demand or an
// equal share of what's left, whichever is smaller.
func progressiveFilling(demands []Demand, capacity units.DataRate) map[flowid.ID]units.DataRate {
	sorted := append([]Demand(nil), demands...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Demand != sorted[j].Demand {
			return sorted[i].Demand < sorted[j].Demand
		}
		return sorted[i].Flow < sorted[j].Flow
	})

	out := make(map[flowid.ID]units.DataRate, len(sorted))
	remaining := capacity
	for i, d := range sorted {
		n := len(sorted) - i
		share := units.DataRate(float64(remaining) / float64(n))
		if d.Demand.ApproxGreater(share) {
			out[d.Flow] = share
			remaining = remaining.Sub(share)
		} else {
			out[d.Flow] = d.Demand
			remaining = remaining.Sub(d.Demand)
		}
	}
	return out
}
