// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package forwarding splits a flow's demand across candidate next-hop
// ports ahead of per-port fairness reconciliation.
package forwarding

import (
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/routing"
	"github.com/tigera/dcnetsim/units"
)

// Policy maps one flow's destination demand to a per-next-hop-port
// split, restricted to the node's current routing table entry for that
// destination.
type Policy interface {
	// Split returns the intended per-port demand for a flow of the
	// given demand headed to dest, given table's current next hops.
	// If dest has no route, Split returns an empty map — demand is
	// preserved by the caller (FlowHandler), but zero rate is assigned
	// on any port.
	Split(table *routing.Table, dest port.NodeID, demand units.DataRate) map[port.Key]units.DataRate
}

// StaticECMP splits demand equally across all current next hops for a
// destination. Next hops come from routing.Table.NextHops in port.Key
// order of the local ports (not by peer node id), so runs are
// reproducible; the fairness policy
// downstream may further reduce any of these allocations if its port is
// oversubscribed.
type StaticECMP struct{}

// NewStaticECMP returns a StaticECMP forwarding policy.
func NewStaticECMP() *StaticECMP { return &StaticECMP{} }

// Split implements Policy.
func (StaticECMP) Split(table *routing.Table, dest port.NodeID, demand units.DataRate) map[port.Key]units.DataRate {
	hops, ok := table.NextHops(dest)
	if !ok || len(hops) == 0 {
		return map[port.Key]units.DataRate{}
	}
	share := units.DataRate(float64(demand) / float64(len(hops)))
	out := make(map[port.Key]units.DataRate, len(hops))
	for _, h := range hops {
		out[h] = share
	}
	return out
}
