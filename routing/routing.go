// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package routing maintains, per node, a shortest-path next-hop set per
// destination, updated by route advertisements and kept
// in a deterministic iteration order.
package routing

import (
	"sort"

	"github.com/tigera/dcnetsim/port"
)

// Advertisement is one route-advertisement message: "destination is
// reachable at distance hops via the port that received it".
type Advertisement struct {
	Destination port.NodeID
	Distance    int
	Via         port.Key
}

type entry struct {
	distance int
	nextHops map[port.Key]struct{}
}

// Table is a per-node map from destination to its set of equal-cost
// next-hop ports. Every entry's set is non-empty and every member
// shares the same minimum hop distance; an absent entry means no_route.
type Table struct {
	entries map[port.NodeID]*entry
}

// New returns an empty routing Table.
func New() *Table {
	return &Table{entries: make(map[port.NodeID]*entry)}
}

// NextHops returns the current next-hop ports for destination, in
// canonical port.Key order (owning node, then port index, of the local
// port), and whether any route exists at all. The order is not by the
// peer node's id.
func (t *Table) NextHops(dest port.NodeID) ([]port.Key, bool) {
	e, ok := t.entries[dest]
	if !ok || len(e.nextHops) == 0 {
		return nil, false
	}
	keys := make([]port.Key, 0, len(e.nextHops))
	for k := range e.nextHops {
		keys = append(keys, k)
	}
	port.SortKeys(keys)
	return keys, true
}

// Distance returns the current shortest distance to dest, if routed.
func (t *Table) Distance(dest port.NodeID) (int, bool) {
	e, ok := t.entries[dest]
	if !ok {
		return 0, false
	}
	return e.distance, true
}

// Destinations returns every destination with a non-empty route, sorted
// ascending for deterministic iteration.
func (t *Table) Destinations() []port.NodeID {
	out := make([]port.NodeID, 0, len(t.entries))
	for d, e := range t.entries {
		if len(e.nextHops) > 0 {
			out = append(out, d)
		}
	}
	sortNodeIDs(out)
	return out
}

// Apply incorporates one advertisement, keeping only the minimum-distance
// next hops for its destination (ties are retained, enabling ECMP).
// Returns whether the table changed as a result.
func (t *Table) Apply(adv Advertisement) bool {
	e, ok := t.entries[adv.Destination]
	switch {
	case !ok:
		t.entries[adv.Destination] = &entry{
			distance: adv.Distance,
			nextHops: map[port.Key]struct{}{adv.Via: {}},
		}
		return true
	case adv.Distance < e.distance:
		t.entries[adv.Destination] = &entry{
			distance: adv.Distance,
			nextHops: map[port.Key]struct{}{adv.Via: {}},
		}
		return true
	case adv.Distance == e.distance:
		if _, already := e.nextHops[adv.Via]; already {
			return false
		}
		e.nextHops[adv.Via] = struct{}{}
		return true
	default: // adv.Distance > e.distance: worse path, ignore
		return false
	}
}

// PurgeVia removes every next-hop entry that routed through the given
// port. Returns the set of destinations whose
// route set became empty (now unrouted) and the set whose route set
// shrank but remains non-empty.
func (t *Table) PurgeVia(via port.Key) (nowUnrouted, shrunk []port.NodeID) {
	for dest, e := range t.entries {
		if _, present := e.nextHops[via]; !present {
			continue
		}
		delete(e.nextHops, via)
		if len(e.nextHops) == 0 {
			delete(t.entries, dest)
			nowUnrouted = append(nowUnrouted, dest)
		} else {
			shrunk = append(shrunk, dest)
		}
	}
	sortNodeIDs(nowUnrouted)
	sortNodeIDs(shrunk)
	return nowUnrouted, shrunk
}

// Reset removes every route, used when a node is fully rebuilt.
func (t *Table) Reset() {
	t.entries = make(map[port.NodeID]*entry)
}

func sortNodeIDs(ids []port.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
