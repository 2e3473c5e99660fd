// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package port models one side of a full-duplex link. Ports are held
// in a Network-owned Arena and addressed by Key rather than pointer, so
// that the inherently cyclic port<->peer-port relationship
// never needs an owning pointer cycle.
package port

import (
	"sort"

	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/simerr"
	"github.com/tigera/dcnetsim/units"
)

// NodeID is an opaque integer identifying a node, unique within a
// Network. It is declared here (rather than in a "node" package the
// low-level port/routing layers would then have to import) to avoid an
// import cycle; package node re-exports it as node.ID.
type NodeID int64

// InternetID is the distinguished NodeID of the abstract internet node.
const InternetID NodeID = -1

// Key addresses a Port within an Arena: the owning node plus the port's
// index on that node.
type Key struct {
	Node  NodeID
	Index int
}

// Less imposes a total order over Keys, by NodeID then Index, used
// wherever next-hop or port sets must iterate in a stable, reproducible
// order.
func (k Key) Less(o Key) bool {
	if k.Node != o.Node {
		return k.Node < o.Node
	}
	return k.Index < o.Index
}

// SortKeys sorts a slice of Keys in the canonical order.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// OnChange is invoked synchronously whenever a peer's write changes a
// Port's incoming rate map, so the owning Node can signal its update
// channel.
type OnChange func(key Key)

// Port is one side of a link, owned by exactly one node.
type Port struct {
	key      Key
	maxSpeed units.DataRate
	otherEnd *Key

	outgoing map[flowid.ID]units.DataRate
	incoming map[flowid.ID]units.DataRate

	// arrivalOrder records, per flow, the order in which it first
	// appeared at this port, for FirstComeFirstServed's "arrival order
	// is stable across recomputations" requirement.
	arrivalOrder   map[flowid.ID]int
	arrivalCounter int

	onChange OnChange
}

// New constructs an unconnected Port with the given capacity.
func New(key Key, maxSpeed units.DataRate, onChange OnChange) *Port {
	return &Port{
		key:          key,
		maxSpeed:     maxSpeed,
		outgoing:     make(map[flowid.ID]units.DataRate),
		incoming:     make(map[flowid.ID]units.DataRate),
		arrivalOrder: make(map[flowid.ID]int),
		onChange:     onChange,
	}
}

// Key returns this port's arena key.
func (p *Port) Key() Key { return p.key }

// MaxSpeed returns the link capacity.
func (p *Port) MaxSpeed() units.DataRate { return p.maxSpeed }

// SetMaxSpeed updates link capacity (used for link-degradation scenarios
// per open question on capacity shrink).
func (p *Port) SetMaxSpeed(r units.DataRate) { p.maxSpeed = r }

// OtherEnd returns the peer port's key and whether one is connected.
func (p *Port) OtherEnd() (Key, bool) {
	if p.otherEnd == nil {
		return Key{}, false
	}
	return *p.otherEnd, true
}

// Connected reports whether this port has a peer.
func (p *Port) Connected() bool { return p.otherEnd != nil }

// connect pairs this port with peer. Called only by Arena.Connect.
func (p *Port) connect(peer Key) { p.otherEnd = &peer }

// disconnect clears the peer link. Called only by Arena.Disconnect.
func (p *Port) disconnect() { p.otherEnd = nil }

// OutgoingRate returns this port's current outgoing rate for flow f.
func (p *Port) OutgoingRate(f flowid.ID) units.DataRate { return p.outgoing[f] }

// IncomingRate returns this port's current incoming rate for flow f.
func (p *Port) IncomingRate(f flowid.ID) units.DataRate { return p.incoming[f] }

// OutgoingFlows returns the set of flows with a nonzero (or tracked)
// outgoing rate on this port.
func (p *Port) OutgoingFlows() []flowid.ID { return flowIDs(p.outgoing) }

// IncomingFlows returns the set of flows with a tracked incoming rate.
func (p *Port) IncomingFlows() []flowid.ID { return flowIDs(p.incoming) }

func flowIDs(m map[flowid.ID]units.DataRate) []flowid.ID {
	out := make([]flowid.ID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SumOutgoing returns Σ outgoing_rate_of.
func (p *Port) SumOutgoing() units.DataRate {
	var sum units.DataRate
	for _, r := range p.outgoing {
		sum += r
	}
	return sum
}

// SumIncoming returns Σ incoming_rate_of.
func (p *Port) SumIncoming() units.DataRate {
	var sum units.DataRate
	for _, r := range p.incoming {
		sum += r
	}
	return sum
}

// ResidualOutCapacity is max_speed − Σ outgoing_rate_of.
func (p *Port) ResidualOutCapacity() units.DataRate {
	return p.maxSpeed.Sub(p.SumOutgoing())
}

// ResidualInCapacity is max_speed − Σ incoming_rate_of.
func (p *Port) ResidualInCapacity() units.DataRate {
	return p.maxSpeed.Sub(p.SumIncoming())
}

// ArrivalOrder returns the order in which flow f first arrived at this
// port (lower is earlier), and whether it has arrived at all. Used by
// the FirstComeFirstServed fairness policy.
func (p *Port) ArrivalOrder(f flowid.ID) (int, bool) {
	n, ok := p.arrivalOrder[f]
	return n, ok
}

// noteArrival records f's first appearance at this port, if not already
// recorded. Idempotent so recomputation doesn't reorder arrivals.
func (p *Port) noteArrival(f flowid.ID) {
	if _, ok := p.arrivalOrder[f]; ok {
		return
	}
	p.arrivalOrder[f] = p.arrivalCounter
	p.arrivalCounter++
}

// forgetArrival drops f's arrival-order bookkeeping, called when a flow
// is fully torn down on this port.
func (p *Port) forgetArrival(f flowid.ID) {
	delete(p.arrivalOrder, f)
}

// setOutgoingRate is the unchecked local half of SetOutgoingRate: it
// mutates only this port's outgoing map and arrival bookkeeping,
// without touching the peer. Exported via Arena.SetOutgoingRate, which
// additionally propagates to the peer's incoming map.
func (p *Port) setOutgoingRate(f flowid.ID, rate units.DataRate) {
	if rate.Approx(0) {
		delete(p.outgoing, f)
		p.forgetArrival(f)
		return
	}
	p.outgoing[f] = rate
	p.noteArrival(f)
}

// setIncomingRate is the unchecked local mutation of the incoming map,
// invoked on a port when its peer writes to its own outgoing map.
func (p *Port) setIncomingRate(f flowid.ID, rate units.DataRate) {
	if rate.Approx(0) {
		delete(p.incoming, f)
		return
	}
	p.incoming[f] = rate
}

// wouldExceedCapacity reports whether setting f's outgoing rate to
// newRate would push Σ outgoing_rate_of past max_speed.
func (p *Port) wouldExceedCapacity(f flowid.ID, newRate units.DataRate) bool {
	sum := p.SumOutgoing() - p.outgoing[f] + newRate
	return sum.ApproxGreater(p.maxSpeed)
}

// checkCapacity panics with simerr.CapacityExceeded if writing newRate
// for flow f would violate the port's capacity invariant. Callers are
// expected to have already saturated demand via a FairnessPolicy, so
// this is a last-line internal-invariant assertion, not a retryable
// error.
func (p *Port) checkCapacity(f flowid.ID, newRate units.DataRate) {
	if p.wouldExceedCapacity(f, newRate) {
		simerr.Fatal(simerr.CapacityExceeded,
			"port %+v: flow %d rate %v would exceed max_speed %v", p.key, f, newRate, p.maxSpeed)
	}
}
