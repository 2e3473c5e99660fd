// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package node implements the per-node update cycle: the
// forwarding-then-fairness recomputation that a Network drives, once per
// signal, for every node whose local state may have changed.
package node

import (
	"sort"

	"github.com/tigera/dcnetsim/energy"
	"github.com/tigera/dcnetsim/fairness"
	"github.com/tigera/dcnetsim/flow"
	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/forwarding"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/routing"
	"github.com/tigera/dcnetsim/stability"
	"github.com/tigera/dcnetsim/units"
)

// ID re-exports port.NodeID so callers outside the low-level layers
// don't need to import package port just to name a node.
type ID = port.NodeID

// Kind distinguishes the handful of node roles a topology can name.
// Rather than separate struct types per role, a single Node carries a
// Kind and consults it where behavior differs (which operations are
// legal, whether ports grow elastically).
type Kind int

const (
	// Host can both generate and consume flows, and has a fixed port count.
	Host Kind = iota
	// Switch forwards transit traffic only; it neither generates nor
	// consumes flows.
	Switch
	// CoreSwitch is a Switch distinguished only for topology/telemetry
	// labeling purposes; it behaves identically to Switch in the update
	// cycle.
	CoreSwitch
	// Internet is the distinguished abstract node representing traffic
	// to/from outside the simulated network. It grows a fresh port of
	// portSpeed capacity on demand rather than being provisioned with a
	// fixed count.
	Internet
)

// String names the kind, used in telemetry and error messages.
func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case Switch:
		return "switch"
	case CoreSwitch:
		return "core-switch"
	case Internet:
		return "internet"
	default:
		return "unknown"
	}
}

// CanGenerate reports whether this kind of node may source flows.
func (k Kind) CanGenerate() bool { return k == Host || k == Internet }

// CanConsume reports whether this kind of node may sink flows.
func (k Kind) CanConsume() bool { return k == Host || k == Internet }

// ElasticPorts reports whether the node grows new ports on demand
// rather than being provisioned with a fixed set at construction.
func (k Kind) ElasticPorts() bool { return k == Internet }

// Node is one simulated network element: a set of ports, a routing
// table, a per-node flow index, and the forwarding/fairness policies
// that drive its update cycle.
type Node struct {
	id    ID
	kind  Kind
	arena *port.Arena

	ports     []port.Key
	portSpeed units.DataRate // capacity given to newly grown elastic ports

	table   *routing.Table
	flows   *flow.Handler
	forward forwarding.Policy
	fair    fairness.Policy

	inv    *stability.Invalidator
	energy *energy.Monitor

	// priorCapacity records each port's max_speed as of the previous
	// RunCycle, so MaxMin's no-forced-reduction rule can detect an
	// actual capacity shrink versus a same-capacity recompute.
	priorCapacity map[port.Key]units.DataRate
}

// New constructs a Node with no ports yet attached; call AddPort (or
// rely on topology construction) before Connect-ing it.
func New(id ID, kind Kind, arena *port.Arena, table *routing.Table, fwd forwarding.Policy, fair fairness.Policy, inv *stability.Invalidator, mon *energy.Monitor, portSpeed units.DataRate) *Node {
	return &Node{
		id:            id,
		kind:          kind,
		arena:         arena,
		portSpeed:     portSpeed,
		table:         table,
		flows:         flow.NewHandler(),
		forward:       fwd,
		fair:          fair,
		inv:           inv,
		energy:        mon,
		priorCapacity: make(map[port.Key]units.DataRate),
	}
}

// ID returns the node's identifier.
func (n *Node) ID() ID { return n.id }

// Kind returns the node's role.
func (n *Node) Kind() Kind { return n.kind }

// Ports returns the node's current port keys, in index order.
func (n *Node) Ports() []port.Key {
	out := make([]port.Key, len(n.ports))
	copy(out, n.ports)
	return out
}

// RoutingTable returns the node's routing table, mutated directly by
// Network during route recomputation.
func (n *Node) RoutingTable() *routing.Table { return n.table }

// FlowHandler returns the node's per-flow index.
func (n *Node) FlowHandler() *flow.Handler { return n.flows }

// EnergyMonitor returns the node's power-draw monitor.
func (n *Node) EnergyMonitor() *energy.Monitor { return n.energy }

// Invalidator returns the node's stability invalidator, driven by
// Network's scheduler around calls to RunCycle.
func (n *Node) Invalidator() *stability.Invalidator { return n.inv }

// AddPort allocates and registers a new port for this node at the next
// free index, with the given max speed, and returns its key. Used both
// by topology construction (fixed-port nodes) and by Network when an
// elastic-port node (Internet) needs additional capacity.
func (n *Node) AddPort(arena *port.Arena, maxSpeed units.DataRate, onChange port.OnChange) port.Key {
	key := port.Key{Node: n.id, Index: len(n.ports)}
	p := port.New(key, maxSpeed, onChange)
	arena.Add(p)
	n.ports = append(n.ports, key)
	n.priorCapacity[key] = maxSpeed
	return key
}

// PortSpeed returns the capacity newly grown elastic ports receive.
func (n *Node) PortSpeed() units.DataRate { return n.portSpeed }

// RunCycle performs one pass of the node update loop: snapshot
// intended per-port demand via the forwarding policy, reconcile each
// port's contending demand via the fairness policy, write any changed
// rates (propagating to peers), update destination-side flow
// throughput, and notify the energy monitor. Suspend-on-signal and the
// stability invalidate/validate bracket are the caller's (Network's
// scheduler) responsibility.
func (n *Node) RunCycle(arena *port.Arena) {
	portDemand := n.snapshotPerPortDemand()
	n.reconcileAndWrite(arena, portDemand)
	n.updateDestinationThroughput(arena)
	n.notifyEnergy(arena)
}

// snapshotPerPortDemand implements step 2: for every flow this node
// must forward (generating ∪ transit ∪ outgoing), ask the forwarding
// policy how it splits across this node's current next hops, and
// accumulate the result per port.
func (n *Node) snapshotPerPortDemand() map[port.Key]map[flowid.ID]units.DataRate {
	out := make(map[port.Key]map[flowid.ID]units.DataRate)
	for _, id := range n.flows.AllOutgoingIDs() {
		of, ok := n.flows.Outgoing(id)
		if !ok {
			continue
		}
		split := n.forward.Split(n.table, of.Destination, of.Demand)
		for key, demand := range split {
			if out[key] == nil {
				out[key] = make(map[flowid.ID]units.DataRate)
			}
			out[key][id] = demand
		}
	}
	return out
}

// reconcileAndWrite implements steps 3-4: per outgoing port, run the
// fairness policy over the port's contending demand and max_speed, then
// write any allocation that changed by more than units.Epsilon.
func (n *Node) reconcileAndWrite(arena *port.Arena, portDemand map[port.Key]map[flowid.ID]units.DataRate) {
	for _, key := range n.ports {
		p := arena.Get(key)
		if p == nil || !p.Connected() {
			continue
		}
		demands := portDemand[key]

		in := fairness.Input{
			Capacity:      p.MaxSpeed(),
			PriorCapacity: n.priorCapacity[key],
			Prior:         currentOutgoingRates(p),
			ArrivalOrder:  p.ArrivalOrder,
		}
		for id, d := range demands {
			in.Demands = append(in.Demands, fairness.Demand{Flow: id, Demand: d})
		}
		sort.Slice(in.Demands, func(i, j int) bool { return in.Demands[i].Flow < in.Demands[j].Flow })

		allocations := n.fair.Allocate(in)

		for _, id := range unionFlowIDs(p.OutgoingFlows(), allocations) {
			newRate := allocations[id]
			if p.OutgoingRate(id).Approx(newRate) {
				continue
			}
			arena.SetOutgoingRate(key, id, newRate)
		}

		n.priorCapacity[key] = p.MaxSpeed()
	}
}

// updateDestinationThroughput implements step 5: for every flow this
// node consumes, the realized throughput is the sum of its incoming
// rate across this node's ports — upstream fairness has already
// applied the bottleneck, so this is the path's delivered rate.
func (n *Node) updateDestinationThroughput(arena *port.Arena) {
	for _, id := range n.flows.AllConsumingIDs() {
		f, ok := n.flows.Consuming(id)
		if !ok {
			continue
		}
		var total units.DataRate
		for _, key := range n.ports {
			p := arena.Get(key)
			if p == nil {
				continue
			}
			total = total.Add(p.IncomingRate(id))
		}
		f.SetThroughput(total)
	}
}

// notifyEnergy implements step 6's energy half: recompute this node's
// instantaneous power draw from current port utilization.
func (n *Node) notifyEnergy(arena *port.Arena) {
	if n.energy == nil {
		return
	}
	util := make([]float64, 0, len(n.ports))
	active := make(map[flowid.ID]struct{})
	for _, key := range n.ports {
		p := arena.Get(key)
		if p == nil || !p.Connected() {
			continue
		}
		speed := p.MaxSpeed()
		if speed.Approx(0) {
			util = append(util, 0)
		} else {
			u := (float64(p.SumOutgoing()) + float64(p.SumIncoming())) / (2 * float64(speed))
			util = append(util, u)
		}
		for _, id := range p.OutgoingFlows() {
			active[id] = struct{}{}
		}
		for _, id := range p.IncomingFlows() {
			active[id] = struct{}{}
		}
	}
	n.energy.Notify(energy.State{Node: n.id, PortUtilization: util, ActiveFlows: len(active)})
}

func currentOutgoingRates(p *port.Port) map[flowid.ID]units.DataRate {
	out := make(map[flowid.ID]units.DataRate)
	for _, id := range p.OutgoingFlows() {
		out[id] = p.OutgoingRate(id)
	}
	return out
}

// unionFlowIDs merges a port's current outgoing flow ids with the keys
// of a fresh allocation map, sorted ascending, so that a flow dropped
// entirely from this cycle's allocation (zero demand) still gets its
// rate zeroed rather than left stale.
func unionFlowIDs(current []flowid.ID, allocations map[flowid.ID]units.DataRate) []flowid.ID {
	seen := make(map[flowid.ID]struct{}, len(current)+len(allocations))
	for _, id := range current {
		seen[id] = struct{}{}
	}
	for id := range allocations {
		seen[id] = struct{}{}
	}
	out := make([]flowid.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
