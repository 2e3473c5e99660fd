// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package flow defines the end-to-end NetFlow object and the per-node
// FlowHandler registry that indexes flows by their relationship to the
// owning node.
package flow

import (
	"sort"
	"sync"

	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/units"
)

// RateObserver is notified synchronously whenever a NetFlow's demand or
// throughput changes. Observers must not mutate the network from
// inside the callback.
type RateObserver func(f *NetFlow, oldRate, newRate units.DataRate)

// NetFlow is the end-to-end, rate-based logical connection between a
// transmitter and a destination.
type NetFlow struct {
	mu sync.Mutex

	id          flowid.ID
	transmitter port.NodeID
	destination port.NodeID

	demand     units.DataRate
	throughput units.DataRate

	demandHandlers     []RateObserver
	throughputHandlers []RateObserver
}

// New constructs a NetFlow with the given initial demand and zero
// throughput (throughput is only ever set by the destination node as
// propagation proceeds).
func New(id flowid.ID, transmitter, destination port.NodeID, demand units.DataRate) *NetFlow {
	return &NetFlow{
		id:          id,
		transmitter: transmitter,
		destination: destination,
		demand:      demand,
	}
}

// ID returns the flow's identifier.
func (f *NetFlow) ID() flowid.ID { return f.id }

// Transmitter returns the flow's source node.
func (f *NetFlow) Transmitter() port.NodeID { return f.transmitter }

// Destination returns the flow's destination node.
func (f *NetFlow) Destination() port.NodeID { return f.destination }

// Demand returns the current requested send rate.
func (f *NetFlow) Demand() units.DataRate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.demand
}

// Throughput returns the current realized delivery rate.
func (f *NetFlow) Throughput() units.DataRate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.throughput
}

// OnDemandChange registers an observer notified when demand changes.
func (f *NetFlow) OnDemandChange(o RateObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.demandHandlers = append(f.demandHandlers, o)
}

// OnThroughputChange registers an observer notified when throughput
// changes.
func (f *NetFlow) OnThroughputChange(o RateObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throughputHandlers = append(f.throughputHandlers, o)
}

// SetDemand updates the flow's demand (only the transmitting node's
// workload driver should call this) and synchronously fires demand
// observers if the value changed by more than units.Epsilon.
func (f *NetFlow) SetDemand(newDemand units.DataRate) {
	f.mu.Lock()
	old := f.demand
	if old.Approx(newDemand) {
		f.mu.Unlock()
		return
	}
	f.demand = newDemand
	handlers := append([]RateObserver(nil), f.demandHandlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(f, old, newDemand)
	}
}

// SetThroughput updates the flow's realized throughput (only the
// destination node's update loop should call this) and synchronously
// fires throughput observers if the value changed by more than
// units.Epsilon.
func (f *NetFlow) SetThroughput(newThroughput units.DataRate) {
	f.mu.Lock()
	old := f.throughput
	if old.Approx(newThroughput) {
		f.mu.Unlock()
		return
	}
	f.throughput = newThroughput
	handlers := append([]RateObserver(nil), f.throughputHandlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(f, old, newThroughput)
	}
}

// OutFlow is the per-node aggregate of one flow's demand as it departs
// a node, independent of how many outgoing ports or next hops it is
// split across.
type OutFlow struct {
	FlowID      flowid.ID
	Destination port.NodeID
	Demand      units.DataRate
}

// Handler is the per-node registry of a node's generating, consuming,
// outgoing, and transit flows.
type Handler struct {
	generating map[flowid.ID]*NetFlow
	consuming  map[flowid.ID]*NetFlow
	outgoing   map[flowid.ID]*OutFlow
	transit    map[flowid.ID]struct{}
}

// NewHandler returns an empty per-node FlowHandler.
func NewHandler() *Handler {
	return &Handler{
		generating: make(map[flowid.ID]*NetFlow),
		consuming:  make(map[flowid.ID]*NetFlow),
		outgoing:   make(map[flowid.ID]*OutFlow),
		transit:    make(map[flowid.ID]struct{}),
	}
}

// AddGenerating registers f as sourced by this node.
func (h *Handler) AddGenerating(f *NetFlow) {
	h.generating[f.ID()] = f
	h.outgoing[f.ID()] = &OutFlow{FlowID: f.ID(), Destination: f.Destination(), Demand: f.Demand()}
}

// AddConsuming registers f as destined for this node.
func (h *Handler) AddConsuming(f *NetFlow) {
	h.consuming[f.ID()] = f
}

// AddTransit registers id as passing through this node (neither source
// nor destination) and sets its destination and outgoing aggregate
// demand, looked up from the network's flow registry the first time a
// previously-unseen flow's traffic arrives at this node.
func (h *Handler) AddTransit(id flowid.ID, destination port.NodeID, demand units.DataRate) {
	h.transit[id] = struct{}{}
	h.outgoing[id] = &OutFlow{FlowID: id, Destination: destination, Demand: demand}
}

// Generating returns the NetFlow this node sources for id, if any.
func (h *Handler) Generating(id flowid.ID) (*NetFlow, bool) {
	f, ok := h.generating[id]
	return f, ok
}

// Consuming returns the NetFlow this node sinks for id, if any.
func (h *Handler) Consuming(id flowid.ID) (*NetFlow, bool) {
	f, ok := h.consuming[id]
	return f, ok
}

// AllConsumingIDs returns the ids of every flow this node sinks,
// sorted ascending.
func (h *Handler) AllConsumingIDs() []flowid.ID {
	out := make([]flowid.ID, 0, len(h.consuming))
	for id := range h.consuming {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Outgoing returns the per-node outgoing aggregate for id, if any.
func (h *Handler) Outgoing(id flowid.ID) (*OutFlow, bool) {
	o, ok := h.outgoing[id]
	return o, ok
}

// IsTransit reports whether id is a transit flow at this node.
func (h *Handler) IsTransit(id flowid.ID) bool {
	_, ok := h.transit[id]
	return ok
}

// GeneratingIDs returns the ids of every flow sourced at this node,
// sorted ascending.
func (h *Handler) GeneratingIDs() []flowid.ID {
	out := make([]flowid.ID, 0, len(h.generating))
	for id := range h.generating {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransitIDs returns the ids of every flow currently transiting this
// node, sorted ascending.
func (h *Handler) TransitIDs() []flowid.ID {
	out := make([]flowid.ID, 0, len(h.transit))
	for id := range h.transit {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetOutgoingDemand updates the recorded outgoing demand for id, used
// when a generating or transit flow's upstream demand changes.
func (h *Handler) SetOutgoingDemand(id flowid.ID, demand units.DataRate) {
	if o, ok := h.outgoing[id]; ok {
		o.Demand = demand
	}
}

// AllOutgoingIDs returns generating ∪ transit ∪ outgoing flow ids,
// sorted ascending, i.e. every flow this node must forward.
func (h *Handler) AllOutgoingIDs() []flowid.ID {
	seen := make(map[flowid.ID]struct{}, len(h.outgoing))
	for id := range h.outgoing {
		seen[id] = struct{}{}
	}
	for id := range h.generating {
		seen[id] = struct{}{}
	}
	for id := range h.transit {
		seen[id] = struct{}{}
	}
	out := make([]flowid.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Remove purges every index entry for id, used when a flow is stopped
// or its destination becomes unreachable.
func (h *Handler) Remove(id flowid.ID) {
	delete(h.generating, id)
	delete(h.consuming, id)
	delete(h.outgoing, id)
	delete(h.transit, id)
}
