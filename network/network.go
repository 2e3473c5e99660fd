// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package network owns the port arena and every node in one simulated
// topology, drives the single-threaded cooperative scheduler that
// reconciles them, and exposes the controller surface
// (connect/disconnect, start/stop flow, await stability, snapshot).
package network

import (
	"fmt"
	"sort"

	"github.com/tigera/dcnetsim/energy"
	"github.com/tigera/dcnetsim/fairness"
	"github.com/tigera/dcnetsim/flow"
	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/forwarding"
	"github.com/tigera/dcnetsim/node"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/routing"
	"github.com/tigera/dcnetsim/simerr"
	"github.com/tigera/dcnetsim/stability"
	"github.com/tigera/dcnetsim/units"
)

// defaultOscillationMultiplier is the "10" in default
// runaway-oscillation bound of 10*H update cycles, H the diameter.
const defaultOscillationMultiplier = 10

// Network owns the topology's ports, nodes, and active flows, and is
// the sole driver of the cooperative scheduler: there is no per-node
// goroutine, only a dirty-node queue pumped to completion inside
// AwaitStability.
//
// Network is not safe for concurrent use: the single-threaded model it
// implements assumes one caller drives it at a time, with one executor
// standing in for a per-node actor.
type Network struct {
	arena *port.Arena
	nodes map[port.NodeID]*node.Node
	flows map[flowid.ID]*flow.NetFlow
	ids   *flowid.Allocator

	validator *stability.Validator
	energyRec *energy.Recorder

	queue  []port.NodeID
	queued map[port.NodeID]bool

	diameter int
	clock    func() units.Time

	nonConverged bool
}

// New returns an empty Network. diameter seeds the default
// runaway-oscillation bound (10*diameter update cycles per active flow,
// per AwaitStability call); pass 0 to fall back to the current node
// count each time AwaitStability runs.
func New(diameter int) *Network {
	return &Network{
		arena:     port.NewArena(),
		nodes:     make(map[port.NodeID]*node.Node),
		flows:     make(map[flowid.ID]*flow.NetFlow),
		ids:       flowid.NewAllocator(),
		validator: stability.New(),
		energyRec: energy.NewRecorder(),
		queued:    make(map[port.NodeID]bool),
		diameter:  diameter,
		clock:     func() units.Time { return 0 },
	}
}

// SetInstantSource installs the clock the controller consults for
// snapshot timestamps and energy integration.
func (net *Network) SetInstantSource(clock func() units.Time) {
	net.clock = clock
}

// AddNode constructs a node of the given kind with numPorts fixed
// ports of portSpeed capacity (ignored for node.Internet, which grows
// ports lazily instead), wires its port OnChange callbacks to the
// scheduler, and registers it.
func (net *Network) AddNode(id port.NodeID, kind node.Kind, fair fairness.Policy, numPorts int, portSpeed units.DataRate) *node.Node {
	inv := net.validator.NewInvalidator()
	mon := energy.NewMonitor(energy.LinearModel{Idle: units.Watts(5), Max: units.Watts(150)})
	n := node.New(id, kind, net.arena, routing.New(), forwarding.NewStaticECMP(), fair, inv, mon, portSpeed)
	net.nodes[id] = n

	onChange := func(key port.Key) { net.signal(key.Node) }
	if !kind.ElasticPorts() {
		for i := 0; i < numPorts; i++ {
			n.AddPort(net.arena, portSpeed, onChange)
		}
	}
	return n
}

// Node returns the node registered under id, if any.
func (net *Network) Node(id port.NodeID) (*node.Node, bool) {
	n, ok := net.nodes[id]
	return n, ok
}

// nodeIDs returns every registered node id, sorted ascending: callers
// must never iterate nodes in raw hash-map order.
func (net *Network) nodeIDs() []port.NodeID {
	out := make([]port.NodeID, 0, len(net.nodes))
	for id := range net.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connect pairs the first unused port on each of a and b (growing a
// fresh elastic port first if either is node.Internet and has none
// free), recomputes every node's routing table from scratch, and
// signals the whole network so forwarding catches up with the new
// link.
func (net *Network) Connect(a, b port.NodeID) error {
	na, ok := net.nodes[a]
	if !ok {
		return simerr.New(simerr.UnknownNode, "connect: unknown node %d", a)
	}
	nb, ok := net.nodes[b]
	if !ok {
		return simerr.New(simerr.UnknownNode, "connect: unknown node %d", b)
	}

	keyA, err := net.freePort(na)
	if err != nil {
		return err
	}
	keyB, err := net.freePort(nb)
	if err != nil {
		return err
	}

	net.arena.Connect(keyA, keyB)
	net.recomputeAllRouting()
	net.signalAll()
	return nil
}

// freePort returns n's first unconnected port, growing a new elastic
// port if n's kind supports it and none is free.
func (net *Network) freePort(n *node.Node) (port.Key, error) {
	for _, key := range n.Ports() {
		if p := net.arena.Get(key); p != nil && !p.Connected() {
			return key, nil
		}
	}
	if n.Kind().ElasticPorts() {
		onChange := func(key port.Key) { net.signal(key.Node) }
		return n.AddPort(net.arena, n.PortSpeed(), onChange), nil
	}
	return port.Key{}, fmt.Errorf("network: connect: node %d has no free port", n.ID())
}

// Disconnect unpairs the port at key from its peer (a no-op if already
// unconnected), recomputes routing, and signals the network.
func (net *Network) Disconnect(key port.Key) {
	net.arena.Disconnect(key)
	net.recomputeAllRouting()
	net.signalAll()
}

// neighbor is one hop reachable from a node: the local port used to
// reach it, and the peer node at the other end.
type neighbor struct {
	via  port.Key
	peer port.NodeID
}

// neighborsOf returns id's directly connected neighbors, sorted by the
// local port's key for deterministic BFS expansion order.
func (net *Network) neighborsOf(id port.NodeID) []neighbor {
	n, ok := net.nodes[id]
	if !ok {
		return nil
	}
	var out []neighbor
	for _, key := range n.Ports() {
		p := net.arena.Get(key)
		if p == nil {
			continue
		}
		other, connected := p.OtherEnd()
		if !connected {
			continue
		}
		out = append(out, neighbor{via: key, peer: other.Node})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].via.Less(out[j].via) })
	return out
}

// recomputeAllRouting rebuilds every node's routing table from
// scratch via a full BFS over the current port graph, rather than
// incrementally propagating route advertisements hop by hop. This is a
// deliberate simplification: it produces the exact same shortest-path,
// tie-preserving next-hop sets, at the cost of O(V*(V+E)) work per
// topology change instead of incremental convergence — acceptable
// since topology changes are rare relative to flow updates, which
// still go through the cooperative per-node signal/RunCycle path
// untouched.
func (net *Network) recomputeAllRouting() {
	for _, s := range net.nodeIDs() {
		net.recomputeRoutingForNode(s)
	}
}

func (net *Network) recomputeRoutingForNode(s port.NodeID) {
	sNode := net.nodes[s]
	sNode.RoutingTable().Reset()

	dist := map[port.NodeID]int{s: 0}
	nextHops := map[port.NodeID]map[port.Key]struct{}{}
	queue := []port.NodeID{s}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range net.neighborsOf(cur) {
			candidate := dist[cur] + 1
			existing, seen := dist[nb.peer]
			switch {
			case !seen:
				dist[nb.peer] = candidate
				nextHops[nb.peer] = firstHopSet(s, cur, nb, nextHops)
				queue = append(queue, nb.peer)
			case existing == candidate:
				for k := range firstHopSet(s, cur, nb, nextHops) {
					nextHops[nb.peer][k] = struct{}{}
				}
			}
		}
	}

	for dest, hops := range nextHops {
		if dest == s {
			continue
		}
		for via := range hops {
			sNode.RoutingTable().Apply(routing.Advertisement{Destination: dest, Distance: dist[dest], Via: via})
		}
	}
}

// firstHopSet returns the set of s's own ports that constitute a valid
// first hop toward nb.peer, given that nb.peer was just reached via an
// edge from cur: if cur is s itself, the first hop is the edge's own
// port; otherwise it's whatever first-hop set already got cur there.
func firstHopSet(s, cur port.NodeID, nb neighbor, nextHops map[port.NodeID]map[port.Key]struct{}) map[port.Key]struct{} {
	if cur == s {
		return map[port.Key]struct{}{nb.via: {}}
	}
	out := make(map[port.Key]struct{}, len(nextHops[cur]))
	for k := range nextHops[cur] {
		out[k] = struct{}{}
	}
	return out
}

// signal enqueues id for its next update cycle (a no-op if already
// queued — the per-node update channel coalesces) and marks the node
// invalid.
func (net *Network) signal(id port.NodeID) {
	n, ok := net.nodes[id]
	if !ok {
		return
	}
	n.Invalidator().Invalidate()
	if !net.queued[id] {
		net.queued[id] = true
		net.queue = append(net.queue, id)
	}
}

// signalAll enqueues every node, used after a topology change since
// routing tables were rewritten directly rather than through the
// per-node update loop.
func (net *Network) signalAll() {
	for _, id := range net.nodeIDs() {
		net.signal(id)
	}
}

// StartFlow registers a NetFlow from src to dst, injects it into src's
// generating index and dst's consuming index, and signals src so
// propagation begins. An unroutable destination is not a failure: the
// flow is still registered with throughput 0 and will converge once a
// route appears.
func (net *Network) StartFlow(src, dst port.NodeID, demand units.DataRate, onThroughputChange flow.RateObserver) (*flow.NetFlow, error) {
	srcNode, ok := net.nodes[src]
	if !ok {
		return nil, simerr.New(simerr.UnknownNode, "start_flow: unknown source node %d", src)
	}
	dstNode, ok := net.nodes[dst]
	if !ok {
		return nil, simerr.New(simerr.UnknownNode, "start_flow: unknown destination node %d", dst)
	}

	id, err := net.ids.Next()
	if err != nil {
		simerr.Fatal(simerr.FlowIDExhausted, "start_flow: %v", err)
	}

	f := flow.New(id, src, dst, demand)
	if onThroughputChange != nil {
		f.OnThroughputChange(onThroughputChange)
	}
	f.OnDemandChange(func(fl *flow.NetFlow, old, nw units.DataRate) {
		srcNode.FlowHandler().SetOutgoingDemand(fl.ID(), nw)
		net.signal(src)
	})

	net.flows[id] = f
	srcNode.FlowHandler().AddGenerating(f)
	dstNode.FlowHandler().AddConsuming(f)
	net.signal(src)
	return f, nil
}

// StopFlow sets id's demand to 0, purges it from its source's and
// destination's handlers, then signals src so throughput converges to 0
// across subsequent update cycles.
// Downstream transit nodes are not touched directly; they drop the
// flow on their own once its rate drains to 0, via refreshTransitFlows.
func (net *Network) StopFlow(id flowid.ID) error {
	f, ok := net.flows[id]
	if !ok {
		return fmt.Errorf("network: stop_flow: unknown flow %d", id)
	}
	f.SetDemand(0)
	if srcNode, ok := net.nodes[f.Transmitter()]; ok {
		srcNode.FlowHandler().Remove(id)
		net.signal(f.Transmitter())
	}
	if dstNode, ok := net.nodes[f.Destination()]; ok {
		dstNode.FlowHandler().Remove(id)
	}
	delete(net.flows, id)
	return nil
}

// GetFlow returns the active NetFlow for id, if any.
func (net *Network) GetFlow(id flowid.ID) (*flow.NetFlow, bool) {
	f, ok := net.flows[id]
	return f, ok
}

// FromInternet is sugar for StartFlow with the Internet node as
// source, a distinct entry point for traffic originating outside the
// simulated network.
func (net *Network) FromInternet(dst port.NodeID, demand units.DataRate, onThroughputChange flow.RateObserver) (*flow.NetFlow, error) {
	return net.StartFlow(port.InternetID, dst, demand, onThroughputChange)
}

// refreshTransitFlows keeps n's transit index in sync with the
// aggregate incoming rate observed across its ports, since a transit
// node learns of a flow only by traffic arriving for it (unlike
// generating/consuming, which are registered eagerly at StartFlow).
// Looked up once per flow id against the network's flow registry to
// learn its destination.
func (net *Network) refreshTransitFlows(n *node.Node) {
	h := n.FlowHandler()
	incoming := make(map[flowid.ID]units.DataRate)
	for _, key := range n.Ports() {
		p := net.arena.Get(key)
		if p == nil {
			continue
		}
		for _, id := range p.IncomingFlows() {
			incoming[id] = incoming[id].Add(p.IncomingRate(id))
		}
	}

	for _, id := range h.TransitIDs() {
		rate, present := incoming[id]
		if !present || rate.Approx(0) {
			h.Remove(id)
			continue
		}
		h.SetOutgoingDemand(id, rate)
		delete(incoming, id)
	}

	ids := make([]flowid.ID, 0, len(incoming))
	for id := range incoming {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		rate := incoming[id]
		if rate.Approx(0) {
			continue
		}
		if _, ok := h.Generating(id); ok {
			continue
		}
		if _, ok := h.Consuming(id); ok {
			continue
		}
		f, ok := net.flows[id]
		if !ok {
			continue // flow already stopped; upstream will drain to 0
		}
		h.AddTransit(id, f.Destination(), rate)
	}
}

// maxCycles returns the runaway-oscillation bound for one
// AwaitStability call.
func (net *Network) maxCycles() int {
	h := net.diameter
	if h <= 0 {
		h = len(net.nodes)
	}
	if h <= 0 {
		h = 1
	}
	flows := len(net.flows)
	if flows <= 0 {
		flows = 1
	}
	return defaultOscillationMultiplier * h * flows
}

// AwaitStability pumps the dirty-node queue to completion: pop a
// node, resync its transit index, run its update cycle, and validate
// it if nothing re-signaled it mid-cycle. Returns a wrapped
// simerr.ConvergenceTimeout if the cycle bound is exceeded; the caller
// may still take a snapshot, marked non-converged.
func (net *Network) AwaitStability() error {
	cycles := 0
	limit := net.maxCycles()

	for len(net.queue) > 0 {
		id := net.queue[0]
		net.queue = net.queue[1:]
		net.queued[id] = false

		n, ok := net.nodes[id]
		if !ok {
			continue
		}

		net.refreshTransitFlows(n)
		n.RunCycle(net.arena)

		if !net.queued[id] {
			n.Invalidator().Validate()
		}

		cycles++
		if cycles > limit {
			net.nonConverged = true
			net.queue = nil
			for k := range net.queued {
				net.queued[k] = false
			}
			net.validator.Reset()
			return simerr.New(simerr.ConvergenceTimeout,
				"await_stability: exceeded %d update cycles without converging", limit)
		}
	}

	net.validator.AwaitStability()
	net.nonConverged = false
	return nil
}
