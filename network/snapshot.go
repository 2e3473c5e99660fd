// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

package network

import (
	"sort"

	"github.com/tigera/dcnetsim/node"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/units"
)

// NodeSnapshot is one node's read-only telemetry record, the per-node
// shape exported to telemetry sinks.
type NodeSnapshot struct {
	TimestampMs int64
	NodeID      port.NodeID

	IncomingFlows  int
	OutgoingFlows  int
	GeneratingFlows int
	ConsumingFlows int

	MinFlowThroughputRatio units.Ratio
	MaxFlowThroughputRatio units.Ratio
	AvgFlowThroughputRatio units.Ratio

	NodeThroughputMbps float64
	NodeThroughputRatio units.Ratio

	PowerDrawWatts    float64
	EnergyConsumedJoule float64
}

// Snapshot is an immutable, network-wide telemetry read, produced
// inside a CheckIsStableWhile region so no concurrent invalidation can
// race the read.
type Snapshot struct {
	TimestampMs int64
	Nodes       []NodeSnapshot
	Converged   bool
}

// Snapshot runs AwaitStability, then builds an immutable NodeSnapshot
// per node inside a stable-while guard region. If AwaitStability times
// out, the snapshot is still produced (marked Converged = false) per
// "snapshot still available but marked non-converged".
func (net *Network) Snapshot() (*Snapshot, error) {
	awaitErr := net.AwaitStability()

	now := net.clock()
	var out *Snapshot
	net.validator.CheckIsStableWhile(func() {
		out = net.buildSnapshot(now)
	})
	out.Converged = awaitErr == nil
	return out, awaitErr
}

func (net *Network) buildSnapshot(now units.Time) *Snapshot {
	snap := &Snapshot{TimestampMs: int64(now.Seconds() * 1000)}
	for _, id := range net.nodeIDs() {
		n := net.nodes[id]
		snap.Nodes = append(snap.Nodes, net.buildNodeSnapshot(n, now))
	}
	return snap
}

func (net *Network) buildNodeSnapshot(n *node.Node, now units.Time) NodeSnapshot {
	h := n.FlowHandler()

	incoming := make(map[uint64]struct{})
	outgoing := make(map[uint64]struct{})
	var totalOut, totalCapacity units.DataRate
	for _, key := range n.Ports() {
		p := net.arena.Get(key)
		if p == nil {
			continue
		}
		for _, id := range p.IncomingFlows() {
			incoming[uint64(id)] = struct{}{}
		}
		for _, id := range p.OutgoingFlows() {
			outgoing[uint64(id)] = struct{}{}
		}
		if p.Connected() {
			totalOut = totalOut.Add(p.SumOutgoing())
			totalCapacity = totalCapacity.Add(p.MaxSpeed())
		}
	}

	ratios := make([]units.Ratio, 0, len(h.AllConsumingIDs()))
	for _, id := range h.AllConsumingIDs() {
		f, ok := h.Consuming(id)
		if !ok {
			continue
		}
		if r := units.RatioOf(f.Throughput(), f.Demand()); r.Valid {
			ratios = append(ratios, r)
		}
	}

	mon := n.EnergyMonitor()
	power := mon.CurrentPower()
	net.energyRec.Sample(n.ID(), power, now)

	return NodeSnapshot{
		TimestampMs:         int64(now.Seconds() * 1000),
		NodeID:              n.ID(),
		IncomingFlows:       len(incoming),
		OutgoingFlows:       len(outgoing),
		GeneratingFlows:     len(h.GeneratingIDs()),
		ConsumingFlows:      len(h.AllConsumingIDs()),
		MinFlowThroughputRatio: minRatio(ratios),
		MaxFlowThroughputRatio: maxRatio(ratios),
		AvgFlowThroughputRatio: avgRatio(ratios),
		NodeThroughputMbps:  totalOut.Mbps(),
		NodeThroughputRatio: units.RatioOf(totalOut, totalCapacity),
		PowerDrawWatts:      float64(power),
		EnergyConsumedJoule: float64(net.energyRec.Total(n.ID())),
	}
}

func minRatio(rs []units.Ratio) units.Ratio {
	if len(rs) == 0 {
		return units.NullRatio
	}
	sorted := append([]units.Ratio(nil), rs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })
	return sorted[0]
}

func maxRatio(rs []units.Ratio) units.Ratio {
	if len(rs) == 0 {
		return units.NullRatio
	}
	sorted := append([]units.Ratio(nil), rs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	return sorted[0]
}

func avgRatio(rs []units.Ratio) units.Ratio {
	if len(rs) == 0 {
		return units.NullRatio
	}
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return units.Ratio{Value: sum / float64(len(rs)), Valid: true}
}
