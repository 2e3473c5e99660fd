// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

package telemetry

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"github.com/tigera/dcnetsim/network"
	"github.com/tigera/dcnetsim/units"
)

// snapshotDoc is the wire shape one network.Snapshot is flattened into:
// one JSON document per node, since a telemetry consumer indexes and
// queries per-node records rather than whole-network ones.
type snapshotDoc struct {
	TimestampMs int64   `json:"timestamp_ms"`
	NodeID      int64   `json:"node_id"`
	Converged   bool    `json:"converged"`

	IncomingFlows   int `json:"incoming_flows"`
	OutgoingFlows   int `json:"outgoing_flows"`
	GeneratingFlows int `json:"generating_flows"`
	ConsumingFlows  int `json:"consuming_flows"`

	MinFlowThroughputRatio float64 `json:"min_flow_throughput_ratio"`
	MaxFlowThroughputRatio float64 `json:"max_flow_throughput_ratio"`
	AvgFlowThroughputRatio float64 `json:"avg_flow_throughput_ratio"`

	NodeThroughputMbps  float64 `json:"node_throughput_mbps"`
	NodeThroughputRatio float64 `json:"node_throughput_ratio"`

	PowerDrawWatts      float64 `json:"power_draw_watts"`
	EnergyConsumedJoule float64 `json:"energy_consumed_joule"`
}

func docsFromSnapshot(snap *network.Snapshot) []snapshotDoc {
	docs := make([]snapshotDoc, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		docs = append(docs, snapshotDoc{
			TimestampMs:            n.TimestampMs,
			NodeID:                 int64(n.NodeID),
			Converged:              snap.Converged,
			IncomingFlows:          n.IncomingFlows,
			OutgoingFlows:          n.OutgoingFlows,
			GeneratingFlows:        n.GeneratingFlows,
			ConsumingFlows:         n.ConsumingFlows,
			MinFlowThroughputRatio: ratioOrZero(n.MinFlowThroughputRatio),
			MaxFlowThroughputRatio: ratioOrZero(n.MaxFlowThroughputRatio),
			AvgFlowThroughputRatio: ratioOrZero(n.AvgFlowThroughputRatio),
			NodeThroughputMbps:     n.NodeThroughputMbps,
			NodeThroughputRatio:    ratioOrZero(n.NodeThroughputRatio),
			PowerDrawWatts:         n.PowerDrawWatts,
			EnergyConsumedJoule:    n.EnergyConsumedJoule,
		})
	}
	return docs
}

// ratioOrZero flattens a units.Ratio into a plain float64, mapping the
// "no consuming flows yet" null ratio to 0 rather than propagating a
// NaN into the wire format.
func ratioOrZero(r units.Ratio) float64 {
	if !r.Valid {
		return 0
	}
	return r.Value
}

// MarshalEasyJSON implements easyjson.Marshaler by hand, the pattern
// the easyjson generator would otherwise produce for snapshotDoc —
// written directly since the generator isn't run as part of this
// build.
func (d snapshotDoc) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"timestamp_ms":`)
	w.Int64(d.TimestampMs)
	w.RawString(`,"node_id":`)
	w.Int64(d.NodeID)
	w.RawString(`,"converged":`)
	w.Bool(d.Converged)
	w.RawString(`,"incoming_flows":`)
	w.Int(d.IncomingFlows)
	w.RawString(`,"outgoing_flows":`)
	w.Int(d.OutgoingFlows)
	w.RawString(`,"generating_flows":`)
	w.Int(d.GeneratingFlows)
	w.RawString(`,"consuming_flows":`)
	w.Int(d.ConsumingFlows)
	w.RawString(`,"min_flow_throughput_ratio":`)
	w.Float64(d.MinFlowThroughputRatio)
	w.RawString(`,"max_flow_throughput_ratio":`)
	w.Float64(d.MaxFlowThroughputRatio)
	w.RawString(`,"avg_flow_throughput_ratio":`)
	w.Float64(d.AvgFlowThroughputRatio)
	w.RawString(`,"node_throughput_mbps":`)
	w.Float64(d.NodeThroughputMbps)
	w.RawString(`,"node_throughput_ratio":`)
	w.Float64(d.NodeThroughputRatio)
	w.RawString(`,"power_draw_watts":`)
	w.Float64(d.PowerDrawWatts)
	w.RawString(`,"energy_consumed_joule":`)
	w.Float64(d.EnergyConsumedJoule)
	w.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler, the read-side
// counterpart of MarshalEasyJSON. encoding/json does not call it;
// json.Unmarshal decodes a snapshotDoc through its struct tags.
func (d *snapshotDoc) UnmarshalEasyJSON(l *jlexer.Lexer) {
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "timestamp_ms":
			d.TimestampMs = l.Int64()
		case "node_id":
			d.NodeID = l.Int64()
		case "converged":
			d.Converged = l.Bool()
		case "incoming_flows":
			d.IncomingFlows = l.Int()
		case "outgoing_flows":
			d.OutgoingFlows = l.Int()
		case "generating_flows":
			d.GeneratingFlows = l.Int()
		case "consuming_flows":
			d.ConsumingFlows = l.Int()
		case "min_flow_throughput_ratio":
			d.MinFlowThroughputRatio = l.Float64()
		case "max_flow_throughput_ratio":
			d.MaxFlowThroughputRatio = l.Float64()
		case "avg_flow_throughput_ratio":
			d.AvgFlowThroughputRatio = l.Float64()
		case "node_throughput_mbps":
			d.NodeThroughputMbps = l.Float64()
		case "node_throughput_ratio":
			d.NodeThroughputRatio = l.Float64()
		case "power_draw_watts":
			d.PowerDrawWatts = l.Float64()
		case "energy_consumed_joule":
			d.EnergyConsumedJoule = l.Float64()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

// MarshalJSON satisfies encoding/json.Marshaler via easyjson.Marshal,
// so a snapshotDoc can still flow through ordinary json.Marshal calls
// elsewhere (e.g. in a future sink) without every caller needing to
// know about jwriter.
func (d snapshotDoc) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(d)
}

var _ easyjson.Marshaler = snapshotDoc{}
var _ easyjson.Unmarshaler = (*snapshotDoc)(nil)
