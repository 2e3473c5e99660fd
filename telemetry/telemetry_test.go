package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tigera/dcnetsim/network"
	"github.com/tigera/dcnetsim/units"
)

func sampleSnapshot() *network.Snapshot {
	return &network.Snapshot{
		TimestampMs: 1000,
		Converged:   true,
		Nodes: []network.NodeSnapshot{
			{
				TimestampMs:            1000,
				NodeID:                 7,
				IncomingFlows:          2,
				OutgoingFlows:          3,
				GeneratingFlows:        1,
				ConsumingFlows:         1,
				MinFlowThroughputRatio: units.Ratio{Value: 0.5, Valid: true},
				MaxFlowThroughputRatio: units.Ratio{Value: 1.0, Valid: true},
				AvgFlowThroughputRatio: units.Ratio{Value: 0.75, Valid: true},
				NodeThroughputMbps:     12.5,
				NodeThroughputRatio:    units.Ratio{Value: 0.4, Valid: true},
				PowerDrawWatts:         42,
				EnergyConsumedJoule:    1234,
			},
		},
	}
}

func TestDocsFromSnapshotFlattensEachNode(t *testing.T) {
	docs := docsFromSnapshot(sampleSnapshot())
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	d := docs[0]
	if d.NodeID != 7 || !d.Converged {
		t.Fatalf("unexpected doc: %+v", d)
	}
	if d.AvgFlowThroughputRatio != 0.75 {
		t.Fatalf("expected avg ratio 0.75, got %v", d.AvgFlowThroughputRatio)
	}
}

func TestDocsFromSnapshotNullRatioBecomesZero(t *testing.T) {
	snap := sampleSnapshot()
	snap.Nodes[0].MinFlowThroughputRatio = units.NullRatio
	docs := docsFromSnapshot(snap)
	if docs[0].MinFlowThroughputRatio != 0 {
		t.Fatalf("expected null ratio to flatten to 0, got %v", docs[0].MinFlowThroughputRatio)
	}
}

func TestSnapshotDocEasyJSONRoundTrip(t *testing.T) {
	docs := docsFromSnapshot(sampleSnapshot())
	d := docs[0]

	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back snapshotDoc
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal via encoding/json: %v", err)
	}
	if back.NodeID != d.NodeID || back.PowerDrawWatts != d.PowerDrawWatts {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, d)
	}
}

func TestJSONSinkWritesNewlineDelimitedDocs(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	sink.Write(sampleSnapshot())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var doc snapshotDoc
	if err := json.Unmarshal([]byte(lines[0]), &doc); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if doc.NodeID != 7 {
		t.Fatalf("expected node_id 7, got %d", doc.NodeID)
	}
}

func TestDriverPublishesToAllSinks(t *testing.T) {
	var a, b bytes.Buffer
	d := NewDriver()
	d.Register(context.Background(), NewJSONSink(&a))
	d.Register(context.Background(), NewJSONSink(&b))

	d.Publish(sampleSnapshot())

	if a.Len() == 0 || b.Len() == 0 {
		t.Fatal("expected both sinks to receive the snapshot")
	}
}
