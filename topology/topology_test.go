package topology

import (
	"testing"

	"github.com/tigera/dcnetsim/fairness"
)

func TestParseTopologyDocument(t *testing.T) {
	doc := []byte(`{
		"nodes": [
			{"kind": "host", "port_speed": 1000, "num_of_ports": 1},
			{"kind": "switch", "port_speed": 1000, "num_of_ports": 2},
			{"kind": "host", "id": 5, "port_speed": 1000, "num_of_ports": 1}
		],
		"links": [{"a": 0, "b": 1}, {"a": 1, "b": 5}]
	}`)
	spec, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(spec.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(spec.Nodes))
	}
	if spec.Nodes[2].ID == nil || *spec.Nodes[2].ID != 5 {
		t.Fatalf("expected explicit id 5 on third node")
	}
}

func TestIDAllocatorSkipsExplicitIDs(t *testing.T) {
	alloc := NewIDAllocator([]int64{0, 1})
	if got := alloc.Next(); got != 2 {
		t.Fatalf("expected first auto id to skip explicit ids, got %d", got)
	}
}

func TestBuildConnectsLinks(t *testing.T) {
	doc := []byte(`{
		"nodes": [
			{"kind": "host", "port_speed": 1000, "num_of_ports": 1},
			{"kind": "switch", "port_speed": 1000, "num_of_ports": 2},
			{"kind": "host", "port_speed": 1000, "num_of_ports": 1}
		],
		"links": [{"a": 0, "b": 1}, {"a": 1, "b": 2}]
	}`)
	spec, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	net, err := Build(spec, fairness.NewMaxMin(), 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := net.Node(0); !ok {
		t.Fatal("expected node 0 to exist")
	}
	if _, ok := net.Node(2); !ok {
		t.Fatal("expected node 2 to exist")
	}
}
