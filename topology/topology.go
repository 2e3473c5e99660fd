// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package topology deserializes the JSON topology document and builds
// a network.Network from it, assigning NodeIds to any node left
// unspecified with a sequential allocator.
package topology

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tigera/dcnetsim/fairness"
	"github.com/tigera/dcnetsim/network"
	"github.com/tigera/dcnetsim/node"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/units"
)

// NodeSpec is one node entry in the topology document. Id is optional;
// missing ids are auto-assigned by an IDAllocator in document order.
type NodeSpec struct {
	Kind        string `json:"kind"`
	ID          *int64 `json:"id,omitempty"`
	PortSpeedKbps float64 `json:"port_speed"`
	NumPorts    int    `json:"num_of_ports"`
}

// LinkSpec is one link entry, naming the two node ids it connects.
type LinkSpec struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// Spec is the full topology document: a node list and a link list.
type Spec struct {
	Nodes []NodeSpec `json:"nodes"`
	Links []LinkSpec `json:"links"`
}

// Parse decodes a topology document from raw JSON bytes.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("topology: parse: %w", err)
	}
	return &s, nil
}

// IDAllocator hands out NodeIds in ascending order, in document order,
// to any NodeSpec left without an explicit id, skipping ids already
// claimed explicitly elsewhere in the document.
type IDAllocator struct {
	mu     sync.Mutex
	next   int64
	claimed map[int64]struct{}
}

// NewIDAllocator returns an allocator that starts counting from 0,
// treating every id in explicit as already taken.
func NewIDAllocator(explicit []int64) *IDAllocator {
	a := &IDAllocator{claimed: make(map[int64]struct{}, len(explicit))}
	for _, id := range explicit {
		a.claimed[id] = struct{}{}
	}
	return a
}

// Next returns the next unclaimed NodeId and marks it claimed.
func (a *IDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		if _, used := a.claimed[a.next]; !used {
			a.claimed[a.next] = struct{}{}
			id := a.next
			a.next++
			return id
		}
		a.next++
	}
}

// Build constructs a network.Network from the Spec: every node with
// the given fairness policy (StaticECMP forwarding is fixed by
// network.AddNode), then connects every link. ids missing from the
// document are filled in with an IDAllocator before any node is
// created, so every node id a link names is known before links are
// connected.
func Build(spec *Spec, fair fairness.Policy, diameter int) (*network.Network, error) {
	explicit := make([]int64, 0, len(spec.Nodes))
	for _, n := range spec.Nodes {
		if n.ID != nil {
			explicit = append(explicit, *n.ID)
		}
	}
	alloc := NewIDAllocator(explicit)

	resolvedIDs := make([]int64, len(spec.Nodes))
	for i, n := range spec.Nodes {
		if n.ID != nil {
			resolvedIDs[i] = *n.ID
			continue
		}
		resolvedIDs[i] = alloc.Next()
	}

	net := network.New(diameter)
	for i, n := range spec.Nodes {
		kind, err := parseKind(n.Kind)
		if err != nil {
			return nil, err
		}
		id := port.NodeID(resolvedIDs[i])
		speed := units.Kbps(n.PortSpeedKbps)
		net.AddNode(id, kind, fair, n.NumPorts, speed)
		log.WithFields(log.Fields{
			"node_id":      id,
			"kind":         kind.String(),
			"num_of_ports": n.NumPorts,
		}).Debug("topology: node built")
	}

	for _, l := range spec.Links {
		if err := net.Connect(port.NodeID(l.A), port.NodeID(l.B)); err != nil {
			return nil, fmt.Errorf("topology: link %d-%d: %w", l.A, l.B, err)
		}
	}

	return net, nil
}

func parseKind(s string) (node.Kind, error) {
	switch s {
	case "host":
		return node.Host, nil
	case "switch":
		return node.Switch, nil
	case "core-switch":
		return node.CoreSwitch, nil
	case "internet":
		return node.Internet, nil
	default:
		return 0, fmt.Errorf("topology: unknown node kind %q", s)
	}
}

// SortedLinkEndpoints returns the unique node ids referenced by links,
// sorted ascending; used by tests and diagnostics to sanity-check a
// document before Build.
func SortedLinkEndpoints(spec *Spec) []int64 {
	seen := make(map[int64]struct{})
	for _, l := range spec.Links {
		seen[l.A] = struct{}{}
		seen[l.B] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
