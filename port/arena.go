// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

package port

import (
	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/units"
)

// Arena owns every Port in a Network and mediates the cross-node
// propagation that a local SetOutgoingRate write causes on the peer
// side of a link.
type Arena struct {
	ports map[Key]*Port
}

// NewArena returns an empty port Arena.
func NewArena() *Arena {
	return &Arena{ports: make(map[Key]*Port)}
}

// Add registers p under its key. Panics if that key is
// already in use — this is a programmer error (duplicate port index),
// not a runtime condition callers are expected to handle.
func (a *Arena) Add(p *Port) {
	if _, exists := a.ports[p.key]; exists {
		panic("port: duplicate key " + keyString(p.key))
	}
	a.ports[p.key] = p
}

// Get returns the port at key, or nil if absent.
func (a *Arena) Get(key Key) *Port { return a.ports[key] }

// Connect pairs two previously-unconnected ports bidirectionally.
func (a *Arena) Connect(a1, a2 Key) {
	pa, pb := a.ports[a1], a.ports[a2]
	pa.connect(a2)
	pb.connect(a1)
}

// Disconnect unpairs a port from its peer, symmetrically. No-op if
// already unconnected.
func (a *Arena) Disconnect(k Key) {
	p := a.ports[k]
	if p == nil || p.otherEnd == nil {
		return
	}
	peer := a.ports[*p.otherEnd]
	p.disconnect()
	if peer != nil {
		peer.disconnect()
	}
}

// SetOutgoingRate writes the local outgoing rate for flow f on the port
// at key, propagates the corresponding incoming-rate write to the peer
// port (if connected), and invokes the peer's OnChange callback so its
// owning node's update channel is signaled. It panics via simerr if the
// write would violate the local port's capacity invariant.
func (a *Arena) SetOutgoingRate(key Key, f flowid.ID, rate units.DataRate) {
	p := a.ports[key]
	p.checkCapacity(f, rate)
	p.setOutgoingRate(f, rate)

	if p.otherEnd == nil {
		return
	}
	peer := a.ports[*p.otherEnd]
	if peer == nil {
		return
	}
	peer.setIncomingRate(f, rate)
	if peer.onChange != nil {
		peer.onChange(peer.key)
	}
}

func keyString(k Key) string {
	return "{" + itoa(int64(k.Node)) + "," + itoa(int64(k.Index)) + "}"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
