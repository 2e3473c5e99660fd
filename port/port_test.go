package port

import (
	"testing"

	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/units"
)

func TestResidualCapacity(t *testing.T) {
	p := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	p.setOutgoingRate(1, units.Kbps(400))
	if got := p.ResidualOutCapacity(); got != units.Kbps(600) {
		t.Fatalf("expected residual 600Kbps, got %v", got)
	}
}

func TestArrivalOrderStableAcrossRecompute(t *testing.T) {
	p := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	p.setOutgoingRate(1, units.Kbps(100))
	p.setOutgoingRate(2, units.Kbps(100))
	p.setOutgoingRate(1, units.Kbps(200)) // recompute, same flow

	o1, ok1 := p.ArrivalOrder(1)
	o2, ok2 := p.ArrivalOrder(2)
	if !ok1 || !ok2 || o1 >= o2 {
		t.Fatalf("expected flow 1 before flow 2, got %d, %d", o1, o2)
	}
}

func TestSetOutgoingRateZeroForgetsArrival(t *testing.T) {
	p := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	p.setOutgoingRate(1, units.Kbps(100))
	p.setOutgoingRate(1, 0)
	if _, ok := p.ArrivalOrder(1); ok {
		t.Fatal("expected arrival order forgotten after rate dropped to 0")
	}
}

func TestCapacityExceededPanics(t *testing.T) {
	p := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on capacity violation")
		}
	}()
	p.checkCapacity(1, units.Kbps(1500))
}

func TestArena_ConnectPropagatesRate(t *testing.T) {
	arena := NewArena()
	var bSignaled bool
	a := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	b := New(Key{Node: 2, Index: 0}, units.Kbps(1000), func(Key) { bSignaled = true })
	arena.Add(a)
	arena.Add(b)
	arena.Connect(a.Key(), b.Key())

	arena.SetOutgoingRate(a.Key(), flowid.ID(1), units.Kbps(500))

	if got := b.IncomingRate(1); got != units.Kbps(500) {
		t.Fatalf("expected peer incoming rate 500Kbps, got %v", got)
	}
	if !bSignaled {
		t.Fatal("expected peer's owning node to be signaled")
	}
}

func TestArena_DisconnectStopsPropagation(t *testing.T) {
	arena := NewArena()
	a := New(Key{Node: 1, Index: 0}, units.Kbps(1000), nil)
	b := New(Key{Node: 2, Index: 0}, units.Kbps(1000), nil)
	arena.Add(a)
	arena.Add(b)
	arena.Connect(a.Key(), b.Key())
	arena.Disconnect(a.Key())

	if a.Connected() || b.Connected() {
		t.Fatal("expected both ends disconnected")
	}

	arena.SetOutgoingRate(a.Key(), flowid.ID(1), units.Kbps(500))
	if got := b.IncomingRate(1); got != 0 {
		t.Fatalf("expected no incoming rate on former peer, got %v", got)
	}
}
