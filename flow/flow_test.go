package flow

import (
	"testing"

	"github.com/tigera/dcnetsim/units"
)

func TestSetDemandFiresObserverOnce(t *testing.T) {
	f := New(1, 10, 20, units.Kbps(500))
	var calls int
	var lastOld, lastNew units.DataRate
	f.OnDemandChange(func(_ *NetFlow, old, nw units.DataRate) {
		calls++
		lastOld, lastNew = old, nw
	})

	f.SetDemand(units.Kbps(500 + 1e-9)) // within epsilon, no-op
	if calls != 0 {
		t.Fatalf("expected no observer call for epsilon-equal demand, got %d", calls)
	}

	f.SetDemand(units.Kbps(800))
	if calls != 1 {
		t.Fatalf("expected 1 observer call, got %d", calls)
	}
	if lastOld != units.Kbps(500) || lastNew != units.Kbps(800) {
		t.Fatalf("unexpected old/new: %v -> %v", lastOld, lastNew)
	}
}

func TestHandlerAllOutgoingIDsDeduplicates(t *testing.T) {
	h := NewHandler()
	f1 := New(1, 10, 20, units.Kbps(500))
	h.AddGenerating(f1)
	h.AddTransit(2, 20, units.Kbps(100))

	ids := h.AllOutgoingIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("expected [1 2], got %v", ids)
	}
}

func TestHandlerRemovePurgesAllIndices(t *testing.T) {
	h := NewHandler()
	f1 := New(1, 10, 20, units.Kbps(500))
	h.AddGenerating(f1)
	h.Remove(1)

	if _, ok := h.Generating(1); ok {
		t.Fatal("expected generating entry removed")
	}
	if _, ok := h.Outgoing(1); ok {
		t.Fatal("expected outgoing entry removed")
	}
}
