package routing

import (
	"reflect"
	"testing"

	"github.com/tigera/dcnetsim/port"
)

func TestApplyKeepsOnlyMinimumDistance(t *testing.T) {
	tb := New()
	viaA := port.Key{Node: 1, Index: 0}
	viaB := port.Key{Node: 2, Index: 0}

	tb.Apply(Advertisement{Destination: 99, Distance: 3, Via: viaA})
	tb.Apply(Advertisement{Destination: 99, Distance: 1, Via: viaB})

	hops, ok := tb.NextHops(99)
	if !ok || !reflect.DeepEqual(hops, []port.Key{viaB}) {
		t.Fatalf("expected only viaB at distance 1, got %v", hops)
	}
}

func TestApplyRetainsTiesForECMP(t *testing.T) {
	tb := New()
	viaA := port.Key{Node: 1, Index: 0}
	viaB := port.Key{Node: 2, Index: 0}

	tb.Apply(Advertisement{Destination: 99, Distance: 2, Via: viaA})
	tb.Apply(Advertisement{Destination: 99, Distance: 2, Via: viaB})

	hops, ok := tb.NextHops(99)
	if !ok || len(hops) != 2 {
		t.Fatalf("expected 2 ECMP next hops, got %v", hops)
	}
}

func TestPurgeViaRemovesOnlyAffectedRoutes(t *testing.T) {
	tb := New()
	viaA := port.Key{Node: 1, Index: 0}
	viaB := port.Key{Node: 2, Index: 0}

	tb.Apply(Advertisement{Destination: 99, Distance: 2, Via: viaA})
	tb.Apply(Advertisement{Destination: 99, Distance: 2, Via: viaB})
	tb.Apply(Advertisement{Destination: 100, Distance: 1, Via: viaA})

	unrouted, shrunk := tb.PurgeVia(viaA)
	if len(unrouted) != 1 || unrouted[0] != 100 {
		t.Fatalf("expected dest 100 now unrouted, got %v", unrouted)
	}
	if len(shrunk) != 1 || shrunk[0] != 99 {
		t.Fatalf("expected dest 99 shrunk, got %v", shrunk)
	}
	hops, ok := tb.NextHops(99)
	if !ok || !reflect.DeepEqual(hops, []port.Key{viaB}) {
		t.Fatalf("expected only viaB remaining, got %v", hops)
	}
	if _, ok := tb.NextHops(100); ok {
		t.Fatal("expected dest 100 to have no route")
	}
}
