package forwarding

import (
	"testing"

	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/routing"
	"github.com/tigera/dcnetsim/units"
)

func TestStaticECMPEqualSplit(t *testing.T) {
	tb := routing.New()
	viaA := port.Key{Node: 1, Index: 0}
	viaB := port.Key{Node: 2, Index: 0}
	tb.Apply(routing.Advertisement{Destination: 99, Distance: 1, Via: viaA})
	tb.Apply(routing.Advertisement{Destination: 99, Distance: 1, Via: viaB})

	p := NewStaticECMP()
	split := p.Split(tb, 99, units.Kbps(800))

	if len(split) != 2 {
		t.Fatalf("expected 2-way split, got %v", split)
	}
	for _, rate := range split {
		if !rate.Approx(units.Kbps(400)) {
			t.Fatalf("expected each leg 400Kbps, got %v", rate)
		}
	}
}

func TestStaticECMPNoRoute(t *testing.T) {
	tb := routing.New()
	p := NewStaticECMP()
	split := p.Split(tb, 99, units.Kbps(500))
	if len(split) != 0 {
		t.Fatalf("expected empty split for unrouted destination, got %v", split)
	}
}
