package node

import (
	"testing"

	"github.com/tigera/dcnetsim/energy"
	"github.com/tigera/dcnetsim/fairness"
	"github.com/tigera/dcnetsim/flow"
	"github.com/tigera/dcnetsim/forwarding"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/routing"
	"github.com/tigera/dcnetsim/stability"
	"github.com/tigera/dcnetsim/units"
)

func newTestNode(id ID, kind Kind) (*Node, *port.Arena) {
	arena := port.NewArena()
	v := stability.New()
	mon := energy.NewMonitor(energy.LinearModel{Idle: units.Watts(10), Max: units.Watts(50)})
	n := New(id, kind, arena, routing.New(), forwarding.NewStaticECMP(), fairness.NewMaxMin(), v.NewInvalidator(), mon, units.Kbps(1000))
	return n, arena
}

func TestRunCycleSplitsAcrossECMPNextHops(t *testing.T) {
	src, arena := newTestNode(1, Host)
	srcPort0 := src.AddPort(arena, units.Kbps(1000), nil)
	srcPort1 := src.AddPort(arena, units.Kbps(1000), nil)

	dst, _ := newTestNode(2, Host)
	dstPort0 := dst.AddPort(arena, units.Kbps(1000), nil)
	dstPort1 := dst.AddPort(arena, units.Kbps(1000), nil)

	arena.Connect(srcPort0, dstPort0)
	arena.Connect(srcPort1, dstPort1)

	src.table.Apply(routing.Advertisement{Destination: 2, Distance: 1, Via: srcPort0})
	src.table.Apply(routing.Advertisement{Destination: 2, Distance: 1, Via: srcPort1})

	f := flow.New(100, 1, 2, units.Kbps(200))
	src.flows.AddGenerating(f)

	src.RunCycle(arena)

	p0 := arena.Get(srcPort0)
	p1 := arena.Get(srcPort1)
	if !p0.OutgoingRate(100).Approx(units.Kbps(100)) {
		t.Fatalf("expected 100Kbps on port0, got %v", p0.OutgoingRate(100))
	}
	if !p1.OutgoingRate(100).Approx(units.Kbps(100)) {
		t.Fatalf("expected 100Kbps on port1, got %v", p1.OutgoingRate(100))
	}
}

func TestRunCycleUpdatesDestinationThroughput(t *testing.T) {
	src, arena := newTestNode(1, Host)
	srcPort := src.AddPort(arena, units.Kbps(1000), nil)

	dst, _ := newTestNode(2, Host)
	dstPort := dst.AddPort(arena, units.Kbps(1000), nil)

	arena.Connect(srcPort, dstPort)
	src.table.Apply(routing.Advertisement{Destination: 2, Distance: 1, Via: srcPort})

	f := flow.New(7, 1, 2, units.Kbps(300))
	src.flows.AddGenerating(f)
	dst.flows.AddConsuming(f)

	src.RunCycle(arena)
	dst.RunCycle(arena)

	if !f.Throughput().Approx(units.Kbps(300)) {
		t.Fatalf("expected throughput 300Kbps, got %v", f.Throughput())
	}
}

func TestRunCycleOversubscribedPortCapsAllocation(t *testing.T) {
	src, arena := newTestNode(1, Host)
	srcPort := src.AddPort(arena, units.Kbps(100), nil)
	dst, _ := newTestNode(2, Host)
	dstPort := dst.AddPort(arena, units.Kbps(100), nil)
	arena.Connect(srcPort, dstPort)
	src.table.Apply(routing.Advertisement{Destination: 2, Distance: 1, Via: srcPort})

	f1 := flow.New(1, 1, 2, units.Kbps(80))
	f2 := flow.New(2, 1, 2, units.Kbps(80))
	src.flows.AddGenerating(f1)
	src.flows.AddGenerating(f2)

	src.RunCycle(arena)

	p := arena.Get(srcPort)
	total := p.OutgoingRate(1) + p.OutgoingRate(2)
	if total.ApproxGreater(units.Kbps(100)) {
		t.Fatalf("expected total <= 100Kbps, got %v", total)
	}
}

func TestAddPortGrowsElasticPortSet(t *testing.T) {
	n, arena := newTestNode(InternetIDForTest, Internet)
	if len(n.Ports()) != 0 {
		t.Fatalf("expected no ports initially")
	}
	k := n.AddPort(arena, n.PortSpeed(), nil)
	if k.Index != 0 {
		t.Fatalf("expected first elastic port at index 0, got %d", k.Index)
	}
	if len(n.Ports()) != 1 {
		t.Fatalf("expected one port after growth")
	}
}

// InternetIDForTest has the same value as port.InternetID.
const InternetIDForTest ID = -1
