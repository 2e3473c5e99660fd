package fairness

import (
	"testing"

	"github.com/tigera/dcnetsim/flowid"
	"github.com/tigera/dcnetsim/units"
)

func TestFCFSFirstFlowGetsFullDemand(t *testing.T) {
	p := NewFCFS()
	order := map[flowid.ID]int{1: 0, 2: 1}
	out := p.Allocate(Input{
		Capacity: units.Kbps(1000),
		Demands: []Demand{
			{Flow: 1, Demand: units.Kbps(800)},
			{Flow: 2, Demand: units.Kbps(800)},
		},
		ArrivalOrder: func(f flowid.ID) (int, bool) { o, ok := order[f]; return o, ok },
	})
	if !out[1].Approx(units.Kbps(800)) {
		t.Fatalf("expected flow 1 full demand, got %v", out[1])
	}
	if !out[2].Approx(units.Kbps(200)) {
		t.Fatalf("expected flow 2 residual 200Kbps, got %v", out[2])
	}
}

func TestMaxMinEqualSplitWhenOversubscribed(t *testing.T) {
	p := NewMaxMin()
	out := p.Allocate(Input{
		Capacity:      units.Kbps(1000),
		PriorCapacity: units.Kbps(1000),
		Demands: []Demand{
			{Flow: 1, Demand: units.Kbps(800)},
			{Flow: 2, Demand: units.Kbps(800)},
		},
		Prior: map[flowid.ID]units.DataRate{},
	})
	if !out[1].Approx(units.Kbps(500)) || !out[2].Approx(units.Kbps(500)) {
		t.Fatalf("expected 500/500 split, got %v / %v", out[1], out[2])
	}
}

func TestMaxMinUnequalDemandsGetWaterFilled(t *testing.T) {
	p := NewMaxMin()
	out := p.Allocate(Input{
		Capacity:      units.Kbps(1000),
		PriorCapacity: units.Kbps(1000),
		Demands: []Demand{
			{Flow: 1, Demand: units.Kbps(200)},
			{Flow: 2, Demand: units.Kbps(2000)},
		},
		Prior: map[flowid.ID]units.DataRate{},
	})
	if !out[1].Approx(units.Kbps(200)) {
		t.Fatalf("expected flow 1 fully satisfied at 200Kbps, got %v", out[1])
	}
	if !out[2].Approx(units.Kbps(800)) {
		t.Fatalf("expected flow 2 to take remaining 800Kbps, got %v", out[2])
	}
}

func TestMaxMinNoForcedReductionWhenSetAndCapacityUnchanged(t *testing.T) {
	p := NewMaxMin()
	prior := map[flowid.ID]units.DataRate{1: units.Kbps(700), 2: units.Kbps(300)}
	// Both flows still demand at least their prior allocation, and the
	// contending set and capacity are unchanged, so flow 1 must not be
	// reduced below its prior allocation.
	out := p.Allocate(Input{
		Capacity:      units.Kbps(1000),
		PriorCapacity: units.Kbps(1000),
		Demands: []Demand{
			{Flow: 1, Demand: units.Kbps(700)},
			{Flow: 2, Demand: units.Kbps(300)},
		},
		Prior: prior,
	})
	if out[1].ApproxLess(prior[1]) {
		t.Fatalf("expected flow 1 allocation not reduced below %v, got %v", prior[1], out[1])
	}
}

func TestMaxMinReductionPermittedWhenCapacityShrinks(t *testing.T) {
	p := NewMaxMin()
	prior := map[flowid.ID]units.DataRate{1: units.Kbps(700), 2: units.Kbps(300)}
	out := p.Allocate(Input{
		Capacity:      units.Kbps(500),
		PriorCapacity: units.Kbps(1000),
		Demands: []Demand{
			{Flow: 1, Demand: units.Kbps(700)},
			{Flow: 2, Demand: units.Kbps(300)},
		},
		Prior: prior,
	})
	var sum units.DataRate
	for _, v := range out {
		sum = sum.Add(v)
	}
	if sum.ApproxGreater(units.Kbps(500)) {
		t.Fatalf("expected total allocation to respect shrunk capacity, got %v", sum)
	}
}
