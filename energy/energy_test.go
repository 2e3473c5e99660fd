package energy

import (
	"testing"

	"github.com/tigera/dcnetsim/units"
)

func TestLinearModelScalesWithUtilization(t *testing.T) {
	m := LinearModel{Idle: units.Watts(100), Max: units.Watts(300)}
	idle := m.Power(State{PortUtilization: []float64{0, 0}})
	full := m.Power(State{PortUtilization: []float64{1, 1}})
	if !idle.Approx(units.Watts(100)) {
		t.Fatalf("expected idle power 100W, got %v", idle)
	}
	if !full.Approx(units.Watts(300)) {
		t.Fatalf("expected full power 300W, got %v", full)
	}
}

func TestMonitorFiresObserverOnChange(t *testing.T) {
	mon := NewMonitor(LinearModel{Idle: units.Watts(100), Max: units.Watts(300)})
	var calls int
	mon.OnChange(func(old, nw units.Power) { calls++ })

	mon.Notify(State{PortUtilization: []float64{0}})
	if calls != 0 {
		t.Fatalf("expected no observer call for 100W->100W transition, got %d", calls)
	}
	mon.Notify(State{PortUtilization: []float64{1}})
	if calls != 1 {
		t.Fatalf("expected 1 observer call, got %d", calls)
	}
}

func TestRecorderIntegratesEnergy(t *testing.T) {
	r := NewRecorder()
	r.Sample(1, units.Watts(10), units.Seconds(0))
	r.Sample(1, units.Watts(10), units.Seconds(5))
	if got := r.Total(1); got != 50 {
		t.Fatalf("expected 50 joules, got %v", got)
	}
}
