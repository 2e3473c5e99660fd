// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package energy observes per-node state transitions and recomputes
// instantaneous power draw through a pluggable model, then integrates
// power over wall time into total energy. Only the model's interface
// is in scope here; concrete power models are an external
// collaborator.
package energy

import (
	"sync"

	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/units"
)

// State is the subset of a node's instantaneous condition an EnergyModel
// needs to compute power draw.
type State struct {
	Node port.NodeID
	// PortUtilization is, per connected port, (outgoing+incoming) /
	// (2*max_speed) — 0 for an idle port, 1 for a fully saturated one.
	PortUtilization []float64
	ActiveFlows     int
}

// Model is a pure function from node State to instantaneous power draw.
type Model interface {
	Power(State) units.Power
}

// LinearModel is a simple idle-plus-dynamic power model: power scales
// linearly with the mean port utilization between Idle and Max. It is
// provided as a usable default, not a mandated energy model (energy
// model internals are explicitly out of this library's scope).
type LinearModel struct {
	Idle units.Power
	Max  units.Power
}

// Power implements Model.
func (m LinearModel) Power(s State) units.Power {
	if len(s.PortUtilization) == 0 {
		return m.Idle
	}
	var sum float64
	for _, u := range s.PortUtilization {
		sum += u
	}
	mean := sum / float64(len(s.PortUtilization))
	return m.Idle + units.Power(mean)*(m.Max-m.Idle)
}

// PowerObserver is notified synchronously with the old and new power
// reading whenever a Monitor recomputes a materially different value.
type PowerObserver func(old, new units.Power)

// Monitor holds one node's EnergyModel and its last-computed power.
type Monitor struct {
	model        Model
	currentPower units.Power
	observers    []PowerObserver
}

// NewMonitor returns a Monitor driven by model, seeded with the model's
// reading for a node with no connected ports.
func NewMonitor(model Model) *Monitor {
	return &Monitor{model: model, currentPower: model.Power(State{})}
}

// OnChange registers an observer for power-reading changes.
func (m *Monitor) OnChange(o PowerObserver) {
	m.observers = append(m.observers, o)
}

// CurrentPower returns the last-computed power reading.
func (m *Monitor) CurrentPower() units.Power { return m.currentPower }

// Notify recomputes power from state, fires observers if it changed by
// more than units.Epsilon, and returns the new reading. Called once per
// node update cycle.
func (m *Monitor) Notify(state State) units.Power {
	newPower := m.model.Power(state)
	old := m.currentPower
	m.currentPower = newPower
	if !old.Approx(newPower) {
		for _, o := range m.observers {
			o(old, newPower)
		}
	}
	return newPower
}

// Recorder integrates power x wall-time into per-node total energy
// across a simulation run.
type Recorder struct {
	mu       sync.Mutex
	totals   map[port.NodeID]units.Data
	lastTime map[port.NodeID]units.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		totals:   make(map[port.NodeID]units.Data),
		lastTime: make(map[port.NodeID]units.Time),
	}
}

// Sample integrates power held constant since the node's last sample
// into its running energy total, then records now as the new last
// sample time. The first sample for a node only seeds lastTime; no
// energy accrues until a second sample arrives.
func (r *Recorder) Sample(node port.NodeID, power units.Power, now units.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastTime[node]; ok {
		dt := now.Sub(last)
		r.totals[node] = r.totals[node].Add(units.Joules(power, dt))
	}
	r.lastTime[node] = now
}

// Total returns the running energy total for node, in joules (as Data).
func (r *Recorder) Total(node port.NodeID) units.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[node]
}

// GrandTotal returns the sum of every node's running energy total.
func (r *Recorder) GrandTotal() units.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum units.Data
	for _, v := range r.totals {
		sum = sum.Add(v)
	}
	return sum
}

// Reset clears all accumulated totals and sample timestamps.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals = make(map[port.NodeID]units.Data)
	r.lastTime = make(map[port.NodeID]units.Time)
}
