// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package workload drives synthetic demand against a network.Network
// over time: a sinusoidal TrafficScaler, threshold-based pool scaling,
// and a weighted ingress/upstream service graph, all producing NetFlow
// demand.
package workload

import (
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tigera/dcnetsim/flow"
	"github.com/tigera/dcnetsim/network"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/units"
)

// SecPerDay and SecPerWeek are the periods TrafficScaler's Daily and
// Weekly phasers are defined over.
const (
	SecPerDay  = 24 * 60 * 60
	SecPerWeek = 7 * SecPerDay
)

// referenceSunday is the fixed point Phasers measure phase from; its
// only role is to give Scale a stable time origin.
var referenceSunday = time.Date(2010, time.January, 3, 0, 0, 0, 0, time.UTC)

// Phaser is one sinusoidal term of a TrafficScaler.
type Phaser struct {
	Amp   float64 `yaml:"Amp"`
	Phase float64 `yaml:"Phase"`
}

func (p Phaser) value(period, secs float64, harmonic int) float64 {
	x := secs/period*2*math.Pi*float64(harmonic+1) + p.Phase
	return p.Amp * (1.0 - math.Cos(x)) / 2.0
}

// TrafficScaler produces a non-negative multiplier from a sum of
// weekly and daily sinusoids plus a constant and multiplicative noise
// term.
type TrafficScaler struct {
	Weekly   []Phaser `yaml:"Weekly"`
	Daily    []Phaser `yaml:"Daily"`
	Constant float64  `yaml:"Constant"`
	Noise    float64  `yaml:"Noise"`
}

// Scale returns the demand multiplier at t, clamped to be non-negative.
func (s TrafficScaler) Scale(t time.Time) float64 {
	secs := t.Sub(referenceSunday).Seconds()
	out := s.Constant
	for i, p := range s.Weekly {
		out += p.value(SecPerWeek, secs, i)
	}
	for i, p := range s.Daily {
		out += p.value(SecPerDay, secs, i)
	}
	out += s.Noise * rand.NormFloat64() * out
	if out < 0 {
		return 0
	}
	return out
}

// Generator drives demand into a network.Network at each simulation
// tick. Concrete generators keep whatever NetFlow references they need
// between ticks.
type Generator interface {
	Tick(now time.Time, net *network.Network)
}

// Driver ticks a fixed set of Generators in registration order.
type Driver struct {
	generators []Generator
}

// NewDriver returns an empty Driver.
func NewDriver() *Driver { return &Driver{} }

// Add registers g to be ticked by future Tick calls.
func (d *Driver) Add(g Generator) { d.generators = append(d.generators, g) }

// Tick advances every registered generator, then awaits network
// stability so demand changes have fully propagated before returning.
func (d *Driver) Tick(now time.Time, net *network.Network) error {
	for _, g := range d.generators {
		g.Tick(now, net)
	}
	return net.AwaitStability()
}

// Basic maintains a single flow of demand BaseDemand*Scaler.Scale(now)
// between Src and Dst, started lazily on its first Tick.
type Basic struct {
	Src, Dst   port.NodeID
	BaseDemand units.DataRate
	Scaler     TrafficScaler

	flow *flow.NetFlow
}

// Tick implements Generator.
func (b *Basic) Tick(now time.Time, net *network.Network) {
	demand := units.DataRate(float64(b.BaseDemand) * b.Scaler.Scale(now))
	if b.flow == nil {
		f, err := net.StartFlow(b.Src, b.Dst, demand, nil)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"src": b.Src, "dst": b.Dst}).Warn("workload: basic: start_flow failed")
			return
		}
		b.flow = f
		return
	}
	b.flow.SetDemand(demand)
}

// Pool is one uniform slice of demand within a Scaling generator: one
// NetFlow between Src and Dst per FlowDemand of target demand. Each new
// flow starts at FlowDemand; every Scaling Tick then splits the target
// evenly across the active flows.
type Pool struct {
	Src, Dst   port.NodeID
	FlowDemand units.DataRate
	MinFlows   int
	MaxFlows   int
}

// Scaling grows and shrinks the number of concurrent flows between Src
// and Dst to approximate TargetDemand*Scaler.Scale(now), adding or
// removing whole FlowDemand-sized flows with hysteresis to keep
// utilization within [LowWatermark, HighWatermark] of capacity.
type Scaling struct {
	Pool          Pool
	TargetDemand  units.DataRate
	Scaler        TrafficScaler
	LowWatermark  float64 // e.g. 0.7: shrink once below 70% utilized
	HighWatermark float64 // e.g. 0.95: grow once above 95% utilized

	active []*flow.NetFlow
}

// Tick implements Generator.
func (s *Scaling) Tick(now time.Time, net *network.Network) {
	target := units.DataRate(float64(s.TargetDemand) * s.Scaler.Scale(now))
	perFlow := s.Pool.FlowDemand
	if perFlow <= 0 {
		return
	}
	wanted := int(math.Ceil(float64(target) / float64(perFlow)))
	if wanted < s.Pool.MinFlows {
		wanted = s.Pool.MinFlows
	}
	if s.Pool.MaxFlows > 0 && wanted > s.Pool.MaxFlows {
		wanted = s.Pool.MaxFlows
	}

	capacityUsed := float64(len(s.active)) * float64(perFlow)
	utilization := 0.0
	if capacityUsed > 0 {
		utilization = float64(target) / capacityUsed
	}

	switch {
	case len(s.active) == 0 && wanted > 0:
		s.grow(net, wanted-len(s.active))
	case utilization > s.HighWatermark || len(s.active) < s.Pool.MinFlows:
		s.grow(net, wanted-len(s.active))
	case utilization < s.LowWatermark:
		s.shrink(wanted)
	}

	remaining := len(s.active)
	if remaining == 0 {
		return
	}
	share := units.DataRate(float64(target) / float64(remaining))
	for _, f := range s.active {
		f.SetDemand(share)
	}
}

func (s *Scaling) grow(net *network.Network, n int) {
	for i := 0; i < n; i++ {
		f, err := net.StartFlow(s.Pool.Src, s.Pool.Dst, s.Pool.FlowDemand, nil)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"src": s.Pool.Src, "dst": s.Pool.Dst}).Warn("workload: scaling: start_flow failed")
			return
		}
		s.active = append(s.active, f)
	}
}

func (s *Scaling) shrink(target int) {
	for len(s.active) > target && len(s.active) > s.Pool.MinFlows {
		last := s.active[len(s.active)-1]
		last.SetDemand(0)
		s.active = s.active[:len(s.active)-1]
	}
}

// ExternalTarget is an upstream destination outside the modeled
// service graph (e.g. a call out to the internet).
type ExternalTarget struct {
	Dst    port.NodeID
	Weight float64
}

// ServiceTarget is a weighted call from one service to another within
// the graph.
type ServiceTarget struct {
	Service *Service
	Weight  float64
}

// Service is one node in a weighted service-call graph: it receives
// IngressDemand of external traffic scaled by Scaler, and re-emits a
// Weight-weighted share of that scaled IngressDemand to each of its
// Upstreams and Externals. Demand a Service receives from a calling
// Service is not added to what it re-emits.
type Service struct {
	Node          port.NodeID
	IngressDemand units.DataRate
	Scaler        TrafficScaler
	Upstreams     []ServiceTarget
	Externals     []ExternalTarget

	ingressFlow *flow.NetFlow
	upFlows     []*flow.NetFlow
	extFlows    []*flow.NetFlow
}

// ServiceChain ticks a graph of Services rooted at Ingress each Tick,
// following Upstreams depth-first; each Service's flows carry shares of
// its own scaled IngressDemand only.
type ServiceChain struct {
	Ingress *Service
	Root    port.NodeID // the node id external ingress traffic is sourced from, e.g. an internet node

	built bool
}

// Tick implements Generator.
func (c *ServiceChain) Tick(now time.Time, net *network.Network) {
	if !c.built {
		c.build(net)
		c.built = true
	}
	c.tickService(c.Ingress, now, net)
}

func (c *ServiceChain) build(net *network.Network) {
	var visit func(s *Service)
	seen := make(map[*Service]bool)
	visit = func(s *Service) {
		if seen[s] {
			return
		}
		seen[s] = true
		for _, up := range s.Upstreams {
			visit(up.Service)
		}
	}
	visit(c.Ingress)
}

func (c *ServiceChain) tickService(s *Service, now time.Time, net *network.Network) {
	demand := units.DataRate(float64(s.IngressDemand) * s.Scaler.Scale(now))
	if s.ingressFlow == nil {
		f, err := net.StartFlow(c.Root, s.Node, demand, nil)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"dst": s.Node}).Warn("workload: service_chain: ingress start_flow failed")
		} else {
			s.ingressFlow = f
		}
	} else {
		s.ingressFlow.SetDemand(demand)
	}

	totalWeight := 0.0
	for _, up := range s.Upstreams {
		totalWeight += up.Weight
	}
	for _, ext := range s.Externals {
		totalWeight += ext.Weight
	}
	if totalWeight <= 0 {
		return
	}

	if s.upFlows == nil {
		s.upFlows = make([]*flow.NetFlow, len(s.Upstreams))
	}
	for i, up := range s.Upstreams {
		share := units.DataRate(float64(demand) * up.Weight / totalWeight)
		if s.upFlows[i] == nil {
			f, err := net.StartFlow(s.Node, up.Service.Node, share, nil)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{"src": s.Node, "dst": up.Service.Node}).Warn("workload: service_chain: upstream start_flow failed")
			} else {
				s.upFlows[i] = f
			}
		} else {
			s.upFlows[i].SetDemand(share)
		}
		c.tickService(up.Service, now, net)
	}

	if s.extFlows == nil {
		s.extFlows = make([]*flow.NetFlow, len(s.Externals))
	}
	for i, ext := range s.Externals {
		share := units.DataRate(float64(demand) * ext.Weight / totalWeight)
		if s.extFlows[i] == nil {
			f, err := net.StartFlow(s.Node, ext.Dst, share, nil)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{"src": s.Node, "dst": ext.Dst}).Warn("workload: service_chain: external start_flow failed")
			} else {
				s.extFlows[i] = f
			}
		} else {
			s.extFlows[i].SetDemand(share)
		}
	}
}

// BurstPattern selects which side of a Burst's flows is fixed at
// Subject and which side is drawn from its Peers pool.
type BurstPattern int

const (
	// FanOut starts flows from Subject to randomly chosen Peers: a
	// subject node probing many destinations in quick succession.
	FanOut BurstPattern = iota
	// FanIn starts flows from randomly chosen Peers converging on
	// Subject: many external sources hitting one subject node at once.
	FanIn
)

// Burst fires a one-time burst of NumFlows short-lived flows once now
// reaches At, tearing them all down once now reaches At+Duration: N
// short transient connections touching one subject node at a fixed
// instant, fixed on either the fan-out or fan-in side depending on
// Pattern.
type Burst struct {
	At         time.Time
	Duration   time.Duration
	Subject    port.NodeID
	Peers      []port.NodeID
	Pattern    BurstPattern
	NumFlows   int
	FlowDemand units.DataRate

	fired  bool
	active []*flow.NetFlow
}

// Tick implements Generator.
func (b *Burst) Tick(now time.Time, net *network.Network) {
	if !b.fired && !now.Before(b.At) && len(b.Peers) > 0 {
		b.fired = true
		for i := 0; i < b.NumFlows; i++ {
			peer := b.Peers[rand.Intn(len(b.Peers))]
			src, dst := b.Subject, peer
			if b.Pattern == FanIn {
				src, dst = peer, b.Subject
			}
			f, err := net.StartFlow(src, dst, b.FlowDemand, nil)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{"src": src, "dst": dst}).Warn("workload: burst: start_flow failed")
				continue
			}
			b.active = append(b.active, f)
		}
	}
	if b.fired && len(b.active) > 0 && !now.Before(b.At.Add(b.Duration)) {
		for _, f := range b.active {
			if err := net.StopFlow(f.ID()); err != nil {
				log.WithError(err).WithField("flow", f.ID()).Warn("workload: burst: stop_flow failed")
			}
		}
		b.active = nil
	}
}
