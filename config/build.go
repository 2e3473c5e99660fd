// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/tigera/dcnetsim/pkg/util"
	"github.com/tigera/dcnetsim/port"
	"github.com/tigera/dcnetsim/telemetry"
	"github.com/tigera/dcnetsim/units"
	"github.com/tigera/dcnetsim/workload"
)

// New builds the concrete workload.Generator this WorkloadConfig
// describes.
func (w WorkloadConfig) New() (workload.Generator, error) {
	switch spec := w.Spec.(type) {
	case BasicSpec:
		return &workload.Basic{
			Src:        port.NodeID(spec.Src),
			Dst:        port.NodeID(spec.Dst),
			BaseDemand: units.Kbps(spec.BaseKbps),
			Scaler:     spec.Scaler,
		}, nil
	case ScalingSpec:
		return &workload.Scaling{
			Pool: workload.Pool{
				Src:        port.NodeID(spec.Src),
				Dst:        port.NodeID(spec.Dst),
				FlowDemand: units.Kbps(spec.FlowKbps),
				MinFlows:   spec.MinFlows,
				MaxFlows:   spec.MaxFlows,
			},
			TargetDemand:  units.Kbps(spec.TargetKbps),
			Scaler:        spec.Scaler,
			LowWatermark:  spec.LowWatermark,
			HighWatermark: spec.HighWatermark,
		}, nil
	case ServiceChainSpec:
		return buildServiceChain(spec)
	case BurstSpec:
		return buildBurst(spec)
	default:
		return nil, fmt.Errorf("config: unbuildable workload type %q", w.Type)
	}
}

func buildBurst(spec BurstSpec) (*workload.Burst, error) {
	at, err := util.ParseANSITime(spec.At)
	if err != nil {
		return nil, fmt.Errorf("config: burst: at: %w", err)
	}
	var pattern workload.BurstPattern
	switch spec.Pattern {
	case "", "fan_out":
		pattern = workload.FanOut
	case "fan_in":
		pattern = workload.FanIn
	default:
		return nil, fmt.Errorf("config: burst: unknown pattern %q", spec.Pattern)
	}
	peers := make([]port.NodeID, 0, len(spec.Peers))
	for _, p := range spec.Peers {
		peers = append(peers, port.NodeID(p))
	}
	return &workload.Burst{
		At:         at,
		Duration:   time.Duration(spec.DurationMs) * time.Millisecond,
		Subject:    port.NodeID(spec.Subject),
		Peers:      peers,
		Pattern:    pattern,
		NumFlows:   spec.NumFlows,
		FlowDemand: units.Kbps(spec.FlowKbps),
	}, nil
}

// buildServiceChain resolves ServiceSpec.Upstreams name references into
// a workload.Service graph rooted at spec.Ingress.
func buildServiceChain(spec ServiceChainSpec) (*workload.ServiceChain, error) {
	byName := make(map[string]*workload.Service, len(spec.Services))
	for _, s := range spec.Services {
		byName[s.Name] = &workload.Service{
			Node:          port.NodeID(s.Node),
			IngressDemand: units.Kbps(s.IngressKbps),
			Scaler:        s.Scaler,
		}
	}
	for _, s := range spec.Services {
		svc := byName[s.Name]
		for _, up := range s.Upstreams {
			target, ok := byName[up.Service]
			if !ok {
				return nil, fmt.Errorf("config: service_chain: upstream %q references unknown service %q", s.Name, up.Service)
			}
			svc.Upstreams = append(svc.Upstreams, workload.ServiceTarget{Service: target, Weight: up.Weight})
		}
		for _, ext := range s.Externals {
			svc.Externals = append(svc.Externals, workload.ExternalTarget{Dst: port.NodeID(ext.Dst), Weight: ext.Weight})
		}
	}

	root, ok := byName[spec.Ingress]
	if !ok {
		return nil, fmt.Errorf("config: service_chain: ingress %q is not a defined service", spec.Ingress)
	}
	return &workload.ServiceChain{Ingress: root, Root: port.NodeID(spec.Root)}, nil
}

// New builds the concrete telemetry.Sink this SinkConfig describes.
func (s SinkConfig) New() (telemetry.Sink, error) {
	switch spec := s.Spec.(type) {
	case JSONSinkSpec:
		if spec.Path == "" {
			return telemetry.NewStdout(), nil
		}
		f, err := os.Create(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("config: json sink: %w", err)
		}
		return telemetry.NewJSONSink(f), nil
	case ElasticSinkSpec:
		u, err := url.Parse(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("config: elastic sink: parse url: %w", err)
		}
		return telemetry.NewElasticSink(telemetry.ElasticConfig{
			URL:        u,
			Username:   spec.Username,
			Password:   spec.Password,
			PathToCA:   spec.PathToCA,
			NumWorkers: spec.NumWorkers,
		})
	default:
		return nil, fmt.Errorf("config: unbuildable telemetry sink type %q", s.Type)
	}
}
