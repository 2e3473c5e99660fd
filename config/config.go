// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package config loads an experiment document: the topology to build,
// the fairness policy to run it with, the workload generators to
// drive it, and the telemetry sinks to export snapshots to.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/tigera/dcnetsim/fairness"
	"github.com/tigera/dcnetsim/pkg/util"
	"github.com/tigera/dcnetsim/workload"
)

// Experiment is the root configuration document.
type Experiment struct {
	TopologyPath string           `yaml:"Topology"`
	Fairness     string           `yaml:"Fairness"`
	Diameter     int              `yaml:"Diameter"`
	StartTime    string           `yaml:"StartTime"`
	EndTime      string           `yaml:"EndTime"`
	TickInterval time.Duration    `yaml:"TickInterval"`
	Workloads    []WorkloadConfig `yaml:"Workloads"`
	Telemetry    []SinkConfig     `yaml:"Telemetry"`
}

// Load reads and parses an Experiment document from path, fatal on any
// error (an unparseable experiment file is not a condition a running
// simulation can recover from).
func Load(path string) Experiment {
	var cfg Experiment
	data, err := ioutil.ReadFile(path)
	if err != nil {
		log.WithField("path", path).Panic(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.WithField("path", path).Panic(err)
	}
	return cfg
}

// Times parses StartTime/EndTime using the ANSI-ish
// "YYYY-MM-DD[ HH:MM:SS]" layout (pkg/util.ParseANSITime).
func (e Experiment) Times() (time.Time, time.Time, error) {
	start, err := util.ParseANSITime(e.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: start_time: %w", err)
	}
	end, err := util.ParseANSITime(e.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: end_time: %w", err)
	}
	return start, end, nil
}

// FairnessPolicy resolves the Fairness name to a concrete fairness.Policy.
func (e Experiment) FairnessPolicy() (fairness.Policy, error) {
	switch e.Fairness {
	case "", "MaxMin":
		return fairness.NewMaxMin(), nil
	case "FirstComeFirstServed":
		return fairness.NewFCFS(), nil
	default:
		return nil, fmt.Errorf("config: unknown fairness policy %q", e.Fairness)
	}
}

// WorkloadConfig is one polymorphic workload-generator entry.
type WorkloadConfig struct {
	Type string      `yaml:"Type"`
	Spec interface{} `yaml:"Spec"`
}

// BasicSpec configures a workload.Basic generator.
type BasicSpec struct {
	Src        int64              `yaml:"Src"`
	Dst        int64              `yaml:"Dst"`
	BaseKbps   float64            `yaml:"BaseKbps"`
	Scaler     workload.TrafficScaler `yaml:"Scaler"`
}

// ScalingSpec configures a workload.Scaling generator.
type ScalingSpec struct {
	Src           int64                  `yaml:"Src"`
	Dst           int64                  `yaml:"Dst"`
	FlowKbps      float64                `yaml:"FlowKbps"`
	MinFlows      int                    `yaml:"MinFlows"`
	MaxFlows      int                    `yaml:"MaxFlows"`
	TargetKbps    float64                `yaml:"TargetKbps"`
	Scaler        workload.TrafficScaler `yaml:"Scaler"`
	LowWatermark  float64                `yaml:"LowWatermark"`
	HighWatermark float64                `yaml:"HighWatermark"`
}

// BurstSpec configures a workload.Burst generator: a one-time burst of
// short-lived flows fired at a fixed time.
type BurstSpec struct {
	At         string  `yaml:"At"`
	DurationMs int64   `yaml:"DurationMs"`
	Subject    int64   `yaml:"Subject"`
	Peers      []int64 `yaml:"Peers"`
	Pattern    string  `yaml:"Pattern"` // "fan_out" or "fan_in"
	NumFlows   int     `yaml:"NumFlows"`
	FlowKbps   float64 `yaml:"FlowKbps"`
}

// ServiceSpec is one node of a ServiceChainSpec's call graph.
type ServiceSpec struct {
	Name          string                 `yaml:"Name"`
	Node          int64                  `yaml:"Node"`
	IngressKbps   float64                `yaml:"IngressKbps"`
	Scaler        workload.TrafficScaler `yaml:"Scaler"`
	Upstreams     []UpstreamSpec         `yaml:"Upstreams"`
	Externals     []ExternalSpec         `yaml:"Externals"`
}

// UpstreamSpec names a weighted call from one ServiceSpec to another by
// Name, resolved against the sibling list in ServiceChainSpec.Services.
type UpstreamSpec struct {
	Service string  `yaml:"Service"`
	Weight  float64 `yaml:"Weight"`
}

// ExternalSpec names a weighted call out to a fixed node id.
type ExternalSpec struct {
	Dst    int64   `yaml:"Dst"`
	Weight float64 `yaml:"Weight"`
}

// ServiceChainSpec configures a workload.ServiceChain generator.
type ServiceChainSpec struct {
	Root     int64         `yaml:"Root"`
	Ingress  string        `yaml:"Ingress"`
	Services []ServiceSpec `yaml:"Services"`
}

// UnmarshalYAML decodes the Spec field according to Type.
func (w *WorkloadConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	ts := struct {
		Type string `yaml:"Type"`
	}{}
	if err := unmarshal(&ts); err != nil {
		return err
	}
	w.Type = ts.Type
	switch ts.Type {
	case "Basic":
		ss := struct {
			Spec BasicSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		w.Spec = ss.Spec
	case "Scaling":
		ss := struct {
			Spec ScalingSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		w.Spec = ss.Spec
	case "ServiceChain":
		ss := struct {
			Spec ServiceChainSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		w.Spec = ss.Spec
	case "Burst":
		ss := struct {
			Spec BurstSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		w.Spec = ss.Spec
	default:
		return fmt.Errorf("config: unrecognized workload type %q", ts.Type)
	}
	return nil
}

// SinkConfig is one polymorphic telemetry-sink entry.
type SinkConfig struct {
	Type string      `yaml:"Type"`
	Spec interface{} `yaml:"Spec"`
}

// JSONSinkSpec configures a file-based JSON telemetry sink.
type JSONSinkSpec struct {
	Path string `yaml:"Path"`
}

// ElasticSinkSpec configures an Elasticsearch telemetry sink.
type ElasticSinkSpec struct {
	URL        string `yaml:"URL"`
	Username   string `yaml:"Username"`
	Password   string `yaml:"Password"`
	PathToCA   string `yaml:"PathToCA"`
	NumWorkers int    `yaml:"NumWorkers"`
}

// UnmarshalYAML decodes the Spec field according to Type.
func (s *SinkConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	ts := struct {
		Type string `yaml:"Type"`
	}{}
	if err := unmarshal(&ts); err != nil {
		return err
	}
	s.Type = ts.Type
	switch ts.Type {
	case "JSON":
		ss := struct {
			Spec JSONSinkSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		s.Spec = ss.Spec
	case "Elastic":
		ss := struct {
			Spec ElasticSinkSpec `yaml:"Spec"`
		}{}
		if err := unmarshal(&ss); err != nil {
			return err
		}
		s.Spec = ss.Spec
	default:
		return fmt.Errorf("config: unrecognized telemetry sink type %q", ts.Type)
	}
	return nil
}
