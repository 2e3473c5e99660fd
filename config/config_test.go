package config

import (
	"testing"

	"gopkg.in/yaml.v2"
)

func TestExperimentParsesWorkloadsAndTelemetry(t *testing.T) {
	doc := []byte(`
Topology: topo.json
Fairness: MaxMin
Diameter: 4
StartTime: "2026-01-01 00:00:00"
EndTime: "2026-01-01 01:00:00"
TickInterval: 1m
Workloads:
  - Type: Basic
    Spec:
      Src: 1
      Dst: 2
      BaseKbps: 1000
      Scaler:
        Constant: 1
  - Type: Burst
    Spec:
      At: "2026-01-01 00:10:00"
      DurationMs: 5000
      Subject: 1
      Peers: [2, 3]
      Pattern: fan_out
      NumFlows: 10
      FlowKbps: 5
Telemetry:
  - Type: JSON
    Spec:
      Path: out.json
`)
	var exp Experiment
	if err := yaml.Unmarshal(doc, &exp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(exp.Workloads) != 2 {
		t.Fatalf("expected 2 workloads, got %d", len(exp.Workloads))
	}
	if _, ok := exp.Workloads[0].Spec.(BasicSpec); !ok {
		t.Fatalf("expected first workload to decode as BasicSpec, got %T", exp.Workloads[0].Spec)
	}
	if _, ok := exp.Workloads[1].Spec.(BurstSpec); !ok {
		t.Fatalf("expected second workload to decode as BurstSpec, got %T", exp.Workloads[1].Spec)
	}
	if len(exp.Telemetry) != 1 {
		t.Fatalf("expected 1 telemetry sink, got %d", len(exp.Telemetry))
	}

	start, end, err := exp.Times()
	if err != nil {
		t.Fatalf("times: %v", err)
	}
	if !end.After(start) {
		t.Fatalf("expected end after start, got start=%v end=%v", start, end)
	}

	fair, err := exp.FairnessPolicy()
	if err != nil {
		t.Fatalf("fairness_policy: %v", err)
	}
	if fair == nil {
		t.Fatal("expected a non-nil fairness policy")
	}
}

func TestWorkloadConfigNewBuildsBasicGenerator(t *testing.T) {
	w := WorkloadConfig{Type: "Basic", Spec: BasicSpec{Src: 1, Dst: 2, BaseKbps: 500}}
	gen, err := w.New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if gen == nil {
		t.Fatal("expected a non-nil generator")
	}
}

func TestServiceChainSpecRejectsUnknownUpstream(t *testing.T) {
	w := WorkloadConfig{
		Type: "ServiceChain",
		Spec: ServiceChainSpec{
			Root:    1,
			Ingress: "frontend",
			Services: []ServiceSpec{
				{Name: "frontend", Node: 2, Upstreams: []UpstreamSpec{{Service: "missing", Weight: 1}}},
			},
		},
	}
	if _, err := w.New(); err == nil {
		t.Fatal("expected an error for an upstream referencing an undefined service")
	}
}

func TestUnknownFairnessPolicyIsRejected(t *testing.T) {
	exp := Experiment{Fairness: "Bogus"}
	if _, err := exp.FairnessPolicy(); err == nil {
		t.Fatal("expected an error for an unknown fairness policy")
	}
}
