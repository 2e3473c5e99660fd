// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Command dcnetsim runs a discrete-event network flow simulation
// experiment end to end: it loads a topology and workload/telemetry
// configuration, drives simulated time forward in fixed ticks, and
// publishes a network.Snapshot to every configured telemetry sink at
// each tick.
package main

import (
	"context"
	"flag"
	"io/ioutil"

	log "github.com/sirupsen/logrus"

	"github.com/tigera/dcnetsim/config"
	"github.com/tigera/dcnetsim/telemetry"
	"github.com/tigera/dcnetsim/topology"
	"github.com/tigera/dcnetsim/workload"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./experiment.yaml", "Experiment config file path")
	flag.Parse()

	log.SetLevel(log.InfoLevel)

	exp := config.Load(configPath)

	topoData, err := ioutil.ReadFile(exp.TopologyPath)
	if err != nil {
		log.WithField("path", exp.TopologyPath).Fatal(err)
	}
	topoSpec, err := topology.Parse(topoData)
	if err != nil {
		log.WithField("path", exp.TopologyPath).Fatal(err)
	}

	fair, err := exp.FairnessPolicy()
	if err != nil {
		log.Fatal(err)
	}
	net, err := topology.Build(topoSpec, fair, exp.Diameter)
	if err != nil {
		log.Fatal(err)
	}

	driver := workload.NewDriver()
	for _, wCfg := range exp.Workloads {
		gen, err := wCfg.New()
		if err != nil {
			log.WithField("type", wCfg.Type).Fatal(err)
		}
		driver.Add(gen)
	}

	ctx := context.Background()
	telem := telemetry.NewDriver()
	for _, sCfg := range exp.Telemetry {
		sink, err := sCfg.New()
		if err != nil {
			log.WithField("type", sCfg.Type).Fatal(err)
		}
		telem.Register(ctx, sink)
	}
	defer telem.Stop()

	start, end, err := exp.Times()
	if err != nil {
		log.Fatal(err)
	}
	if exp.TickInterval <= 0 {
		log.Fatal("config: tick_interval must be positive")
	}

	log.WithFields(log.Fields{
		"start": start,
		"end":   end,
		"tick":  exp.TickInterval,
	}).Info("dcnetsim: starting experiment")

	for now := start; now.Before(end); now = now.Add(exp.TickInterval) {
		if err := driver.Tick(now, net); err != nil {
			log.WithField("now", now).WithError(err).Warn("dcnetsim: tick did not converge")
		}
		snap, err := net.Snapshot()
		if err != nil {
			log.WithField("now", now).WithError(err).Warn("dcnetsim: snapshot did not converge")
		}
		telem.Publish(snap)
	}

	log.Info("dcnetsim: experiment complete")
}
