// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package telemetry exports network.Snapshot records to a configured
// sink, with a Start/Write/Stop lifecycle and a Stdout/JSON/Elastic
// triad of implementations, each writing per-node snapshot documents.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/tigera/dcnetsim/network"
)

// Sink receives a network.Snapshot each time the driver publishes one.
type Sink interface {
	Write(snap *network.Snapshot)
	Start(ctx context.Context)
	Stop()
}

// NewStdout returns a Sink that prints every node's snapshot document.
func NewStdout() Sink { return stdoutSink{} }

type stdoutSink struct{}

func (stdoutSink) Write(snap *network.Snapshot) {
	for _, d := range docsFromSnapshot(snap) {
		fmt.Printf("%+v\n", d)
	}
}

func (stdoutSink) Start(_ context.Context) {}
func (stdoutSink) Stop()                   {}

// jsonSink writes each node's snapshot document as a line of JSON to
// out.
type jsonSink struct {
	out io.Writer
}

// NewJSONSink returns a Sink writing newline-delimited JSON to out.
func NewJSONSink(out io.Writer) Sink {
	return jsonSink{out: out}
}

func (j jsonSink) Write(snap *network.Snapshot) {
	for _, d := range docsFromSnapshot(snap) {
		b, err := json.Marshal(d)
		if err != nil {
			log.WithError(err).Warn("telemetry: json sink: marshal failed")
			continue
		}
		if _, err := j.out.Write(append(b, '\n')); err != nil {
			log.WithError(err).Warn("telemetry: json sink: write failed")
			return
		}
	}
}

func (j jsonSink) Start(_ context.Context) {}
func (j jsonSink) Stop()                   {}

// Driver fans each network.Snapshot handed to Publish out to a set of
// registered Sinks; taking the snapshot is the caller's job.
type Driver struct {
	sinks []Sink
}

// NewDriver returns an empty telemetry Driver.
func NewDriver() *Driver { return &Driver{} }

// Register adds sink to the fan-out set and starts it.
func (d *Driver) Register(ctx context.Context, sink Sink) {
	d.sinks = append(d.sinks, sink)
	sink.Start(ctx)
}

// Publish fans snap out to every registered sink.
func (d *Driver) Publish(snap *network.Snapshot) {
	for _, s := range d.sinks {
		s.Write(snap)
	}
}

// Stop stops every registered sink, flushing any buffered output.
func (d *Driver) Stop() {
	for _, s := range d.sinks {
		s.Stop()
	}
}
