// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/olivere/elastic"
	log "github.com/sirupsen/logrus"

	"github.com/tigera/dcnetsim/network"
)

// SnapshotIndexPrefix names the daily index a node snapshot document is
// bulk-indexed into.
const SnapshotIndexPrefix = "dcnetsim_snapshots."

const snapshotMapping = `{
  "mappings": {
    "_doc": {
      "properties" : {
        "timestamp_ms": {"type": "date", "format": "epoch_millis"},
        "node_id": {"type": "long"},
        "converged": {"type": "boolean"},
        "incoming_flows": {"type": "long"},
        "outgoing_flows": {"type": "long"},
        "generating_flows": {"type": "long"},
        "consuming_flows": {"type": "long"},
        "min_flow_throughput_ratio": {"type": "double"},
        "max_flow_throughput_ratio": {"type": "double"},
        "avg_flow_throughput_ratio": {"type": "double"},
        "node_throughput_mbps": {"type": "double"},
        "node_throughput_ratio": {"type": "double"},
        "power_draw_watts": {"type": "double"},
        "energy_consumed_joule": {"type": "double"}
      }
    }
  }
}`

// ElasticConfig configures an Elastic sink.
type ElasticConfig struct {
	URL        *url.URL
	Username   string
	Password   string
	PathToCA   string
	NumWorkers int
}

type elasticSink struct {
	c           *elastic.Client
	indexExists map[string]bool
	p           *elastic.BulkProcessor
	numWorkers  int
}

// NewElasticSink dials an Elasticsearch cluster and returns a Sink that
// bulk-indexes node snapshot documents into it, day-bucketed by index
// name.
func NewElasticSink(cfg ElasticConfig) (Sink, error) {
	ca, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("telemetry: elastic: system cert pool: %w", err)
	}
	if cfg.PathToCA != "" {
		cert, err := ioutil.ReadFile(cfg.PathToCA)
		if err != nil {
			return nil, fmt.Errorf("telemetry: elastic: read ca: %w", err)
		}
		if !ca.AppendCertsFromPEM(cert) {
			return nil, fmt.Errorf("telemetry: elastic: failed to add ca from %s", cfg.PathToCA)
		}
	}
	h := &http.Client{}
	if cfg.URL.Scheme == "https" {
		h.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: ca}}
	}

	options := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.URL.String()),
		elastic.SetHttpClient(h),
		elastic.SetErrorLog(log.StandardLogger()),
		elastic.SetSniff(false),
	}
	if cfg.Username != "" {
		options = append(options, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}
	c, err := elastic.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: elastic: new client: %w", err)
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 16
	}
	return &elasticSink{c: c, numWorkers: numWorkers, indexExists: make(map[string]bool)}, nil
}

func (e *elasticSink) Write(snap *network.Snapshot) {
	for _, d := range docsFromSnapshot(snap) {
		idxName := snapshotIndexName(d.TimestampMs)
		if !e.indexExists[idxName] {
			r, err := e.c.IndexExists(idxName).Do(context.Background())
			if err != nil {
				log.WithError(err).WithField("index", idxName).Warn("telemetry: elastic: index_exists failed")
				continue
			}
			e.indexExists[idxName] = r
			if !r {
				created, err := e.c.CreateIndex(idxName).BodyString(snapshotMapping).Do(context.Background())
				if err != nil {
					log.WithError(err).WithField("index", idxName).Warn("telemetry: elastic: create_index failed")
					continue
				}
				if !created.Acknowledged {
					log.WithField("index", idxName).Warn("telemetry: elastic: create_index not acknowledged")
					continue
				}
				e.indexExists[idxName] = true
			}
		}

		req := elastic.NewBulkIndexRequest().
			Index(idxName).
			Type("_doc").
			Doc(d)
		e.p.Add(req)
	}
}

func (e *elasticSink) Start(ctx context.Context) {
	p, err := e.c.BulkProcessor().Workers(e.numWorkers).Do(context.Background())
	if err != nil {
		log.WithError(err).Fatal("telemetry: elastic: bulk_processor start failed")
	}
	e.p = p
	p.Start(ctx)
}

func (e *elasticSink) Stop() {
	e.p.Flush()
	e.p.Close()
}

func snapshotIndexName(timestampMs int64) string {
	t := time.Unix(0, timestampMs*int64(time.Millisecond)).UTC()
	return SnapshotIndexPrefix + t.Format("20060102")
}
