package llas

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Delta-Zero-Games/llas/internal/quality"
)

// Collector exposes every registered peer's current quality snapshot as
// Prometheus gauges on each scrape. It holds no state of its own beyond a
// reference to the session's registry, so Collect always reflects the
// registry's current peer set, each with the quality snapshot the receive
// pipeline most recently published for it.
type Collector struct {
	registry snapshotter

	latency *prometheus.Desc
	jitter  *prometheus.Desc
	loss    *prometheus.Desc
	bucket  *prometheus.Desc
}

// snapshotter is the slice of *registry.Registry's API the collector needs,
// kept narrow so the collector can be tested against a fake registry.
type snapshotter interface {
	Snapshot() []snapshotPeer
}

// snapshotPeer is the per-peer data the collector reads on each scrape.
type snapshotPeer struct {
	Addr  PeerAddr
	Stats quality.Stats
}

// NewCollector builds a Collector over reg. reg is typically a Session's
// internal registry, adapted through registryAdapter by Session.Collector.
func NewCollector(reg snapshotter) *Collector {
	return &Collector{
		registry: reg,
		latency: prometheus.NewDesc(
			"llas_peer_latency_ms", "Mean inter-arrival latency for a peer.",
			[]string{"peer"}, nil,
		),
		jitter: prometheus.NewDesc(
			"llas_peer_jitter_ms", "Mean inter-arrival jitter for a peer.",
			[]string{"peer"}, nil,
		),
		loss: prometheus.NewDesc(
			"llas_peer_loss_fraction", "Fraction of packets lost for a peer, 0..1.",
			[]string{"peer"}, nil,
		),
		bucket: prometheus.NewDesc(
			"llas_peer_quality_bucket", "Coarse quality classification, 0 (excellent) to 4 (critical).",
			[]string{"peer"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.latency
	descs <- c.jitter
	descs <- c.loss
	descs <- c.bucket
}

// Collect implements prometheus.Collector, walking a fresh registry
// snapshot so the scrape never blocks the receive pipeline.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, p := range c.registry.Snapshot() {
		label := p.Addr.String()
		metrics <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, p.Stats.MeanLatencyMs, label)
		metrics <- prometheus.MustNewConstMetric(c.jitter, prometheus.GaugeValue, p.Stats.MeanJitterMs, label)
		metrics <- prometheus.MustNewConstMetric(c.loss, prometheus.GaugeValue, p.Stats.LossFraction, label)
		metrics <- prometheus.MustNewConstMetric(c.bucket, prometheus.GaugeValue, float64(p.Stats.Bucket), label)
	}
}
