package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ferry"

// PrometheusCollector exposes a Collector's snapshot as Prometheus
// const metrics. Every scrape takes a fresh Snapshot.
type PrometheusCollector struct {
	source *Collector

	exchanges   *prometheus.Desc
	errors      *prometheus.Desc
	items       *prometheus.Desc
	bytes       *prometheus.Desc
	resultBytes *prometheus.Desc
	frames      *prometheus.Desc
	resultStore *prometheus.Desc
}

// NoStorageBackend labels collectors that persist nothing.
const NoStorageBackend = "none"

// NewPrometheusCollector wraps c. Role and storage backend become const
// labels.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	s := c.Snapshot()
	backend := s.StorageBackend
	if backend == "" {
		backend = NoStorageBackend
	}
	labels := prometheus.Labels{"role": s.Role, "storage_backend": backend}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}

	return &PrometheusCollector{
		source:      c,
		exchanges:   desc("exchanges_total", "Exchanges by outcome.", "outcome"),
		errors:      desc("errors_total", "Failed exchanges by error kind.", "kind"),
		items:       desc("items_total", "Items by disposition.", "disposition"),
		bytes:       desc("payload_bytes_total", "Item payload bytes by direction.", "direction"),
		resultBytes: desc("result_bytes_total", "Result blob bytes."),
		frames:      desc("frames_total", "Length-prefixed frames by direction.", "direction"),
		resultStore: desc("result_store_writes_total", "Result store writes by status.", "status"),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.exchanges
	ch <- p.errors
	ch <- p.items
	ch <- p.bytes
	ch <- p.resultBytes
	ch <- p.frames
	ch <- p.resultStore
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.source.Snapshot()
	counter := func(desc *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(p.exchanges, s.ExchangesStarted, "started")
	counter(p.exchanges, s.ExchangesCompleted, "completed")
	counter(p.exchanges, s.ExchangesFailed, "failed")
	for kind, v := range s.ErrorsByKind {
		counter(p.errors, v, kind)
	}

	counter(p.items, s.ItemsSent, "sent")
	counter(p.items, s.ItemsReceived, "received")
	counter(p.items, s.ItemsSkipped, "skipped")

	counter(p.bytes, s.PayloadBytesSent, "sent")
	counter(p.bytes, s.PayloadBytesReceived, "received")
	counter(p.resultBytes, s.ResultBytes)

	counter(p.frames, s.FramesWritten, "written")
	counter(p.frames, s.FramesRead, "read")

	counter(p.resultStore, s.ResultStoreSuccess, "success")
	counter(p.resultStore, s.ResultStoreFailure, "failure")
}

// WriteTextfile writes cs in the Prometheus text exposition format to path,
// for pickup by a node_exporter textfile collector. Collectors must differ
// in role or storage backend.
func WriteTextfile(path string, cs ...*Collector) error {
	reg := prometheus.NewRegistry()
	for _, c := range cs {
		if err := reg.Register(NewPrometheusCollector(c)); err != nil {
			return err
		}
	}
	return prometheus.WriteToTextfile(path, reg)
}

// Verify PrometheusCollector implements prometheus.Collector.
var _ prometheus.Collector = (*PrometheusCollector)(nil)
