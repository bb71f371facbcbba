// Package metrics exposes sweep results as Prometheus gauges and writes them
// in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so repeated runs in one process never
// collide on the default registerer.
type Recorder struct {
	reg *prometheus.Registry

	latency      *prometheus.GaugeVec
	cpuDomain    *prometheus.GaugeVec
	memoryDomain *prometheus.GaugeVec
	failed       *prometheus.CounterVec
	workers      prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "numabench_latency_ns",
			Help: "Average memory access latency per pointer-chasing hop.",
		}, []string{"rank", "size_mb", "mode"}),
		cpuDomain: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "numabench_cpu_numa_node",
			Help: "NUMA node of the CPU the worker ran on (-1 when unknown).",
		}, []string{"rank"}),
		memoryDomain: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "numabench_memory_numa_node",
			Help: "NUMA node backing the worker's buffer (-1 when unknown).",
		}, []string{"rank"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "numabench_probe_failures_total",
			Help: "Probes that could not run, by buffer size.",
		}, []string{"size_mb"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "numabench_workers",
			Help: "Number of workers in the measurement group.",
		}),
	}
	r.reg.MustRegister(r.latency, r.cpuDomain, r.memoryDomain, r.failed, r.workers)
	return r
}

// SetWorkers records the group size.
func (r *Recorder) SetWorkers(n int) {
	r.workers.Set(float64(n))
}

// ObserveLatency records one measurement. Negative values are probe
// failures and only bump the failure counter.
func (r *Recorder) ObserveLatency(rank, sizeMB int, mode string, ns float64) {
	size := strconv.Itoa(sizeMB)
	if ns < 0 {
		r.failed.WithLabelValues(size).Inc()
		return
	}
	r.latency.WithLabelValues(strconv.Itoa(rank), size, mode).Set(ns)
}

// ObservePlacement records where rank ran and where its memory lived.
func (r *Recorder) ObservePlacement(rank, cpuDomain, memoryDomain int) {
	label := strconv.Itoa(rank)
	r.cpuDomain.WithLabelValues(label).Set(float64(cpuDomain))
	r.memoryDomain.WithLabelValues(label).Set(float64(memoryDomain))
}

// Registry exposes the underlying registry (for tests and HTTP handlers).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes every metric to path for the node_exporter textfile
// collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
