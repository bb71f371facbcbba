package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLatency(t *testing.T) {
	r := NewRecorder()
	r.ObserveLatency(0, 512, "parallel", 91.5)
	r.ObserveLatency(1, 512, "parallel", 130.25)
	r.ObserveLatency(1, 1024, "parallel", -1)

	if got := testutil.ToFloat64(r.latency.WithLabelValues("0", "512", "parallel")); got != 91.5 {
		t.Errorf("rank 0 latency = %v, want 91.5", got)
	}
	if got := testutil.ToFloat64(r.latency.WithLabelValues("1", "512", "parallel")); got != 130.25 {
		t.Errorf("rank 1 latency = %v, want 130.25", got)
	}
	if got := testutil.ToFloat64(r.failed.WithLabelValues("1024")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	// Failed probes never publish a latency.
	if n := testutil.CollectAndCount(r.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestObservePlacement(t *testing.T) {
	r := NewRecorder()
	r.SetWorkers(2)
	r.ObservePlacement(1, 0, -1)

	if got := testutil.ToFloat64(r.cpuDomain.WithLabelValues("1")); got != 0 {
		t.Errorf("cpu domain = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.memoryDomain.WithLabelValues("1")); got != -1 {
		t.Errorf("memory domain = %v, want -1", got)
	}
	if got := testutil.ToFloat64(r.workers); got != 2 {
		t.Errorf("workers = %v, want 2", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveLatency(0, 64, "serial", 75)

	path := filepath.Join(t.TempDir(), "numabench.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `numabench_latency_ns{mode="serial",rank="0",size_mb="64"} 75`
	if !strings.Contains(string(raw), want) {
		t.Errorf("textfile missing %q:\n%s", want, raw)
	}
}

func TestWriteTextfileBadDir(t *testing.T) {
	r := NewRecorder()
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}
