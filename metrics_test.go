package authkit

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndValue(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricRefreshSuccess)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := m.Value(MetricRefreshSuccess); got != 1 {
		t.Fatalf("refresh success = %d, want 1", got)
	}
	if got := m.Value(MetricLogout); got != 0 {
		t.Fatalf("logout = %d, want 0", got)
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, 3*time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics recorded a count: %d", got)
	}
	snapshot := m.Snapshot()
	if len(snapshot.Counters) != 0 || len(snapshot.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snapshot)
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 100)

	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("out of range id recorded a count: %d", got)
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	durations := []time.Duration{
		3 * time.Millisecond,   // bucket 0
		8 * time.Millisecond,   // bucket 1
		20 * time.Millisecond,  // bucket 2
		40 * time.Millisecond,  // bucket 3
		90 * time.Millisecond,  // bucket 4
		200 * time.Millisecond, // bucket 5
		400 * time.Millisecond, // bucket 6
		900 * time.Millisecond, // bucket 7
	}
	for _, d := range durations {
		m.Observe(MetricValidateLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, count := range buckets {
		if count != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, count)
		}
	}
}

func TestMetricsObserveIgnoresNonLatencyIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricLoginSuccess, time.Millisecond)

	if buckets := m.Snapshot().Histograms[MetricValidateLatency]; buckets != nil {
		for i, count := range buckets {
			if count != 0 {
				t.Fatalf("bucket %d unexpectedly %d", i, count)
			}
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricValidateSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricValidateSuccess); got != workers*perWorker {
		t.Fatalf("concurrent count = %d, want %d", got, workers*perWorker)
	}
}

func TestMetricsSnapshotIsDetached(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)

	snapshot := m.Snapshot()
	m.Inc(MetricLogout)

	if got := snapshot.Counters[MetricLogout]; got != 1 {
		t.Fatalf("snapshot mutated after capture: %d", got)
	}
}
