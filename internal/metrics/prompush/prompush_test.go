package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"idremap/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCount reads the sample count of one SummaryVec child.
func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) uint64 {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec child does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("cases", "", ""); err == nil {
		t.Fatalf("expected error for missing gateway URL")
	}
	b, err := NewBackend("", "http://pushgateway:9091", "")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "idremap" {
		t.Fatalf("jobName = %q, want default idremap", b.jobName)
	}
}

// TestIncCounterRoutesByName checks each metric name reaches its collector
// and unknown names are ignored.
func TestIncCounterRoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("cases", "http://pushgateway:9091", "run-1")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "pipeline", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 7, metrics.Labels{"kind": "read"})
	b.IncCounter(metrics.ChunksTotal, 2, nil)
	b.IncCounter(metrics.OutcomesTotal, 3, metrics.Labels{"field": "OwnerId", "outcome": "matched"})
	b.IncCounter("unknown", 100, nil)
	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "pipeline", "status": "success"})

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("pipeline", "success")); got != 1 {
		t.Fatalf("step counter = %v", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("read")); got != 7 {
		t.Fatalf("row counter = %v", got)
	}
	if got := readCounterValue(t, b.chunkCounter); got != 2 {
		t.Fatalf("chunk counter = %v", got)
	}
	if got := readCounterValue(t, b.outcomes.WithLabelValues("OwnerId", "matched")); got != 3 {
		t.Fatalf("outcomes = %v", got)
	}
	if got := readSummaryCount(t, b.stepDuration, "pipeline", "success"); got != 1 {
		t.Fatalf("summary count = %d", got)
	}
}

// TestFlush verifies that Flush pushes to the gateway under the job and
// run id grouping key.
func TestFlush(t *testing.T) {
	t.Parallel()

	type req struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan req, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- req{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("cases", server.URL, "run-1")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var got req
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush did not send a request")
	}
	if got.method != http.MethodPut {
		t.Fatalf("method = %s, want PUT", got.method)
	}
	if !strings.Contains(got.path, "/job/cases") || !strings.Contains(got.path, "/run_id/run-1") {
		t.Fatalf("path = %s, want job and run_id grouping", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatalf("empty push body")
	}
}
