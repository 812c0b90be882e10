package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("requests_total", "Total requests.")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}
	if again := r.Counter("requests_total", ""); again != c {
		t.Error("same name returned a different counter")
	}

	g := r.Gauge("inflight", "")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Errorf("gauge = %d, want 3", g.Value())
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("calls", "op", "insert", "collection", "notes"); got != `calls{op="insert",collection="notes"}` {
		t.Errorf("WithLabels = %q", got)
	}
	if got := WithLabels("calls"); got != "calls" {
		t.Errorf("no labels = %q", got)
	}
	if got := WithLabels("calls", "dangling"); got != "calls" {
		t.Errorf("odd pairs = %q", got)
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("store_calls_total", "op", "query"), "Store calls.").Add(2)
	r.Counter(WithLabels("store_calls_total", "op", "insert"), "").Inc()
	r.Gauge("loaded_collections", "Loaded collections.").Set(1)

	out := r.Render()
	for _, want := range []string{
		"# HELP store_calls_total Store calls.",
		"# TYPE store_calls_total counter",
		`store_calls_total{op="query"} 2`,
		`store_calls_total{op="insert"} 1`,
		"# TYPE loaded_collections gauge",
		"loaded_collections 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestHistogramRender(t *testing.T) {
	r := New()
	h := r.Histogram("latency_seconds", "Latency.", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100) // beyond the last bound, lands only in +Inf

	out := r.Render()
	for _, want := range []string{
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="10"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("ok_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "ok_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
