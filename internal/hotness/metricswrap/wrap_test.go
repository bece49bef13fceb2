package metricswrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness/expdecay"
	"github.com/mohammed-shakir/hazard-aggregator/internal/metrics"
)

func scrape(t *testing.T, p *metrics.Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	return rr.Body.String()
}

func Test_HotnessGauge_Updates(t *testing.T) {
	p := metrics.Init(metrics.Config{})
	p.Register(observability.Collectors()...)

	tr := expdecay.New(30*time.Second, clockwork.NewFakeClock())
	w := New(tr, Options{Threshold: 2})

	w.Inc("areaA")
	w.Inc("areaB")
	w.Inc("areaB")
	w.Reset("areaA")

	body := scrape(t, p)
	for _, want := range []string{
		`hazard_hot_areas{tier="tracked"} 1`,
		`hazard_hot_areas{tier="warm"} 1`,
		`hazard_hot_areas{tier="hot"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q, got:\n%s", want, body)
		}
	}
}

func TestShouldLog_Bounds(t *testing.T) {
	if shouldLog(0, "k") {
		t.Fatalf("sample 0 must never log")
	}
	if !shouldLog(1, "k") {
		t.Fatalf("sample 1 must always log")
	}
	if shouldLog(0.5, "k") != shouldLog(0.5, "k") {
		t.Fatalf("sampling must be deterministic per key")
	}
}
