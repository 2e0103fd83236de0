package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.Ticks.Inc()
	m.Trades.WithLabelValues("buy").Inc()
	m.Price.Set(106)

	if got := testutil.ToFloat64(m.Ticks); got != 1 {
		t.Fatalf("expected 1 tick, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"autotrader_ticks_total 1", `autotrader_trades_total{side="buy"} 1`, "autotrader_price 106"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected exposition to contain %q", want)
		}
	}
}
