package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorsRegistered(t *testing.T) {
	TurnsTotal.Inc()
	EventsTotal.WithLabelValues("sector").Inc()
	EventsSkipped.Add(0)
	OrdersTotal.WithLabelValues("XOM", "buy").Inc()
	OrderRejections.WithLabelValues("insufficient_funds").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"megamarket_turns_total":            false,
		"megamarket_events_total":           false,
		"megamarket_events_skipped_total":   false,
		"megamarket_orders_total":           false,
		"megamarket_order_rejections_total": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

func TestHandlerExposesText(t *testing.T) {
	TurnsTotal.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("got status %d want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "megamarket_turns_total") {
		t.Fatalf("turn counter missing from exposition")
	}
}
