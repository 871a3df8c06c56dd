package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "megamarket_turns_total", Help: "Market turns completed"},
	)
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "megamarket_events_total", Help: "News events applied"},
		[]string{"scope"},
	)
	EventsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "megamarket_events_skipped_total", Help: "Event slots dropped after bounded resampling"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "megamarket_orders_total", Help: "Orders filled"},
		[]string{"symbol", "side"},
	)
	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "megamarket_order_rejections_total", Help: "Orders rejected"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(TurnsTotal, EventsTotal, EventsSkipped, OrdersTotal, OrderRejections)
}

// Handler exposes the default registry for mounting on an existing router.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve runs a standalone metrics listener, for binaries without an HTTP API.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
