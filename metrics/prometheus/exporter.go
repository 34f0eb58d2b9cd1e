package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultReadHeaderTimeout prevents Slowloris attacks.
const defaultReadHeaderTimeout = 10 * time.Second

// Exporter serves the relay's metrics registry over HTTP, with a /health
// endpoint alongside /metrics for scrape-target probes.
type Exporter struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithRegistry supplies a custom registry. The caller owns registration; the
// relay collectors and runtime collectors are not added automatically.
func WithRegistry(registry *prometheus.Registry) ExporterOption {
	return func(e *Exporter) { e.registry = registry }
}

// NewExporter creates an exporter listening on addr. With no options it
// serves a fresh registry holding the relay collectors plus Go runtime and
// process collectors.
func NewExporter(addr string, opts ...ExporterOption) *Exporter {
	e := &Exporter{}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
		for _, collector := range allMetrics {
			e.registry.MustRegister(collector)
		}
		e.registry.MustRegister(collectors.NewGoCollector())
		e.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", e.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	e.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return e
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the scrape handler, for embedding in another server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves until Shutdown or a listener error. It blocks; run it in a
// goroutine. Returns http.ErrServerClosed after a graceful Shutdown.
func (e *Exporter) Start() error {
	return e.srv.ListenAndServe()
}

// Shutdown gracefully stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}
