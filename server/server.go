// Package server exposes the relay over HTTP: session control, chunk ingest,
// latest-frame lookup, push channels (SSE and websocket), client registration,
// and screenshot upload.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/screenshots"
	"github.com/glassdesk/relay/storage"
	"github.com/glassdesk/relay/stream"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultMaxViewers caps concurrent push channel connections.
	defaultMaxViewers = 256

	// maxBodyBytes bounds request bodies; frames are base64 so allow headroom
	// over the raw chunk size.
	maxBodyBytes = 16 << 20
)

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithPort sets the TCP port for ListenAndServe.
func WithPort(port int) ServerOption {
	return func(s *Server) { s.addr = fmt.Sprintf(":%d", port) }
}

// WithAddr sets the full listen address, overriding WithPort.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithMaxViewers caps concurrent SSE/websocket viewers.
func WithMaxViewers(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxViewers = n
		}
	}
}

// WithScreenshotStorage wires the durable screenshot store and its file
// writer, enabling the upload endpoint and the cascade's final tier.
func WithScreenshotStorage(store screenshots.Store, files storage.FileWriter) ServerOption {
	return func(s *Server) {
		s.screenshots = store
		s.files = files
	}
}

// Server routes HTTP traffic to the relay subsystems.
type Server struct {
	sessions *stream.SessionRegistry
	ingestor *stream.Ingestor
	resolver *stream.Resolver
	notifier *stream.Notifier
	clients  registry.Registry

	screenshots screenshots.Store
	files       storage.FileWriter

	addr       string
	maxViewers int
	viewerSem  *semaphore.Weighted
	httpSrv    *http.Server
}

// NewServer creates a relay HTTP server over the given subsystems.
func NewServer(
	sessions *stream.SessionRegistry,
	ingestor *stream.Ingestor,
	resolver *stream.Resolver,
	notifier *stream.Notifier,
	clients registry.Registry,
	opts ...ServerOption,
) *Server {
	s := &Server{
		sessions:   sessions,
		ingestor:   ingestor,
		resolver:   resolver,
		notifier:   notifier,
		clients:    clients,
		maxViewers: defaultMaxViewers,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.viewerSem = semaphore.NewWeighted(int64(s.maxViewers))
	return s
}

// Handler returns the relay's HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/stream/start/{clientId}", s.handleStreamStart)
	mux.HandleFunc("POST /api/stream/stop/{clientId}", s.handleStreamStop)
	mux.HandleFunc("GET /api/stream/request/{clientId}", s.handleStreamRequest)
	mux.HandleFunc("GET /api/stream/status/{clientId}", s.handleStreamStatus)
	mux.HandleFunc("POST /api/stream/chunk/{clientId}", s.handleStreamChunk)
	mux.HandleFunc("GET /api/stream/latest/{clientId}", s.handleStreamLatest)
	mux.HandleFunc("GET /api/stream/events/{clientId}", s.handleStreamEvents)
	mux.HandleFunc("GET /api/stream/ws/{clientId}", s.handleStreamWS)

	mux.HandleFunc("POST /api/clients/register", s.handleClientRegister)
	mux.HandleFunc("POST /api/clients/heartbeat", s.handleClientHeartbeat)
	mux.HandleFunc("GET /api/clients/{clientId}", s.handleClientGet)
	mux.HandleFunc("GET /api/clients", s.handleClientList)

	mux.HandleFunc("POST /api/screenshots", s.handleScreenshotUpload)
	mux.HandleFunc("GET /api/screenshots/{clientId}", s.handleScreenshotList)

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return http.MaxBytesHandler(mux, maxBodyBytes)
}

// ListenAndServe starts the HTTP server on the configured port.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests. Push channel handlers exit
// when their request contexts are cancelled by the server shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
