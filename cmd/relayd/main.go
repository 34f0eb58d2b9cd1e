// Command relayd runs the glassdesk stream relay: the HTTP surface for stream
// sessions, chunk ingest, latest-frame lookup and push channels, plus the
// Prometheus exporter and the chunk file sweeper.
//
// Usage:
//
//	relayd -config /etc/relay/relay.yaml
//
// With no config file it listens on :8080 with an in-memory frame store and
// ./data as the storage root. RELAY_REDIS_ADDR switches the frame store to
// redis without touching the config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glassdesk/relay/config"
	"github.com/glassdesk/relay/framestore"
	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/metrics/prometheus"
	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/screenshots"
	"github.com/glassdesk/relay/server"
	"github.com/glassdesk/relay/storage/local"
	"github.com/glassdesk/relay/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to relay.yaml (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("Relay exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames, err := buildFrameStore(ctx, cfg)
	if err != nil {
		return err
	}

	chunks, err := local.NewChunkStore(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("opening chunk store: %w", err)
	}

	clients := registry.NewMemoryRegistry()
	shots := screenshots.NewMemoryStore()

	sessions := stream.NewSessionRegistry(frames, clients,
		stream.WithSessionTTL(cfg.SessionTTL.Std()))
	ingestor := stream.NewIngestor(frames, chunks, clients,
		stream.WithLatestTTL(cfg.LatestTTL.Std()),
		stream.WithSequenceTTL(cfg.SequenceTTL.Std()),
		stream.WithRateLimit(cfg.IngestRate, cfg.IngestBurst))
	resolver := stream.NewResolver(frames, clients, shots, chunks)
	notifier := stream.NewNotifier(chunks, sessions,
		stream.WithPollInterval(cfg.PollInterval.Std()))

	srv := server.NewServer(sessions, ingestor, resolver, notifier, clients,
		server.WithAddr(cfg.ListenAddr),
		server.WithMaxViewers(cfg.MaxViewers),
		server.WithScreenshotStorage(shots, chunks))

	errCh := make(chan error, 2)

	// Start blocks until shutdown, so the exporter gets its own goroutine.
	var exporter *prometheus.Exporter
	if cfg.MetricsPort > 0 {
		exporter = prometheus.NewExporter(fmt.Sprintf(":%d", cfg.MetricsPort))
		go func() {
			logger.Info("Metrics exporter listening", "port", cfg.MetricsPort)
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics exporter: %w", err)
			}
		}()
	}

	if cfg.Sweep.Interval > 0 {
		sweeper := local.NewSweeper(chunks, cfg.Sweep.MaxAge.Std())
		go sweeper.Run(ctx, cfg.Sweep.Interval.Std())
		logger.Info("Chunk sweeper running",
			"interval", cfg.Sweep.Interval.Std().String(),
			"max_age", cfg.Sweep.MaxAge.Std().String())
	}

	go func() {
		logger.Info("Relay listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if exporter != nil {
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown incomplete", "error", err)
		}
	}
	return nil
}

// buildFrameStore selects the frame store backend from config: redis when an
// address is given, in-memory otherwise.
func buildFrameStore(ctx context.Context, cfg *config.Config) (framestore.Store, error) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory frame store")
		return framestore.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Using redis frame store", "addr", cfg.RedisAddr)
	return framestore.NewRedisStore(client, framestore.WithPrefix(cfg.RedisPrefix)), nil
}
