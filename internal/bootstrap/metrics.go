package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeMetrics exposes the pipeline's Prometheus collectors on /metrics and
// a liveness probe on /healthz, blocking until ctx is canceled.
func ServeMetrics(ctx context.Context, addr string, services *ServiceContainer, logger *slog.Logger) error {
	gatherers := prometheus.Gatherers{}
	if services.CrawlerMetrics != nil {
		gatherers = append(gatherers, services.CrawlerMetrics.Registry)
	}
	if services.JobMetrics != nil {
		gatherers = append(gatherers, services.JobMetrics.Registry)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.InfoContext(ctx, "metrics listener started", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics listener: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	}
}
