// Package main provides the entry point for the Openshelf catalog daemon.
// It keeps the catalog healthy in the background: sweeping unattached
// license pools back through clustering and exposing Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"

	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/di"
	"github.com/openshelf/openshelf-server/internal/di/providers"
	"github.com/openshelf/openshelf-server/internal/logger"
	"github.com/openshelf/openshelf-server/internal/service"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap catalog: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	cfg := do.MustInvoke[*config.Config](injector)
	cluster := do.MustInvoke[*service.ClusterService](injector)

	// Metrics endpoint
	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("Metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Periodic sweep over pools that previous runs left without a work.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.Cluster.ReclusterInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				clustered, err := cluster.ReclusterUnattached(sweepCtx, service.ResolveOptions{})
				if err != nil {
					log.Error("Recluster sweep failed", "error", err)
					continue
				}
				if clustered > 0 {
					log.Info("Recluster sweep completed", "pools_clustered", clustered)
				}
				recomputeStragglers(sweepCtx, injector, log)
			}
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(injector, metricsServer, stopSweep, log)
}

// recomputeStragglers retries the presentation pipeline for works that
// previous passes left without display metadata, usually because the
// classifier or evaluator was down at the time.
func recomputeStragglers(ctx context.Context, injector *do.RootScope, log *logger.Logger) {
	presentation := do.MustInvoke[*service.PresentationService](injector)
	storeHandle := do.MustInvoke[*providers.StoreHandle](injector)

	works, err := storeHandle.WorksNotPresentationReady(ctx, 100)
	if err != nil {
		log.Error("Presentation sweep failed", "error", err)
		return
	}
	for _, work := range works {
		if _, err := presentation.Recompute(ctx, work.ID); err != nil {
			log.Warn("Presentation sweep recompute failed", "work_id", work.ID, "error", err)
		}
	}
}

func waitForShutdown(injector *do.RootScope, metricsServer *http.Server, stopSweep context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down catalog gracefully...")
	stopSweep()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server shutdown error", "error", err)
		}
		cancel()
	}

	// Shutdown all services in reverse order
	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	// Handles wrap the store, cache and index, so close them explicitly.
	if searchHandle, err := do.Invoke[*providers.SearchIndexHandle](injector); err == nil {
		if err := searchHandle.Shutdown(); err != nil {
			log.Error("Failed to close search index", "error", err)
		}
	}

	if cacheHandle, err := do.Invoke[*providers.ClosureCacheHandle](injector); err == nil {
		if err := cacheHandle.Shutdown(); err != nil {
			log.Error("Failed to close closure cache", "error", err)
		}
	}

	if storeHandle, err := do.Invoke[*providers.StoreHandle](injector); err == nil {
		if err := storeHandle.Shutdown(); err != nil {
			log.Error("Failed to close database", "error", err)
		} else {
			log.Info("Database closed successfully")
		}
	}

	log.Info("Catalog stopped")
}
