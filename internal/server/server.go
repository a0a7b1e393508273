package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/blackcore/queryengine/config"
	rediscache "github.com/blackcore/queryengine/pkg/cache"
	"github.com/blackcore/queryengine/pkg/logger"
	"github.com/blackcore/queryengine/pkg/queryengine/cache"
	"github.com/blackcore/queryengine/pkg/queryengine/exportjob"
	"github.com/blackcore/queryengine/pkg/queryengine/loader"
	"github.com/blackcore/queryengine/pkg/queryengine/orchestrator"
	"github.com/blackcore/queryengine/pkg/queryengine/relate"
	"github.com/blackcore/queryengine/pkg/queryengine/stats"
	"github.com/blackcore/queryengine/pkg/queue"
	"github.com/blackcore/queryengine/pkg/schedule"
	"github.com/blackcore/queryengine/pkg/storage"
)

// Engines bundles the long-lived components a request handler needs.
// cmd/server builds its router against this, rather than reaching into
// individual packages.
type Engines struct {
	Query   *orchestrator.Engine
	Exports *exportjob.Manager
	Stats   *stats.Collector
}

// Boot wires config, logging, the multi-tier cache, the record loader,
// the export job manager, and the TTL sweeper, returning the assembled
// engines for a handler to bind routes against. It does not start the
// HTTP listener — call Serve with the handler built from Engines.
func Boot() (*Engines, func(), error) {
	if err := config.Load(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	procs := runtime.GOMAXPROCS(0)
	logger.Info("runtime", "GOMAXPROCS", procs, "NumCPU", runtime.NumCPU())

	// The generic Redis client backs nlquery parse caching independently of
	// the tiered query-result cache below; a down Redis just means parse
	// caching becomes a silent no-op.
	rediscache.Connect()

	storage.Connect()
	disk := storage.Use(config.StorageDefault())

	rec := loader.New(config.RecordStoreDir())

	var queryCache *cache.Cache
	if config.EnableCache() {
		l1 := cache.NewL1(config.L1CapacityBytes(), cache.PolicyLRU)
		var opts []cache.Option
		if config.L2Endpoint() != "" {
			opts = append(opts, cache.WithL2(cache.NewL2(config.L2Endpoint(), config.RedisPassword(), 0)))
		}
		if config.L3Enabled() {
			l3, err := cache.NewL3(config.L3Dir())
			if err != nil {
				logger.Warn("cache: L3 disk tier unavailable", "error", err)
			} else {
				opts = append(opts, cache.WithL3(l3))
			}
		}
		queryCache = cache.New(l1, opts...)
	}

	resolver := relate.New(rec, relate.EntityDatabaseMap{})
	collector := stats.New()

	engine := orchestrator.New(orchestrator.Config{
		Loader:    rec,
		Resolver:  resolver,
		Cache:     queryCache,
		Collector: collector,
		Optimize:  config.EnableOptimization(),
		Profile:   config.EnableProfiling(),
		Limits: orchestrator.Limits{
			MaxFilters:         config.MaxFiltersPerQuery(),
			MaxIncludes:        config.MaxIncludesPerQuery(),
			MaxUnfilteredReach: config.MaxUnfilteredReach(),
			Timeout:            config.QueryTimeout(),
			DefaultTTL:         config.DefaultTTL(),
		},
	})

	exports := exportjob.New(exportjob.Config{
		MaxConcurrent: config.MaxConcurrentExports(),
		ExportDir:     config.ExportDir(),
		Disk:          disk,
		Retention:     config.RetentionHours(),
	})
	queue.UsePersistence("queue/failed_exports.jsonl")

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	schedule.Hourly().Name("export-sweep").WithoutOverlapping().Run(func() {
		removed := exports.Sweep()
		if removed > 0 {
			logger.Info("exportjob: swept expired artifacts", "removed", removed)
		}
	})
	schedule.Start(sweepCtx)

	cleanup := func() {
		stopSweeper()
		exports.Shutdown()
		logger.CloseMongoHandler()
	}

	return &Engines{Query: engine, Exports: exports, Stats: collector}, cleanup, nil
}

// Serve runs the HTTP server with handler until SIGINT/SIGTERM, then shuts
// down gracefully. Callers build handler from the Engines returned by Boot
// so routes can reach the query engine, export manager, and stats collector.
func Serve(handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	addr := ":" + config.AppPort()
	srv := &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("query engine HTTP on %s [env: %s] [workers: %d]\n",
			addr, config.AppEnv(), runtime.GOMAXPROCS(0))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		fmt.Printf("\nsignal %s received, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
