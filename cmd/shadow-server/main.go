package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/api"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/internal/observability"
	"github.com/urbansight/shadow-engine/internal/query"
	"github.com/urbansight/shadow-engine/internal/scene"
	"github.com/urbansight/shadow-engine/internal/snapshot"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "TCP address the HTTP API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	scenePath := flag.String("scene", "", "Path to a JSON scene snapshot loaded at startup")
	redisAddr := flag.String("redis-addr", "", "Redis address for the scene snapshot cache (empty disables caching)")
	snapshotKey := flag.String("snapshot-key", "", "Cache key of a scene snapshot to load at startup")
	queueDepth := flag.Int("queue-depth", query.DefaultQueueDepth, "Bound on the query submission queue")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	log := logging.NewFromEnv()
	ctx := context.Background()

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	state := scene.NewSceneState(log, scene.WithMetricsRecorder(collector))

	var store *snapshot.Store
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: os.Getenv("SHADOW_REDIS_PASS"),
		})
		store = snapshot.NewStore(client)
	}

	loadInitialScene(ctx, log, state, store, *scenePath, *snapshotKey)

	coordinator := query.NewCoordinator(state, log,
		query.WithQueueDepth(*queueDepth),
		query.WithMetricsRecorder(collector),
	)
	coordinator.Start()

	server := api.NewServer(coordinator, state, log, api.WithMetrics(collector))
	httpSrv := &http.Server{
		Addr:    *httpAddr,
		Handler: server.Router(),
	}

	log.Info(ctx, "starting shadow API server", logging.String("addr", *httpAddr))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down shadow server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	coordinator.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// loadInitialScene tries the snapshot cache first, then a local file. The
// server starts with an empty scene when neither is available; queries fail
// open until one is loaded over the API.
func loadInitialScene(ctx context.Context, log logging.Logger, state *scene.SceneState, store *snapshot.Store, path, cacheKey string) {
	if store != nil && cacheKey != "" {
		snap, err := store.Load(ctx, cacheKey)
		if err == nil {
			if err := state.LoadSnapshot(ctx, snap); err == nil {
				return
			}
			log.Warn(ctx, "cached scene rejected", logging.String("key", cacheKey), logging.Err(err))
		} else {
			log.Warn(ctx, "cached scene unavailable", logging.String("key", cacheKey), logging.Err(err))
		}
	}

	if path == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warn(ctx, "skipping scene load", logging.String("path", path), logging.Err(err))
		return
	}
	defer f.Close()

	snap, err := core.DecodeSceneSnapshot(f)
	if err != nil {
		log.Warn(ctx, "failed to parse scene file", logging.String("path", path), logging.Err(err))
		return
	}
	if err := state.LoadSnapshot(ctx, snap); err != nil {
		log.Warn(ctx, "failed to load scene file", logging.String("path", path), logging.Err(err))
		return
	}

	if store != nil && cacheKey != "" {
		if err := store.Save(ctx, cacheKey, snap); err != nil {
			log.Warn(ctx, "failed to cache scene", logging.String("key", cacheKey), logging.Err(err))
		}
	}
}
