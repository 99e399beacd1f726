// Command server wires the rate limiting subsystem in front of the API
// routes. Construction order matters: the counter store handle is built
// here and injected into the services; its lifecycle (connect lazily,
// close on shutdown) is owned by this bootstrap, not by any package-level
// singleton.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/httpserver"
	"gatekeeper/internal/platform/logger"
	"gatekeeper/internal/ratelimit/admin"
	"gatekeeper/internal/ratelimit/classify"
	"gatekeeper/internal/ratelimit/events"
	"gatekeeper/internal/ratelimit/metrics"
	ratelimitmw "gatekeeper/internal/ratelimit/middleware"
	"gatekeeper/internal/ratelimit/policy"
	"gatekeeper/internal/ratelimit/service/abuse"
	"gatekeeper/internal/ratelimit/service/limiter"
	"gatekeeper/internal/ratelimit/store/counter"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/auth"
	"gatekeeper/pkg/platform/middleware/metadata"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// A malformed policy table or allow-list fails process start; there is
	// no sensible degraded mode for bad configuration.
	policies, err := policy.Load(
		policy.WithOverrides(cfg.RateLimit.Overrides),
		policy.WithDevMode(cfg.RateLimit.DevMode),
	)
	if err != nil {
		log.Error("invalid rate limit policy table", "error", err)
		os.Exit(1)
	}

	classifier, err := classify.New(cfg.RateLimit.Allowlist)
	if err != nil {
		log.Error("invalid rate limit allow-list", "error", err)
		os.Exit(1)
	}

	local := counter.NewMemoryStore(log)
	defer local.Close()

	store := counter.NewSelector(cfg.Redis, cfg.RateLimit.Disabled, local, log)
	defer store.Close()

	var sink events.Sink = events.NewSlogSink(log)
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, log)
		if err != nil {
			log.Error("failed to build kafka event sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = events.MultiSink{sink, kafkaSink}
	}

	mx := metrics.New()

	lim, err := limiter.New(store, policies, limiter.WithLogger(log), limiter.WithMetrics(mx))
	if err != nil {
		log.Error("failed to build limiter", "error", err)
		os.Exit(1)
	}

	detector, err := abuse.New(store, abuse.WithLogger(log), abuse.WithSink(sink), abuse.WithMetrics(mx))
	if err != nil {
		log.Error("failed to build abuse detector", "error", err)
		os.Exit(1)
	}

	guard := ratelimitmw.New(classifier, lim, detector, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithSink(sink),
		ratelimitmw.WithMetrics(mx),
	)

	adminSvc, err := admin.New(store, log)
	if err != nil {
		log.Error("failed to build admin service", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	// Operator surface: out-of-band, never rate limited itself.
	router.Mount("/admin/ratelimit", adminSvc.Handler())

	// Everything below runs behind the limiter.
	router.Group(func(r chi.Router) {
		r.Use(metadata.ClientMetadata)
		r.Use(auth.Middleware([]byte(cfg.JWTSigningKey)))
		r.Use(guard.Protect)
		mountAPIRoutes(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting gatekeeper", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
