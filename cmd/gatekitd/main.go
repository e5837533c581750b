package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fernandezvara/gatekit"
	"github.com/fernandezvara/gatekit/internal/app"
	"github.com/fernandezvara/gatekit/notify"
)

// userHeader carries the user id established by the identity provider
// in front of this service.
const userHeader = "X-Authenticated-User"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := app.NewLogger(cfg, "gatekitd")

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("gatekitd stopped")
	}
}

func run(ctx context.Context, cfg *app.Config, log zerolog.Logger) error {
	db, err := dbkit.New(dbkit.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := gatekit.NewMetrics(nil)
	store := gatekit.NewBunStore(db).WithMetrics(metrics)
	if err := store.ConfigurePool(cfg.PoolConfig()); err != nil {
		return err
	}
	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("migrations applied")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping; notifications will fail until it is reachable")
	}
	notifier := notify.NewAsynqNotifier(rdb, notify.Config{
		Queue:    cfg.NotifyQueue,
		MaxRetry: cfg.NotifyMaxRetry,
		Timeout:  cfg.NotifyTimeout,
	})
	defer notifier.Close()

	svc := gatekit.NewService(store,
		gatekit.WithLogger(log),
		gatekit.WithMetrics(metrics),
		gatekit.WithNotifier(notifier),
		gatekit.WithNotifyTimeout(cfg.NotifyTimeout),
		gatekit.WithHierarchyExemptPermissions(cfg.HierarchyExemptPermissions...),
	)
	defer svc.Close()

	if err := svc.SeedCatalog(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      newRouter(cfg, svc, store),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.AppAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *app.Config, svc *gatekit.Service, store *gatekit.BunStore) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.AppRequestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := store.Health(ctx)
		if !status.Healthy {
			http.Error(w, status.Error, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	h := gatekit.NewHandler(svc, gatekit.WithUserIDExtractor(func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(userHeader))
	}))
	r.Route("/api", h.MountRoutes)
	return r
}
