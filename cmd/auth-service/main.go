package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-local-auth/internal/config"
	authhttp "github.com/pribylovaa/go-local-auth/internal/http"
	"github.com/pribylovaa/go-local-auth/internal/metrics"
	"github.com/pribylovaa/go-local-auth/internal/password"
	"github.com/pribylovaa/go-local-auth/internal/ratelimit"
	"github.com/pribylovaa/go-local-auth/internal/service"
	"github.com/pribylovaa/go-local-auth/internal/storage"
	"github.com/pribylovaa/go-local-auth/internal/storage/postgres"
	"github.com/pribylovaa/go-local-auth/internal/storage/sqlite"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// migratingStorage: хранилище, умеющее применять встроенные миграции.
type migratingStorage interface {
	storage.Storage
	Migrate(ctx context.Context) error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting auth-service", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	st, err := openStorage(rootCtx, cfg.DB)
	if err != nil {
		log.Error("storage_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	log.Info("storage_initialized")

	hasher, err := password.New(cfg.Hash)
	if err != nil {
		log.Error("hasher_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		log.Error("token_manager_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	svc, err := service.New(st, hasher, tokens)
	if err != nil {
		log.Error("service_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	svc.SetMetrics(m)

	if cfg.Redis.RedisURL != "" {
		lim, err := ratelimit.Connect(rootCtx, cfg.Redis.RedisURL, cfg.Limiter)
		if err != nil {
			log.Error("redis_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}

		defer func() {
			if cerr := lim.Close(); cerr != nil {
				log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
			}
		}()

		svc.SetLimiter(lim)
		log.Info("login_limiter_enabled",
			slog.Int("max_attempts", cfg.Limiter.MaxAttempts),
			slog.Duration("cooldown", cfg.Limiter.Cooldown),
		)
	} else {
		log.Info("login_limiter_disabled")
	}

	apiHandler := authhttp.NewRouter(svc, tokens, authhttp.Options{
		Logger:      log,
		Timeout:     cfg.Timeouts.Service,
		Metrics:     m,
		CORSOrigins: cfg.HTTP.CORSAllowedOrigins,
	})

	var ready int32 // 0: not ready; 1: ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("service_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// openStorage открывает хранилище выбранного драйвера и применяет миграции.
func openStorage(ctx context.Context, cfg config.DBConfig) (migratingStorage, error) {
	var (
		st  migratingStorage
		err error
	)

	switch cfg.Driver {
	case config.DriverPostgres:
		st, err = postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		st, err = sqlite.New(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	return st, nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
