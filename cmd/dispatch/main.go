package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/bot-dispatch/internal/api"
	"github.com/LeventeLantos/bot-dispatch/internal/cache"
	"github.com/LeventeLantos/bot-dispatch/internal/client"
	"github.com/LeventeLantos/bot-dispatch/internal/command"
	"github.com/LeventeLantos/bot-dispatch/internal/config"
	"github.com/LeventeLantos/bot-dispatch/internal/repo"
	"github.com/LeventeLantos/bot-dispatch/internal/schedule"
	"github.com/LeventeLantos/bot-dispatch/internal/scheduler"
	"github.com/LeventeLantos/bot-dispatch/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		slog.Error("bot-dispatch exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("bot-dispatch starting",
		"addr", cfg.Server.Address,
		"interval", cfg.Scheduler.Interval,
		"batch", cfg.Scheduler.BatchSize,
		"redis", cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := repo.Migrate(ctx, db); err != nil {
		return err
	}

	registry := command.NewRegistry(repo.NewPostgresCommandRepo(db))
	resolver := command.NewResolver(registry)

	contacts := repo.NewPostgresContactDirectory(db)
	store := schedule.NewStore(repo.NewPostgresMessageRepo(db), contacts,
		schedule.WithContentMax(cfg.Webhook.ContentMax))

	dispatcher, err := service.NewDispatcher(store, contacts, client.NewWebhookClient(cfg.Webhook.URL), service.DispatcherConfig{
		BatchSize:   cfg.Scheduler.BatchSize,
		SendTimeout: cfg.Scheduler.SendTimeout,
		Concurrency: cfg.Scheduler.Concurrency,
	})
	if err != nil {
		return err
	}

	var receipts cache.DeliveryCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		receipts = cache.NewRedisCache(rdb, cfg.Redis.TTL)
		dispatcher.WithReceipts(receipts)
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) error {
		_, err := dispatcher.Tick(ctx)
		return err
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	h := api.NewHandler(api.Deps{
		Scheduler: sched,
		Registry:  registry,
		Resolver:  resolver,
		Store:     store,
		Receipts:  receipts,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
