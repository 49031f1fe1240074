package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/taskhub/internal/api"
	"github.com/alecgard/taskhub/internal/metrics"
	"github.com/alecgard/taskhub/internal/ratelimit"
	"github.com/alecgard/taskhub/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Taskhub API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New()
	m.RegisterDBPoolCollector(poolStats(pool))

	a, err := newApp(cfg, pool, m)
	if err != nil {
		return err
	}

	janitor := verify.NewJanitor(a.codes, cfg.Janitor.Interval)
	janitor.SetMetrics(m)
	go janitor.Start(ctx)

	// A zero default turns per-user limiting off.
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Default > 0 {
		limiter = ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
		go pruneLimiter(ctx, limiter, cfg.RateLimit.Window)
	}

	router := api.NewRouter(api.RouterDeps{
		Auth:           a.auth,
		Teams:          a.teams,
		Tasks:          a.tasks,
		Todos:          a.todos,
		Limiter:        limiter,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "token_mode", a.auth.TokenMode(), "notify_driver", cfg.Notify.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	janitor.Stop()

	return srv.Shutdown(shutdownCtx)
}

func poolStats(pool *pgxpool.Pool) metrics.DBPoolStatFunc {
	return func() metrics.PoolStats {
		s := pool.Stat()
		return metrics.PoolStats{
			Total:    s.TotalConns(),
			Idle:     s.IdleConns(),
			Acquired: s.AcquiredConns(),
			Max:      s.MaxConns(),
		}
	}
}

// pruneLimiter drops idle rate-limit buckets once per window.
func pruneLimiter(ctx context.Context, l *ratelimit.Limiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				slog.Debug("pruned rate limit buckets", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
