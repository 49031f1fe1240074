package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/auth"
	"github.com/alecgard/taskhub/internal/config"
	"github.com/alecgard/taskhub/internal/metrics"
	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/session"
	"github.com/alecgard/taskhub/internal/team"
	"github.com/alecgard/taskhub/internal/teamtask"
	"github.com/alecgard/taskhub/internal/todo"
	"github.com/alecgard/taskhub/internal/user"
	"github.com/alecgard/taskhub/internal/verify"
)

const defaultConfigPath = "configs/taskhub.yaml"

// loadConfig reads --config, falling back to the default path when it exists.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to database")
	return pool, nil
}

// app holds the wired services shared by the commands.
type app struct {
	codes  *verify.Service
	users  *user.Directory
	auth   *auth.Service
	tokens session.Issuer
	teams  *team.Service
	tasks  *teamtask.Service
	todos  *todo.Service
}

// newApp builds every service over pool. m may be nil.
func newApp(cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics) (*app, error) {
	users := user.NewDirectory(user.NewPGStore(pool))

	dispatcher, err := newDispatcher(cfg.Notify)
	if err != nil {
		return nil, err
	}

	codes := verify.NewService(
		verify.NewPGStore(pool),
		verify.BcryptHasher{Cost: cfg.Auth.CodeHashCost},
		dispatcher,
		verify.Options{
			TTL:         cfg.Auth.CodeTTL,
			Cooldown:    cfg.Auth.CodeCooldown,
			MaxAttempts: cfg.Auth.CodeMaxAttempts,
		},
	)

	var issuer session.Issuer
	switch cfg.Auth.TokenMode {
	case config.TokenModeSigned:
		issuer = session.NewSigned([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL, users)
	default:
		issuer = session.NewOpaque(session.NewPGStore(pool), users)
	}

	authService := auth.NewService(codes, users, issuer)
	teams := team.NewService(team.NewPGStore(pool), users)

	if m != nil {
		dispatcher.SetMetrics(m)
		codes.SetMetrics(m)
		authService.SetMetrics(m)
	}

	return &app{
		codes:  codes,
		users:  users,
		auth:   authService,
		tokens: issuer,
		teams:  teams,
		tasks:  teamtask.NewService(teamtask.NewPGStore(pool), teams),
		todos:  todo.NewService(todo.NewPGStore(pool)),
	}, nil
}

// newDispatcher registers a notifier per channel for the configured driver.
func newDispatcher(cfg config.NotifyConfig) (*notify.Dispatcher, error) {
	d := notify.NewDispatcher(cfg.Timeout)
	switch cfg.Driver {
	case config.NotifyDriverLog:
		slog.Warn("notify driver is log: codes are written to the log, not delivered")
		d.Register(notify.ChannelPhone, notify.LogNotifier{Channel: notify.ChannelPhone})
		d.Register(notify.ChannelEmail, notify.LogNotifier{Channel: notify.ChannelEmail})
	case config.NotifyDriverHTTP:
		client := &http.Client{Timeout: cfg.Timeout}
		d.Register(notify.ChannelPhone, notify.NewSMSGateway(client, cfg.HTTP.BaseURL, cfg.HTTP.APIKey))
		d.Register(notify.ChannelEmail, notify.NewEmailGateway(client, cfg.HTTP.BaseURL, cfg.HTTP.APIKey))
	default:
		return nil, errors.New("unknown notify driver " + cfg.Driver)
	}
	return d, nil
}
