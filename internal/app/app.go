// Package app assembles a running sidequest process from its config: the
// database, the engine, notification sinks and the background loops that
// serve alongside the HTTP API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"sidequest/internal/config"
	"sidequest/internal/db"
	"sidequest/internal/engine"
	"sidequest/internal/logger"
	"sidequest/internal/migrate"
	"sidequest/internal/notify"
	"sidequest/internal/repo"
	"sidequest/internal/server"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Workspace string
	// Quiet discards log output. CLI one-shots use it.
	Quiet bool
}

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *sql.DB
	Engine   engine.Engine
	Notifier *notify.Notifier

	redis *goredis.Client
}

// Open loads config from the workspace, migrates the database and wires the
// notifier into a fresh engine. Callers must Close the App.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		return nil, err
	}
	log := logger.Nop()
	if !opts.Quiet {
		if log, err = logger.New(cfg.Logging.Mode); err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path, Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: conn}
	if addr := strings.TrimSpace(cfg.Notifications.RedisAddr); addr != "" {
		rdb, err := notify.NewRedisClient(ctx, addr)
		if err != nil {
			// notifications are best effort; the API still serves without redis
			log.Warn("redis sink disabled", "addr", addr, "error", err)
		} else {
			a.redis = rdb
		}
	}
	e := engine.New(conn, cfg)
	e.Log = log
	a.Notifier = notify.New(buildSinks(cfg, e.Repo, log, a.redis), log, time.Duration(cfg.Notifications.TimeoutSecs)*time.Second)
	e.Notify = a.Notifier
	a.Engine = e
	return a, nil
}

// buildSinks picks the delivery channels enabled by config. Mail is always on
// and goes to the log until an SMTP relay is configured.
func buildSinks(cfg *config.Config, r repo.Repo, log *logger.Logger, rdb *goredis.Client) notify.Multi {
	var sinks notify.Multi
	if cfg.Notifications.Log {
		sinks = append(sinks, notify.LogSink{Log: log})
	}
	if rdb != nil {
		sinks = append(sinks, notify.RedisSink{Client: rdb, Channel: cfg.Notifications.RedisChannel})
	}
	sinks = append(sinks, notify.MailSink{
		Directory: r,
		Mailer:    notify.LogMailer{Log: log},
		From:      cfg.Notifications.MailFrom,
	})
	return sinks
}

// Close drains pending notifications before releasing connections.
func (a *App) Close() error {
	if a.Notifier != nil {
		a.Notifier.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	a.Log.Sync()
	return errors.Join(errs...)
}

// Handler builds the HTTP API for this app.
func (a *App) Handler() (http.Handler, error) {
	secret := strings.TrimSpace(a.Config.Server.JWTSecret)
	if secret == "" {
		return nil, fmt.Errorf("SIDEQUEST_JWT_SECRET (or server.jwt_secret) is required for bearer auth")
	}
	return server.New(server.Config{
		Engine:   a.Engine,
		BasePath: a.Config.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret: secret,
			TokenTTL:  time.Duration(a.Config.Server.TokenTTLMinutes) * time.Minute,
			Logger:    a.Log,
		},
		Log: a.Log,
	})
}

// recapScheduler returns nil when this instance should not send recaps.
func (a *App) recapScheduler() *RecapScheduler {
	if !a.Config.Notifications.RecapScheduler {
		a.Log.Info("recap scheduler disabled")
		return nil
	}
	return &RecapScheduler{Engine: a.Engine, HourUTC: a.Config.Notifications.RecapHourUTC, Log: a.Log}
}

// Serve runs the HTTP server, the webhook dispatcher and the recap scheduler
// until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context, addr string) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	dispatcher := server.NewWebhookDispatcher(a.Engine.Repo, a.Config.Notifications.Webhooks, a.Log)
	recaps := a.recapScheduler()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("http server listening", "addr", addr, "base_path", a.Config.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	if recaps != nil {
		g.Go(func() error { return recaps.Run(gctx) })
	}

	err = g.Wait()
	a.Notifier.Wait()
	a.Log.Info("server stopped")
	return err
}
