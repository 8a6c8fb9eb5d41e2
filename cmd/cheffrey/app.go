package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/api"
	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient/interceptors"
	"github.com/pribylovaa/go-cheffrey-client/internal/auth"
	"github.com/pribylovaa/go-cheffrey-client/internal/config"
	"github.com/pribylovaa/go-cheffrey-client/internal/metrics"
	"github.com/pribylovaa/go-cheffrey-client/internal/session"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage/file"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage/memory"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage/postgres"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app — собранный граф зависимостей одного запуска CLI.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	creds   *storage.Credentials
	client  *apiclient.Client
	session *session.Controller
	api     *api.Client
}

// newApp собирает клиент: хранилище → два HTTP-клиента (основной и для
// /refresh) → сессия → auth-перехватчик на основном клиенте.
//
// Порядок трансформов важен: request id, User-Agent, метрики и лог
// добавляются до auth, чтобы ответ 401 был учтён до повтора.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	const op = "main.newApp"

	kvCtx, kvCancel := context.WithTimeout(ctx, 10*time.Second)
	kv, err := openKV(kvCtx, cfg.Store)
	kvCancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("store_opened", slog.String("backend", cfg.Store.Backend))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client, err := newHTTPClient(cfg.API, m)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refreshClient, err := newHTTPClient(cfg.API, m)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	creds := storage.NewCredentials(kv)
	sess := session.New(client, creds)

	authOpts := []auth.Option{auth.WithRefreshObserver(m.ObserveRefresh)}
	if cfg.Session.ProactiveRefresh {
		authOpts = append(authOpts, auth.WithProactiveRefresh(cfg.Session.ExpiryBuffer))
	}
	auth.New(client, creds, auth.NewRefresher(refreshClient, creds), sess, authOpts...).Mount()

	if s := sess.Restore(ctx); s != nil {
		log.Debug("session_restored", slog.String("user_id", s.Claims.ID))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  m,
		creds:    creds,
		client:   client,
		session:  sess,
		api:      api.New(client),
	}, nil
}

func (a *app) Close() error {
	return a.creds.Close()
}

func newHTTPClient(cfg config.APIConfig, m *metrics.Metrics) (*apiclient.Client, error) {
	c, err := apiclient.New(apiclient.Options{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}

	c.AddAsyncRequestTransform(interceptors.WithRequestID())
	c.AddAsyncRequestTransform(interceptors.WithUserAgent(cfg.UserAgent))
	c.AddAsyncResponseTransform(m.ResponseTransform())
	c.AddAsyncResponseTransform(interceptors.Logging(nil))

	return c, nil
}

// openKV открывает бэкенд хранилища по конфигу.
func openKV(ctx context.Context, cfg config.StoreConfig) (storage.KV, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreRedis:
		return redis.New(ctx, cfg.RedisURL, cfg.Prefix, cfg.TTL)
	case config.StorePostgres:
		return postgres.New(ctx, cfg.DatabaseURL, cfg.Prefix)
	case config.StoreFile:
		dir := cfg.Dir
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(base, "cheffrey")
		}
		return file.New(dir, cfg.Passphrase)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
