package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-cheffrey-client/internal/watch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cmdWatch — долгоживущий режим: опрос списка «к приготовлению» и
// служебный HTTP (/livez, /healthz, /metrics) до SIGINT/SIGTERM.
func cmdWatch(ctx context.Context, a *app, _ []string) error {
	if a.session.Current() == nil {
		return errNotLoggedIn
	}

	w := newWatcher(a)

	addr := a.cfg.Metrics.Addr()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           opsRouter(a, w),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		a.log.Info("http_listen_start", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	watchCtx, watchCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(watchCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			a.log.Error("http_serve_failed", slog.String("err", err.Error()))
			runErr = err
		}
	case err := <-done:
		runErr = err
	}

	watchCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http_force_stop", slog.String("err", err.Error()))
	}

	return runErr
}

func newWatcher(a *app) *watch.Watcher {
	return watch.New(a.api, a.cfg.Watch.Interval, a.metrics.SetRecipeListSize)
}

func opsRouter(a *app, w *watch.Watcher) http.Handler {
	r := chi.NewRouter()

	r.Get("/livez", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.Ready() {
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("ok"))
			return
		}
		http.Error(rw, "not ready", http.StatusServiceUnavailable)
	})

	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	return r
}
