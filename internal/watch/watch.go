// watch — периодический опрос счётчика списка «к приготовлению».
// Долгоживущий режим CLI: вместе с ним живут /livez, /healthz и /metrics.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
)

// Counter — источник значения (api.Client.RecipeListCount).
type Counter interface {
	RecipeListCount(ctx context.Context) (int, error)
}

// Watcher опрашивает Counter с заданным периодом.
type Watcher struct {
	src      Counter
	interval time.Duration
	onChange func(n int)

	ready atomic.Bool
	last  atomic.Int64
}

// New создаёт Watcher. onChange вызывается при первом значении и
// при каждом его изменении; может быть nil.
func New(src Counter, interval time.Duration, onChange func(n int)) *Watcher {
	return &Watcher{src: src, interval: interval, onChange: onChange}
}

// Ready — был ли хотя бы один успешный опрос.
func (w *Watcher) Ready() bool { return w.ready.Load() }

// Last — последнее полученное значение.
func (w *Watcher) Last() int { return int(w.last.Load()) }

// Run опрашивает источник сразу и затем по тикеру до отмены ctx.
// Ошибки отдельных опросов логируются и не прерывают цикл.
func (w *Watcher) Run(ctx context.Context) error {
	const op = "watch.Run"

	if w.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %s", op, w.interval)
	}

	lg := log.From(ctx)
	lg.Info("watch_start",
		slog.String("op", op),
		slog.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx, lg)

	for {
		select {
		case <-ctx.Done():
			lg.Info("watch_stop", slog.String("op", op))
			return nil
		case <-ticker.C:
			w.tick(ctx, lg)
		}
	}
}

func (w *Watcher) tick(ctx context.Context, lg *slog.Logger) {
	n, err := w.src.RecipeListCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			lg.Warn("watch_tick_error", slog.String("err", err.Error()))
		}
		return
	}

	prev := w.last.Swap(int64(n))
	first := !w.ready.Swap(true)
	if first || prev != int64(n) {
		lg.Info("recipe_list_count", slog.Int("count", n))
		if w.onChange != nil {
			w.onChange(n)
		}
	}
}
