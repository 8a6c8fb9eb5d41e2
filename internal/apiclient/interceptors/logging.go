package interceptors

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/redact"
)

// Logging — response-трансформ, который пишет одну запись "http_call" на ответ:
// request_id, method, path, status, problem, retried, auth, dur.
// Уровень Info для 2xx и Warn для остальных.
//
// Безопасность: тело и query не логируются, от Authorization остаётся только схема.
// base == nil — используется логгер из контекста (pkg/log).
func Logging(base *slog.Logger) apiclient.ResponseTransform {
	return func(ctx context.Context, resp *apiclient.Response) *apiclient.Response {
		l := base
		if l == nil {
			l = log.From(ctx)
		}

		attrs := []any{
			slog.Int("status", resp.Status),
			slog.String("problem", resp.Problem.String()),
			slog.Duration("dur", resp.Duration),
		}
		if req := resp.Request; req != nil {
			attrs = append(attrs,
				slog.String("request_id", req.Header.Get(HeaderRequestID)),
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Bool("retried", req.Retried),
				slog.String("auth", redact.Authorization(req.Header.Get("Authorization"))),
			)
		}

		if resp.OK() {
			l.Info("http_call", attrs...)
			return nil
		}

		if resp.Err != nil {
			attrs = append(attrs, slog.String("err", resp.Err.Error()))
		}
		l.Warn("http_call", attrs...)

		return nil
	}
}
