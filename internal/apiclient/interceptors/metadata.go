// interceptors — типовые трансформы apiclient: x-request-id, user-agent,
// логирование вызовов.
package interceptors

import (
	"context"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
)

// HeaderRequestID — заголовок корреляции запросов.
const HeaderRequestID = "X-Request-Id"

type ctxKey string

// CtxRequestID — ключ контекста для заранее известного request id.
const CtxRequestID ctxKey = "request_id"

// WithRequestID возвращает request-трансформ, который проставляет x-request-id:
// из контекста (CtxRequestID), иначе новый UUID. Уже заданный заголовок
// (например, при повторе запроса) сохраняется.
func WithRequestID() apiclient.RequestTransform {
	return func(ctx context.Context, req *apiclient.Request) error {
		if req.Header.Get(HeaderRequestID) != "" {
			return nil
		}

		rid, _ := ctx.Value(CtxRequestID).(string)
		if rid == "" {
			rid = uuid.NewString()
		}
		req.Header.Set(HeaderRequestID, rid)

		return nil
	}
}

// WithUserAgent возвращает request-трансформ, выставляющий User-Agent.
// Пустой userAgent — трансформ ничего не делает.
func WithUserAgent(userAgent string) apiclient.RequestTransform {
	return func(_ context.Context, req *apiclient.Request) error {
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}

		return nil
	}
}
