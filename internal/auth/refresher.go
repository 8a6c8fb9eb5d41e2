package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
)

// DefaultRefreshPath — эндпоинт обмена refresh-токена.
const DefaultRefreshPath = "/refresh"

// Refresher обменивает refresh-токен на новый access-токен.
//
// Клиент должен быть отдельным экземпляром без auth-трансформов, иначе
// 401 на /refresh снова запустит обновление.
type Refresher struct {
	client *apiclient.Client
	creds  Credentials
	path   string
}

// NewRefresher создаёт Refresher поверх client.
func NewRefresher(client *apiclient.Client, creds Credentials) *Refresher {
	return &Refresher{client: client, creds: creds, path: DefaultRefreshPath}
}

// Refresh выполняет POST /refresh с Authorization: Bearer <refresh>.
//
// Ошибки:
//   - ErrNoRefreshToken — refresh-токена нет;
//   - ErrRefreshRejected — сервер ответил 401;
//   - ErrBadRefreshResponse — в ответе нет access_token;
//   - *apiclient.Error — прочие сбои вызова.
//
// Сбой записи новых токенов в хранилище не считается ошибкой обновления.
func (r *Refresher) Refresh(ctx context.Context) error {
	const op = "auth.Refresher.Refresh"

	rt := r.creds.RefreshToken(ctx)
	if rt == "" {
		return fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	resp := r.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   r.path,
		Header: http.Header{headerAuthorization: {bearerPrefix + rt}},
		Body:   struct{}{},
	})
	if !resp.OK() {
		if resp.Status == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w: %w", op, ErrRefreshRejected, resp.AsError())
		}
		return fmt.Errorf("%s: %w", op, resp.AsError())
	}

	var pair models.TokenPair
	if err := resp.Decode(&pair); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrBadRefreshResponse, err)
	}
	if pair.AccessToken == "" {
		return fmt.Errorf("%s: %w", op, ErrBadRefreshResponse)
	}

	// сбой записи уже залогирован хранилищем
	_ = r.creds.StoreToken(ctx, pair.AccessToken)

	rotated := pair.RefreshToken != "" && pair.RefreshToken != rt
	if rotated {
		_ = r.creds.StoreRefreshToken(ctx, pair.RefreshToken)
	}

	log.From(ctx).Info("token_refreshed",
		slog.String("op", op),
		slog.Bool("rotated", rotated),
	)

	return nil
}

var _ TokenRefresher = (*Refresher)(nil)
