// storage — хранилище учётных данных клиента: access- и refresh-токены
// под фиксированными ключами поверх произвольного key-value бэкенда.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
	"github.com/pribylovaa/go-cheffrey-client/internal/tokens"
)

// Ключи, под которыми лежат токены.
const (
	KeyToken        = "authToken"
	KeyRefreshToken = "refreshToken"
)

var (
	// ErrNotFound — ключ отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
)

// KV — контракт защищённого key-value хранилища.
type KV interface {
	// Get возвращает значение ключа или ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set сохраняет значение (последний писатель побеждает).
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключ. Удаление отсутствующего ключа — не ошибка.
	Delete(ctx context.Context, key string) error
	// Close освобождает ресурсы бэкенда.
	Close() error
}

// StorageError — сбой чтения/записи/удаления в бэкенде.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Credentials — хранилище токенов поверх KV.
//
// Геттеры никогда не возвращают ошибку: сбой логируется и трактуется как
// «значения нет» (пользователь не аутентифицирован). Запись и удаление
// логируют сбой и возвращают *StorageError как нефатальное предупреждение.
type Credentials struct {
	kv KV
}

// NewCredentials оборачивает KV.
func NewCredentials(kv KV) *Credentials {
	return &Credentials{kv: kv}
}

// StoreToken сохраняет access-токен.
func (c *Credentials) StoreToken(ctx context.Context, token string) error {
	return c.set(ctx, KeyToken, token)
}

// Token возвращает access-токен или "".
func (c *Credentials) Token(ctx context.Context) string {
	return c.get(ctx, KeyToken)
}

// RemoveToken удаляет access-токен.
func (c *Credentials) RemoveToken(ctx context.Context) error {
	return c.remove(ctx, KeyToken)
}

// StoreRefreshToken сохраняет refresh-токен.
func (c *Credentials) StoreRefreshToken(ctx context.Context, token string) error {
	return c.set(ctx, KeyRefreshToken, token)
}

// RefreshToken возвращает refresh-токен или "".
func (c *Credentials) RefreshToken(ctx context.Context) string {
	return c.get(ctx, KeyRefreshToken)
}

// RemoveRefreshToken удаляет refresh-токен.
func (c *Credentials) RemoveRefreshToken(ctx context.Context) error {
	return c.remove(ctx, KeyRefreshToken)
}

// User декодирует текущий access-токен. nil — токена нет или он не разбирается.
func (c *Credentials) User(ctx context.Context) *models.Claims {
	const op = "storage.Credentials.User"

	tok := c.Token(ctx)
	if tok == "" {
		return nil
	}

	claims, err := tokens.Decode(tok)
	if err != nil {
		log.From(ctx).Warn("token_decode_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil
	}

	return claims
}

// AuthExpiration возвращает exp текущего access-токена.
// false — токена нет, он не разбирается или exp не задан.
func (c *Credentials) AuthExpiration(ctx context.Context) (time.Time, bool) {
	claims := c.User(ctx)
	if !claims.HasExpiry() {
		return time.Time{}, false
	}

	return claims.ExpiresAt, true
}

// Close закрывает бэкенд.
func (c *Credentials) Close() error {
	return c.kv.Close()
}

func (c *Credentials) get(ctx context.Context, key string) string {
	const op = "storage.Credentials.get"

	v, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.From(ctx).Warn("storage_get_failed",
				slog.String("op", op),
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
		return ""
	}

	return v
}

func (c *Credentials) set(ctx context.Context, key, value string) error {
	const op = "storage.Credentials.set"

	if err := c.kv.Set(ctx, key, value); err != nil {
		log.From(ctx).Warn("storage_set_failed",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return &StorageError{Op: "set", Key: key, Err: err}
	}

	return nil
}

func (c *Credentials) remove(ctx context.Context, key string) error {
	const op = "storage.Credentials.remove"

	if err := c.kv.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		log.From(ctx).Warn("storage_delete_failed",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return &StorageError{Op: "delete", Key: key, Err: err}
	}

	return nil
}
