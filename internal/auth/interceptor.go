// auth — bearer-аутентификация и прозрачное обновление access-токена
// поверх apiclient.Client.
//
// Interceptor регистрирует на клиенте ровно один request-трансформ
// (подстановка Authorization) и один response-трансформ (401 → refresh →
// повтор запроса). Обновление single-flight: сколько бы запросов ни получили
// 401 одновременно, на /refresh уходит один вызов, остальные ждут его итога.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
)

const (
	// installKey — ключ регистрации трансформов на клиенте.
	installKey = "auth"

	// DefaultLoginPath — путь логина, 401 на котором не запускает refresh.
	DefaultLoginPath = "/login"

	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// Итоги обновления токена (метка для метрик).
const (
	RefreshOK       = "ok"
	RefreshRejected = "rejected"
	RefreshFailed   = "failed"
	RefreshShared   = "shared"
	RefreshNoToken  = "no_token"
)

var (
	// ErrRefreshRejected — сервер отклонил refresh-токен (401 на /refresh).
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrNoRefreshToken — refresh-токена нет в хранилище.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrBadRefreshResponse — в ответе /refresh нет access_token.
	ErrBadRefreshResponse = errors.New("refresh response without access token")
)

// Credentials — часть хранилища учётных данных, нужная перехватчику.
type Credentials interface {
	Token(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	StoreToken(ctx context.Context, token string) error
	StoreRefreshToken(ctx context.Context, token string) error
	AuthExpiration(ctx context.Context) (time.Time, bool)
}

// TokenRefresher выполняет один обмен refresh-токена на новый access-токен.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// Logouter завершает сессию. Вызывается, когда восстановить её нельзя.
type Logouter interface {
	Logout(ctx context.Context) error
}

// Option настраивает Interceptor.
type Option func(*Interceptor)

// WithRefreshObserver передаёт итог каждого обновления (RefreshOK, ...) в fn.
func WithRefreshObserver(fn func(result string)) Option {
	return func(i *Interceptor) {
		if fn != nil {
			i.observe = fn
		}
	}
}

// WithProactiveRefresh включает обновление перед отправкой запроса,
// если до истечения access-токена осталось меньше buffer.
func WithProactiveRefresh(buffer time.Duration) Option {
	return func(i *Interceptor) { i.proactive = buffer }
}

// WithLoginPath переопределяет путь логина.
func WithLoginPath(path string) Option {
	return func(i *Interceptor) { i.loginPath = path }
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

// Interceptor — состояние перехватчика одного клиента.
type Interceptor struct {
	client    *apiclient.Client
	creds     Credentials
	refresher TokenRefresher
	logouter  Logouter

	loginPath string
	proactive time.Duration
	observe   func(result string)
	now       func() time.Time

	mu       sync.Mutex
	inflight *call
	waiters  atomic.Int32
}

// call — общий результат одного обновления.
type call struct {
	done chan struct{}
	err  error
}

// New создаёт перехватчик для client. Трансформы не регистрируются до Mount.
func New(client *apiclient.Client, creds Credentials, refresher TokenRefresher, logouter Logouter, opts ...Option) *Interceptor {
	i := &Interceptor{
		client:    client,
		creds:     creds,
		refresher: refresher,
		logouter:  logouter,
		loginPath: DefaultLoginPath,
		observe:   func(string) {},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Mount регистрирует трансформы на клиенте. Повторные вызовы (в том числе
// с других экземпляров Interceptor для того же клиента) ничего не добавляют.
// true — регистрация произошла именно этим вызовом.
func (i *Interceptor) Mount() bool {
	return i.client.Install(installKey, i.onRequest, i.onResponse)
}

// onRequest подставляет bearer-токен. Нет токена — запрос уходит без него.
func (i *Interceptor) onRequest(ctx context.Context, req *apiclient.Request) error {
	const op = "auth.Interceptor.onRequest"

	if i.proactive > 0 && !i.isLogin(req) && i.expiresSoon(ctx) {
		if err := i.refresh(ctx); err != nil {
			// запрос всё равно уходит: дальше сработает обычная ветка 401
			log.From(ctx).Warn("proactive_refresh_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	if tok := i.creds.Token(ctx); tok != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+tok)
	}

	return nil
}

// onResponse обрабатывает 401: один refresh на запрос, затем повтор.
// nil — ответ не меняется.
func (i *Interceptor) onResponse(ctx context.Context, resp *apiclient.Response) *apiclient.Response {
	const op = "auth.Interceptor.onResponse"

	req := resp.Request
	if resp.OK() || resp.Status != http.StatusUnauthorized || req == nil || req.Retried || i.isLogin(req) {
		return nil
	}
	req.Retried = true

	lg := log.From(ctx).With(slog.String("op", op), slog.String("path", req.Path))

	if i.creds.RefreshToken(ctx) == "" {
		lg.Warn("refresh_token_missing")
		i.observe(RefreshNoToken)
		i.logout(ctx, lg)
		return nil
	}

	// Токен мог смениться, пока запрос был в пути: тогда достаточно повтора.
	sent := strings.TrimPrefix(req.Header.Get(headerAuthorization), bearerPrefix)
	if cur := i.creds.Token(ctx); cur == "" || cur == sent {
		if err := i.refresh(ctx); err != nil {
			// вызывающий сам отменил запрос: сессию не трогаем, ведущий
			// обновление доведёт его до конца
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				lg.Debug("token_refresh_abandoned", slog.String("err", err.Error()))
				return nil
			}
			lg.Warn("token_refresh_failed", slog.String("err", err.Error()))
			i.logout(ctx, lg)
			return nil
		}
	} else {
		lg.Debug("token_already_rotated")
	}

	return i.client.Do(ctx, req)
}

// refresh — single-flight обёртка над TokenRefresher.
//
// Первый вызвавший становится ведущим и выполняет обновление с контекстом,
// не наследующим отмену: его результат нужен всем ожидающим. Остальные ждут
// done либо отмены собственного ctx.
func (i *Interceptor) refresh(ctx context.Context) error {
	i.mu.Lock()
	if c := i.inflight; c != nil {
		i.waiters.Add(1)
		i.mu.Unlock()
		defer i.waiters.Add(-1)

		select {
		case <-c.done:
			i.observe(RefreshShared)
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	i.inflight = c
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.inflight = nil
		i.mu.Unlock()
		close(c.done)
	}()

	c.err = i.refresher.Refresh(context.WithoutCancel(ctx))
	i.observe(resultOf(c.err))

	return c.err
}

// expiresSoon — есть refresh-токен, а access-токен истекает в пределах буфера.
func (i *Interceptor) expiresSoon(ctx context.Context) bool {
	exp, ok := i.creds.AuthExpiration(ctx)
	if !ok || exp.Sub(i.now()) >= i.proactive {
		return false
	}

	return i.creds.RefreshToken(ctx) != ""
}

func (i *Interceptor) logout(ctx context.Context, lg *slog.Logger) {
	if err := i.logouter.Logout(ctx); err != nil {
		lg.Warn("logout_failed", slog.String("err", err.Error()))
		return
	}

	lg.Info("session_terminated")
}

func (i *Interceptor) isLogin(req *apiclient.Request) bool {
	return strings.Trim(req.Path, "/") == strings.Trim(i.loginPath, "/")
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return RefreshOK
	case errors.Is(err, ErrRefreshRejected):
		return RefreshRejected
	case errors.Is(err, ErrNoRefreshToken):
		return RefreshNoToken
	default:
		return RefreshFailed
	}
}
