// session — контроллер пользовательской сессии: вход, выход, регистрация,
// проверка срока жизни токена и операции с учётной записью.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/redact"
	"github.com/pribylovaa/go-cheffrey-client/internal/tokens"
)

// DefaultExpiryBuffer — запас до exp, при котором токен уже считается истёкшим.
const DefaultExpiryBuffer = 300 * time.Second

// Пути эндпоинтов учётной записи.
const (
	pathLogin                = "/login"
	pathRegister             = "/register"
	pathChangePassword       = "/change-password"
	pathSendVerification     = "/send-verification-email"
	pathForgotPassword       = "/forgot-password"
	pathChangeForgotPassword = "/change-forgot-password"
)

var (
	// ErrBadLoginResponse — в ответе /login нет access_token или он не разбирается.
	ErrBadLoginResponse = errors.New("bad login response")
	// ErrRegister — сервер отклонил регистрацию.
	ErrRegister = errors.New("registration failed")
	// ErrLoginAfterRegister — регистрация прошла, последующий вход — нет.
	ErrLoginAfterRegister = errors.New("login after registration failed")
	// ErrEmptyCredentials — пустой email или пароль.
	ErrEmptyCredentials = errors.New("email and password are required")
	// ErrRejected — сервер ответил 2xx, но со статусом "error".
	ErrRejected = errors.New("operation rejected")
)

// API — клиент REST API (с auth-трансформами).
type API interface {
	Do(ctx context.Context, req *apiclient.Request) *apiclient.Response
}

// Store — хранилище учётных данных.
type Store interface {
	StoreToken(ctx context.Context, token string) error
	StoreRefreshToken(ctx context.Context, token string) error
	RemoveToken(ctx context.Context) error
	RemoveRefreshToken(ctx context.Context) error
	User(ctx context.Context) *models.Claims
	AuthExpiration(ctx context.Context) (time.Time, bool)
}

// Controller владеет текущей сессией процесса.
type Controller struct {
	api   API
	store Store
	now   func() time.Time

	mu      sync.RWMutex
	current *models.Session
}

// New создаёт контроллер без активной сессии. Для подхвата сохранённых
// токенов вызовите Restore.
func New(api API, store Store) *Controller {
	return &Controller{api: api, store: store, now: time.Now}
}

// Login выполняет вход и сохраняет пару токенов.
//
// Неуспешный ответ сервера возвращается как есть (*apiclient.Error),
// без обёрток: текст сообщения для пользователя выбирает вызывающий.
// Сбой записи в хранилище только логируется: сессия в памяти всё равно
// устанавливается.
func (c *Controller) Login(ctx context.Context, email, password string) (*models.Session, error) {
	const op = "session.Login"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCredentials)
	}

	ctx, lg := log.With(ctx, slog.String("op", op), slog.String("email", redact.Email(email)))

	resp := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   models.Credentials{Email: email, Password: password},
	})
	if err := resp.AsError(); err != nil {
		lg.Info("login_failed",
			slog.Int("status", resp.Status),
			slog.String("problem", resp.Problem.String()),
		)
		return nil, err
	}

	var pair models.TokenPair
	if err := resp.Decode(&pair); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrBadLoginResponse, err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w: no access_token", op, ErrBadLoginResponse)
	}

	claims, err := tokens.Decode(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrBadLoginResponse, err)
	}

	// ошибки записи уже залогированы хранилищем
	_ = c.store.StoreToken(ctx, pair.AccessToken)
	if pair.RefreshToken != "" {
		_ = c.store.StoreRefreshToken(ctx, pair.RefreshToken)
	} else {
		lg.Warn("login_without_refresh_token")
	}

	s := &models.Session{Claims: *claims, LoggedInAt: c.now().UTC()}
	c.setCurrent(s)

	lg.Info("login_ok", slog.String("user_id", claims.ID))

	return s, nil
}

// Logout очищает сессию в памяти и удаляет оба токена.
// Идемпотентен; безопасен для вызова из auth-перехватчика.
func (c *Controller) Logout(ctx context.Context) error {
	const op = "session.Logout"

	c.setCurrent(nil)

	err := errors.Join(
		c.store.RemoveToken(ctx),
		c.store.RemoveRefreshToken(ctx),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("logout", slog.String("op", op))

	return nil
}

// Register регистрирует пользователя и сразу выполняет вход с теми же данными.
//
// Отказ регистрации оборачивает ErrRegister, сбой последующего входа —
// ErrLoginAfterRegister; исходная ошибка (*apiclient.Error) доступна через errors.As.
func (c *Controller) Register(ctx context.Context, email, password string) (*models.Session, error) {
	const op = "session.Register"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCredentials)
	}

	resp := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   pathRegister,
		Body:   models.Credentials{Email: email, Password: password},
	})
	if err := resp.AsError(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRegister, err)
	}

	s, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoginAfterRegister, err)
	}

	return s, nil
}

// IsTokenExpired — true, если токена нет, exp не задан или до него меньше buffer.
// buffer <= 0 заменяется на DefaultExpiryBuffer.
func (c *Controller) IsTokenExpired(ctx context.Context, buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}

	exp, ok := c.store.AuthExpiration(ctx)
	if !ok {
		return true
	}

	return exp.Sub(c.now()) < buffer
}

// Restore поднимает сессию из сохранённого access-токена (старт приложения).
// nil — токена нет или он не разбирается.
func (c *Controller) Restore(ctx context.Context) *models.Session {
	claims := c.store.User(ctx)
	if claims == nil {
		c.setCurrent(nil)
		return nil
	}

	s := &models.Session{Claims: *claims, LoggedInAt: claims.IssuedAt}
	c.setCurrent(s)

	return s
}

// Current возвращает копию текущей сессии или nil.
func (c *Controller) Current() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil
	}
	s := *c.current

	return &s
}

// ChangePassword меняет пароль текущего пользователя.
func (c *Controller) ChangePassword(ctx context.Context, current, next string) error {
	return c.call(ctx, "session.ChangePassword", http.MethodPost, pathChangePassword,
		models.ChangePassword{CurrentPassword: current, NewPassword: next})
}

// SendVerificationEmail просит сервер выслать письмо подтверждения адреса.
func (c *Controller) SendVerificationEmail(ctx context.Context) error {
	return c.call(ctx, "session.SendVerificationEmail", http.MethodGet, pathSendVerification, nil)
}

// SendForgotPasswordEmail отправляет код сброса пароля на email.
func (c *Controller) SendForgotPasswordEmail(ctx context.Context, email string) error {
	return c.call(ctx, "session.SendForgotPasswordEmail", http.MethodPost, pathForgotPassword,
		models.ForgotPassword{Email: strings.TrimSpace(email)})
}

// ChangeForgotPassword устанавливает новый пароль по коду из письма.
func (c *Controller) ChangeForgotPassword(ctx context.Context, in models.ResetPassword) error {
	return c.call(ctx, "session.ChangeForgotPassword", http.MethodPost, pathChangeForgotPassword, in)
}

// call выполняет запрос без полезного ответа. Тело {"status":"error"}
// на 2xx тоже считается отказом.
func (c *Controller) call(ctx context.Context, op, method, path string, body any) error {
	resp := c.api.Do(ctx, &apiclient.Request{Method: method, Path: path, Body: body})
	if err := resp.AsError(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var st models.Status
	if err := resp.Decode(&st); err == nil && st.Status != "" && !st.OK() {
		return fmt.Errorf("%s: %w: %s", op, ErrRejected, st.Message)
	}

	return nil
}

func (c *Controller) setCurrent(s *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = s
}
