package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage"
	"github.com/pribylovaa/go-cheffrey-client/internal/storage/memory"
	"github.com/pribylovaa/go-cheffrey-client/internal/tokens"
	"github.com/pribylovaa/go-cheffrey-client/mocks"
	"github.com/stretchr/testify/require"
)

// Тесты контроллера сессии:
//   - unit на gomock-моках API и Store (ветки ошибок, идемпотентный logout,
//     различимость ошибок регистрации, проверка срока токена);
//   - сквозные сценарии на httptest + memory-хранилище.

var _ Store = (*storage.Credentials)(nil)
var _ API = (*apiclient.Client)(nil)

// reqTo — gomock-матчер запроса по методу и пути.
type reqTo struct{ method, path string }

func (m reqTo) Matches(x interface{}) bool {
	req, ok := x.(*apiclient.Request)
	return ok && req.Method == m.method && req.Path == m.path
}

func (m reqTo) String() string { return "request " + m.method + " " + m.path }

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func jsonResp(t *testing.T, status int, v any, req *apiclient.Request) *apiclient.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	p := apiclient.ProblemNone
	switch {
	case status >= 500:
		p = apiclient.ProblemServer
	case status >= 400:
		p = apiclient.ProblemClient
	}
	return &apiclient.Response{Status: status, Data: raw, Problem: p, Request: req}
}

func newController(t *testing.T) (*Controller, *mocks.MockAPI, *mocks.MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	api := mocks.NewMockAPI(ctrl)
	st := mocks.NewMockStore(ctrl)
	return New(api, st), api, st
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	c, api, st := newController(t)
	ctx := context.Background()
	access := token(t, jwt.MapClaims{"sub": "7", "email": "a@b.com", "exp": time.Now().Add(time.Hour).Unix()})

	api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/login"}).
		DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
			body := req.Body.(models.Credentials)
			require.Equal(t, "a@b.com", body.Email)
			require.Equal(t, "pw", body.Password)
			return jsonResp(t, 200, models.TokenPair{AccessToken: access, RefreshToken: "r"}, req)
		})
	st.EXPECT().StoreToken(gomock.Any(), access).Return(nil)
	st.EXPECT().StoreRefreshToken(gomock.Any(), "r").Return(nil)

	s, err := c.Login(ctx, " a@b.com ", "pw")
	require.NoError(t, err)
	require.Equal(t, "7", s.Claims.ID)
	require.Equal(t, "a@b.com", s.Claims.Email)
	require.Equal(t, s, c.Current())
}

func TestLogin_StoreFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	c, api, st := newController(t)
	access := token(t, jwt.MapClaims{"sub": "7"})

	api.EXPECT().Do(gomock.Any(), gomock.Any()).Return(jsonResp(t, 200, models.TokenPair{AccessToken: access, RefreshToken: "r"}, nil))
	st.EXPECT().StoreToken(gomock.Any(), access).Return(&storage.StorageError{Op: "set", Key: storage.KeyToken, Err: errors.New("disk full")})
	st.EXPECT().StoreRefreshToken(gomock.Any(), "r").Return(nil)

	s, err := c.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestLogin_ServerRejects_ReturnsFailureUntouched(t *testing.T) {
	t.Parallel()

	c, api, _ := newController(t)
	api.EXPECT().Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
			return jsonResp(t, 401, map[string]string{"message": "Invalid email or password"}, req)
		})

	s, err := c.Login(context.Background(), "a@b.com", "bad")
	require.Nil(t, s)

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.Unauthorized())
	require.Equal(t, "Invalid email or password", apiErr.Message)
	require.Nil(t, c.Current())
}

func TestLogin_BadResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    any
		wantErr error
	}{
		{name: "no access token", body: map[string]string{"refresh_token": "r"}, wantErr: ErrBadLoginResponse},
		{name: "malformed token", body: models.TokenPair{AccessToken: "not-a-jwt"}, wantErr: tokens.ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api, _ := newController(t)
			api.EXPECT().Do(gomock.Any(), gomock.Any()).Return(jsonResp(t, 200, tt.body, nil))

			_, err := c.Login(context.Background(), "a@b.com", "pw")
			require.ErrorIs(t, err, ErrBadLoginResponse)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogin_EmptyCredentials(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)

	_, err := c.Login(context.Background(), "  ", "pw")
	require.ErrorIs(t, err, ErrEmptyCredentials)

	_, err = c.Register(context.Background(), "a@b.com", "")
	require.ErrorIs(t, err, ErrEmptyCredentials)
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	c, _, st := newController(t)
	st.EXPECT().RemoveToken(gomock.Any()).Return(nil).Times(3)
	st.EXPECT().RemoveRefreshToken(gomock.Any()).Return(nil).Times(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Logout(context.Background()))
		require.Nil(t, c.Current())
	}
}

func TestLogout_StorageErrorsJoined(t *testing.T) {
	t.Parallel()

	c, _, st := newController(t)
	errA := &storage.StorageError{Op: "delete", Key: storage.KeyToken, Err: errors.New("a")}
	errR := &storage.StorageError{Op: "delete", Key: storage.KeyRefreshToken, Err: errors.New("r")}
	st.EXPECT().RemoveToken(gomock.Any()).Return(errA)
	st.EXPECT().RemoveRefreshToken(gomock.Any()).Return(errR)

	err := c.Logout(context.Background())
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errR)
	require.Nil(t, c.Current())
}

func TestRegister_ErrorsAreDistinguishable(t *testing.T) {
	t.Parallel()

	t.Run("registration rejected", func(t *testing.T) {
		c, api, _ := newController(t)
		api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/register"}).
			DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
				return jsonResp(t, 409, map[string]string{"message": "User already exists"}, req)
			})

		_, err := c.Register(context.Background(), "a@b.com", "pw")
		require.ErrorIs(t, err, ErrRegister)
		require.NotErrorIs(t, err, ErrLoginAfterRegister)
		require.Equal(t, 409, apiclient.StatusOf(err))
	})

	t.Run("login after register fails", func(t *testing.T) {
		c, api, _ := newController(t)
		gomock.InOrder(
			api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/register"}).
				Return(jsonResp(t, 200, models.Status{Status: "success"}, nil)),
			api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/login"}).
				DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
					return &apiclient.Response{Problem: apiclient.ProblemTimeout, Err: context.DeadlineExceeded, Request: req}
				}),
		)

		_, err := c.Register(context.Background(), "a@b.com", "pw")
		require.ErrorIs(t, err, ErrLoginAfterRegister)
		require.NotErrorIs(t, err, ErrRegister)
		require.Equal(t, apiclient.ProblemTimeout, apiclient.ProblemOf(err))
	})
}

func TestIsTokenExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		exp    time.Time
		has    bool
		buffer time.Duration
		want   bool
	}{
		{name: "no token", has: false, want: true},
		{name: "past", exp: now.Add(-time.Minute), has: true, want: true},
		{name: "inside default buffer", exp: now.Add(299 * time.Second), has: true, want: true},
		{name: "exactly default buffer", exp: now.Add(300 * time.Second), has: true, want: false},
		{name: "far future", exp: now.Add(time.Hour), has: true, want: false},
		{name: "custom buffer", exp: now.Add(10 * time.Minute), has: true, buffer: 15 * time.Minute, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, st := newController(t)
			c.now = func() time.Time { return now }
			st.EXPECT().AuthExpiration(gomock.Any()).Return(tt.exp, tt.has)

			require.Equal(t, tt.want, c.IsTokenExpired(context.Background(), tt.buffer))
		})
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	c, _, st := newController(t)
	gomock.InOrder(
		st.EXPECT().User(gomock.Any()).Return(&models.Claims{ID: "9"}),
		st.EXPECT().User(gomock.Any()).Return(nil),
	)

	s := c.Restore(context.Background())
	require.Equal(t, "9", s.Claims.ID)
	require.Equal(t, "9", c.Current().Claims.ID)

	require.Nil(t, c.Restore(context.Background()))
	require.Nil(t, c.Current())
}

func TestAccountOperations(t *testing.T) {
	t.Parallel()

	c, api, _ := newController(t)
	ctx := context.Background()

	api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/change-password"}).
		DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
			require.Equal(t, models.ChangePassword{CurrentPassword: "old", NewPassword: "new"}, req.Body)
			return jsonResp(t, 200, models.Status{Status: "success"}, req)
		})
	require.NoError(t, c.ChangePassword(ctx, "old", "new"))

	api.EXPECT().Do(gomock.Any(), reqTo{http.MethodGet, "/send-verification-email"}).
		Return(jsonResp(t, 200, models.Status{Status: "error", Message: "already verified"}, nil))
	err := c.SendVerificationEmail(ctx)
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "already verified")

	api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/forgot-password"}).
		DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
			require.Equal(t, models.ForgotPassword{Email: "a@b.com"}, req.Body)
			return &apiclient.Response{Status: 200, Request: req}
		})
	require.NoError(t, c.SendForgotPasswordEmail(ctx, " a@b.com"))

	api.EXPECT().Do(gomock.Any(), reqTo{http.MethodPost, "/change-forgot-password"}).
		DoAndReturn(func(_ context.Context, req *apiclient.Request) *apiclient.Response {
			return jsonResp(t, 400, map[string]string{"message": "Invalid verification code"}, req)
		})
	err = c.ChangeForgotPassword(ctx, models.ResetPassword{Email: "a@b.com", VerificationCode: "000"})
	require.Equal(t, 400, apiclient.StatusOf(err))
}

// fakeAuthServer — минимальный бэкенд /login и /register.
func fakeAuthServer(t *testing.T, access string) *apiclient.Client {
	t.Helper()

	users := map[string]string{}
	r := chi.NewRouter()
	r.Post("/api/register", func(w http.ResponseWriter, req *http.Request) {
		var in models.Credentials
		_ = json.NewDecoder(req.Body).Decode(&in)
		if _, ok := users[in.Email]; ok {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"User already exists"}`))
			return
		}
		users[in.Email] = in.Password
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	r.Post("/api/login", func(w http.ResponseWriter, req *http.Request) {
		var in models.Credentials
		_ = json.NewDecoder(req.Body).Decode(&in)
		if pw, ok := users[in.Email]; !ok || pw != in.Password {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.TokenPair{AccessToken: access, RefreshToken: "r"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api"})
	require.NoError(t, err)
	return c
}

// TestRegisterLoginLogout_EndToEnd — регистрация с автоматическим входом,
// затем выход очищает хранилище.
func TestRegisterLoginLogout_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	access := token(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})

	client := fakeAuthServer(t, access)
	creds := storage.NewCredentials(memory.New())
	c := New(client, creds)

	s, err := c.Register(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "user-1", s.Claims.ID)

	require.Equal(t, access, creds.Token(ctx))
	require.Equal(t, "r", creds.RefreshToken(ctx))
	require.Equal(t, "user-1", creds.User(ctx).ID)
	require.False(t, c.IsTokenExpired(ctx, 0))

	// повторная регистрация — ошибка регистрации, а не входа
	_, err = c.Register(ctx, "a@b.com", "pw")
	require.ErrorIs(t, err, ErrRegister)

	require.NoError(t, c.Logout(ctx))
	require.NoError(t, c.Logout(ctx))

	require.Empty(t, creds.Token(ctx))
	require.Empty(t, creds.RefreshToken(ctx))
	require.Nil(t, creds.User(ctx))
	require.Nil(t, c.Current())
	require.True(t, c.IsTokenExpired(ctx, 0))

	s, err = c.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "user-1", s.Claims.ID)
	require.Equal(t, access, creds.Token(ctx))
}
