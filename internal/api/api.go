// api — типизированные обёртки над REST API Cheffrey: лента, поиск,
// список рецептов, избранное, кулинарная книга, история приготовленного.
//
// Все методы ходят через клиент с auth-трансформами, поэтому 401 и
// обновление токена обрабатываются ниже, а сюда приходит уже итоговый ответ.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
)

var (
	// ErrOperationFailed — сервер ответил 2xx со статусом "error".
	ErrOperationFailed = errors.New("operation failed")
	// ErrInvalidArgument — некорректный аргумент вызова (страница, id, пустой запрос).
	ErrInvalidArgument = errors.New("invalid argument")
)

// Doer — клиент REST API.
type Doer interface {
	Do(ctx context.Context, req *apiclient.Request) *apiclient.Response
}

// Client — доменный клиент API.
type Client struct {
	http Doer
}

// New создаёт доменный клиент поверх d.
func New(d Doer) *Client {
	return &Client{http: d}
}

// recipes выполняет GET path и разбирает {"recipes": [...]}.
func (c *Client) recipes(ctx context.Context, op, path string, q url.Values) ([]models.Recipe, error) {
	resp := c.http.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: path, Query: q})
	if err := resp.AsError(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out models.Recipes
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out.Recipes == nil {
		out.Recipes = []models.Recipe{}
	}

	return out.Recipes, nil
}

// mutate выполняет вызов, отвечающий {"status": ...}.
// Пустое тело на 2xx считается успехом.
func (c *Client) mutate(ctx context.Context, op, method, path string, body any) error {
	resp := c.http.Do(ctx, &apiclient.Request{Method: method, Path: path, Body: body})
	if err := resp.AsError(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var st models.Status
	if err := resp.Decode(&st); err != nil {
		if errors.Is(err, apiclient.ErrEmptyBody) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if st.Status != "" && !st.OK() {
		if st.Message != "" {
			return fmt.Errorf("%s: %w: %s", op, ErrOperationFailed, st.Message)
		}
		return fmt.Errorf("%s: %w", op, ErrOperationFailed)
	}

	return nil
}

func recipePath(prefix string, id int64) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("%w: recipe id %d", ErrInvalidArgument, id)
	}

	return fmt.Sprintf("%s/%d", prefix, id), nil
}

// byID выполняет GET-мутацию вида /<action>/<id>.
func (c *Client) byID(ctx context.Context, op, prefix string, id int64) error {
	path, err := recipePath(prefix, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return c.mutate(ctx, op, http.MethodGet, path, nil)
}
