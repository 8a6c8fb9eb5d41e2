package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	// PageSize — рецептов на странице ленты (задаётся сервером).
	PageSize = 6
	// MaxPages — сколько страниц сервер держит в перемешанной выборке.
	MaxPages = 10

	prefetchLimit = 4
)

var (
	// ErrPagerBusy — страница уже загружается.
	ErrPagerBusy = errors.New("page load in progress")
)

// LoadMoreRecipes возвращает страницу page (с 1) случайной ленты.
func (c *Client) LoadMoreRecipes(ctx context.Context, page int) ([]models.Recipe, error) {
	const op = "api.LoadMoreRecipes"

	if page < 1 {
		return nil, fmt.Errorf("%s: %w: page %d", op, ErrInvalidArgument, page)
	}

	return c.recipes(ctx, op, "/load-more-recipes/"+strconv.Itoa(page), nil)
}

// RefreshExplore сбрасывает серверную выборку ленты: следующая страница 1
// будет новой случайной подборкой.
func (c *Client) RefreshExplore(ctx context.Context) error {
	return c.mutate(ctx, "api.RefreshExplore", http.MethodGet, "/refresh-explore", nil)
}

// Search ищет рецепты по подстроке названия.
func (c *Client) Search(ctx context.Context, query string) ([]models.Recipe, error) {
	const op = "api.Search"

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%s: %w: empty query", op, ErrInvalidArgument)
	}

	return c.recipes(ctx, op, "/search", url.Values{"q": {query}})
}

// LoadPages параллельно загружает страницы [from, to] и склеивает их по порядку.
// Первая ошибка отменяет остальные загрузки.
func (c *Client) LoadPages(ctx context.Context, from, to int) ([]models.Recipe, error) {
	const op = "api.LoadPages"

	if from < 1 || to < from {
		return nil, fmt.Errorf("%s: %w: pages %d..%d", op, ErrInvalidArgument, from, to)
	}

	pages := make([][]models.Recipe, to-from+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)

	for i := range pages {
		g.Go(func() error {
			rs, err := c.LoadMoreRecipes(gctx, from+i)
			if err != nil {
				return err
			}
			pages[i] = rs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.Recipe, 0, len(pages)*PageSize)
	for _, p := range pages {
		out = append(out, p...)
	}

	return out, nil
}

// ExtractRecipeInfo отправляет фотографии рецепта на распознавание и
// возвращает заготовку рецепта для редактирования.
func (c *Client) ExtractRecipeInfo(ctx context.Context, photos [][]byte) (*models.Recipe, error) {
	const op = "api.ExtractRecipeInfo"

	if len(photos) == 0 {
		return nil, fmt.Errorf("%s: %w: no photos", op, ErrInvalidArgument)
	}

	images := make([]string, 0, len(photos))
	for _, p := range photos {
		images = append(images, base64.StdEncoding.EncodeToString(p))
	}

	resp := c.http.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/extract-recipe-info",
		Body:   models.ExtractRequest{Images: images},
	})
	if err := resp.AsError(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var r models.Recipe
	if err := resp.Decode(&r); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &r, nil
}

// Pager — состояние бесконечной ленты: текущая страница, флаг загрузки,
// признак конца (пустая страница или MaxPages).
type Pager struct {
	api *Client

	mu      sync.Mutex
	next    int
	loading bool
	done    bool
}

// NewPager создаёт ленту с первой страницы.
func (c *Client) NewPager() *Pager {
	return &Pager{api: c, next: 1}
}

// Next загружает следующую страницу. (nil, nil) — лента закончилась.
// Параллельный вызов во время загрузки возвращает ErrPagerBusy.
// При ошибке номер страницы не сдвигается: повтор загрузит её же.
func (p *Pager) Next(ctx context.Context) ([]models.Recipe, error) {
	const op = "api.Pager.Next"

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return nil, nil
	}
	if p.loading {
		p.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrPagerBusy)
	}
	p.loading = true
	page := p.next
	p.mu.Unlock()

	rs, err := p.api.LoadMoreRecipes(ctx, page)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false

	if err != nil {
		return nil, err
	}

	p.next++
	if len(rs) == 0 || page >= MaxPages {
		p.done = true
	}
	if len(rs) == 0 {
		log.From(ctx).Debug("explore_exhausted", slog.String("op", op), slog.Int("page", page))
		return nil, nil
	}

	return rs, nil
}

// Page — номер страницы, которую загрузит следующий Next.
func (p *Pager) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.next
}

// Done — лента закончилась.
func (p *Pager) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}

// Reset сбрасывает серверную выборку и начинает ленту заново (pull-to-refresh).
// Пока идёт Next или другой Reset, возвращает ErrPagerBusy.
func (p *Pager) Reset(ctx context.Context) error {
	const op = "api.Pager.Reset"

	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrPagerBusy)
	}
	p.loading = true
	p.mu.Unlock()

	err := p.api.RefreshExplore(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false

	if err != nil {
		return err
	}

	p.next = 1
	p.done = false

	return nil
}
