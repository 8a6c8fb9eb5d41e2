package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/stretchr/testify/require"
)

// Тесты доменного клиента на фейковом chi-бэкенде: пути и тела запросов,
// разбор ответов, {"status":"error"}, пагинация ленты и параллельная подгрузка.

// fakeAPI — бэкенд с лентой из pages страниц и списком рецептов в памяти.
type fakeAPI struct {
	mu       sync.Mutex
	pages    int
	list     map[int64]bool
	fav      map[int64]bool
	cooked   []int64
	cookbook []models.Recipe
	images   []string

	refreshed atomic.Int32
	inflight  atomic.Int32
	maxFlight atomic.Int32
	failPage  int
	slow      time.Duration
}

func newFake(pages int) *fakeAPI {
	return &fakeAPI{pages: pages, list: map[int64]bool{}, fav: map[int64]bool{}}
}

func (f *fakeAPI) snapshot() (cooked []int64, images []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.cooked...), append([]string(nil), f.images...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) id(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (f *fakeAPI) router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/load-more-recipes/{page}", func(w http.ResponseWriter, req *http.Request) {
			n := f.inflight.Add(1)
			defer f.inflight.Add(-1)
			for {
				m := f.maxFlight.Load()
				if n <= m || f.maxFlight.CompareAndSwap(m, n) {
					break
				}
			}
			if f.slow > 0 {
				time.Sleep(f.slow)
			}

			page, _ := strconv.Atoi(chi.URLParam(req, "page"))
			if page == f.failPage {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			out := models.Recipes{Recipes: []models.Recipe{}}
			if page <= f.pages {
				for i := 0; i < PageSize; i++ {
					id := int64((page-1)*PageSize + i + 1)
					out.Recipes = append(out.Recipes, models.Recipe{ID: id, Title: fmt.Sprintf("r%d", id)})
				}
			}
			writeJSON(w, out)
		})
		r.Get("/refresh-explore", func(w http.ResponseWriter, _ *http.Request) {
			f.refreshed.Add(1)
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, models.Recipes{Recipes: []models.Recipe{{ID: 1, Title: "found " + req.URL.Query().Get("q")}}})
		})

		r.Get("/get-recipe-list", func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			out := models.Recipes{}
			for id := range f.list {
				out.Recipes = append(out.Recipes, models.Recipe{ID: id, InList: true, InFavorites: f.fav[id]})
			}
			writeJSON(w, out)
		})
		r.Get("/get-recipe-list-count", func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			writeJSON(w, models.Count{Count: len(f.list)})
		})
		r.Get("/add-to-recipe-list/{id}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := f.id(req)
			if f.list[id] {
				writeJSON(w, models.Status{Status: "error"})
				return
			}
			f.list[id] = true
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/remove-from-recipe-list/{id}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.list, f.id(req))
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/toggle-recipe-in-list/{id}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := f.id(req)
			f.list[id] = !f.list[id]
			if !f.list[id] {
				delete(f.list, id)
			}
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/clear-recipe-list", func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.list = map[int64]bool{}
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/toggle-favorite/{id}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := f.id(req)
			f.fav[id] = !f.fav[id]
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/remove-from-favorites/{id}", func(w http.ResponseWriter, _ *http.Request) {
			// сервер иногда отвечает пустым телом
			w.WriteHeader(http.StatusOK)
		})
		r.Post("/submit-cooked-recipes", func(w http.ResponseWriter, req *http.Request) {
			var in models.CookedRecipes
			_ = json.NewDecoder(req.Body).Decode(&in)
			f.mu.Lock()
			f.cooked = append(f.cooked, in.RecipeIDs...)
			f.mu.Unlock()
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Post("/add-to-cookbook", func(w http.ResponseWriter, req *http.Request) {
			var in models.Recipe
			_ = json.NewDecoder(req.Body).Decode(&in)
			f.mu.Lock()
			f.cookbook = append(f.cookbook, in)
			f.mu.Unlock()
			writeJSON(w, models.Status{Status: "success"})
		})
		r.Get("/cookbook", func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			writeJSON(w, models.Recipes{Recipes: f.cookbook})
		})
		r.Post("/extract-recipe-info", func(w http.ResponseWriter, req *http.Request) {
			var in models.ExtractRequest
			_ = json.NewDecoder(req.Body).Decode(&in)
			f.mu.Lock()
			f.images = in.Images
			f.mu.Unlock()
			writeJSON(w, models.Recipe{Title: "Pancakes", Ingredients: []string{"flour", "milk"}})
		})
		r.Get("/get-favorites", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not here"}`))
		})
	})
	return r
}

func newClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()

	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)

	hc, err := apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return New(hc)
}

func TestLoadMoreRecipes(t *testing.T) {
	t.Parallel()

	c := newClient(t, newFake(2))
	ctx := context.Background()

	rs, err := c.LoadMoreRecipes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rs, PageSize)
	require.EqualValues(t, PageSize+1, rs[0].ID)

	rs, err = c.LoadMoreRecipes(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, rs)

	_, err = c.LoadMoreRecipes(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	c := newClient(t, newFake(0))

	rs, err := c.Search(context.Background(), "  soup ")
	require.NoError(t, err)
	require.Equal(t, "found soup", rs[0].Title)

	_, err = c.Search(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRecipeListFlow(t *testing.T) {
	t.Parallel()

	f := newFake(0)
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.AddToRecipeList(ctx, 10))
	require.NoError(t, c.AddToRecipeList(ctx, 11))
	require.ErrorIs(t, c.AddToRecipeList(ctx, 10), ErrOperationFailed)

	n, err := c.RecipeListCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, c.ToggleRecipeInList(ctx, 11))
	require.NoError(t, c.ToggleFavorite(ctx, 10))

	rs, err := c.RecipeList(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.True(t, rs[0].InList)
	require.True(t, rs[0].InFavorites)

	require.NoError(t, c.RemoveFromRecipeList(ctx, 10))
	require.NoError(t, c.AddToRecipeList(ctx, 12))
	require.NoError(t, c.ClearRecipeList(ctx))

	n, err = c.RecipeListCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.ErrorIs(t, c.AddToRecipeList(ctx, 0), ErrInvalidArgument)
}

func TestMutate_EmptyBodyIsSuccess(t *testing.T) {
	t.Parallel()

	c := newClient(t, newFake(0))
	require.NoError(t, c.RemoveFromFavorites(context.Background(), 3))
}

func TestFailedResponseIsAPIError(t *testing.T) {
	t.Parallel()

	c := newClient(t, newFake(0))

	_, err := c.Favorites(context.Background())
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "not here", apiErr.Message)
}

func TestCookedAndCookbook(t *testing.T) {
	t.Parallel()

	f := newFake(0)
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.SubmitCookedRecipes(ctx, []int64{1, 2}))
	cooked, _ := f.snapshot()
	require.Equal(t, []int64{1, 2}, cooked)
	require.ErrorIs(t, c.SubmitCookedRecipes(ctx, nil), ErrInvalidArgument)
	require.ErrorIs(t, c.SubmitCookedRecipes(ctx, []int64{1, -1}), ErrInvalidArgument)

	require.ErrorIs(t, c.AddToCookbook(ctx, models.Recipe{}), ErrInvalidArgument)
	require.NoError(t, c.AddToCookbook(ctx, models.Recipe{Title: "Soup", Ingredients: []string{"water"}}))

	rs, err := c.Cookbook(ctx)
	require.NoError(t, err)
	require.Equal(t, "Soup", rs[0].Title)
}

func TestExtractRecipeInfo(t *testing.T) {
	t.Parallel()

	f := newFake(0)
	c := newClient(t, f)

	r, err := c.ExtractRecipeInfo(context.Background(), [][]byte{[]byte("jpeg-1"), []byte("jpeg-2")})
	require.NoError(t, err)
	require.Equal(t, "Pancakes", r.Title)

	_, images := f.snapshot()
	require.Equal(t, []string{
		base64.StdEncoding.EncodeToString([]byte("jpeg-1")),
		base64.StdEncoding.EncodeToString([]byte("jpeg-2")),
	}, images)

	_, err = c.ExtractRecipeInfo(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLoadPages_OrderAndLimit(t *testing.T) {
	t.Parallel()

	f := newFake(8)
	f.slow = 20 * time.Millisecond
	c := newClient(t, f)

	rs, err := c.LoadPages(context.Background(), 1, 8)
	require.NoError(t, err)
	require.Len(t, rs, 8*PageSize)
	for i, r := range rs {
		require.EqualValues(t, i+1, r.ID)
	}
	require.LessOrEqual(t, f.maxFlight.Load(), int32(prefetchLimit))

	_, err = c.LoadPages(context.Background(), 3, 2)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLoadPages_FirstErrorWins(t *testing.T) {
	t.Parallel()

	f := newFake(5)
	f.failPage = 3
	c := newClient(t, f)

	_, err := c.LoadPages(context.Background(), 1, 5)
	require.Equal(t, http.StatusInternalServerError, apiclient.StatusOf(err))
}

func TestPager(t *testing.T) {
	t.Parallel()

	f := newFake(2)
	c := newClient(t, f)
	ctx := context.Background()
	p := c.NewPager()

	rs, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rs, PageSize)
	require.Equal(t, 2, p.Page())

	_, err = p.Next(ctx)
	require.NoError(t, err)
	require.False(t, p.Done())

	rs, err = p.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, rs)
	require.True(t, p.Done())

	// после конца ленты запросы не уходят
	rs, err = p.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, rs)

	require.NoError(t, p.Reset(ctx))
	require.EqualValues(t, 1, f.refreshed.Load())
	require.False(t, p.Done())
	require.Equal(t, 1, p.Page())
}

func TestPager_BusyAndRetry(t *testing.T) {
	t.Parallel()

	f := newFake(3)
	f.slow = 100 * time.Millisecond
	f.failPage = 1
	c := newClient(t, f)
	ctx := context.Background()
	p := c.NewPager()

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.inflight.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err := p.Next(ctx)
	require.ErrorIs(t, err, ErrPagerBusy)

	require.Error(t, <-done)
	require.Equal(t, 1, p.Page())
}

// TestPager_ResetWhileLoading — Reset во время Next отклоняется, и страница
// после завершения Next сдвигается ровно на одну.
func TestPager_ResetWhileLoading(t *testing.T) {
	t.Parallel()

	f := newFake(3)
	f.slow = 100 * time.Millisecond
	c := newClient(t, f)
	ctx := context.Background()
	p := c.NewPager()

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.inflight.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, p.Reset(ctx), ErrPagerBusy)
	require.EqualValues(t, 0, f.refreshed.Load())

	require.NoError(t, <-done)
	require.Equal(t, 2, p.Page())

	require.NoError(t, p.Reset(ctx))
	require.Equal(t, 1, p.Page())
	require.EqualValues(t, 1, f.refreshed.Load())
}
