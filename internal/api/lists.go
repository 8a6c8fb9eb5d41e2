package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
)

// RecipeList возвращает список рецептов пользователя («к приготовлению»).
func (c *Client) RecipeList(ctx context.Context) ([]models.Recipe, error) {
	return c.recipes(ctx, "api.RecipeList", "/get-recipe-list", nil)
}

// RecipeListCount возвращает число рецептов в списке.
func (c *Client) RecipeListCount(ctx context.Context) (int, error) {
	const op = "api.RecipeListCount"

	resp := c.http.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/get-recipe-list-count"})
	if err := resp.AsError(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var out models.Count
	if err := resp.Decode(&out); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return out.Count, nil
}

// AddToRecipeList добавляет рецепт в список.
func (c *Client) AddToRecipeList(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.AddToRecipeList", "/add-to-recipe-list", id)
}

// RemoveFromRecipeList убирает рецепт из списка.
func (c *Client) RemoveFromRecipeList(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.RemoveFromRecipeList", "/remove-from-recipe-list", id)
}

// ToggleRecipeInList добавляет или убирает рецепт.
func (c *Client) ToggleRecipeInList(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.ToggleRecipeInList", "/toggle-recipe-in-list", id)
}

// ClearRecipeList очищает список.
func (c *Client) ClearRecipeList(ctx context.Context) error {
	return c.mutate(ctx, "api.ClearRecipeList", http.MethodGet, "/clear-recipe-list", nil)
}

// Favorites возвращает избранное.
func (c *Client) Favorites(ctx context.Context) ([]models.Recipe, error) {
	return c.recipes(ctx, "api.Favorites", "/get-favorites", nil)
}

func (c *Client) AddToFavorites(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.AddToFavorites", "/add-to-favorites", id)
}

func (c *Client) RemoveFromFavorites(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.RemoveFromFavorites", "/remove-from-favorites", id)
}

func (c *Client) ToggleFavorite(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.ToggleFavorite", "/toggle-favorite", id)
}

// Cookbook возвращает собственные рецепты пользователя.
func (c *Client) Cookbook(ctx context.Context) ([]models.Recipe, error) {
	return c.recipes(ctx, "api.Cookbook", "/cookbook", nil)
}

// AddToCookbook сохраняет рецепт (в т.ч. распознанный с фото) в книгу.
func (c *Client) AddToCookbook(ctx context.Context, r models.Recipe) error {
	const op = "api.AddToCookbook"

	if r.Title == "" {
		return fmt.Errorf("%s: %w: empty title", op, ErrInvalidArgument)
	}

	return c.mutate(ctx, op, http.MethodPost, "/add-to-cookbook", r)
}

func (c *Client) RemoveFromCookbook(ctx context.Context, id int64) error {
	return c.byID(ctx, "api.RemoveFromCookbook", "/remove-from-cookbook", id)
}

// CookedRecipes возвращает историю приготовленного.
func (c *Client) CookedRecipes(ctx context.Context) ([]models.Recipe, error) {
	return c.recipes(ctx, "api.CookedRecipes", "/get-cooked-recipes", nil)
}

// SubmitCookedRecipes отмечает рецепты как приготовленные.
func (c *Client) SubmitCookedRecipes(ctx context.Context, ids []int64) error {
	const op = "api.SubmitCookedRecipes"

	if len(ids) == 0 {
		return fmt.Errorf("%s: %w: no recipe ids", op, ErrInvalidArgument)
	}
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%s: %w: recipe id %d", op, ErrInvalidArgument, id)
		}
	}

	return c.mutate(ctx, op, http.MethodPost, "/submit-cooked-recipes", models.CookedRecipes{RecipeIDs: ids})
}
