package models

// Recipe — рецепт в том виде, в каком его отдаёт API.
type Recipe struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Author       string   `json:"author,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
	Category     string   `json:"category,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Description  string   `json:"description,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	TotalTime    int      `json:"total_time,omitempty"`
	Yields       string   `json:"yields,omitempty"`
	IsPublic     bool     `json:"is_public,omitempty"`
	InList       bool     `json:"in_list,omitempty"`
	InFavorites  bool     `json:"in_favorites,omitempty"`
}

// Recipes — обёртка списков рецептов: {"recipes": [...]}.
type Recipes struct {
	Recipes []Recipe `json:"recipes"`
}

// Count — ответ /get-recipe-list-count.
type Count struct {
	Count int `json:"count"`
}

// CookedRecipes — тело /submit-cooked-recipes.
type CookedRecipes struct {
	RecipeIDs []int64 `json:"recipe_ids"`
}

// ExtractRequest — тело /extract-recipe-info: фотографии в base64.
type ExtractRequest struct {
	Images []string `json:"images"`
}
