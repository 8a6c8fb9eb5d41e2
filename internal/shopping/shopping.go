// shopping — список покупок, собранный из ингредиентов рецептов
// списка «к приготовлению» и разложенный по категориям магазина.
package shopping

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pribylovaa/go-cheffrey-client/internal/models"
)

const (
	// Other — категория ингредиентов, которых нет в словаре. Всегда последняя.
	Other = "Other"
	// AlreadyBought — куда переносятся отмеченные ингредиенты.
	AlreadyBought = "Already Bought"
)

//go:embed ingredient2category.json
var defaultDictionary []byte

// Dictionary сопоставляет ингредиент категории.
type Dictionary map[string]string

// DefaultDictionary возвращает встроенный словарь.
func DefaultDictionary() Dictionary {
	d, err := LoadDictionary(bytes.NewReader(defaultDictionary))
	if err != nil {
		panic(fmt.Sprintf("shopping: embedded dictionary: %v", err))
	}

	return d
}

// LoadDictionary читает словарь из JSON-объекта {"ingredient": "category"}.
func LoadDictionary(r io.Reader) (Dictionary, error) {
	const op = "shopping.LoadDictionary"

	var raw map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d := make(Dictionary, len(raw))
	for k, v := range raw {
		d[normalize(k)] = v
	}

	return d, nil
}

// LoadDictionaryFile читает словарь из файла.
func LoadDictionaryFile(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shopping.LoadDictionaryFile: %w", err)
	}
	defer f.Close()

	return LoadDictionary(f)
}

// Category возвращает категорию ингредиента или Other.
func (d Dictionary) Category(ingredient string) string {
	if c, ok := d[normalize(ingredient)]; ok && c != "" {
		return c
	}

	return Other
}

// Category — раздел списка покупок.
type Category struct {
	Name  string
	Items []string
}

// List — список покупок: категории по алфавиту, Other в конце.
type List struct {
	Categories []Category
}

// Build собирает список из ингредиентов всех рецептов.
// Повторяющиеся ингредиенты разных рецептов сохраняются: это разные позиции.
func Build(recipes []models.Recipe, dict Dictionary) *List {
	byCat := make(map[string][]string)
	for _, r := range recipes {
		for _, ing := range r.Ingredients {
			ing = strings.TrimSpace(ing)
			if ing == "" {
				continue
			}
			cat := dict.Category(ing)
			byCat[cat] = append(byCat[cat], ing)
		}
	}

	l := &List{Categories: make([]Category, 0, len(byCat))}
	for name, items := range byCat {
		l.Categories = append(l.Categories, Category{Name: name, Items: items})
	}
	slices.SortFunc(l.Categories, func(a, b Category) int {
		return compareNames(a.Name, b.Name)
	})

	return l
}

// Len — общее число позиций.
func (l *List) Len() int {
	n := 0
	for _, c := range l.Categories {
		n += len(c.Items)
	}

	return n
}

// Columns раскладывает категории по n колонкам по кругу: 1-я категория
// в 1-ю колонку, 2-я во 2-ю и т.д. n < 1 трактуется как 1.
func (l *List) Columns(n int) [][]Category {
	if n < 1 {
		n = 1
	}

	cols := make([][]Category, n)
	for i, c := range l.Categories {
		cols[i%n] = append(cols[i%n], c)
	}

	return cols
}

// MarkBought переносит отмеченные позиции в категорию AlreadyBought
// (создаётся в конце списка при необходимости). Пустые категории убираются.
func (l *List) MarkBought(items ...string) {
	if len(items) == 0 {
		return
	}

	checked := make(map[string]bool, len(items))
	for _, it := range items {
		checked[it] = true
	}

	var (
		moved  []string
		bought *Category
	)
	kept := make([]Category, 0, len(l.Categories)+1)
	for _, c := range l.Categories {
		if c.Name == AlreadyBought {
			cc := c
			bought = &cc
			continue
		}

		var rest []string
		for _, it := range c.Items {
			if checked[it] {
				moved = append(moved, it)
				continue
			}
			rest = append(rest, it)
		}
		if len(rest) > 0 {
			kept = append(kept, Category{Name: c.Name, Items: rest})
		}
	}

	if bought == nil {
		bought = &Category{Name: AlreadyBought}
	}
	bought.Items = append(bought.Items, moved...)

	if len(bought.Items) > 0 {
		kept = append(kept, *bought)
	}
	l.Categories = kept
}

// compareNames — алфавитный порядок, Other и AlreadyBought в конце.
func compareNames(a, b string) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	return strings.Compare(a, b)
}

func rank(name string) int {
	switch name {
	case Other:
		return 1
	case AlreadyBought:
		return 2
	default:
		return 0
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
