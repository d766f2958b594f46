package catalog

import (
	"context"
	"errors"
	"strings"

	"fridgechef/internal/chefapi"
)

// AllCategories matches every recipe.
const AllCategories = "all"

// ErrNotFound is returned when no catalog recipe has the requested id.
var ErrNotFound = errors.New("recipe not found")

// Query filters the catalog.
type Query struct {
	Search   string
	Category string
}

// Service reads the recipe catalog from the backend. Every call fetches the
// full list; filtering happens here.
type Service struct {
	Chef chefapi.Client
}

// Browse returns recipes whose name contains q.Search (case-insensitive) and
// whose category is q.Category, or every category for "all" or "".
func (s *Service) Browse(ctx context.Context, q Query) ([]chefapi.DisplayRecipe, error) {
	recipes, err := s.Chef.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := strings.TrimSpace(q.Category)
	if category == "" {
		category = AllCategories
	}

	out := make([]chefapi.DisplayRecipe, 0, len(recipes))
	for _, r := range recipes {
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		if category != AllCategories && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Categories returns "all" followed by the distinct categories in the order
// they first appear.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	recipes, err := s.Chef.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{AllCategories}
	seen := map[string]bool{AllCategories: true}
	for _, r := range recipes {
		if r.Category == "" || seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		out = append(out, r.Category)
	}
	return out, nil
}

// Get returns the recipe with id.
func (s *Service) Get(ctx context.Context, id string) (chefapi.DisplayRecipe, error) {
	recipes, err := s.Chef.ListRecipes(ctx)
	if err != nil {
		return chefapi.DisplayRecipe{}, err
	}
	for _, r := range recipes {
		if r.ID == id {
			return r, nil
		}
	}
	return chefapi.DisplayRecipe{}, ErrNotFound
}
