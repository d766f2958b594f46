package chefapi

import (
	"context"
	"strings"
	"sync"
)

// FakeClient is a scripted Client for tests and offline development. Nil
// funcs fall back to canned demo data.
type FakeClient struct {
	AnalyzeFn     func(ctx context.Context, img Image) (DetectionResult, error)
	RecommendFn   func(ctx context.Context, ingredients []string) (RecommendationResult, error)
	ListRecipesFn func(ctx context.Context) ([]DisplayRecipe, error)

	mu              sync.Mutex
	analyzeCalls    int
	recommendCalls  int
	lastIngredients []string
}

// NewFakeClient returns a FakeClient serving demo data.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Analyze implements Client.
func (f *FakeClient) Analyze(ctx context.Context, img Image) (DetectionResult, error) {
	f.mu.Lock()
	f.analyzeCalls++
	fn := f.AnalyzeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, img)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DetectionSuccess{
		Message:         "Here is what I spotted in your fridge.",
		IngredientNames: []string{"Tomato", "Onion", "Egg"},
	}, nil
}

// Recommend implements Client.
func (f *FakeClient) Recommend(ctx context.Context, ingredients []string) (RecommendationResult, error) {
	f.mu.Lock()
	f.recommendCalls++
	f.lastIngredients = append([]string(nil), ingredients...)
	fn := f.RecommendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, ingredients)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ingredients) == 0 {
		return RecommendationInsufficient{Message: "I need at least one ingredient to cook with."}, nil
	}
	return demoRecommendation(ingredients), nil
}

// ListRecipes implements Client.
func (f *FakeClient) ListRecipes(ctx context.Context) ([]DisplayRecipe, error) {
	f.mu.Lock()
	fn := f.ListRecipesFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]DisplayRecipe, len(demoCatalog))
	copy(out, demoCatalog)
	return out, nil
}

// AnalyzeCalls reports how many detection requests were issued.
func (f *FakeClient) AnalyzeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalls
}

// RecommendCalls reports how many recommendation requests were issued.
func (f *FakeClient) RecommendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recommendCalls
}

// LastIngredients returns the names sent with the latest Recommend call.
func (f *FakeClient) LastIngredients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastIngredients...)
}

func demoRecommendation(ingredients []string) RecommendationSuccess {
	lead := ingredients[0]
	dish := lead + " Soup"
	return RecommendationSuccess{
		Message: "Here are a few ideas for " + strings.Join(ingredients, ", ") + ".",
		Recommendations: []RecipeRecommendation{{
			DishName:         dish,
			Description:      "A quick, warming soup built around " + strings.ToLower(lead) + ".",
			EstimatedTimeMin: 25,
			Difficulty:       "Easy",
		}},
		Details: []DetailedRecipe{{
			DishName: dish,
			RequiredIngredients: RequiredIngredients{
				FromFridge:    append([]string(nil), ingredients...),
				PantryStaples: []string{"Salt", "Pepper", "Olive oil"},
			},
			Instructions: []InstructionStep{
				{Step: 1, Description: "Chop everything into even pieces."},
				{Step: 2, Description: "Sweat in olive oil for five minutes.", ChefTip: "Keep the heat low so nothing browns."},
				{Step: 3, Description: "Cover with water, simmer 15 minutes, then blend and season."},
			},
		}},
	}
}

var demoCatalog = []DisplayRecipe{
	{ID: "1", Name: "Chicken Tomato Stir-fry", Image: "/placeholder.svg", CookTime: "25 min", Difficulty: "Easy", Servings: 2, Rating: 4.8, Ingredients: []string{"Chicken breast", "Tomato", "Onion", "Garlic"}, Calories: 320, Category: "Main", Tags: []string{"High protein", "Low calorie"}},
	{ID: "2", Name: "Vegetable Chicken Stew", Image: "/placeholder.svg", CookTime: "40 min", Difficulty: "Medium", Servings: 4, Rating: 4.6, Ingredients: []string{"Chicken breast", "Carrot", "Onion", "Tomato"}, Calories: 280, Category: "Main", Tags: []string{"Healthy", "Hearty"}},
	{ID: "3", Name: "Simple Chicken Salad", Image: "/placeholder.svg", CookTime: "15 min", Difficulty: "Easy", Servings: 1, Rating: 4.7, Ingredients: []string{"Chicken breast", "Tomato", "Onion"}, Calories: 240, Category: "Salad", Tags: []string{"Diet", "Simple"}},
	{ID: "4", Name: "Garlic Fried Rice", Image: "/placeholder.svg", CookTime: "20 min", Difficulty: "Easy", Servings: 2, Rating: 4.5, Ingredients: []string{"Rice", "Garlic", "Onion", "Egg"}, Calories: 380, Category: "Main", Tags: []string{"Quick", "Filling"}},
	{ID: "5", Name: "Carrot Soup", Image: "/placeholder.svg", CookTime: "30 min", Difficulty: "Medium", Servings: 3, Rating: 4.4, Ingredients: []string{"Carrot", "Onion", "Garlic", "Milk"}, Calories: 180, Category: "Soup", Tags: []string{"Vegan", "Nourishing"}},
	{ID: "6", Name: "Tomato Pasta", Image: "/placeholder.svg", CookTime: "25 min", Difficulty: "Medium", Servings: 2, Rating: 4.9, Ingredients: []string{"Pasta", "Tomato", "Garlic", "Basil"}, Calories: 420, Category: "Main", Tags: []string{"Italian", "Classic"}},
}

var _ Client = (*FakeClient)(nil)
