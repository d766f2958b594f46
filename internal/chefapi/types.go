package chefapi

import "io"

// Wire discriminants returned by the backend.
const (
	StatusSuccess                        = "SUCCESS"
	StatusFailureInsufficientIngredients = "FAILURE_INSUFFICIENT_INGREDIENTS"
)

// Image is the fridge photo submitted for detection.
type Image struct {
	FileName    string
	ContentType string
	Data        io.Reader
}

// RecipeRecommendation is the summary card for one suggested dish.
type RecipeRecommendation struct {
	DishName         string `json:"dishName" validate:"required"`
	Description      string `json:"description"`
	EstimatedTimeMin int    `json:"estimatedTimeMin" validate:"gte=0"`
	Difficulty       string `json:"difficulty"`
}

// RequiredIngredients splits a recipe's ingredients by where they come from.
type RequiredIngredients struct {
	FromFridge    []string `json:"fromFridge"`
	PantryStaples []string `json:"pantryStaples"`
}

// InstructionStep is one numbered cooking step.
type InstructionStep struct {
	Step        int    `json:"step" validate:"gte=0"`
	Description string `json:"description" validate:"required"`
	ChefTip     string `json:"chefTip,omitempty"`
}

// DetailedRecipe is the full recipe behind a recommendation, keyed by DishName.
type DetailedRecipe struct {
	DishName            string              `json:"dishName" validate:"required"`
	RequiredIngredients RequiredIngredients `json:"requiredIngredients"`
	Instructions        []InstructionStep   `json:"instructions" validate:"dive"`
}

// DisplayRecipe is the catalog shape served by the recipe list endpoint.
type DisplayRecipe struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Image        string            `json:"image"`
	CookTime     string            `json:"cookTime"`
	Difficulty   string            `json:"difficulty"`
	Servings     int               `json:"servings"`
	Rating       float64           `json:"rating"`
	Ingredients  []string          `json:"ingredients"`
	Calories     int               `json:"calories"`
	Category     string            `json:"category"`
	Tags         []string          `json:"tags"`
	Description  string            `json:"description,omitempty"`
	Instructions []InstructionStep `json:"instructions,omitempty" validate:"omitempty,dive"`
}

// DetectionResult is either DetectionSuccess or DetectionInsufficient.
type DetectionResult interface {
	isDetectionResult()
}

// DetectionSuccess carries the detected ingredient names verbatim.
type DetectionSuccess struct {
	Message         string
	IngredientNames []string
}

// DetectionInsufficient means the photo held nothing usable. It is not an error.
type DetectionInsufficient struct {
	Message string
}

func (DetectionSuccess) isDetectionResult()      {}
func (DetectionInsufficient) isDetectionResult() {}

// SwitchDetection calls exactly one handler for the variant held by r.
func SwitchDetection(r DetectionResult, onSuccess func(DetectionSuccess), onInsufficient func(DetectionInsufficient)) {
	switch v := r.(type) {
	case DetectionSuccess:
		onSuccess(v)
	case *DetectionSuccess:
		onSuccess(*v)
	case DetectionInsufficient:
		onInsufficient(v)
	case *DetectionInsufficient:
		onInsufficient(*v)
	default:
		panic("chefapi: unknown detection variant")
	}
}

// RecommendationResult is either RecommendationSuccess or RecommendationInsufficient.
type RecommendationResult interface {
	isRecommendationResult()
}

// RecommendationSuccess holds the summary cards and the full recipes.
type RecommendationSuccess struct {
	Message         string
	Recommendations []RecipeRecommendation
	Details         []DetailedRecipe
}

// RecommendationInsufficient means no recipe could be built from the ingredients.
type RecommendationInsufficient struct {
	Message string
}

func (RecommendationSuccess) isRecommendationResult()      {}
func (RecommendationInsufficient) isRecommendationResult() {}

// SwitchRecommendation calls exactly one handler for the variant held by r.
func SwitchRecommendation(r RecommendationResult, onSuccess func(RecommendationSuccess), onInsufficient func(RecommendationInsufficient)) {
	switch v := r.(type) {
	case RecommendationSuccess:
		onSuccess(v)
	case *RecommendationSuccess:
		onSuccess(*v)
	case RecommendationInsufficient:
		onInsufficient(v)
	case *RecommendationInsufficient:
		onInsufficient(*v)
	default:
		panic("chefapi: unknown recommendation variant")
	}
}

// FindDetail returns the detailed recipe whose DishName matches dishName.
func FindDetail(details []DetailedRecipe, dishName string) (DetailedRecipe, bool) {
	for _, d := range details {
		if d.DishName == dishName {
			return d, true
		}
	}
	return DetailedRecipe{}, false
}

type detectPayload struct {
	Status      string   `json:"status" validate:"required,oneof=SUCCESS FAILURE_INSUFFICIENT_INGREDIENTS"`
	ChefMessage string   `json:"chefMessage"`
	Ingredients []string `json:"ingredients" validate:"required_if=Status SUCCESS"`
}

type recommendPayload struct {
	Status                string                 `json:"status" validate:"required,oneof=SUCCESS FAILURE_INSUFFICIENT_INGREDIENTS"`
	ChefMessage           string                 `json:"chefMessage"`
	RecipeRecommendations []RecipeRecommendation `json:"recipeRecommendations" validate:"required_if=Status SUCCESS,dive"`
	DetailedRecipes       []DetailedRecipe       `json:"detailedRecipes" validate:"required_if=Status SUCCESS,dive"`
}

type recommendRequest struct {
	Ingredients []string `json:"ingredients"`
}

type recipeListPayload struct {
	Recipes []DisplayRecipe `json:"recipes" validate:"dive"`
}

type errorBody struct {
	Status      string `json:"status"`
	ChefMessage string `json:"chefMessage"`
}
