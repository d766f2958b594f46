package flows

import (
	"time"

	"fridgechef/internal/chefapi"
	"fridgechef/internal/ingredients"
	"fridgechef/internal/uploads"
)

// Stage is the page a flow is on.
type Stage string

const (
	StageCapture Stage = "capture"
	StageConfirm Stage = "confirm"
	StageResults Stage = "results"
	StageDetail  Stage = "detail"
)

// RequestState tracks one backend call of a flow.
type RequestState string

const (
	RequestIdle       RequestState = "idle"
	RequestSubmitting RequestState = "submitting"
	RequestSucceeded  RequestState = "succeeded"
	RequestFailed     RequestState = "failed"
)

// Request is the lifecycle of the detect or recommend call.
type Request struct {
	State   RequestState `json:"state"`
	Message string       `json:"message,omitempty"`
	// Insufficient marks a FAILURE_INSUFFICIENT_INGREDIENTS answer.
	Insufficient bool `json:"insufficient,omitempty"`
	// Generation is the flow generation the call was issued under.
	Generation int64      `json:"generation,omitempty"`
	IssuedAt   *time.Time `json:"issuedAt,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Flow is one navigation chain from photo to recipe.
type Flow struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Stage   Stage  `json:"stage"`

	Photo *uploads.Photo `json:"photo,omitempty"`

	Detect      Request                  `json:"detect"`
	Ingredients []ingredients.Ingredient `json:"ingredients"`
	EditingID   string                   `json:"editingId,omitempty"`

	Recommend       Request                        `json:"recommend"`
	Submitted       []string                       `json:"submitted,omitempty"`
	Recommendations []chefapi.RecipeRecommendation `json:"recommendations,omitempty"`
	Details         []chefapi.DetailedRecipe       `json:"details,omitempty"`

	// Generation increases on restart and abandon. Async results carrying an
	// older generation are dropped.
	Generation int64 `json:"generation"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newFlow(id string, now time.Time, ttl time.Duration) Flow {
	return Flow{
		ID:          id,
		Stage:       StageCapture,
		Detect:      Request{State: RequestIdle},
		Recommend:   Request{State: RequestIdle},
		Ingredients: []ingredients.Ingredient{},
		Generation:  1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// list rebuilds the editable ingredient list.
func (f *Flow) list() *ingredients.List {
	return ingredients.Restore(f.Ingredients, f.EditingID)
}

func (f *Flow) storeList(l *ingredients.List) {
	f.Ingredients = l.Items()
	f.EditingID = l.Editing()
}

// reset returns the flow to the capture stage under a new generation.
func (f *Flow) reset() {
	f.Generation++
	f.Stage = StageCapture
	f.Photo = nil
	f.Detect = Request{State: RequestIdle}
	f.Ingredients = []ingredients.Ingredient{}
	f.EditingID = ""
	f.Recommend = Request{State: RequestIdle}
	f.Submitted = nil
	f.Recommendations = nil
	f.Details = nil
}

func (f Flow) expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

// interactive reports whether the ingredient list accepts edits.
func (f Flow) interactive() bool {
	return f.Stage == StageConfirm && f.Detect.State == RequestSucceeded
}
