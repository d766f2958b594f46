package flows

import (
	"time"

	"fridgechef/internal/chefapi"
	"fridgechef/internal/ingredients"
	"fridgechef/internal/uploads"
)

// Actions a client may offer on the current view.
const (
	ActionSelectImage = "select_image"
	ActionDetect      = "detect"
	ActionAdd         = "add_ingredient"
	ActionEdit        = "edit_ingredient"
	ActionCommitEdit  = "commit_edit"
	ActionCancelEdit  = "cancel_edit"
	ActionRemove      = "remove_ingredient"
	ActionProceed     = "proceed"
	ActionOpenRecipe  = "open_recipe"
	ActionRestart     = "restart"
	ActionAbandon     = "abandon"
)

// RequestView is the client-facing state of one backend call.
type RequestView struct {
	State        RequestState `json:"state"`
	Message      string       `json:"message,omitempty"`
	Insufficient bool         `json:"insufficient,omitempty"`
}

// View is the stage payload a client renders.
type View struct {
	ID              string                         `json:"id"`
	Version         int64                          `json:"version"`
	Stage           Stage                          `json:"stage"`
	Photo           *uploads.Photo                 `json:"photo,omitempty"`
	Detect          RequestView                    `json:"detect"`
	Ingredients     []ingredients.Ingredient       `json:"ingredients"`
	EditingID       string                         `json:"editingId,omitempty"`
	Recommend       RequestView                    `json:"recommend"`
	Recommendations []chefapi.RecipeRecommendation `json:"recommendations,omitempty"`
	Actions         []string                       `json:"actions"`
	ExpiresAt       string                         `json:"expiresAt"`
}

// DetailView is the recipe detail stage.
type DetailView struct {
	ID      string                 `json:"id"`
	Stage   Stage                  `json:"stage"`
	Recipe  chefapi.DetailedRecipe `json:"recipe"`
	Actions []string               `json:"actions"`
}

// ViewOf renders f for clients.
func ViewOf(f Flow) View {
	items := f.Ingredients
	if items == nil {
		items = []ingredients.Ingredient{}
	}
	return View{
		ID:              f.ID,
		Version:         f.Version,
		Stage:           f.Stage,
		Photo:           f.Photo,
		Detect:          requestView(f.Detect),
		Ingredients:     items,
		EditingID:       f.EditingID,
		Recommend:       requestView(f.Recommend),
		Recommendations: f.Recommendations,
		Actions:         actionsFor(f),
		ExpiresAt:       f.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func requestView(r Request) RequestView {
	return RequestView{State: r.State, Message: r.Message, Insufficient: r.Insufficient}
}

func actionsFor(f Flow) []string {
	actions := []string{}
	switch f.Stage {
	case StageCapture:
		actions = append(actions, ActionSelectImage)
		if f.Photo != nil {
			actions = append(actions, ActionDetect)
		}
	case StageConfirm:
		if f.interactive() {
			actions = append(actions, ActionAdd, ActionEdit, ActionRemove)
			if f.EditingID != "" {
				actions = append(actions, ActionCommitEdit, ActionCancelEdit)
			}
			if len(f.Ingredients) > 0 {
				actions = append(actions, ActionProceed)
			}
		}
		actions = append(actions, ActionRestart)
	case StageResults:
		if f.Recommend.State == RequestSucceeded && len(f.Recommendations) > 0 {
			actions = append(actions, ActionOpenRecipe)
		}
		actions = append(actions, ActionRestart)
	}
	return append(actions, ActionAbandon)
}
