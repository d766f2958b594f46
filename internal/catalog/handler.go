package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fridgechef/internal/chefapi"
	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/server/respond"
	"fridgechef/internal/shared/telemetry"
)

// Handler exposes the recipe catalog over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches catalog routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/recipes", h.list)
	rg.GET("/recipes/categories", h.categories)
	rg.GET("/recipes/:recipeId", h.get)
}

type listResponse struct {
	Items    []chefapi.DisplayRecipe `json:"items"`
	Total    int                     `json:"total"`
	Search   string                  `json:"search"`
	Category string                  `json:"category"`
}

func (h *Handler) list(c *gin.Context) {
	q := Query{Search: c.Query("search"), Category: c.DefaultQuery("category", AllCategories)}
	items, err := h.Svc.Browse(c.Request.Context(), q)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	respond.OK(c, listResponse{Items: items, Total: len(items), Search: q.Search, Category: q.Category})
}

func (h *Handler) categories(c *gin.Context) {
	cats, err := h.Svc.Categories(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	respond.OK(c, gin.H{"categories": cats})
}

func (h *Handler) get(c *gin.Context) {
	recipe, err := h.Svc.Get(c.Request.Context(), c.Param("recipeId"))
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "recipe not found", nil)
		return
	}
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	respond.OK(c, recipe)
}

func (h *Handler) upstreamError(c *gin.Context, err error) {
	telemetry.Error("catalog.fetch_failed", map[string]any{
		"request_id": middleware.RequestIDFromContext(c),
		"error":      err.Error(),
	})
	respond.Error(c, http.StatusBadGateway, "upstream_error", chefapi.UserMessage(err, "Failed to load recipes."), nil)
}
