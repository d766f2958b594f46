package flows

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fridgechef/internal/ingredients"
	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/server/respond"
)

const defaultMaxUploadBytes = 10 << 20

// Handler wires HTTP handlers to the flow service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches flow routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/flows", h.createFlow)

	flow := rg.Group("/flows/:id", middleware.Flow())
	flow.GET("", h.getFlow)
	flow.DELETE("", h.abandonFlow)
	flow.POST("/restart", h.restartFlow)
	flow.PUT("/image", h.selectImage)
	flow.GET("/image", h.getImage)
	flow.POST("/detect", h.startDetect)
	flow.POST("/ingredients", h.addIngredient)
	flow.PATCH("/ingredients/:ingredientId", h.renameIngredient)
	flow.DELETE("/ingredients/:ingredientId", h.removeIngredient)
	flow.POST("/ingredients/:ingredientId/edit", h.beginEdit)
	flow.POST("/edit/commit", h.commitEdit)
	flow.DELETE("/edit", h.cancelEdit)
	flow.POST("/proceed", h.proceed)
	flow.GET("/recipes/*dishName", h.getRecipe)
	flow.GET("/events", h.events)
}

type nameRequest struct {
	Name string `json:"name"`
}

type valueRequest struct {
	Value string `json:"value"`
}

func (h *Handler) createFlow(c *gin.Context) {
	flow, err := h.Svc.Create(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create flow", nil)
		return
	}
	middleware.SetFlowID(c, flow.ID)
	middleware.SetStageTransition(c, "->"+string(StageCapture))
	respond.Created(c, "/api/v1/flows/"+flow.ID, ViewOf(flow))
}

func (h *Handler) getFlow(c *gin.Context) {
	view, err := h.Svc.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, view)
}

func (h *Handler) abandonFlow(c *gin.Context) {
	if err := h.Svc.Abandon(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) restartFlow(c *gin.Context) {
	before, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	flow, err := h.Svc.Restart(c.Request.Context(), before.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	middleware.SetStageTransition(c, string(before.Stage)+"->"+string(flow.Stage))
	respond.OK(c, ViewOf(flow))
}

func (h *Handler) selectImage(c *gin.Context) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", "image exceeds upload limit", gin.H{"limitBytes": limit})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart field \"image\" is required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read upload", nil)
		return
	}
	defer f.Close()

	flow, _, err := h.Svc.SelectImage(c.Request.Context(), c.Param("id"), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// A rejected file is not an error: the unchanged view comes back.
	respond.OK(c, ViewOf(flow))
}

func (h *Handler) getImage(c *gin.Context) {
	rc, photo, err := h.Svc.OpenImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()
	contentType := photo.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := photo.SizeBytes
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Cache-Control": "private, max-age=300",
	})
}

func (h *Handler) startDetect(c *gin.Context) {
	flow, issued, err := h.Svc.StartDetect(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if issued {
		middleware.SetStageTransition(c, string(StageCapture)+"->"+string(StageConfirm))
	}
	respond.Accepted(c, ViewOf(flow))
}

func (h *Handler) addIngredient(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	flow, err := h.Svc.AddIngredient(c.Request.Context(), c.Param("id"), req.Name)
	h.writeFlow(c, flow, err)
}

func (h *Handler) renameIngredient(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	flow, err := h.Svc.RenameIngredient(c.Request.Context(), c.Param("id"), c.Param("ingredientId"), req.Name)
	h.writeFlow(c, flow, err)
}

func (h *Handler) removeIngredient(c *gin.Context) {
	flow, err := h.Svc.RemoveIngredient(c.Request.Context(), c.Param("id"), c.Param("ingredientId"))
	h.writeFlow(c, flow, err)
}

func (h *Handler) beginEdit(c *gin.Context) {
	flow, err := h.Svc.BeginEdit(c.Request.Context(), c.Param("id"), c.Param("ingredientId"))
	h.writeFlow(c, flow, err)
}

func (h *Handler) commitEdit(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	flow, err := h.Svc.CommitEdit(c.Request.Context(), c.Param("id"), req.Value)
	h.writeFlow(c, flow, err)
}

func (h *Handler) cancelEdit(c *gin.Context) {
	flow, err := h.Svc.CancelEdit(c.Request.Context(), c.Param("id"))
	h.writeFlow(c, flow, err)
}

func (h *Handler) proceed(c *gin.Context) {
	flow, issued, err := h.Svc.Proceed(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if issued {
		middleware.SetStageTransition(c, string(StageConfirm)+"->"+string(StageResults))
	}
	respond.Accepted(c, ViewOf(flow))
}

// dishNameParam reads the catch-all dish name. Dish names may contain "/".
func dishNameParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("dishName"), "/")
}

func (h *Handler) getRecipe(c *gin.Context) {
	view, err := h.Svc.Recipe(c.Request.Context(), c.Param("id"), dishNameParam(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	middleware.SetStageTransition(c, string(StageResults)+"->"+string(StageDetail))
	respond.OK(c, view)
}

func (h *Handler) writeFlow(c *gin.Context, flow Flow, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, ViewOf(flow))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "flow not found", nil)
	case errors.Is(err, ingredients.ErrUnknownIngredient):
		respond.Error(c, http.StatusNotFound, "not_found", "ingredient not found", nil)
	case errors.Is(err, ErrMissingPayload):
		respond.Redirect(c, "this step needs earlier steps of the flow", "/")
	case errors.Is(err, ErrNotInteractive):
		respond.Error(c, http.StatusConflict, "not_interactive", "the flow cannot be edited in its current state", nil)
	case errors.Is(err, ErrNoIngredients):
		respond.Error(c, http.StatusUnprocessableEntity, "no_ingredients", "add at least one ingredient before continuing", nil)
	case errors.Is(err, ErrDetailsUnavailable):
		respond.Error(c, http.StatusNotFound, "details_unavailable", "recipe details are unavailable", gin.H{"dishName": dishNameParam(c)})
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "flow changed concurrently, retry", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}
