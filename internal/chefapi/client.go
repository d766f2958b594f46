package chefapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pkg/errors"

	"fridgechef/internal/shared/metrics"
	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/tracing"
)

// Backend paths.
const (
	AnalyzePath   = "/api/fridges/analyze"
	RecommendPath = "/api/recipes"
	RecipesPath   = "/api/recipes/"
)

const (
	maxResponseBytes = 8 << 20
	defaultTimeout   = 90 * time.Second

	recommendFallbackMessage = "Failed to generate recipes."
)

// Client talks to the detection, recommendation and catalog endpoints.
type Client interface {
	Analyze(ctx context.Context, img Image) (DetectionResult, error)
	Recommend(ctx context.Context, ingredients []string) (RecommendationResult, error)
	ListRecipes(ctx context.Context) ([]DisplayRecipe, error)
}

// HTTPClient is the production Client. Calls are not retried.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds a traced client with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: tracing.Transport(http.DefaultTransport),
		},
	}
}

// Analyze submits the photo as a multipart form with a single image field.
func (c *HTTPClient) Analyze(ctx context.Context, img Image) (DetectionResult, error) {
	if img.Data == nil {
		return nil, errors.New("analyze: image data is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, formFileName(img.FileName)))
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(err, "analyze: create form part")
	}
	if _, err := io.Copy(part, img.Data); err != nil {
		return nil, errors.Wrap(err, "analyze: copy image")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "analyze: close form")
	}

	status, body, err := c.do(ctx, http.MethodPost, AnalyzePath, mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		// A refused photo may still come back as a well-formed insufficient payload.
		var p detectPayload
		if decodeStrict(body, &p) == nil && p.Status == StatusFailureInsufficientIngredients {
			return DetectionInsufficient{Message: p.ChefMessage}, nil
		}
		return nil, &HTTPError{Endpoint: AnalyzePath, StatusCode: status, Message: errorMessage(body)}
	}

	var p detectPayload
	if err := decodeStrict(body, &p); err != nil {
		return nil, errors.WithMessage(err, "analyze")
	}
	switch p.Status {
	case StatusSuccess:
		names := make([]string, len(p.Ingredients))
		copy(names, p.Ingredients)
		return DetectionSuccess{Message: p.ChefMessage, IngredientNames: names}, nil
	default:
		return DetectionInsufficient{Message: p.ChefMessage}, nil
	}
}

// Recommend posts the confirmed ingredient names as JSON.
func (c *HTTPClient) Recommend(ctx context.Context, ingredients []string) (RecommendationResult, error) {
	if ingredients == nil {
		ingredients = []string{}
	}
	payload, err := json.Marshal(recommendRequest{Ingredients: ingredients})
	if err != nil {
		return nil, errors.Wrap(err, "recommend: encode request")
	}

	status, body, err := c.do(ctx, http.MethodPost, RecommendPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		msg := errorMessage(body)
		if msg == "" {
			msg = recommendFallbackMessage
		}
		return nil, &HTTPError{Endpoint: RecommendPath, StatusCode: status, Message: msg}
	}

	var p recommendPayload
	if err := decodeStrict(body, &p); err != nil {
		return nil, errors.WithMessage(err, "recommend")
	}
	switch p.Status {
	case StatusSuccess:
		return RecommendationSuccess{
			Message:         p.ChefMessage,
			Recommendations: p.RecipeRecommendations,
			Details:         p.DetailedRecipes,
		}, nil
	default:
		return RecommendationInsufficient{Message: p.ChefMessage}, nil
	}
}

// ListRecipes fetches the full catalog. There is no paging.
func (c *HTTPClient) ListRecipes(ctx context.Context) ([]DisplayRecipe, error) {
	status, body, err := c.do(ctx, http.MethodGet, RecipesPath, "", nil)
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, &HTTPError{Endpoint: RecipesPath, StatusCode: status, Message: errorMessage(body)}
	}
	var p recipeListPayload
	if err := decodeStrict(body, &p); err != nil {
		return nil, errors.WithMessage(err, "list recipes")
	}
	if p.Recipes == nil {
		p.Recipes = []DisplayRecipe{}
	}
	return p.Recipes, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s: build request", path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if id := middleware.RequestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	start := time.Now()
	resp, err := httpClient.Do(req)
	metrics.ObserveUpstream(path, time.Since(start))
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s: send request", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrapf(err, "%s: read response", path)
	}
	return resp.StatusCode, data, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func errorMessage(body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return strings.TrimSpace(e.ChefMessage)
}

func formFileName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "fridge"
	}
	return name
}

var _ Client = (*HTTPClient)(nil)
