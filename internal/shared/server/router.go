package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fridgechef/internal/catalog"
	"fridgechef/internal/flows"
	"fridgechef/internal/services/health"
	"fridgechef/internal/shared/config"
	"fridgechef/internal/shared/metrics"
	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/server/respond"
)

const upstreamRateGroup = "UPSTREAM"

// RouterDeps holds the handlers mounted on the router.
type RouterDeps struct {
	Config  config.Config
	Flows   *flows.Handler
	Catalog *catalog.Handler
	Health  *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil, cfg.ObjectStoreType)
	}
	api.GET("/health", func(c *gin.Context) {
		respond.OK(c, healthSvc.Liveness())
	})
	api.GET("/ready", func(c *gin.Context) {
		st := healthSvc.Readiness(c.Request.Context())
		status := http.StatusOK
		if !st.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, st)
	})

	if deps.Flows != nil {
		deps.Flows.RegisterRoutes(api)
	}
	if deps.Catalog != nil {
		deps.Catalog.RegisterRoutes(api)
	}

	return r
}

func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	rules := map[string]middleware.RateLimitRule{}
	if cfg.DefaultRate > 0 && cfg.DefaultBurst > 0 {
		rules["DEFAULT"] = middleware.RateLimitRule{Rate: cfg.DefaultRate, Burst: cfg.DefaultBurst}
	}
	if cfg.UpstreamRate > 0 && cfg.UpstreamBurst > 0 {
		rules[upstreamRateGroup] = middleware.RateLimitRule{Rate: cfg.UpstreamRate, Burst: cfg.UpstreamBurst}
	}
	return middleware.RateLimitConfig{
		Rules:    rules,
		GroupFor: rateGroupFor,
	}
}

// rateGroupFor puts the routes that call the recipe backend in their own
// bucket.
func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	if c.Request.Method == http.MethodPost &&
		(strings.HasSuffix(path, "/detect") || strings.HasSuffix(path, "/proceed")) {
		return upstreamRateGroup
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
