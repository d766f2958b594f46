package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"fridgechef/internal/catalog"
	"fridgechef/internal/chefapi"
	"fridgechef/internal/flows"
	"fridgechef/internal/services/health"
	"fridgechef/internal/shared/config"
	"fridgechef/internal/shared/server"
	"fridgechef/internal/shared/storage/db"
	"fridgechef/internal/shared/storage/object"
	localstore "fridgechef/internal/shared/storage/object/local"
	s3store "fridgechef/internal/shared/storage/object/s3"
	"fridgechef/internal/shared/telemetry"
	"fridgechef/internal/uploads"
)

// App holds shared dependencies and the assembled router.
type App struct {
	Config         config.Config
	Router         *gin.Engine
	DB             *sql.DB
	Store          object.ObjectStore
	Chef           chefapi.Client
	FlowRepo       flows.Repo
	FlowService    *flows.Service
	CatalogService *catalog.Service
	Health         *health.Service
}

// Build prepares dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Chef:   buildChef(cfg),
	}
	if sqlDB != nil {
		app.FlowRepo = &flows.PGRepo{DB: sqlDB}
		app.Health = health.NewService(sqlDB, cfg.ObjectStoreType)
	} else {
		app.FlowRepo = flows.NewMemoryRepo()
		app.Health = health.NewService(nil, cfg.ObjectStoreType)
	}

	app.FlowService = &flows.Service{
		Repo:    app.FlowRepo,
		Uploads: &uploads.Service{Store: store},
		Chef:    app.Chef,
		Hub:     flows.NewHub(),
		TTL:     cfg.FlowTTL,
	}
	app.CatalogService = &catalog.Service{Chef: app.Chef}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:  cfg,
		Flows:   flows.NewHandler(app.FlowService, cfg.MaxUploadBytes),
		Catalog: catalog.NewHandler(app.CatalogService),
		Health:  app.Health,
	})

	return app, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_flows", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			sqlDB.Close()
			sqlDB = nil
		}
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_flows", map[string]any{
				"reason": "database unavailable",
				"error":  err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildChef(cfg config.Config) chefapi.Client {
	if cfg.ChefAPIMode == "fake" {
		telemetry.Warn("bootstrap.fake_chef", map[string]any{"reason": "CHEF_API_MODE=fake"})
		return chefapi.NewFakeClient()
	}
	return chefapi.NewHTTPClient(cfg.ChefAPIBaseURL, cfg.ChefAPITimeout)
}
