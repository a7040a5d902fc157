package app

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/talkmeter/server/internal/infra/config"
	"github.com/talkmeter/server/internal/utils/middleware"
)

// App represents the HTTP application.
type App struct {
	deps    *Dependencies
	router  *gin.Engine
	cleanup func()
}

// LoadConfig loads the application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	a := &App{deps: deps, cleanup: cleanup}
	a.router = a.setupRouter()
	a.registerRoutes()
	return a, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.deps.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger, "/health", "/metrics"))
	r.Use(middleware.Metrics(a.deps.Metrics))
	r.Use(middleware.CORS(a.deps.Config.Server.AllowedOrigins))

	return r
}

// registerRoutes mounts every handler.
func (a *App) registerRoutes() {
	a.deps.SystemHandler.RegisterRoutes(a.router)

	// Conversation layer and platform callbacks
	v1 := a.router.Group("/v1")
	a.deps.AccountHandler.RegisterRoutes(v1)
	a.deps.PaymentHandler.RegisterRoutes(v1)

	// Provider webhooks authenticate by signature
	a.deps.WebhookHandler.RegisterRoutes(&a.router.RouterGroup)

	adminRouter := a.router.Group("", middleware.RequireAdmin(a.deps.AdminTokens))
	a.deps.AdminHandler.RegisterRoutes(adminRouter)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Dependencies returns the wired dependencies.
func (a *App) Dependencies() *Dependencies {
	return a.deps
}

// Stop waits for background work and releases resources.
func (a *App) Stop() {
	if a.deps.ChatDomain != nil {
		a.deps.ChatDomain.Wait()
	}
	if a.deps.ZapLogger != nil {
		_ = a.deps.ZapLogger.Sync()
	}
	if a.cleanup != nil {
		a.cleanup()
	}
}
