package api

import (
	"net/http"

	"github.com/fleetwatch/backend/internal/api/controllers"
	"github.com/fleetwatch/backend/internal/api/middleware"
	"github.com/fleetwatch/backend/internal/config"
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/services"
	"github.com/fleetwatch/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// Router manages the API routes and controllers
type Router struct {
	engine           *gin.Engine
	logger           *utils.Logger
	config           *config.Config
	serviceProvider  *services.ServiceProvider
	db               *db.Database
	statusController *controllers.StatusController
}

// NewRouter creates a new Router instance
func NewRouter(
	config *config.Config,
	logger *utils.Logger,
	db *db.Database,
	serviceProvider *services.ServiceProvider,
) *Router {
	// Set Gin mode based on environment
	if config.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.LoggingMiddleware(logger))

	return &Router{
		engine:          engine,
		logger:          logger.Named("router"),
		config:          config,
		serviceProvider: serviceProvider,
		db:              db,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	// Health check endpoint reports readiness of the database connection
	r.engine.GET("/health", func(c *gin.Context) {
		if err := r.db.VerifyConnection(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	apiV1 := r.engine.Group("/api/v1")

	r.statusController = controllers.NewStatusController(
		r.db,
		r.serviceProvider.GetAlarmLogService(),
		r.logger,
	)
	r.statusController.RegisterRoutes(apiV1)

	r.logger.Info("API routes setup completed")
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
