package v1

import (
	"github.com/deploykit/lib/broadcast"
	"github.com/deploykit/middleware"
	"github.com/deploykit/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies carries the services the v1 handlers need.
type Dependencies struct {
	Projects    *services.ProjectService
	Deployments *services.DeploymentService
	Resources   *services.ResourceService
	Hub         *broadcast.Hub
	Gatherer    prometheus.Gatherer
	JWTSecret   string
	Log         *logrus.Entry
}

// RegisterRoutes registers all v1 API routes
func RegisterRoutes(router *gin.RouterGroup, deps Dependencies) {
	// Public endpoints
	router.GET("/health", HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	NewHookController(deps.Projects, deps.Deployments, deps.Log).RegisterRoutes(router)

	// Everything else requires a user token
	authRouter := router.Group("")
	authRouter.Use(middleware.AuthMiddleware(deps.JWTSecret))

	NewProjectController(deps.Projects, deps.Resources, deps.Log).RegisterRoutes(authRouter)
	NewDeploymentController(deps.Projects, deps.Deployments, deps.Log).RegisterRoutes(authRouter)
	NewLiveController(deps.Projects, deps.Deployments, deps.Hub, deps.Log).RegisterRoutes(authRouter)
}
