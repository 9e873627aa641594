package v1

import (
	"net/http"
	"time"

	"github.com/deploykit/dto"
	"github.com/deploykit/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HookController accepts deployment triggers from CI and git hosting.
// Callers authenticate with the project's API key instead of a user token.
type HookController struct {
	projects    *services.ProjectService
	deployments *services.DeploymentService
	log         *logrus.Entry
}

// NewHookController creates a new hook controller
func NewHookController(projects *services.ProjectService, deployments *services.DeploymentService, log *logrus.Entry) *HookController {
	return &HookController{projects: projects, deployments: deployments, log: log}
}

// RegisterRoutes registers hook routes
func (hc *HookController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/hooks/deploy", hc.Deploy)
}

// Deploy starts a deployment for the project owning the API key
func (hc *HookController) Deploy(c *gin.Context) {
	var req dto.DeployHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		req.APIKey = key
	}
	if req.APIKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "API key is required"})
		return
	}

	project, err := hc.projects.ResolveAPIKey(c.Request.Context(), req.ProjectID, req.APIKey)
	if err != nil {
		respondError(c, hc.log, err)
		return
	}

	attempt, err := hc.deployments.Deploy(c.Request.Context(), services.DeployRequest{
		ProjectID:     project.ID,
		Branch:        req.Branch,
		Commit:        req.CommitID,
		CommitMessage: req.CommitMessage,
		CallbackURL:   req.CallbackURL,
	})
	if err != nil {
		respondError(c, hc.log, err)
		return
	}

	d := attempt.Deployment()
	hc.log.WithFields(logrus.Fields{"project_id": project.ID, "deployment_id": d.ID}).Info("🪝 Deployment triggered by hook")
	c.JSON(http.StatusAccepted, gin.H{
		"status": "success",
		"data": dto.DeployHookResponse{
			DeploymentID: d.ID,
			ProjectID:    project.ID,
			Status:       string(d.Status),
			Message:      "Deployment started",
			CreatedAt:    d.CreatedAt.Format(time.RFC3339),
		},
	})
}
