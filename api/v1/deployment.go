package v1

import (
	"errors"
	"io"
	"net/http"

	"github.com/deploykit/dto"
	"github.com/deploykit/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DeploymentController handles deployment endpoints of a project
type DeploymentController struct {
	projects    *services.ProjectService
	deployments *services.DeploymentService
	log         *logrus.Entry
}

// NewDeploymentController creates a new deployment controller
func NewDeploymentController(projects *services.ProjectService, deployments *services.DeploymentService, log *logrus.Entry) *DeploymentController {
	return &DeploymentController{projects: projects, deployments: deployments, log: log}
}

// RegisterRoutes registers deployment routes
func (dc *DeploymentController) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects/:id/deployments")
	{
		projects.POST("", dc.CreateDeployment)
		projects.GET("", dc.ListDeployments)
		projects.GET("/:deploymentId", dc.GetDeployment)
	}
}

// CreateDeployment redeploys a project. The body is optional.
func (dc *DeploymentController) CreateDeployment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}
	if _, _, err := dc.projects.Authorize(c.Request.Context(), id, userID); err != nil {
		respondError(c, dc.log, err)
		return
	}

	attempt, err := dc.deployments.Deploy(c.Request.Context(), services.DeployRequest{
		ProjectID:     id,
		Branch:        req.Branch,
		Commit:        req.Commit,
		CommitMessage: req.CommitMessage,
		CallbackURL:   req.CallbackURL,
	})
	if err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status": "success",
		"data":   dto.NewDeploymentResponseFromModel(attempt.Deployment()),
	})
}

// ListDeployments lists the deployments of a project without their logs
func (dc *DeploymentController) ListDeployments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, _, err := dc.projects.Authorize(c.Request.Context(), id, userID); err != nil {
		respondError(c, dc.log, err)
		return
	}
	deployments, err := dc.deployments.FindAll(c.Request.Context(), id)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": dto.NewDeploymentListFromModels(deployments)})
}

// GetDeployment returns one deployment including its build log
func (dc *DeploymentController) GetDeployment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	deploymentID, ok := paramID(c, "deploymentId")
	if !ok {
		return
	}
	if _, _, err := dc.projects.Authorize(c.Request.Context(), id, userID); err != nil {
		respondError(c, dc.log, err)
		return
	}
	deployment, err := dc.deployments.FindOne(c.Request.Context(), id, deploymentID)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": dto.NewDeploymentResponseFromModel(deployment)})
}
