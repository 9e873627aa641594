package v1

import (
	"net/http"

	"github.com/deploykit/dto"
	"github.com/deploykit/models"
	"github.com/deploykit/services"
	"github.com/deploykit/templates"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ProjectController handles project-related API endpoints
type ProjectController struct {
	projects  *services.ProjectService
	resources *services.ResourceService
	log       *logrus.Entry
}

// NewProjectController creates a new project controller
func NewProjectController(projects *services.ProjectService, resources *services.ResourceService, log *logrus.Entry) *ProjectController {
	return &ProjectController{projects: projects, resources: resources, log: log}
}

// RegisterRoutes registers project routes
func (pc *ProjectController) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects")
	{
		projects.GET("", pc.ListProjects)
		projects.POST("", pc.CreateProject)
		projects.GET("/:id", pc.GetProject)
		projects.DELETE("/:id", pc.DeleteProject)
		projects.GET("/:id/members", pc.ListMembers)
		projects.GET("/:id/settings", pc.GetSettings)
		projects.PUT("/:id/settings", pc.UpdateSettings)
		projects.POST("/:id/env", pc.AddEnvVariable)
		projects.DELETE("/:id/env/:key", pc.DeleteEnvVariable)
		projects.GET("/:id/resources", pc.GetResources)
	}
}

func projectResponse(p models.Project, withKey bool) dto.ProjectResponse {
	r := dto.ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		AppName:       templates.AppName(p.Name),
		RepositoryURL: p.RepositoryURL,
		DefaultBranch: p.DefaultBranch,
		Framework:     p.Framework,
		Domain:        p.Domain,
		Port:          p.Port,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if withKey {
		r.APIKey = p.APIKey
	}
	if p.LastDeployment != nil {
		last := dto.NewDeploymentResponseFromModel(*p.LastDeployment)
		last.BuildLogs = ""
		r.LastDeployment = &last
	}
	return r
}

// ListProjects returns the projects of the current user
func (pc *ProjectController) ListProjects(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projects, err := pc.projects.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	out := make([]dto.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse(p, false))
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": out})
}

// CreateProject stores a project and starts its first deployment
func (pc *ProjectController) CreateProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}

	project, attempt, err := pc.projects.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	resp := dto.CreateProjectResponse{Project: projectResponse(project, true)}
	if attempt != nil {
		d := dto.NewDeploymentResponseFromModel(attempt.Deployment())
		resp.Deployment = &d
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": resp})
}

// GetProject returns one project
func (pc *ProjectController) GetProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	project, err := pc.projects.Get(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": projectResponse(project, false)})
}

// DeleteProject removes a project and its cluster resources
func (pc *ProjectController) DeleteProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := pc.projects.Delete(c.Request.Context(), id, userID); err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Project deleted successfully"})
}

// ListMembers returns the members of a project and their roles
func (pc *ProjectController) ListMembers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	members, err := pc.projects.Members(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	out := make([]dto.MemberResponse, len(members))
	for i, m := range members {
		out[i] = dto.MemberResponse{UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": out})
}

// GetSettings returns the configuration of a project
func (pc *ProjectController) GetSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	settings, err := pc.projects.GetSettings(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": settings})
}

// UpdateSettings changes the configuration of a project
func (pc *ProjectController) UpdateSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}
	settings, err := pc.projects.UpdateSettings(c.Request.Context(), id, userID, req)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": settings})
}

// AddEnvVariable sets one environment variable
func (pc *ProjectController) AddEnvVariable(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.EnvVariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}
	env, err := pc.projects.AddEnvVariable(c.Request.Context(), id, userID, req.Key, req.Value)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": env})
}

// DeleteEnvVariable removes one environment variable
func (pc *ProjectController) DeleteEnvVariable(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	env, err := pc.projects.DeleteEnvVariable(c.Request.Context(), id, userID, c.Param("key"))
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": env})
}

// GetResources reports the live Kubernetes state of a project
func (pc *ProjectController) GetResources(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	project, err := pc.projects.Get(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	resources, err := pc.resources.ForProject(c.Request.Context(), project)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": resources})
}
