package dto

import (
	"time"

	"github.com/deploykit/models"
)

// DeployRequest starts a deployment of an existing project. Empty fields
// fall back to the project's default branch and HEAD.
type DeployRequest struct {
	Branch        string `json:"branch"`
	Commit        string `json:"commit"`
	CommitMessage string `json:"commitMessage"`
	CallbackURL   string `json:"callbackUrl"`
}

// DeploymentResponse represents a deployment response
type DeploymentResponse struct {
	ID            uint      `json:"id"`
	ProjectID     uint      `json:"projectId"`
	Status        string    `json:"status"`
	Branch        string    `json:"branch"`
	Commit        string    `json:"commit"`
	CommitMessage string    `json:"commitMessage"`
	URL           string    `json:"url,omitempty"`
	Duration      int64     `json:"duration"`
	BuildLogs     string    `json:"buildLogs,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewDeploymentResponseFromModel creates a new DeploymentResponse from a models.Deployment
func NewDeploymentResponseFromModel(deployment models.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:            deployment.ID,
		ProjectID:     deployment.ProjectID,
		Status:        string(deployment.Status),
		Branch:        deployment.Branch,
		Commit:        deployment.Commit,
		CommitMessage: deployment.CommitMessage,
		URL:           deployment.URL,
		Duration:      deployment.Duration,
		BuildLogs:     deployment.BuildLogs,
		CreatedAt:     deployment.CreatedAt,
		UpdatedAt:     deployment.UpdatedAt,
	}
}

// NewDeploymentListFromModels drops the build logs, which can be large.
func NewDeploymentListFromModels(deployments []models.Deployment) []DeploymentResponse {
	out := make([]DeploymentResponse, 0, len(deployments))
	for _, d := range deployments {
		r := NewDeploymentResponseFromModel(d)
		r.BuildLogs = ""
		out = append(out, r)
	}
	return out
}
