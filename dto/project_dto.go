package dto

import (
	"time"

	"github.com/deploykit/models"
)

// CreateProjectRequest represents the request payload for creating a new project
type CreateProjectRequest struct {
	Name             string            `json:"name" yaml:"name" binding:"required"`
	RepositoryURL    string            `json:"repositoryUrl" yaml:"repositoryUrl" binding:"required"`
	DefaultBranch    string            `json:"defaultBranch" yaml:"defaultBranch"`
	Description      string            `json:"description" yaml:"description"`
	Language         string            `json:"language" yaml:"language"`
	Framework        string            `json:"framework" yaml:"framework"`
	InstallCommand   string            `json:"installCommand" yaml:"installCommand"`
	OutputDir        string            `json:"outputDir" yaml:"outputDir"`
	EnvVariables     map[string]string `json:"envVariables" yaml:"envVariables"`
	Domain           string            `json:"domain" yaml:"domain"`
	DBType           models.DBType     `json:"dbType" yaml:"dbType"`
	UseRedis         bool              `json:"useRedis" yaml:"useRedis"`
	UseElasticsearch bool              `json:"useElasticsearch" yaml:"useElasticsearch"`
}

// UpdateSettingsRequest changes configuration fields; nil fields are left alone.
type UpdateSettingsRequest struct {
	Name             *string        `json:"name"`
	DefaultBranch    *string        `json:"defaultBranch"`
	Description      *string        `json:"description"`
	Framework        *string        `json:"framework"`
	InstallCommand   *string        `json:"installCommand"`
	OutputDir        *string        `json:"outputDir"`
	Domain           *string        `json:"domain"`
	DBType           *models.DBType `json:"dbType"`
	UseRedis         *bool          `json:"useRedis"`
	UseElasticsearch *bool          `json:"useElasticsearch"`
}

// EnvVariableRequest adds or replaces one user-declared variable
type EnvVariableRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// ProjectSettings is the configurable part of a project
type ProjectSettings struct {
	Name             string            `json:"name"`
	RepositoryURL    string            `json:"repositoryUrl"`
	DefaultBranch    string            `json:"defaultBranch"`
	Description      string            `json:"description"`
	Framework        string            `json:"framework"`
	InstallCommand   string            `json:"installCommand"`
	OutputDir        string            `json:"outputDir"`
	EnvVariables     map[string]string `json:"envVariables"`
	Domain           string            `json:"domain"`
	Port             int               `json:"port"`
	DBType           models.DBType     `json:"dbType"`
	UseRedis         bool              `json:"useRedis"`
	UseElasticsearch bool              `json:"useElasticsearch"`
}

// NewProjectSettings extracts the settings view of a project
func NewProjectSettings(p models.Project) ProjectSettings {
	env := p.EnvVariables.Clone()
	return ProjectSettings{
		Name:             p.Name,
		RepositoryURL:    p.RepositoryURL,
		DefaultBranch:    p.DefaultBranch,
		Description:      p.Description,
		Framework:        p.Framework,
		InstallCommand:   p.InstallCommand,
		OutputDir:        p.OutputDir,
		EnvVariables:     env,
		Domain:           p.Domain,
		Port:             p.Port,
		DBType:           p.DBType,
		UseRedis:         p.UseRedis,
		UseElasticsearch: p.UseElasticsearch,
	}
}

// ProjectResponse represents the standard response format for a project
type ProjectResponse struct {
	ID             uint                `json:"id"`
	Name           string              `json:"name"`
	AppName        string              `json:"appName"`
	RepositoryURL  string              `json:"repositoryUrl"`
	DefaultBranch  string              `json:"defaultBranch"`
	Framework      string              `json:"framework"`
	Domain         string              `json:"domain"`
	Port           int                 `json:"port"`
	APIKey         string              `json:"apiKey,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	LastDeployment *DeploymentResponse `json:"lastDeployment,omitempty"`
}

// MemberResponse is one row of a project's member list
type MemberResponse struct {
	UserID    uint              `json:"userId"`
	Role      models.MemberRole `json:"role"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CreateProjectResponse is returned once, with the webhook API key and the
// first deployment. Deployment is null when it could not be started.
type CreateProjectResponse struct {
	Project    ProjectResponse     `json:"project"`
	Deployment *DeploymentResponse `json:"deployment"`
}
