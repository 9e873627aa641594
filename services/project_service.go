package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deploykit/dto"
	"github.com/deploykit/models"
	"github.com/deploykit/repositories"
	"github.com/deploykit/templates"
	"github.com/deploykit/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	domainPattern = regexp.MustCompile(`^([a-z0-9]([-a-z0-9]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

// ProjectStore persists projects
type ProjectStore interface {
	CreateWithNextPort(ctx context.Context, project *models.Project, ownerID uint) error
	FindByID(ctx context.Context, id uint) (models.Project, error)
	FindByAPIKey(ctx context.Context, apiKey string) (models.Project, error)
	FindForUser(ctx context.Context, userID uint) ([]models.Project, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
	UpdateEnv(ctx context.Context, id uint, env models.EnvVars) error
	Delete(ctx context.Context, id uint) error
}

// MemberStore answers membership questions
type MemberStore interface {
	FindRole(ctx context.Context, projectID, userID uint) (models.MemberRole, error)
	FindByProject(ctx context.Context, projectID uint) ([]models.ProjectMember, error)
}

// Deployer starts deployments
type Deployer interface {
	Deploy(ctx context.Context, req DeployRequest) (*Attempt, error)
}

// ResourceCleaner removes the cluster objects of an app
type ResourceCleaner interface {
	DeleteAppResources(ctx context.Context, namespace, appName string) error
}

// ProjectService handles business logic for projects
type ProjectService struct {
	projects  ProjectStore
	members   MemberStore
	deployer  Deployer
	cleaner   ResourceCleaner
	namespace string
	log       *logrus.Entry
}

// NewProjectService creates a new project service instance. cleaner may be
// nil when no cluster client is configured.
func NewProjectService(projects ProjectStore, members MemberStore, deployer Deployer, cleaner ResourceCleaner, namespace string, log *logrus.Entry) *ProjectService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ProjectService{
		projects:  projects,
		members:   members,
		deployer:  deployer,
		cleaner:   cleaner,
		namespace: namespace,
		log:       log,
	}
}

// Create stores a new project owned by userID and starts its first deployment.
// The attempt is nil when the project was stored but the deployment could not
// be started.
func (s *ProjectService) Create(ctx context.Context, userID uint, req dto.CreateProjectRequest) (models.Project, *Attempt, error) {
	project, err := NewProjectFromRequest(userID, req)
	if err != nil {
		return models.Project{}, nil, err
	}

	if err := s.projects.CreateWithNextPort(ctx, &project, userID); err != nil {
		return models.Project{}, nil, fmt.Errorf("create project: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"project_id": project.ID,
		"app":        templates.AppName(project.Name),
		"port":       project.Port,
	}).Info("📦 Project created")

	// The project is committed at this point; a failed first deployment is
	// retried through the redeploy endpoint, not by creating again.
	attempt, err := s.deployer.Deploy(ctx, DeployRequest{ProjectID: project.ID})
	if err != nil {
		s.log.WithError(err).WithField("project_id", project.ID).Warn("⚠️ First deployment not started")
		return project, nil, nil
	}
	return project, attempt, nil
}

// NewProjectFromRequest validates req and fills in defaults. The result has
// no ID or port yet.
func NewProjectFromRequest(userID uint, req dto.CreateProjectRequest) (models.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.Project{}, invalid("name", "is required")
	}
	repoURL := strings.TrimSpace(req.RepositoryURL)
	if repoURL == "" {
		return models.Project{}, invalid("repositoryUrl", "is required")
	}
	dbType := req.DBType
	if dbType == "" {
		dbType = models.DBTypeNone
	}
	if err := validateDBType(dbType); err != nil {
		return models.Project{}, err
	}
	domain := models.NormalizeDomain(req.Domain)
	if err := validateDomain(domain); err != nil {
		return models.Project{}, err
	}
	env := models.EnvVars{}
	for k, v := range req.EnvVariables {
		if !envKeyPattern.MatchString(k) {
			return models.Project{}, invalid("envVariables", fmt.Sprintf("has invalid key %q", k))
		}
		env[k] = v
	}

	project := models.Project{
		Name:               name,
		RepositoryURL:      repoURL,
		RepositoryFullName: utils.ExtractRepoFullName(repoURL),
		DefaultBranch:      orDefault(req.DefaultBranch, "main"),
		Description:        req.Description,
		Language:           req.Language,
		Framework:          orDefault(strings.ToLower(req.Framework), models.FrameworkOther),
		InstallCommand:     req.InstallCommand,
		OutputDir:          orDefault(req.OutputDir, "dist"),
		EnvVariables:       env,
		Domain:             domain,
		DBType:             dbType,
		UseRedis:           req.UseRedis,
		UseElasticsearch:   req.UseElasticsearch,
		APIKey:             uuid.NewString(),
		UserID:             userID,
	}
	return project, nil
}

// List returns the projects userID is a member of
func (s *ProjectService) List(ctx context.Context, userID uint) ([]models.Project, error) {
	return s.projects.FindForUser(ctx, userID)
}

// Authorize loads a project and checks that userID is one of its members.
func (s *ProjectService) Authorize(ctx context.Context, projectID, userID uint) (models.Project, models.MemberRole, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return models.Project{}, "", notFound(err)
	}
	role, err := s.members.FindRole(ctx, projectID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Project{}, "", ErrForbidden
	}
	if err != nil {
		return models.Project{}, "", err
	}
	return project, role, nil
}

// Get returns a project visible to userID
func (s *ProjectService) Get(ctx context.Context, projectID, userID uint) (models.Project, error) {
	project, _, err := s.Authorize(ctx, projectID, userID)
	return project, err
}

// ResolveAPIKey finds the project a deploy hook targets. projectID is
// optional; when set it must match the key's project.
func (s *ProjectService) ResolveAPIKey(ctx context.Context, projectID uint, apiKey string) (models.Project, error) {
	if strings.TrimSpace(apiKey) == "" {
		return models.Project{}, ErrForbidden
	}
	project, err := s.projects.FindByAPIKey(ctx, apiKey)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Project{}, ErrForbidden
	}
	if err != nil {
		return models.Project{}, err
	}
	if subtle.ConstantTimeCompare([]byte(project.APIKey), []byte(apiKey)) != 1 {
		return models.Project{}, ErrForbidden
	}
	if projectID != 0 && projectID != project.ID {
		return models.Project{}, ErrForbidden
	}
	return project, nil
}

// Delete removes a project and, when a cluster client is configured, its
// Kubernetes objects. Only owners may delete.
func (s *ProjectService) Delete(ctx context.Context, projectID, userID uint) error {
	project, role, err := s.Authorize(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role != models.MemberRoleOwner {
		return ErrForbidden
	}

	appName := templates.AppName(project.Name)
	if s.cleaner != nil {
		if err := s.cleaner.DeleteAppResources(ctx, s.namespace, appName); err != nil {
			s.log.WithError(err).WithField("app", appName).Warn("Failed to remove cluster resources")
		}
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		return notFound(err)
	}
	s.log.WithFields(logrus.Fields{"project_id": projectID, "app": appName}).Info("🗑️ Project deleted")
	return nil
}

// Members lists who can access a project. Any member may read the list.
func (s *ProjectService) Members(ctx context.Context, projectID, userID uint) ([]models.ProjectMember, error) {
	if _, _, err := s.Authorize(ctx, projectID, userID); err != nil {
		return nil, err
	}
	members, err := s.members.FindByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// GetSettings returns the configuration of a project
func (s *ProjectService) GetSettings(ctx context.Context, projectID, userID uint) (dto.ProjectSettings, error) {
	project, err := s.Get(ctx, projectID, userID)
	if err != nil {
		return dto.ProjectSettings{}, err
	}
	return dto.NewProjectSettings(project), nil
}

// UpdateSettings applies the non-nil fields of req. Changes take effect with
// the next deployment.
func (s *ProjectService) UpdateSettings(ctx context.Context, projectID, userID uint, req dto.UpdateSettingsRequest) (dto.ProjectSettings, error) {
	if _, err := s.Get(ctx, projectID, userID); err != nil {
		return dto.ProjectSettings{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return dto.ProjectSettings{}, invalid("name", "must not be empty")
		}
		updates["name"] = name
	}
	if req.DefaultBranch != nil {
		updates["default_branch"] = orDefault(*req.DefaultBranch, "main")
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Framework != nil {
		updates["framework"] = orDefault(strings.ToLower(*req.Framework), models.FrameworkOther)
	}
	if req.InstallCommand != nil {
		updates["install_command"] = *req.InstallCommand
	}
	if req.OutputDir != nil {
		updates["output_dir"] = orDefault(*req.OutputDir, "dist")
	}
	if req.Domain != nil {
		domain := models.NormalizeDomain(*req.Domain)
		if err := validateDomain(domain); err != nil {
			return dto.ProjectSettings{}, err
		}
		updates["domain"] = domain
	}
	if req.DBType != nil {
		if err := validateDBType(*req.DBType); err != nil {
			return dto.ProjectSettings{}, err
		}
		updates["db_type"] = *req.DBType
	}
	if req.UseRedis != nil {
		updates["use_redis"] = *req.UseRedis
	}
	if req.UseElasticsearch != nil {
		updates["use_elasticsearch"] = *req.UseElasticsearch
	}

	if len(updates) > 0 {
		if err := s.projects.Update(ctx, projectID, updates); err != nil {
			return dto.ProjectSettings{}, notFound(err)
		}
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return dto.ProjectSettings{}, notFound(err)
	}
	return dto.NewProjectSettings(project), nil
}

// AddEnvVariable sets one user-declared variable.
func (s *ProjectService) AddEnvVariable(ctx context.Context, projectID, userID uint, key, value string) (models.EnvVars, error) {
	if !envKeyPattern.MatchString(key) {
		return nil, invalid("key", "must match "+envKeyPattern.String())
	}
	project, err := s.Get(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	env := project.EnvVariables.Clone()
	env[key] = value
	if err := s.projects.UpdateEnv(ctx, projectID, env); err != nil {
		return nil, notFound(err)
	}
	return env, nil
}

// DeleteEnvVariable removes one user-declared variable.
func (s *ProjectService) DeleteEnvVariable(ctx context.Context, projectID, userID uint, key string) (models.EnvVars, error) {
	project, err := s.Get(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := project.EnvVariables[key]; !ok {
		return nil, ErrNotFound
	}
	env := project.EnvVariables.Clone()
	delete(env, key)
	if err := s.projects.UpdateEnv(ctx, projectID, env); err != nil {
		return nil, notFound(err)
	}
	return env, nil
}

func validateDBType(t models.DBType) error {
	switch t {
	case models.DBTypeNone, models.DBTypePostgreSQL:
		return nil
	}
	return invalid("dbType", fmt.Sprintf("must be %q or %q", models.DBTypeNone, models.DBTypePostgreSQL))
}

func validateDomain(domain string) error {
	if domain == "" || domainPattern.MatchString(domain) {
		return nil
	}
	return invalid("domain", fmt.Sprintf("%q is not a valid host name", domain))
}

func notFound(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
