package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deploykit/models"
	"gorm.io/gorm"
)

const (
	// FirstPort is assigned to the first project ever created.
	FirstPort = 30001
	// LastPort is the top of the default Kubernetes NodePort range.
	LastPort = 32767

	maxPortAttempts = 5
)

// ProjectRepository handles database operations for projects
type ProjectRepository struct {
	db *gorm.DB
	// portMu serialises allocations from this process; the unique index
	// on port covers other processes.
	portMu sync.Mutex
	// observe, if set, receives "ok", "conflict" or "exhausted" per attempt.
	observe func(outcome string)
}

// NewProjectRepository creates a new project repository instance
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ObservePortAllocations registers fn to be told the outcome of every
// allocation attempt.
func (r *ProjectRepository) ObservePortAllocations(fn func(outcome string)) {
	r.observe = fn
}

func (r *ProjectRepository) record(outcome string) {
	if r.observe != nil {
		r.observe(outcome)
	}
}

// CreateWithNextPort inserts project with the next free port and records
// ownerID as its OWNER member, all in one transaction. A concurrent insert
// that grabbed the same port makes the transaction fail on the unique index,
// in which case it is retried with a fresh maximum.
func (r *ProjectRepository) CreateWithNextPort(ctx context.Context, project *models.Project, ownerID uint) error {
	r.portMu.Lock()
	defer r.portMu.Unlock()

	var err error
	for attempt := 1; attempt <= maxPortAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxPort int64
			if err := tx.Model(&models.Project{}).Select("COALESCE(MAX(port), 0)").Row().Scan(&maxPort); err != nil {
				return err
			}
			port := FirstPort
			if maxPort >= FirstPort {
				port = int(maxPort) + 1
			}
			if port > LastPort {
				return ErrPortRangeExhausted
			}

			project.ID = 0
			project.Port = port
			if err := tx.Create(project).Error; err != nil {
				return err
			}
			return tx.Create(&models.ProjectMember{
				ProjectID: project.ID,
				UserID:    ownerID,
				Role:      models.MemberRoleOwner,
			}).Error
		})
		switch {
		case err == nil:
			r.record("ok")
			return nil
		case errors.Is(err, ErrPortRangeExhausted):
			r.record("exhausted")
			return err
		case errors.Is(err, gorm.ErrDuplicatedKey):
			r.record("conflict")
		default:
			return err
		}
	}
	return fmt.Errorf("allocate port after %d attempts: %w", maxPortAttempts, err)
}

// FindByID retrieves a project by its ID
func (r *ProjectRepository) FindByID(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, id).Error
	return project, translate(err)
}

// FindByAPIKey retrieves the project a webhook key belongs to
func (r *ProjectRepository) FindByAPIKey(ctx context.Context, apiKey string) (models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&project).Error
	return project, translate(err)
}

// FindForUser lists the projects userID is a member of, newest first, each
// with its most recent deployment.
func (r *ProjectRepository) FindForUser(ctx context.Context, userID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at DESC, projects.id DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}

	for i := range projects {
		var last models.Deployment
		err := r.db.WithContext(ctx).
			Where("project_id = ?", projects[i].ID).
			Order("created_at DESC, id DESC").
			Omit("build_logs").
			First(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			projects[i].LastDeployment = &last
		}
	}
	return projects, nil
}

// Update applies column updates to a project
func (r *ProjectRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEnv replaces the user-declared environment of a project
func (r *ProjectRepository) UpdateEnv(ctx context.Context, id uint, env models.EnvVars) error {
	return r.Update(ctx, id, map[string]interface{}{"env_variables": env})
}

// Delete removes a project with its deployments and memberships
func (r *ProjectRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Deployment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
