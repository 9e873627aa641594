package repositories

import (
	"context"

	"github.com/deploykit/models"
	"gorm.io/gorm"
)

// DeploymentRepository handles database operations for deployments. Status
// and log writes only touch rows that are still QUEUED or BUILDING, so a
// finished deployment can never change again.
type DeploymentRepository struct {
	db *gorm.DB
}

// NewDeploymentRepository creates a new deployment repository instance
func NewDeploymentRepository(db *gorm.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

func activeStatuses() []string {
	out := make([]string, len(models.ActiveDeploymentStatuses))
	for i, s := range models.ActiveDeploymentStatuses {
		out[i] = string(s)
	}
	return out
}

// Create inserts a new deployment into the database
func (r *DeploymentRepository) Create(ctx context.Context, deployment *models.Deployment) error {
	return r.db.WithContext(ctx).Create(deployment).Error
}

// FindByID retrieves a deployment by its ID
func (r *DeploymentRepository) FindByID(ctx context.Context, id uint) (models.Deployment, error) {
	var deployment models.Deployment
	err := r.db.WithContext(ctx).First(&deployment, id).Error
	return deployment, translate(err)
}

// FindByProject retrieves the deployments of a project, newest first
func (r *DeploymentRepository) FindByProject(ctx context.Context, projectID uint, limit int) ([]models.Deployment, error) {
	var deployments []models.Deployment
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&deployments).Error
	return deployments, err
}

// MarkBuilding moves a QUEUED deployment to BUILDING.
func (r *DeploymentRepository) MarkBuilding(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ? AND status = ?", id, string(models.DeploymentStatusQueued)).
		Update("status", models.DeploymentStatusBuilding)
	return r.checkTransition(ctx, id, result)
}

// AppendLogs adds chunk to the build log of an unfinished deployment.
func (r *DeploymentRepository) AppendLogs(ctx context.Context, id uint, chunk string) error {
	result := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ? AND status IN ?", id, activeStatuses()).
		Update("build_logs", gorm.Expr("COALESCE(build_logs, '') || ?", chunk))
	return r.checkTransition(ctx, id, result)
}

// Finish is the terminal write of an attempt.
type Finish struct {
	Status    models.DeploymentStatus
	URL       string
	Duration  int64
	BuildLogs string
}

// Finish records the terminal status and the full build log. It fails with
// ErrAlreadyFinished if the deployment already reached READY or ERROR.
func (r *DeploymentRepository) Finish(ctx context.Context, id uint, f Finish) error {
	updates := map[string]interface{}{
		"status":     f.Status,
		"duration":   f.Duration,
		"build_logs": f.BuildLogs,
	}
	if f.Status == models.DeploymentStatusReady {
		updates["url"] = f.URL
	}
	result := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ? AND status IN ?", id, activeStatuses()).
		Updates(updates)
	return r.checkTransition(ctx, id, result)
}

func (r *DeploymentRepository) checkTransition(ctx context.Context, id uint, result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyFinished
}
