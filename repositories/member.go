package repositories

import (
	"context"

	"github.com/deploykit/models"
	"gorm.io/gorm"
)

// MemberRepository handles project membership rows
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository instance
func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// FindRole returns the role of userID in projectID, or ErrNotFound.
func (r *MemberRepository) FindRole(ctx context.Context, projectID, userID uint) (models.MemberRole, error) {
	var member models.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if err != nil {
		return "", translate(err)
	}
	return member.Role, nil
}

// FindByProject lists the members of a project
func (r *MemberRepository) FindByProject(ctx context.Context, projectID uint) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id").Find(&members).Error
	return members, err
}
