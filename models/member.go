package models

import "time"

// MemberRole is a user's role inside one project
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "OWNER"
	MemberRoleMember MemberRole = "MEMBER"
)

// ProjectMember grants a user access to a project
type ProjectMember struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	ProjectID uint       `json:"projectId" gorm:"not null;uniqueIndex:idx_project_member"`
	UserID    uint       `json:"userId" gorm:"not null;uniqueIndex:idx_project_member"`
	Role      MemberRole `json:"role" gorm:"type:varchar(10);default:'MEMBER'"`
	CreatedAt time.Time  `json:"createdAt"`
}
