package models

import "time"

// Role represents user role types
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is created by the identity provider integration; deploykit only reads it.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GithubID  string    `json:"githubId" gorm:"uniqueIndex"`
	Username  string    `json:"username" gorm:"not null"`
	AvatarURL string    `json:"avatarUrl" gorm:"default:null"`
	Allowed   bool      `json:"allowed" gorm:"default:false"`
	Role      Role      `json:"role" gorm:"type:varchar(10);default:'user'"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
