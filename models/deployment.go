package models

import "time"

// DeploymentStatus represents the stage of one deployment attempt
type DeploymentStatus string

const (
	DeploymentStatusQueued   DeploymentStatus = "queued"
	DeploymentStatusBuilding DeploymentStatus = "building"
	DeploymentStatusReady    DeploymentStatus = "ready"
	DeploymentStatusError    DeploymentStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentStatusReady || s == DeploymentStatusError
}

// ActiveDeploymentStatuses are the states in which logs and status may still change.
var ActiveDeploymentStatuses = []DeploymentStatus{DeploymentStatusQueued, DeploymentStatusBuilding}

// Deployment is one build/deploy attempt of a project
type Deployment struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	Status        DeploymentStatus `json:"status" gorm:"type:varchar(20);not null;default:queued;index"`
	Branch        string           `json:"branch" gorm:"default:null"`
	Commit        string           `json:"commit" gorm:"default:null"`
	CommitMessage string           `json:"commitMessage" gorm:"default:null"`
	URL           string           `json:"url" gorm:"default:null"`
	Duration      int64            `json:"duration" gorm:"default:0"`
	BuildLogs     string           `json:"buildLogs" gorm:"type:text"`
	ProjectID     uint             `json:"projectId" gorm:"not null;index"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}
