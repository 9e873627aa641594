package models

import (
	"strings"
	"time"
)

// DBType is the database a project asks to be provisioned next to it.
type DBType string

const (
	DBTypeNone       DBType = "none"
	DBTypePostgreSQL DBType = "postgresql"
)

// Framework values understood by the template engine. Anything else is
// built with the generic Node strategy.
const (
	FrameworkReact      = "react"
	FrameworkNextJS     = "nextjs"
	FrameworkNestJS     = "nestjs"
	FrameworkNodeJS     = "nodejs"
	FrameworkOther      = "other"
	FrameworkSpringBoot = "springboot"
)

// Project is a deployable application definition
type Project struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	Name               string    `json:"name" gorm:"not null"`
	RepositoryFullName string    `json:"repositoryFullName" gorm:"default:null"`
	RepositoryURL      string    `json:"repositoryUrl" gorm:"not null"`
	DefaultBranch      string    `json:"defaultBranch" gorm:"default:main"`
	Description        string    `json:"description" gorm:"default:null"`
	Language           string    `json:"language" gorm:"default:null"`
	Framework          string    `json:"framework" gorm:"default:other"`
	InstallCommand     string    `json:"installCommand" gorm:"default:null"`
	OutputDir          string    `json:"outputDir" gorm:"default:dist"`
	EnvVariables       EnvVars   `json:"envVariables" gorm:"type:text"`
	Domain             string    `json:"domain" gorm:"default:null"`
	Port               int       `json:"port" gorm:"uniqueIndex;not null"`
	DBType             DBType    `json:"dbType" gorm:"type:varchar(20);default:none"`
	UseRedis           bool      `json:"useRedis" gorm:"default:false"`
	UseElasticsearch   bool      `json:"useElasticsearch" gorm:"default:false"`
	APIKey             string    `json:"-" gorm:"uniqueIndex;not null"`
	UserID             uint      `json:"userId" gorm:"index"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`

	// Relations
	Deployments    []Deployment    `json:"deployments,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Members        []ProjectMember `json:"members,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	LastDeployment *Deployment     `json:"lastDeployment,omitempty" gorm:"-"`
}

// NormalizeDomain lower-cases and trims a domain before it is stored.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
