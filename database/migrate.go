package database

import (
	"fmt"

	"github.com/deploykit/models"
	"gorm.io/gorm"
)

// Models lists every table deploykit owns.
var Models = []interface{}{
	&models.User{},
	&models.Project{},
	&models.ProjectMember{},
	&models.Deployment{},
}

// Migrate migrates the database schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
