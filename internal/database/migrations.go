package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/formgate/internal/models"
)

// AutoMigrate creates the submissions table and its unique email index when absent.
// It is safe to run on every start.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(&models.Submission{})
}
