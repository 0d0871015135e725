package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Submission is an accepted form submission. Email is the normalised address whose
// allowlist token was consumed to admit it.
type Submission struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Age       int       `gorm:"not null" json:"age"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Timestamp time.Time `gorm:"column:timestamp;not null;default:CURRENT_TIMESTAMP" json:"timestamp"`
}

// TableName pins the table name used by the export and inspection tools.
func (Submission) TableName() string {
	return "submissions"
}

// Normalise trims the name and lower-cases the email.
func (s *Submission) Normalise() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
}

// BeforeCreate stamps the insertion time when the caller left it unset.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	return nil
}
