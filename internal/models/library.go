package models

import (
	"time"

	"gorm.io/gorm"
)

// Library is a section of the media server, keyed by its external id.
// Libraries the server no longer lists are soft deleted so redemption
// records keep pointing at what was shared.
type Library struct {
	LibraryID string `gorm:"primarykey"`
	Name      string
	Type      string
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
