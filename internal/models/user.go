package models

import "time"

type GrantStatus string

const (
	// GrantPending marks a redemption whose grant has not finished yet.
	GrantPending GrantStatus = "Pending"
	GrantGranted GrantStatus = "Granted"
	GrantFailed  GrantStatus = "Failed"
	GrantSkipped GrantStatus = "Skipped"
)

// User is the record of one redemption. It is written together with the use
// it consumes, as Pending, and completed once with the grant outcome.
type User struct {
	ID             uint `gorm:"primarykey"`
	Name           string
	Email          string
	PlexUsername   string    `gorm:"not null"`
	JoinedAt       time.Time `gorm:"index"`
	InvitationCode string    `gorm:"index"` // weak reference, the invitation may be gone
	GrantStatus    GrantStatus
	GrantMessage   string
	Libraries      []Library `gorm:"many2many:user_libraries;joinForeignKey:UserID;joinReferences:LibraryID"`
}
