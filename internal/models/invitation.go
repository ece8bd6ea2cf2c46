package models

import "time"

// LibraryScope says which libraries a redemption shares.
type LibraryScope string

const (
	// ScopeAll shares every library known at redemption time.
	ScopeAll LibraryScope = "all"
	// ScopeNone shares nothing, redemption is bookkeeping only.
	ScopeNone LibraryScope = "none"
	// ScopeSelected shares the invitation's associated libraries.
	ScopeSelected LibraryScope = "selected"
)

func (s LibraryScope) Valid() bool {
	switch s {
	case ScopeAll, ScopeNone, ScopeSelected:
		return true
	}
	return false
}

type Invitation struct {
	ID           uint   `gorm:"primarykey"`
	Code         string `gorm:"uniqueIndex;not null"`
	Name         string
	Email        string
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
	ExpiresAt    *time.Time // nil never expires
	UsageLimit   uint       // 0 is unlimited
	UsageCount   uint
	Used         bool // legacy single-use flag, only set by imports
	LastUsedBy   string
	LastUsedAt   *time.Time
	LibraryScope LibraryScope `gorm:"default:all"`
	Libraries    []Library    `gorm:"many2many:invitation_libraries;joinForeignKey:InvitationID;joinReferences:LibraryID"`
}

// LibraryIDs returns the external ids of the associated libraries.
func (i *Invitation) LibraryIDs() []string {
	ids := make([]string, 0, len(i.Libraries))
	for _, l := range i.Libraries {
		ids = append(ids, l.LibraryID)
	}
	return ids
}
