package invitation

import (
	"errors"
	"time"

	"github.com/welcomarr/welcomarr/internal/models"
)

type Status string

const (
	StatusActive    Status = "Active"
	StatusExpired   Status = "Expired"
	StatusFullyUsed Status = "Fully used"
	// StatusUsed is for imported single-use invitations.
	StatusUsed     Status = "Used"
	StatusNotFound Status = "Not found"
)

var (
	ErrNotFound  = errors.New("invalid invitation code")
	ErrExpired   = errors.New("invitation has expired")
	ErrFullyUsed = errors.New("invitation has reached its usage limit")
)

// Evaluate derives the status of invitation at now. It has no side effects.
func Evaluate(invitation *models.Invitation, now time.Time) Status {
	switch {
	case invitation == nil:
		return StatusNotFound
	case invitation.Used:
		return StatusUsed
	case invitation.ExpiresAt != nil && invitation.ExpiresAt.Before(now):
		return StatusExpired
	case invitation.UsageLimit > 0 && invitation.UsageCount >= invitation.UsageLimit:
		return StatusFullyUsed
	}
	return StatusActive
}

func IsValid(invitation *models.Invitation, now time.Time) bool {
	return Evaluate(invitation, now) == StatusActive
}

// Err maps a status to the error a redemption attempt fails with.
func (s Status) Err() error {
	switch s {
	case StatusActive:
		return nil
	case StatusNotFound:
		return ErrNotFound
	case StatusExpired:
		return ErrExpired
	}
	return ErrFullyUsed
}
