// Package storage is the only code that reads or writes the database.
package storage

import (
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/welcomarr/welcomarr/internal/gormw"
)

var (
	logger = log.With().Str("component", "storage").Logger()
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrLimitReached   = errors.New("invitation usage limit reached")
	ErrUnknownLibrary = errors.New("unknown library")
	ErrDuplicateCode  = errors.New("invitation code already exists")

	ErrAlreadyCompleted = errors.New("redemption already completed")
)

// Store implements the invitation, user, library and settings stores on top
// of a single gorm database.
type Store struct {
	db *gormw.DB
}

func New(db *gormw.DB) *Store {
	return &Store{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateCode
	}
	return err
}
