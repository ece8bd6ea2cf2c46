package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/models"
)

// CreateUser writes a redemption record. Libraries are referenced, the
// catalog rows are not touched.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.TransactionWithRetry(ctx, func(tx *gorm.DB) error {
		return tx.Omit("Libraries.*").Create(user).Error
	})
}

// withDeleted keeps libraries the server dropped after they were shared.
func withDeleted(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

// ListUsers returns the redemption history, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	res := []models.User{}
	err := s.db.WithContext(ctx).Preload("Libraries", withDeleted).Order("joined_at DESC").Order("id DESC").Find(&res).Error
	return res, err
}

func (s *Store) ListUsersByInvitation(ctx context.Context, code string) ([]models.User, error) {
	res := []models.User{}
	err := s.db.WithContext(ctx).Preload("Libraries", withDeleted).Where("invitation_code = ?", code).Order("joined_at DESC").Find(&res).Error
	return res, err
}

func countRows(ctx context.Context, db *gormw.DB, model any) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(model).Count(&count).Error
	return count, err
}

// UserExists reports whether a redemption by plexUsername at joinedAt is
// already recorded.
func (s *Store) UserExists(ctx context.Context, plexUsername string, joinedAt time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("plex_username = ? AND joined_at = ?", plexUsername, joinedAt).
		Count(&count).Error
	return count > 0, err
}
