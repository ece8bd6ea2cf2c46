package storage

import (
	"context"

	"github.com/welcomarr/welcomarr/internal/models"
)

const defaultAdminUsername = "admin"

func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	admin := &models.Admin{}
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(admin).Error; err != nil {
		return nil, translate(err)
	}
	return admin, nil
}

func (s *Store) GetAdminByID(ctx context.Context, id uint) (*models.Admin, error) {
	admin := &models.Admin{}
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(admin).Error; err != nil {
		return nil, translate(err)
	}
	return admin, nil
}

func (s *Store) UpdateAdmin(ctx context.Context, admin *models.Admin) error {
	return s.db.WithContext(ctx).Save(admin).Error
}

// EnsureDefaults seeds the settings row and the first admin account on an
// empty database.
func (s *Store) EnsureDefaults(ctx context.Context, initialAdminPassword string) error {
	if err := s.db.WithContext(ctx).FirstOrCreate(models.DefaultSettings()).Error; err != nil {
		return err
	}

	count, err := countRows(ctx, s.db, &models.Admin{})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := &models.Admin{
		Username: defaultAdminUsername,
		Email:    "admin@example.com",
	}
	if err := admin.SetPassword(initialAdminPassword); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}
	logger.Warn().Str("username", admin.Username).Msg("Created default admin account, change its password")
	return nil
}

func (s *Store) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	return translate(s.db.WithContext(ctx).Create(admin).Error)
}
