package storage

import (
	"context"
	"errors"

	"github.com/welcomarr/welcomarr/internal/models"
)

const settingsID = 1

func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	res := &models.Settings{}
	if err := s.db.WithContext(ctx).First(res, settingsID).Error; err != nil {
		err = translate(err)
		if errors.Is(err, ErrNotFound) {
			return models.DefaultSettings(), nil
		}
		return nil, err
	}
	return res, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings *models.Settings) error {
	settings.ID = settingsID
	return s.db.WithContext(ctx).Save(settings).Error
}

// SetServerURL records a direct server URL found by local discovery.
func (s *Store) SetServerURL(ctx context.Context, url string) error {
	return s.db.WithContext(ctx).Model(&models.Settings{}).Where("id = ?", settingsID).Update("plex_url", url).Error
}
