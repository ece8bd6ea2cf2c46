package storage

import (
	"context"

	"github.com/hashicorp/go-set/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/welcomarr/welcomarr/internal/models"
)

// ListLibraries returns the cached catalog ordered by name.
func (s *Store) ListLibraries(ctx context.Context) ([]models.Library, error) {
	res := []models.Library{}
	err := s.db.WithContext(ctx).Order("name").Find(&res).Error
	return res, err
}

// ReplaceLibraries makes libs the whole catalog. Libraries missing from libs
// are soft deleted and taken off the invitations selecting them. Redemption
// records keep their references; a library listed again is restored.
func (s *Store) ReplaceLibraries(ctx context.Context, libs []models.Library) error {
	return s.db.TransactionWithRetry(ctx, func(tx *gorm.DB) error {
		keep := set.New[string](len(libs))
		for _, l := range libs {
			keep.Insert(l.LibraryID)
		}

		existing := []models.Library{}
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}

		stale := []string{}
		for _, l := range existing {
			if !keep.Contains(l.LibraryID) {
				stale = append(stale, l.LibraryID)
			}
		}

		if len(stale) > 0 {
			if err := tx.Exec("DELETE FROM invitation_libraries WHERE library_id IN ?", stale).Error; err != nil {
				return err
			}
			if err := tx.Where("library_id IN ?", stale).Delete(&models.Library{}).Error; err != nil {
				return err
			}
			logger.Info().Strs("library_ids", stale).Msg("Dropped stale libraries")
		}

		if len(libs) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "library_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type", "updated_at", "deleted_at"}),
		}).Create(&libs).Error
	})
}
