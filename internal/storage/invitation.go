package storage

import (
	"context"

	"github.com/hashicorp/go-set/v3"
	"gorm.io/gorm"

	"github.com/welcomarr/welcomarr/internal/models"
)

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Invitation{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// CreateInvitation saves invitation and associates it with the given catalog
// libraries. Every id must already be in the catalog.
func (s *Store) CreateInvitation(ctx context.Context, invitation *models.Invitation, libraryIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		libs, err := findLibraries(tx, libraryIDs)
		if err != nil {
			return err
		}
		invitation.Libraries = libs
		return translate(tx.Omit("Libraries.*").Create(invitation).Error)
	})
}

func findLibraries(tx *gorm.DB, ids []string) ([]models.Library, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	want := set.From(ids)
	libs := []models.Library{}
	if err := tx.Where("library_id IN ?", want.Slice()).Find(&libs).Error; err != nil {
		return nil, err
	}
	if len(libs) != want.Size() {
		return nil, ErrUnknownLibrary
	}
	return libs, nil
}

func (s *Store) GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error) {
	res := &models.Invitation{}
	if err := s.db.WithContext(ctx).Preload("Libraries").Where("code = ?", code).First(res).Error; err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// ListInvitations returns all invitations, newest first.
func (s *Store) ListInvitations(ctx context.Context) ([]models.Invitation, error) {
	res := []models.Invitation{}
	err := s.db.WithContext(ctx).Preload("Libraries").Order("created_at DESC").Order("id DESC").Find(&res).Error
	return res, err
}

// DeleteInvitation removes the invitation and its library associations.
// Redemption records keep the code.
func (s *Store) DeleteInvitation(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitation := &models.Invitation{}
		if err := tx.Where("code = ?", code).First(invitation).Error; err != nil {
			return translate(err)
		}
		return tx.Select("Libraries").Delete(invitation).Error
	})
}

// ConsumeInvitation atomically re-reads the invitation, runs check against
// the fresh row, takes one use of it and writes the Pending redemption
// record for user. Competing consumers of the same invitation are
// serialized by the conditional update: once the limit is reached every
// other attempt gets ErrLimitReached. Either both the use and the record are
// committed or neither is.
func (s *Store) ConsumeInvitation(
	ctx context.Context, code string, user *models.User, check func(*models.Invitation) error,
) (*models.Invitation, error) {
	var consumed *models.Invitation
	now := user.JoinedAt

	err := s.db.TransactionWithRetry(ctx, func(tx *gorm.DB) error {
		invitation := &models.Invitation{}
		if err := tx.Preload("Libraries").Where("code = ?", code).First(invitation).Error; err != nil {
			return translate(err)
		}

		if err := check(invitation); err != nil {
			return err
		}

		res := tx.Model(&models.Invitation{}).
			Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", invitation.ID).
			Updates(map[string]any{
				"usage_count":  gorm.Expr("usage_count + 1"),
				"last_used_by": user.PlexUsername,
				"last_used_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLimitReached
		}

		record := *user
		record.ID = 0
		record.InvitationCode = invitation.Code
		record.GrantStatus = models.GrantPending
		record.GrantMessage = ""
		record.Libraries = nil
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		invitation.UsageCount++
		invitation.LastUsedBy = user.PlexUsername
		invitation.LastUsedAt = &now
		consumed = invitation

		user.ID = record.ID
		user.InvitationCode = record.InvitationCode
		user.GrantStatus = record.GrantStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("code", code).Uint("usage_count", consumed.UsageCount).Str("used_by", user.PlexUsername).Msg("Invitation consumed")
	return consumed, nil
}

// CompleteRedemption stores the grant outcome of a Pending redemption record
// and the libraries it shared. A record is completed once, later calls get
// ErrAlreadyCompleted.
func (s *Store) CompleteRedemption(ctx context.Context, user *models.User) error {
	return s.db.TransactionWithRetry(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND grant_status = ?", user.ID, models.GrantPending).
			Updates(map[string]any{
				"grant_status":  user.GrantStatus,
				"grant_message": user.GrantMessage,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCompleted
		}

		if len(user.Libraries) == 0 {
			return nil
		}
		rows := make([]map[string]any, 0, len(user.Libraries))
		for _, l := range user.Libraries {
			rows = append(rows, map[string]any{"user_id": user.ID, "library_id": l.LibraryID})
		}
		return tx.Table("user_libraries").Create(rows).Error
	})
}
