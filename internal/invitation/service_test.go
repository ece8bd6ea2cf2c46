package invitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welcomarr/welcomarr/internal/models"
)

func TestServiceCreate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		params    CreateParams
		wantErr   error
		wantScope models.LibraryScope
		wantLibs  []string
		wantName  string
		expires   *time.Time
	}{
		{
			name:      "defaults",
			params:    CreateParams{},
			wantScope: models.ScopeAll,
			wantLibs:  []string{},
			wantName:  "New Invitation",
		},
		{
			name:      "expiring selected",
			params:    CreateParams{Name: " Family ", ExpiresDays: 7, UsageLimit: 3, LibraryIDs: []string{"1"}},
			wantScope: models.ScopeSelected,
			wantLibs:  []string{"1"},
			wantName:  "Family",
			expires:   ptr(now.AddDate(0, 0, 7)),
		},
		{
			name:      "explicit none",
			params:    CreateParams{Scope: models.ScopeNone},
			wantScope: models.ScopeNone,
			wantLibs:  []string{},
			wantName:  "New Invitation",
		},
		{
			name:    "selected without libraries",
			params:  CreateParams{Scope: models.ScopeSelected},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "libraries with all scope",
			params:  CreateParams{Scope: models.ScopeAll, LibraryIDs: []string{"1"}},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "unknown scope",
			params:  CreateParams{Scope: "some"},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "unknown library",
			params:  CreateParams{LibraryIDs: []string{"1", "404"}},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "bad email",
			params:  CreateParams{Email: "nope"},
			wantErr: ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			service := NewService(store, DefaultCodeLength)
			service.now = fixedNow(now)

			inv, err := service.Create(context.Background(), tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				list, err := service.List(context.Background())
				require.NoError(t, err)
				assert.Empty(t, list)
				return
			}
			require.NoError(t, err)

			got, err := store.GetInvitationByCode(context.Background(), inv.Code)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScope, got.LibraryScope)
			assert.Equal(t, tt.wantLibs, got.LibraryIDs())
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, uint(0), got.UsageCount)
			assert.True(t, now.Equal(got.CreatedAt))
			if tt.expires == nil {
				assert.Nil(t, got.ExpiresAt)
			} else {
				require.NotNil(t, got.ExpiresAt)
				assert.True(t, tt.expires.Equal(*got.ExpiresAt))
			}
		})
	}
}

func TestServiceGetAndDelete(t *testing.T) {
	store := setupTestStore(t)
	service := NewService(store, DefaultCodeLength)
	ctx := context.Background()

	inv, err := service.Create(ctx, CreateParams{UsageLimit: 2})
	require.NoError(t, err)

	view, err := service.Get(ctx, inv.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, view.Status)
	assert.True(t, view.Valid)

	view, err = service.Get(ctx, "DOESNOTEXIST")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, view.Status)
	assert.False(t, view.Valid)

	require.NoError(t, service.Delete(ctx, inv.Code))
	assert.ErrorIs(t, service.Delete(ctx, inv.Code), ErrUnknownCode)
}

func TestServiceStats(t *testing.T) {
	store := setupTestStore(t)
	service := NewService(store, DefaultCodeLength)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, store.CreateInvitation(ctx, &models.Invitation{Code: "ACTIVE01", LibraryScope: models.ScopeAll}, nil))
	require.NoError(t, store.CreateInvitation(ctx, &models.Invitation{Code: "EXPIRED1", ExpiresAt: &past, LibraryScope: models.ScopeAll}, nil))
	require.NoError(t, store.CreateInvitation(ctx, &models.Invitation{Code: "FULL0001", UsageLimit: 1, UsageCount: 1, LibraryScope: models.ScopeAll}, nil))
	require.NoError(t, store.CreateInvitation(ctx, &models.Invitation{Code: "LEGACY01", Used: true, LibraryScope: models.ScopeAll}, nil))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Total: 4, Active: 1, Used: 1, Expired: 1, FullyUsed: 1}, stats)
}
