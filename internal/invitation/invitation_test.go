package invitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	movies = models.Library{LibraryID: "1", Name: "Movies", Type: "movie"}
	tv     = models.Library{LibraryID: "2", Name: "TV Shows", Type: "show"}
)

// setupTestStore returns a store with a token and the two test libraries.
func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()

	db, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	store := storage.New(db)
	require.NoError(t, store.EnsureDefaults(ctx, "admin"))

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	settings.PlexToken = "token"
	require.NoError(t, store.UpdateSettings(ctx, settings))

	require.NoError(t, store.ReplaceLibraries(ctx, []models.Library{movies, tv}))
	return store
}

func fixedNow(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
