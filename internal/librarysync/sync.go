// Package librarysync keeps the cached library catalog in line with the
// media server.
package librarysync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/plex"
)

var (
	logger = log.With().Str("component", "librarysync").Logger()
)

const (
	defaultCron    = "0 */6 * * *"
	defaultTimeout = time.Minute
	cacheTimeout   = 5 * time.Second
)

var ErrNoToken = errors.New("plex token not configured")

type Config struct {
	// Cron schedule of the background sync, standard 5 field syntax.
	Cron string `yaml:"cron"`

	// Disabled turns the background sync off, manual syncs still work.
	Disabled bool `yaml:"disabled"`
}

func (c *Config) ApplyDefaults() {
	if c.Cron == "" {
		c.Cron = defaultCron
	}
}

type Store interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SetServerURL(ctx context.Context, url string) error
	ListLibraries(ctx context.Context) ([]models.Library, error)
	ReplaceLibraries(ctx context.Context, libs []models.Library) error
}

type Lister interface {
	ListLibrarySections(ctx context.Context, conn plex.Connection) (*plex.Sections, error)
}

type Recorder interface {
	RecordSync(success bool, libraries int)
}

type Syncer struct {
	store    Store
	lister   Lister
	recorder Recorder

	// running holds one token while a sync writes the catalog.
	running chan struct{}
	fetches singleflight.Group
}

func NewSyncer(store Store, lister Lister, recorder Recorder) *Syncer {
	return &Syncer{
		store:    store,
		lister:   lister,
		recorder: recorder,
		running:  make(chan struct{}, 1),
	}
}

// Result of a sync. On failure Libraries is the untouched cached catalog.
type Result struct {
	Success   bool             `json:"success"`
	Count     int              `json:"count"`
	Message   string           `json:"message"`
	Libraries []models.Library `json:"libraries"`
}

// Sync replaces the cached catalog with the server's libraries. When the
// server cannot be reached or lists nothing the cache is left alone.
func (s *Syncer) Sync(ctx context.Context) *Result {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	case <-ctx.Done():
		return s.failed(ctx, fmt.Errorf("wait for running sync: %w", ctx.Err()))
	}

	libs, err := s.fetch(ctx)
	if err == nil {
		err = s.store.ReplaceLibraries(ctx, libs)
	}

	if err != nil {
		s.recordSync(false, 0)
		logger.Warn().Err(err).Msg("Library sync failed")
		return s.failed(ctx, err)
	}

	s.recordSync(true, len(libs))
	logger.Info().Int("count", len(libs)).Msg("Library sync done")
	return &Result{
		Success:   true,
		Count:     len(libs),
		Message:   fmt.Sprintf("Successfully synced %d libraries", len(libs)),
		Libraries: libs,
	}
}

// failed reports err with the cached catalog. The cache is read even when
// ctx is done.
func (s *Syncer) failed(ctx context.Context, err error) *Result {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()

	cached, cacheErr := s.store.ListLibraries(cacheCtx)
	if cacheErr != nil {
		logger.Error().Err(cacheErr).Msg("Failed to read cached libraries")
	}
	msg := "No libraries found or could not connect to Plex"
	if errors.Is(err, ErrNoToken) {
		msg = "Plex token not configured"
	}
	return &Result{Success: false, Count: len(cached), Message: msg, Libraries: cached}
}

// CurrentLibraries returns the server's libraries as of now, refreshing the
// cache on the way. Concurrent callers share one refresh. If the server
// cannot be asked, or ctx ends first, it falls back to the cache.
func (s *Syncer) CurrentLibraries(ctx context.Context) ([]models.Library, error) {
	ch := s.fetches.DoChan("current", func() (any, error) {
		// shared by every waiting caller, so not bound to this one
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		return s.Sync(ctx), nil
	})

	var res *Result
	select {
	case r := <-ch:
		res = r.Val.(*Result)
	case <-ctx.Done():
		logger.Warn().Err(ctx.Err()).Msg("Gave up waiting for library refresh, using cached libraries")
		res = s.failed(ctx, ctx.Err())
	}

	if len(res.Libraries) == 0 {
		return nil, errors.New(res.Message)
	}
	return res.Libraries, nil
}

func (s *Syncer) fetch(ctx context.Context) ([]models.Library, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.PlexToken == "" {
		return nil, ErrNoToken
	}

	sections, err := s.lister.ListLibrarySections(ctx, plex.Connection{
		Token:          settings.PlexToken,
		ServerURL:      settings.PlexURL,
		LocalDiscovery: settings.LocalDiscovery,
	})
	if err != nil {
		return nil, err
	}

	if sections.Source == plex.SourceLocal && sections.ServerURL != settings.PlexURL {
		if err := s.store.SetServerURL(ctx, sections.ServerURL); err != nil {
			logger.Error().Err(err).Str("server_url", sections.ServerURL).Msg("Failed to save discovered server URL")
		} else {
			logger.Info().Str("server_url", sections.ServerURL).Msg("Saved discovered server URL")
		}
	}

	libs := make([]models.Library, 0, len(sections.Sections))
	seen := map[string]bool{}
	for _, sec := range sections.Sections {
		if seen[sec.ID] {
			continue
		}
		seen[sec.ID] = true
		libs = append(libs, models.Library{LibraryID: sec.ID, Name: sec.Title, Type: sec.Type})
	}
	if len(libs) == 0 {
		return nil, plex.ErrNoLibraries
	}
	return libs, nil
}

func (s *Syncer) recordSync(success bool, count int) {
	if s.recorder != nil {
		s.recorder.RecordSync(success, count)
	}
}

// Register adds the background sync job to scheduler.
func Register(scheduler gocron.Scheduler, syncer *Syncer, cfg *Config) error {
	cfg.ApplyDefaults()
	if cfg.Disabled {
		logger.Info().Msg("Background library sync disabled")
		return nil
	}

	_, err := scheduler.NewJob(
		gocron.CronJob(cfg.Cron, false),
		gocron.NewTask(
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
				defer cancel()
				syncer.Sync(ctx)
			},
		),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
