// Command welcomarr-import loads the data.json of an earlier release into
// the configured database. It can be run again on the same file.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/welcomarr/welcomarr/internal/config"
	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/legacy"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
	dataPath   = flag.String("f", "", "Path to the legacy data.json")
	timezone   = flag.String("tz", "Local", "Time zone the legacy timestamps were written in")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}
	if *dataPath == "" {
		log.Fatal().Msg("Legacy data file must be provided via -f flag")
	}

	cfg := config.LoadConfig(*configPath)

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", *timezone).Msg("Unknown time zone")
	}

	data, err := os.ReadFile(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read legacy data")
	}
	doc, err := legacy.Parse(data)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse legacy data")
	}

	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	ctx := context.Background()
	store := storage.New(db)
	if err := store.EnsureDefaults(ctx, cfg.Portal.InitialAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed database")
	}

	report, err := legacy.NewImporter(store, loc).Import(ctx, doc)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	log.Info().
		Bool("settings", report.Settings).
		Bool("admin", report.Admin).
		Int("libraries", report.Libraries).
		Int("invitations", report.Invitations).
		Int("skipped_invitations", report.SkippedInvitations).
		Int("users", report.Users).
		Int("skipped_users", report.SkippedUsers).
		Msg("Import finished")
}
