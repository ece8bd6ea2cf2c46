package legacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-set/v3"
	"github.com/rs/zerolog/log"

	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	logger = log.With().Str("component", "legacy").Logger()
)

// The PHP release defaulted a missing usage limit to one use.
const defaultUsageLimit = 1

type Store interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	UpdateSettings(ctx context.Context, settings *models.Settings) error
	GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error)
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	UpdateAdmin(ctx context.Context, admin *models.Admin) error
	ListLibraries(ctx context.Context) ([]models.Library, error)
	ReplaceLibraries(ctx context.Context, libs []models.Library) error
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateInvitation(ctx context.Context, invitation *models.Invitation, libraryIDs []string) error
	UserExists(ctx context.Context, plexUsername string, joinedAt time.Time) (bool, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type Importer struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewImporter reads zone-less timestamps in loc, nil means UTC.
func NewImporter(store Store, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{store: store, loc: loc, now: time.Now}
}

type Report struct {
	Settings           bool
	Admin              bool
	Libraries          int
	Invitations        int
	SkippedInvitations int
	Users              int
	SkippedUsers       int
}

// Import writes doc into the store. Invitations whose code already exists
// and users already recorded are skipped, so importing the same file twice
// changes nothing.
func (im *Importer) Import(ctx context.Context, doc *Document) (*Report, error) {
	report := &Report{}

	if doc.Settings != nil {
		if err := im.importSettings(ctx, doc.Settings); err != nil {
			return report, fmt.Errorf("import settings: %w", err)
		}
		report.Settings = true
	}

	if doc.Admin != nil && strings.TrimSpace(doc.Admin.Username) != "" {
		if err := im.importAdmin(ctx, doc.Admin); err != nil {
			return report, fmt.Errorf("import admin: %w", err)
		}
		report.Admin = true
	}

	catalog, err := im.importLibraries(ctx, doc.Libraries)
	if err != nil {
		return report, fmt.Errorf("import libraries: %w", err)
	}
	report.Libraries = len(doc.Libraries)

	// the Flask prototype links users by invitation id
	codeByID := map[string]string{}
	for _, inv := range doc.Invitations {
		if inv.ID != "" {
			codeByID[inv.ID] = inv.Code
		}
	}

	for i := range doc.Invitations {
		imported, err := im.importInvitation(ctx, &doc.Invitations[i], catalog)
		if err != nil {
			return report, fmt.Errorf("import invitation %q: %w", doc.Invitations[i].Code, err)
		}
		if imported {
			report.Invitations++
		} else {
			report.SkippedInvitations++
		}
	}

	for i := range doc.Users {
		imported, err := im.importUser(ctx, &doc.Users[i], codeByID, catalog)
		if err != nil {
			return report, fmt.Errorf("import user %q: %w", doc.Users[i].PlexUsername, err)
		}
		if imported {
			report.Users++
		} else {
			report.SkippedUsers++
		}
	}

	logger.Info().
		Int("invitations", report.Invitations).
		Int("skipped_invitations", report.SkippedInvitations).
		Int("users", report.Users).
		Int("skipped_users", report.SkippedUsers).
		Msg("Legacy import done")
	return report, nil
}

func (im *Importer) importSettings(ctx context.Context, in *Settings) error {
	settings, err := im.store.GetSettings(ctx)
	if err != nil {
		return err
	}

	set := func(dst *string, src string) {
		if v := strings.TrimSpace(src); v != "" {
			*dst = v
		}
	}
	set(&settings.PlexServer, in.PlexServer)
	set(&settings.PlexToken, in.PlexToken)
	set(&settings.PlexURL, in.PlexURL)
	set(&settings.WelcomeMessage, in.WelcomeMessage)
	set(&settings.SiteName, in.SiteName)
	set(&settings.ThemeColor, in.ThemeColor)
	settings.LocalDiscovery = settings.LocalDiscovery || in.LocalDiscovery

	return im.store.UpdateSettings(ctx, settings)
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2") && len(s) == 60
}

func (im *Importer) importAdmin(ctx context.Context, in *Admin) error {
	admin, err := im.store.GetAdminByUsername(ctx, in.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	create := admin == nil
	if create {
		admin = &models.Admin{Username: in.Username}
	}

	if in.Email != "" {
		admin.Email = in.Email
	}
	switch {
	case isBcryptHash(in.Password):
		// PHP password_hash output, $2y$ is read by bcrypt as is
		admin.HashedPassword = in.Password
	case in.Password != "":
		// the Flask prototype stored it in plain text
		if err := admin.SetPassword(in.Password); err != nil {
			return err
		}
	}

	if create {
		return im.store.CreateAdmin(ctx, admin)
	}
	return im.store.UpdateAdmin(ctx, admin)
}

// importLibraries adds the document's libraries to the catalog and returns
// the ids the catalog then holds.
func (im *Importer) importLibraries(ctx context.Context, in []Library) (*set.Set[string], error) {
	existing, err := im.store.ListLibraries(ctx)
	if err != nil {
		return nil, err
	}

	catalog := set.New[string](len(existing) + len(in))
	merged := make([]models.Library, 0, len(existing)+len(in))
	for _, l := range existing {
		catalog.Insert(l.LibraryID)
		merged = append(merged, l)
	}

	added := false
	for _, l := range in {
		id := strings.TrimSpace(string(l.ID))
		if id == "" || !catalog.Insert(id) {
			continue
		}
		merged = append(merged, models.Library{LibraryID: id, Name: firstNonEmpty(l.Name, id), Type: firstNonEmpty(l.Type, "unknown")})
		added = true
	}

	if added {
		if err := im.store.ReplaceLibraries(ctx, merged); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func (im *Importer) importInvitation(ctx context.Context, in *Invitation, catalog *set.Set[string]) (bool, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		logger.Warn().Str("id", in.ID).Msg("Skipping invitation without code")
		return false, nil
	}

	exists, err := im.store.CodeExists(ctx, code)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Debug().Str("code", code).Msg("Invitation already imported")
		return false, nil
	}

	created, err := parseTime(firstNonEmpty(in.Created, in.CreatedAt), im.loc)
	if err != nil {
		return false, err
	}
	if created == nil {
		now := im.now().UTC()
		created = &now
	}
	expires, err := parseTime(firstNonEmpty(in.Expires, in.ExpiresAt), im.loc)
	if err != nil {
		return false, err
	}
	lastUsedAt, err := parseTime(in.LastUsedAt, im.loc)
	if err != nil {
		return false, err
	}

	limit := defaultUsageLimit
	switch {
	case in.UsageLimit.Set:
		limit = in.UsageLimit.Value
	case in.MaxUses.Set:
		limit = in.MaxUses.Value
	}
	count := in.UsageCount.Value
	if !in.UsageCount.Set {
		count = in.Uses.Value
	}

	invitation := &models.Invitation{
		Code:       code,
		Name:       firstNonEmpty(in.Name, "New Invitation"),
		Email:      strings.TrimSpace(in.Email),
		CreatedAt:  *created,
		ExpiresAt:  expires,
		UsageLimit: uint(max(limit, 0)),
		UsageCount: uint(max(count, 0)),
		// a deactivated Flask invitation can never be redeemed again
		Used:         in.Used || (in.Active != nil && !*in.Active),
		LastUsedBy:   strings.TrimSpace(in.LastUsedBy),
		LastUsedAt:   lastUsedAt,
		LibraryScope: models.ScopeAll,
	}

	ids := im.knownLibraries(code, in.Libraries, catalog)
	if len(in.Libraries) > 0 {
		invitation.LibraryScope = models.ScopeSelected
	}

	if err := im.store.CreateInvitation(ctx, invitation, ids); err != nil {
		return false, err
	}
	return true, nil
}

func (im *Importer) knownLibraries(code string, ids []string, catalog *set.Set[string]) []string {
	known := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if catalog.Contains(id) {
			known = append(known, id)
		} else {
			logger.Warn().Str("code", code).Str("library_id", id).Msg("Dropping unknown library")
		}
	}
	return known
}

func (im *Importer) importUser(ctx context.Context, in *User, codeByID map[string]string, catalog *set.Set[string]) (bool, error) {
	username := firstNonEmpty(in.PlexUsername, in.Username, in.Email)
	if username == "" {
		logger.Warn().Msg("Skipping user without Plex username")
		return false, nil
	}

	joined, err := parseTime(firstNonEmpty(in.Joined, in.CreatedAt), im.loc)
	if err != nil {
		return false, err
	}
	if joined == nil {
		// without a timestamp a second import could not tell it apart
		logger.Warn().Str("plex_username", username).Msg("Skipping user without join time")
		return false, nil
	}

	exists, err := im.store.UserExists(ctx, username, *joined)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	code := strings.TrimSpace(in.InvitationCode)
	if code == "" {
		code = codeByID[in.InvitationID]
	}

	libs := []models.Library{}
	for _, id := range im.knownLibraries(code, in.Libraries, catalog) {
		libs = append(libs, models.Library{LibraryID: id})
	}

	user := &models.User{
		Name:           firstNonEmpty(in.Name, username),
		Email:          strings.TrimSpace(in.Email),
		PlexUsername:   username,
		JoinedAt:       *joined,
		InvitationCode: code,
		GrantStatus:    models.GrantSkipped,
		GrantMessage:   "Imported from legacy data",
		Libraries:      libs,
	}
	if err := im.store.CreateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}
