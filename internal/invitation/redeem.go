package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"

	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/plex"
	"github.com/welcomarr/welcomarr/internal/storage"
)

const defaultGrantTimeout = 30 * time.Second

var ErrInvalidInvitee = errors.New("invalid invitee details")

// Granter shares libraries on the media server.
type Granter interface {
	ResolveServerIdentity(ctx context.Context, token string) (string, error)
	ResolveInviteeIdentity(ctx context.Context, usernameOrEmail, token string) (string, error)
	GrantAccess(ctx context.Context, serverID, inviteeID string, sectionIDs []string, token string) error
}

// LibrarySource lists every library the media server currently has.
type LibrarySource interface {
	CurrentLibraries(ctx context.Context) ([]models.Library, error)
}

type Recorder interface {
	RecordRedemption(outcome string)
	RecordGrant(status string)
}

type Invitee struct {
	Name         string `json:"name" form:"name"`
	Email        string `json:"email" form:"email"`
	PlexUsername string `json:"plex_username" form:"plex_username"`
}

func (i *Invitee) normalize() error {
	i.Name = strings.TrimSpace(i.Name)
	i.Email = strings.TrimSpace(i.Email)
	i.PlexUsername = strings.TrimSpace(i.PlexUsername)

	if i.PlexUsername == "" {
		return fmt.Errorf("%w: Plex username or email is required", ErrInvalidInvitee)
	}
	if i.Name == "" {
		i.Name = i.PlexUsername
	}
	if i.Email != "" {
		if err := checkmail.ValidateFormat(i.Email); err != nil {
			return fmt.Errorf("%w: invalid email format", ErrInvalidInvitee)
		}
	}
	return nil
}

// Result is what the invitee is told. Success means the redemption was
// recorded; GrantStatus says separately whether access was granted.
type Result struct {
	Success      bool               `json:"success"`
	GrantStatus  models.GrantStatus `json:"grant_status"`
	GrantMessage string             `json:"grant_message,omitempty"`
	Message      string             `json:"message"`
	Level        string             `json:"level"`
	UsageCount   uint               `json:"usage_count"`
}

// Coordinator runs redemptions.
type Coordinator struct {
	store        Store
	granter      Granter
	libraries    LibrarySource
	recorder     Recorder
	grantTimeout time.Duration
	now          func() time.Time
}

func NewCoordinator(store Store, granter Granter, libraries LibrarySource, recorder Recorder, grantTimeout time.Duration) *Coordinator {
	if grantTimeout <= 0 {
		grantTimeout = defaultGrantTimeout
	}
	return &Coordinator{
		store:        store,
		granter:      granter,
		libraries:    libraries,
		recorder:     recorder,
		grantTimeout: grantTimeout,
		now:          time.Now,
	}
}

// Redeem consumes one use of code for invitee, asks the media server to
// share the invitation's libraries and records the outcome.
//
// The use and a Pending redemption record are committed together before the
// media server is contacted, so attempts that lose a race for the last use
// never reach it and a taken use always has its record. A failed grant does
// not undo the use: the record carries the failure for the operator to
// follow up.
func (c *Coordinator) Redeem(ctx context.Context, code string, invitee Invitee) (*Result, error) {
	code = strings.TrimSpace(code)
	now := c.now().UTC()

	invitation, err := c.store.GetInvitationByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		c.record("not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		c.record("error")
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if err := Evaluate(invitation, now).Err(); err != nil {
		c.record(outcome(err))
		logger.Debug().Str("code", code).Err(err).Msg("Rejected redemption of invalid invitation")
		return nil, err
	}

	if err := invitee.normalize(); err != nil {
		c.record("invalid")
		return nil, err
	}

	user := &models.User{
		Name:         invitee.Name,
		Email:        invitee.Email,
		PlexUsername: invitee.PlexUsername,
		JoinedAt:     now,
	}
	consumed, err := c.store.ConsumeInvitation(ctx, code, user, func(fresh *models.Invitation) error {
		return Evaluate(fresh, now).Err()
	})
	if err != nil {
		err = consumeError(err)
		c.record(outcome(err))
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) && !errors.Is(err, ErrFullyUsed) {
			logger.Error().Err(err).Str("code", code).Msg("Failed to consume invitation")
		}
		return nil, err
	}

	// The use and its Pending record are stored; finish even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	grant := c.grant(ctx, consumed, invitee.PlexUsername)
	if c.recorder != nil {
		c.recorder.RecordGrant(string(grant.status))
	}

	user.GrantStatus = grant.status
	user.GrantMessage = grant.message
	user.Libraries = grant.libraries
	err = c.store.CompleteRedemption(ctx, user)
	if err != nil && len(user.Libraries) > 0 {
		logger.Warn().Err(err).Str("code", code).Msg("Failed to record shared libraries, retrying without")
		user.Libraries = nil
		err = c.store.CompleteRedemption(ctx, user)
	}
	if err != nil {
		// The redemption itself is recorded, only its grant outcome is
		// missing and the record stays Pending.
		logger.Error().Err(err).Str("code", code).Uint("user_id", user.ID).
			Str("grant_status", string(grant.status)).Msg("Failed to record grant outcome")
	}

	c.record("success")
	return newResult(grant, consumed.UsageCount), nil
}

func consumeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrLimitReached),
		errors.Is(err, gormw.ErrConflictRetriesExhausted):
		return ErrFullyUsed
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrFullyUsed):
		return "fully_used"
	}
	return "error"
}

func (c *Coordinator) record(outcome string) {
	if c.recorder != nil {
		c.recorder.RecordRedemption(outcome)
	}
}

type grantOutcome struct {
	status    models.GrantStatus
	message   string
	libraries []models.Library
}

func failed(format string, args ...any) grantOutcome {
	return grantOutcome{status: models.GrantFailed, message: fmt.Sprintf(format, args...)}
}

// targetLibraries resolves the invitation's scope. For ScopeAll the catalog
// is read now, not when the invitation was created.
func (c *Coordinator) targetLibraries(ctx context.Context, invitation *models.Invitation) ([]models.Library, *grantOutcome) {
	switch invitation.LibraryScope {
	case models.ScopeNone:
		return nil, &grantOutcome{status: models.GrantSkipped, message: "Invitation grants no libraries"}
	case models.ScopeSelected:
		if len(invitation.Libraries) == 0 {
			return nil, &grantOutcome{status: models.GrantSkipped, message: "None of the invitation's libraries exist any more"}
		}
		return invitation.Libraries, nil
	}

	libs, err := c.libraries.CurrentLibraries(ctx)
	if err != nil {
		o := failed("Could not list Plex libraries: %v", err)
		return nil, &o
	}
	if len(libs) == 0 {
		o := failed("No libraries found to share")
		return nil, &o
	}
	return libs, nil
}

func (c *Coordinator) grant(ctx context.Context, invitation *models.Invitation, username string) grantOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.grantTimeout)
	defer cancel()

	log := logger.With().Str("code", invitation.Code).Str("plex_username", username).Logger()

	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		return failed("Could not load settings")
	}
	if settings.PlexToken == "" {
		log.Warn().Msg("Plex token not configured")
		return failed("Plex token not configured")
	}

	libs, skip := c.targetLibraries(ctx, invitation)
	if skip != nil {
		log.Info().Str("grant_status", string(skip.status)).Msg(skip.message)
		return *skip
	}

	inviteeID, err := c.granter.ResolveInviteeIdentity(ctx, username, settings.PlexToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve Plex user")
		if errors.Is(err, plex.ErrNotFound) {
			return failed("User not found on Plex")
		}
		return failed("%s", describe(err))
	}

	serverID, err := c.granter.ResolveServerIdentity(ctx, settings.PlexToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve Plex server")
		if errors.Is(err, plex.ErrNotFound) {
			return failed("Plex server not found")
		}
		return failed("%s", describe(err))
	}

	sectionIDs := make([]string, 0, len(libs))
	for _, l := range libs {
		sectionIDs = append(sectionIDs, l.LibraryID)
	}

	if err := c.granter.GrantAccess(ctx, serverID, inviteeID, sectionIDs, settings.PlexToken); err != nil {
		log.Warn().Err(err).Strs("section_ids", sectionIDs).Msg("Failed to share libraries")
		return failed("%s", describe(err))
	}

	return grantOutcome{status: models.GrantGranted, message: "User added to Plex server successfully", libraries: libs}
}

func describe(err error) string {
	var rejected *plex.RejectedError
	if errors.As(err, &rejected) {
		return fmt.Sprintf("Failed to add user to Plex server (HTTP %d): %s", rejected.StatusCode, rejected.Body)
	}
	if plex.IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded) {
		return "Could not reach Plex: " + err.Error()
	}
	return err.Error()
}

func newResult(grant grantOutcome, usageCount uint) *Result {
	r := &Result{
		Success:      true,
		GrantStatus:  grant.status,
		GrantMessage: grant.message,
		UsageCount:   usageCount,
	}
	switch grant.status {
	case models.GrantGranted:
		r.Level = "success"
		r.Message = "Your information has been submitted successfully! You have been added to the Plex server."
	case models.GrantSkipped:
		r.Level = "info"
		r.Message = "Your information has been submitted successfully!"
	default:
		r.Level = "warning"
		r.Message = "Your information has been submitted successfully! However, there was an issue adding you to the Plex server: " + grant.message
	}
	return r
}
