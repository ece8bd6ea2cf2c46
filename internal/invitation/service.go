// Package invitation implements the invitation lifecycle: code generation,
// validity, operator management and redemption.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/rs/zerolog/log"

	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	logger = log.With().Str("component", "invitation").Logger()
)

var (
	ErrInvalidParams = errors.New("invalid invitation parameters")
	ErrUnknownCode   = errors.New("invitation not found")
)

const (
	defaultInvitationName = "New Invitation"
	createAttempts        = 3
)

// Store is the persistence the invitation lifecycle needs.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateInvitation(ctx context.Context, invitation *models.Invitation, libraryIDs []string) error
	GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error)
	ListInvitations(ctx context.Context) ([]models.Invitation, error)
	DeleteInvitation(ctx context.Context, code string) error
	ConsumeInvitation(ctx context.Context, code string, user *models.User, check func(*models.Invitation) error) (*models.Invitation, error)
	CompleteRedemption(ctx context.Context, user *models.User) error
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// Service holds the operator side operations.
type Service struct {
	store Store
	codes *Generator
	now   func() time.Time
}

func NewService(store Store, codeLength int) *Service {
	return &Service{
		store: store,
		codes: NewGenerator(codeLength, store.CodeExists),
		now:   time.Now,
	}
}

type CreateParams struct {
	Name        string              `json:"name" form:"name"`
	Email       string              `json:"email" form:"email"`
	ExpiresDays int                 `json:"expires_days" form:"expires_days"`
	UsageLimit  uint                `json:"usage_limit" form:"usage_limit"`
	Scope       models.LibraryScope `json:"scope" form:"scope"`
	LibraryIDs  []string            `json:"libraries" form:"libraries"`
}

func (p *CreateParams) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = defaultInvitationName
	}

	p.Email = strings.TrimSpace(p.Email)
	if p.Email != "" {
		if err := checkmail.ValidateFormat(p.Email); err != nil {
			return fmt.Errorf("%w: invalid email format", ErrInvalidParams)
		}
	}

	if p.Scope == "" {
		p.Scope = models.ScopeAll
		if len(p.LibraryIDs) > 0 {
			p.Scope = models.ScopeSelected
		}
	}
	if !p.Scope.Valid() {
		return fmt.Errorf("%w: unknown library scope %q", ErrInvalidParams, p.Scope)
	}

	switch {
	case p.Scope == models.ScopeSelected && len(p.LibraryIDs) == 0:
		return fmt.Errorf("%w: select at least one library", ErrInvalidParams)
	case p.Scope != models.ScopeSelected && len(p.LibraryIDs) > 0:
		return fmt.Errorf("%w: libraries can only be listed with the %q scope", ErrInvalidParams, models.ScopeSelected)
	}
	return nil
}

// Create issues a new invitation. ExpiresDays <= 0 never expires, a
// UsageLimit of 0 is unlimited.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Invitation, error) {
	if err := params.normalize(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var expires *time.Time
	if params.ExpiresDays > 0 {
		t := now.AddDate(0, 0, params.ExpiresDays)
		expires = &t
	}

	for attempt := 1; ; attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}

		invitation := &models.Invitation{
			Code:         code,
			Name:         params.Name,
			Email:        params.Email,
			CreatedAt:    now,
			ExpiresAt:    expires,
			UsageLimit:   params.UsageLimit,
			LibraryScope: params.Scope,
		}

		err = s.store.CreateInvitation(ctx, invitation, params.LibraryIDs)
		switch {
		case err == nil:
			logger.Info().Str("code", code).Uint("usage_limit", params.UsageLimit).Str("scope", string(params.Scope)).Msg("Invitation created")
			return invitation, nil
		case errors.Is(err, storage.ErrUnknownLibrary):
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		case errors.Is(err, storage.ErrDuplicateCode) && attempt < createAttempts:
			// another request took the same code between check and insert
			continue
		}
		return nil, err
	}
}

func (s *Service) Delete(ctx context.Context, code string) error {
	err := s.store.DeleteInvitation(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownCode
	}
	if err == nil {
		logger.Info().Str("code", code).Msg("Invitation deleted")
	}
	return err
}

// View is an invitation with its computed status, for display.
type View struct {
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	CreatedAt    time.Time           `json:"created"`
	ExpiresAt    *time.Time          `json:"expires"`
	UsageLimit   uint                `json:"usage_limit"`
	UsageCount   uint                `json:"usage_count"`
	LastUsedBy   string              `json:"last_used_by,omitempty"`
	LastUsedAt   *time.Time          `json:"last_used_at,omitempty"`
	LibraryScope models.LibraryScope `json:"scope"`
	Libraries    []string            `json:"libraries"`
	Status       Status              `json:"status"`
	Valid        bool                `json:"valid"`
}

func newView(invitation *models.Invitation, now time.Time) View {
	status := Evaluate(invitation, now)
	return View{
		Code:         invitation.Code,
		Name:         invitation.Name,
		Email:        invitation.Email,
		CreatedAt:    invitation.CreatedAt,
		ExpiresAt:    invitation.ExpiresAt,
		UsageLimit:   invitation.UsageLimit,
		UsageCount:   invitation.UsageCount,
		LastUsedBy:   invitation.LastUsedBy,
		LastUsedAt:   invitation.LastUsedAt,
		LibraryScope: invitation.LibraryScope,
		Libraries:    invitation.LibraryIDs(),
		Status:       status,
		Valid:        status == StatusActive,
	}
}

// Get looks an invitation up for display. A missing code is not an error,
// it is a view with StatusNotFound.
func (s *Service) Get(ctx context.Context, code string) (View, error) {
	invitation, err := s.store.GetInvitationByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return View{Code: code, Status: StatusNotFound}, nil
	}
	if err != nil {
		return View{}, err
	}
	return newView(invitation, s.now()), nil
}

// List returns every invitation, newest first.
func (s *Service) List(ctx context.Context) ([]View, error) {
	invitations, err := s.store.ListInvitations(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]View, 0, len(invitations))
	for i := range invitations {
		views = append(views, newView(&invitations[i], now))
	}
	return views, nil
}

type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Used      int `json:"used"`
	Expired   int `json:"expired"`
	FullyUsed int `json:"fully_used"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	views, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(views)}
	for _, v := range views {
		switch v.Status {
		case StatusActive:
			stats.Active++
		case StatusUsed:
			stats.Used++
		case StatusExpired:
			stats.Expired++
		case StatusFullyUsed:
			stats.FullyUsed++
		}
	}
	return stats, nil
}
