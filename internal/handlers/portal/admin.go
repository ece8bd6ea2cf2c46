package portal

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"

	"github.com/welcomarr/welcomarr/internal/invitation"
	"github.com/welcomarr/welcomarr/internal/librarysync"
	"github.com/welcomarr/welcomarr/internal/models"
)

type libraryView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func toLibraryViews(libs []models.Library) []libraryView {
	res := make([]libraryView, 0, len(libs))
	for _, l := range libs {
		res = append(res, libraryView{ID: l.LibraryID, Name: l.Name, Type: l.Type})
	}
	return res
}

type userView struct {
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	PlexUsername   string             `json:"plex_username"`
	JoinedAt       time.Time          `json:"joined"`
	InvitationCode string             `json:"invitation_code"`
	GrantStatus    models.GrantStatus `json:"grant_status"`
	GrantMessage   string             `json:"grant_message"`
	Libraries      []libraryView      `json:"libraries"`
}

func (p *Portal) handleListInvitations(c *gin.Context) {
	views, err := p.invitations.List(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list invitations")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": views})
}

func (p *Portal) handleCreateInvitation(c *gin.Context) {
	params := invitation.CreateParams{}
	if err := c.ShouldBind(&params); err != nil {
		responseError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	inv, err := p.invitations.Create(c.Request.Context(), params)
	if errors.Is(err, invitation.ErrInvalidParams) {
		responseError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create invitation")
		internalError(c)
		return
	}

	view, err := p.invitations.Get(c.Request.Context(), inv.Code)
	if err != nil {
		logger.Error().Err(err).Str("code", inv.Code).Msg("Failed to read created invitation")
		internalError(c)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Invitation created successfully! Code: " + inv.Code,
		"invitation": view,
	})
}

func (p *Portal) handleDeleteInvitation(c *gin.Context) {
	code := c.Param("code")

	err := p.invitations.Delete(c.Request.Context(), code)
	if errors.Is(err, invitation.ErrUnknownCode) {
		responseError(c, http.StatusNotFound, "Invitation not found")
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("code", code).Msg("Failed to delete invitation")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation deleted successfully!"})
}

func (p *Portal) handleListUsers(c *gin.Context) {
	users, err := p.store.ListUsers(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list users")
		internalError(c)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			Name:           u.Name,
			Email:          u.Email,
			PlexUsername:   u.PlexUsername,
			JoinedAt:       u.JoinedAt,
			InvitationCode: u.InvitationCode,
			GrantStatus:    u.GrantStatus,
			GrantMessage:   u.GrantMessage,
			Libraries:      toLibraryViews(u.Libraries),
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

func (p *Portal) handleGetSettings(c *gin.Context) {
	settings, err := p.store.GetSettings(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load settings")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// updateSettingsParams leaves fields that are not sent unchanged.
type updateSettingsParams struct {
	PlexServer     *string `json:"plex_server"`
	PlexToken      *string `json:"plex_token"`
	PlexURL        *string `json:"plex_url"`
	LocalDiscovery *bool   `json:"local_discovery"`
	WelcomeMessage *string `json:"welcome_message"`
	SiteName       *string `json:"site_name"`
	ThemeColor     *string `json:"theme_color"`
}

func (params *updateSettingsParams) apply(s *models.Settings) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&s.PlexServer, params.PlexServer)
	set(&s.PlexToken, params.PlexToken)
	set(&s.PlexURL, params.PlexURL)
	set(&s.WelcomeMessage, params.WelcomeMessage)
	set(&s.SiteName, params.SiteName)
	set(&s.ThemeColor, params.ThemeColor)
	if params.LocalDiscovery != nil {
		s.LocalDiscovery = *params.LocalDiscovery
	}
}

// handleUpdateSettings saves the settings and, when a token is set, syncs
// the library catalog right away. A failed sync does not fail the update.
func (p *Portal) handleUpdateSettings(c *gin.Context) {
	params := &updateSettingsParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load settings")
		internalError(c)
		return
	}

	params.apply(settings)
	if err := p.store.UpdateSettings(ctx, settings); err != nil {
		logger.Error().Err(err).Msg("Failed to save settings")
		internalError(c)
		return
	}

	res := gin.H{"message": "Settings updated successfully!", "settings": settings}
	if settings.PlexToken != "" {
		res["sync"] = p.syncResponse(p.syncer.Sync(ctx))
	}
	c.JSON(http.StatusOK, res)
}

type updateAccountParams struct {
	Email           string `json:"email"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (p *Portal) handleUpdateAccount(c *gin.Context) {
	params := &updateAccountParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	admin, err := p.store.GetAdminByID(ctx, currentSession(c).AdminID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load admin")
		internalError(c)
		return
	}

	if email := strings.TrimSpace(params.Email); email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			responseError(c, http.StatusBadRequest, "Invalid email format.")
			return
		}
		admin.Email = email
	}

	if params.NewPassword != "" {
		if params.NewPassword != params.ConfirmPassword {
			responseError(c, http.StatusBadRequest, "Passwords do not match!")
			return
		}
		if err := admin.SetPassword(params.NewPassword); err != nil {
			logger.Error().Err(err).Msg("Failed to hash password")
			internalError(c)
			return
		}
	}

	if err := p.store.UpdateAdmin(ctx, admin); err != nil {
		logger.Error().Err(err).Msg("Failed to save admin")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account updated successfully!"})
}

func (p *Portal) handleListLibraries(c *gin.Context) {
	libs, err := p.store.ListLibraries(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list libraries")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"libraries": toLibraryViews(libs)})
}

func (p *Portal) handleSyncLibraries(c *gin.Context) {
	res := p.syncer.Sync(c.Request.Context())

	httpCode := http.StatusOK
	if !res.Success {
		httpCode = http.StatusBadGateway
	}
	c.JSON(httpCode, p.syncResponse(res))
}

func (p *Portal) syncResponse(res *librarysync.Result) gin.H {
	return gin.H{
		"success":   res.Success,
		"count":     res.Count,
		"message":   res.Message,
		"libraries": toLibraryViews(res.Libraries),
	}
}

func (p *Portal) handleStats(c *gin.Context) {
	stats, err := p.invitations.Stats(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count invitations")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, stats)
}
