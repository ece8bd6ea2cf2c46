package portal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/welcomarr/welcomarr/internal/invitation"
)

// InvitePageData is what an invitee sees before redeeming.
type InvitePageData struct {
	Code           string            `json:"code"`
	Status         invitation.Status `json:"status"`
	Valid          bool              `json:"valid"`
	ExpiresAt      *time.Time        `json:"expires,omitempty"`
	SiteName       string            `json:"site_name"`
	WelcomeMessage string            `json:"welcome_message"`
	ThemeColor     string            `json:"theme_color"`
}

func (p *Portal) handleInvitePage(c *gin.Context) {
	code := c.Param("code")

	view, err := p.invitations.Get(c.Request.Context(), code)
	if err != nil {
		logger.Error().Err(err).Str("code", code).Msg("Failed to load invitation")
		internalError(c)
		return
	}

	if view.Status == invitation.StatusNotFound {
		responseErrorAndLogMaybeHack(c, http.StatusNotFound, "Invalid or expired invitation code!", "code", code)
		return
	}

	settings, err := p.store.GetSettings(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load settings")
		internalError(c)
		return
	}

	data := &InvitePageData{
		Code:           view.Code,
		Status:         view.Status,
		Valid:          view.Valid,
		ExpiresAt:      view.ExpiresAt,
		SiteName:       settings.SiteName,
		WelcomeMessage: settings.WelcomeMessage,
		ThemeColor:     settings.ThemeColor,
	}
	if data.SiteName == "" {
		data.SiteName = p.config.Title
	}

	httpCode := http.StatusOK
	if !view.Valid {
		httpCode = http.StatusGone
	}
	c.JSON(httpCode, data)
}

func (p *Portal) handleRedeem(c *gin.Context) {
	code := c.Param("code")

	invitee := invitation.Invitee{}
	if err := c.ShouldBind(&invitee); err != nil {
		responseError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	res, err := p.redemptions.Redeem(c.Request.Context(), code, invitee)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, invitation.ErrNotFound):
		responseErrorAndLogMaybeHack(c, http.StatusNotFound, "Invalid or expired invitation code!", "code", code)
	case errors.Is(err, invitation.ErrExpired):
		responseError(c, http.StatusGone, "This invitation has expired!")
	case errors.Is(err, invitation.ErrFullyUsed):
		responseError(c, http.StatusGone, "This invitation has reached its maximum number of uses!")
	case errors.Is(err, invitation.ErrInvalidInvitee):
		responseError(c, http.StatusBadRequest, err.Error())
	default:
		internalError(c)
	}
}
