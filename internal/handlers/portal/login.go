package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/welcomarr/welcomarr/internal/storage"
)

const (
	sessionCookieName = "welcomarr_session"
	keySession        = "ADMIN_SESSION"
)

type handleLoginParams struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (p *Portal) handleLogin(c *gin.Context) {
	params := &handleLoginParams{}
	if err := c.ShouldBind(params); err != nil {
		responseError(c, http.StatusBadRequest, "Missing required parameters")
		return
	}

	admin, err := p.store.GetAdminByUsername(c.Request.Context(), params.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error().Err(err).Msg("Database error during login")
		internalError(c)
		return
	}

	// Same answer for unknown user and wrong password.
	if admin == nil || !admin.CheckPassword(params.Password) {
		responseErrorAndLogMaybeHack(c, http.StatusUnauthorized, "Invalid credentials!", "username", params.Username)
		return
	}

	sid := uuid.New().String()
	p.sessions.Set(sid, &storage.Session{AdminID: admin.ID, Username: admin.Username})

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, sid, int(p.sessions.TTL().Seconds()), "/", "", p.config.SecureCookie, true)

	logger.Info().Str("username", admin.Username).Msg("Admin logged in")
	c.JSON(http.StatusOK, gin.H{"message": "Login successful!", "username": admin.Username})
}

func (p *Portal) handleLogout(c *gin.Context) {
	if sid, err := c.Cookie(sessionCookieName); err == nil {
		p.sessions.Delete(sid)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", p.config.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out!"})
}

// requireAdmin rejects requests without a live admin session.
func (p *Portal) requireAdmin(c *gin.Context) {
	sid, err := c.Cookie(sessionCookieName)
	if err != nil || sid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please login first!"})
		return
	}

	session, ok := p.sessions.Get(sid)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please login first!"})
		return
	}

	c.Set(keySession, session)
	c.Next()
}

func currentSession(c *gin.Context) *storage.Session {
	v, ok := c.Get(keySession)
	if !ok {
		return nil
	}
	return v.(*storage.Session)
}
