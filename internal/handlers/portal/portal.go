// Package portal serves the public invitation pages and the operator API.
package portal

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/welcomarr/welcomarr/internal/invitation"
	"github.com/welcomarr/welcomarr/internal/librarysync"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	logger = log.With().Str("component", "portal").Logger()
)

type Portal struct {
	config *Config
	store  *storage.Store

	invitations *invitation.Service
	redemptions *invitation.Coordinator
	syncer      *librarysync.Syncer

	sessions *storage.SessionStorage
}

func NewPortal(
	config *Config,
	store *storage.Store,
	invitations *invitation.Service,
	redemptions *invitation.Coordinator,
	syncer *librarysync.Syncer,
) *Portal {
	return &Portal{
		config:      config,
		store:       store,
		invitations: invitations,
		redemptions: redemptions,
		syncer:      syncer,
		sessions:    storage.NewSessionStorage(time.Duration(config.SessionTTLMinutes) * time.Minute),
	}
}

// RegisterHandlers mounts every route on rg. guards run in front of the
// unauthenticated routes that take guesses: redemption and login.
func (p *Portal) RegisterHandlers(rg *gin.RouterGroup, guards ...gin.HandlerFunc) {
	inviteRoutes := rg.Group("/invite")
	{
		inviteRoutes.GET("/:code", p.handleInvitePage)
		inviteRoutes.POST("/:code", guarded(guards, p.handleRedeem)...)
	}

	adminRoutes := rg.Group("/admin")
	{
		adminRoutes.POST("/login", guarded(guards, p.handleLogin)...)
		adminRoutes.POST("/logout", p.handleLogout)
	}

	authed := adminRoutes.Group("", p.requireAdmin)
	{
		authed.GET("/invitations", p.handleListInvitations)
		authed.POST("/invitations", p.handleCreateInvitation)
		authed.DELETE("/invitations/:code", p.handleDeleteInvitation)

		authed.GET("/users", p.handleListUsers)

		authed.GET("/settings", p.handleGetSettings)
		authed.PUT("/settings", p.handleUpdateSettings)
		authed.PUT("/account", p.handleUpdateAccount)

		authed.GET("/libraries", p.handleListLibraries)
		authed.POST("/libraries/sync", p.handleSyncLibraries)

		authed.GET("/stats", p.handleStats)
	}
}

func guarded(guards []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}
