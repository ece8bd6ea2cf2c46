package portal

import "github.com/welcomarr/welcomarr/internal/invitation"

const (
	defaultTitle                = "Welcomarr"
	defaultSessionTTLMinutes    = 12 * 60
	defaultInitialAdminPassword = "admin"
	defaultGrantTimeoutSeconds  = 30
)

type Config struct {
	// Title is shown when the operator has not set a site name.
	Title string `yaml:"title"`

	SessionTTLMinutes int `yaml:"session_ttl_minutes"`

	// SecureCookie marks the admin session cookie https only.
	SecureCookie bool `yaml:"secure_cookie"`

	// InitialAdminPassword of the admin account seeded on an empty database.
	InitialAdminPassword string `yaml:"initial_admin_password"`

	CodeLength int `yaml:"code_length"`

	// GrantTimeoutSeconds bounds all media server calls of one redemption.
	GrantTimeoutSeconds int `yaml:"grant_timeout_seconds"`
}

func (c *Config) Validate() {
	c.applyDefaults()

	if c.CodeLength < invitation.MinCodeLength {
		logger.Fatal().Msgf("Portal: code_length must be at least %d", invitation.MinCodeLength)
	}
	if c.InitialAdminPassword == defaultInitialAdminPassword {
		logger.Warn().Msg("Portal: initial_admin_password is the default, set one")
	}
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if c.InitialAdminPassword == "" {
		c.InitialAdminPassword = defaultInitialAdminPassword
	}
	if c.CodeLength == 0 {
		c.CodeLength = invitation.DefaultCodeLength
	}
	if c.GrantTimeoutSeconds <= 0 {
		c.GrantTimeoutSeconds = defaultGrantTimeoutSeconds
	}
}
