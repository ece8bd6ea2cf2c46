package models

import "time"

const (
	DefaultSiteName       = "Welcomarr"
	DefaultThemeColor     = "#e5a00d"
	DefaultWelcomeMessage = "Welcome to our Plex server! Follow the steps below to get started."
)

// Settings is a single row holding the operator managed configuration.
type Settings struct {
	ID             uint      `gorm:"primarykey" json:"-"`
	PlexServer     string    `json:"plex_server"`
	PlexToken      string    `json:"plex_token"`
	PlexURL        string    `json:"plex_url"`
	LocalDiscovery bool      `json:"local_discovery"`
	WelcomeMessage string    `json:"welcome_message"`
	SiteName       string    `json:"site_name"`
	ThemeColor     string    `json:"theme_color"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func DefaultSettings() *Settings {
	return &Settings{
		ID:             1,
		WelcomeMessage: DefaultWelcomeMessage,
		SiteName:       DefaultSiteName,
		ThemeColor:     DefaultThemeColor,
	}
}
