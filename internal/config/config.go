package config

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/handlers/middleware"
	"github.com/welcomarr/welcomarr/internal/handlers/portal"
	"github.com/welcomarr/welcomarr/internal/librarysync"
	"github.com/welcomarr/welcomarr/internal/plex"
)

var (
	logger = log.With().Str("component", "config").Logger()
)

type Config struct {
	Port      uint                       `yaml:"port"`
	GinMode   string                     `yaml:"gin_mode"`
	DB        gormw.Config               `yaml:"db"`
	Plex      plex.Config                `yaml:"plex"`
	Portal    portal.Config              `yaml:"portal"`
	Sync      librarysync.Config         `yaml:"sync"`
	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`

	// Firewall is optional, without it nobody gets banned.
	Firewall *middleware.FirewallConfig `yaml:"firewall"`
}

func LoadConfig(path string) *Config {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open config file: %s", path)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to decode config file")
	}

	cfg.validate()

	return cfg
}

func (c *Config) validate() {
	if c.Port == 0 {
		logger.Fatal().Msg("Port is missing")
	}

	if c.GinMode == "" {
		logger.Fatal().Msg("GinMode is missing")
	}

	c.Plex.ApplyDefaults()
	c.Portal.Validate()
	c.Sync.ApplyDefaults()
	c.RateLimit.ApplyDefaults()

	if c.Firewall != nil {
		c.Firewall.Validate()
	}
}
