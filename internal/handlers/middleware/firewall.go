// Package middleware holds the gin middlewares guarding the public surface.
package middleware

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/gcplog"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/charleshuang3/firewall/opn"
	"github.com/charleshuang3/firewall/pf"
	"github.com/charleshuang3/firewall/ros"
	"github.com/charleshuang3/firewall/zerolog"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "middleware").Logger()
)

const appName = "welcomarr"

type ForgivableError struct {
	DurationInMinute uint `yaml:"duration_in_minute"`
	Count            uint `yaml:"count"`
}

// FirewallConfig configures banning of clients that keep guessing
// invitation codes or admin passwords.
type FirewallConfig struct {
	Provider         string          `yaml:"provider"`
	ProviderIP       string          `yaml:"provider_ip"`
	ProviderUser     string          `yaml:"provider_user"`
	ProviderPassword string          `yaml:"provider_password"`
	ListUUID         string          `yaml:"list_uuid"`
	BanMinutes       uint            `yaml:"ban_minutes"`
	Whitelist        []string        `yaml:"whitelist"`
	Forgivable       ForgivableError `yaml:"forgivable"`

	CityDBFile        string `yaml:"city_db_file"`
	UpdatedCityDBFile string `yaml:"updated_city_db_file"`
	ASNDBFile         string `yaml:"asn_db_file"`
	UpdatedASNDBFile  string `yaml:"updated_asn_db_file"`

	GoogleKeyFile   string `yaml:"google_key_file"`
	GoogleProjectID string `yaml:"google_project_id"`
}

var (
	supportedProviders = []string{"none", "ros", "opn", "pf"}
)

const (
	defaultBanMinutes       = 10
	defaultDurationInMinute = 10
	defaultCount            = 3

	// KeyHackingError is the gin context key handlers set to a Suspect to
	// report a request that looks like guessing.
	KeyHackingError = "HACKING_ERROR"

	maxSubjectLen = 32
)

// Suspect describes a request that looks like guessing: an unknown invitation
// code or an admin username tried with a wrong password.
type Suspect struct {
	Route   string
	Reason  string
	Kind    string // "code" or "username"
	Subject string
}

// String is the reason recorded with the ban.
func (s Suspect) String() string {
	if s.Subject == "" {
		return s.Route + " " + s.Reason
	}
	return fmt.Sprintf("%s %s (%s %q)", s.Route, s.Reason, s.Kind, truncate(s.Subject))
}

// truncate bounds client supplied text before it reaches the ban log.
func truncate(v string) string {
	if utf8.RuneCountInString(v) <= maxSubjectLen {
		return v
	}
	return string([]rune(v)[:maxSubjectLen]) + "..."
}

// ReportedSuspect returns the Suspect a handler flagged the request with.
func ReportedSuspect(c *gin.Context) (Suspect, bool) {
	v, ok := c.Get(KeyHackingError)
	if !ok {
		return Suspect{}, false
	}
	s, ok := v.(Suspect)
	return s, ok
}

func (c *FirewallConfig) Validate() {
	if c.Provider == "" {
		c.Provider = "none"
	}
	if !slices.Contains(supportedProviders, c.Provider) {
		logger.Fatal().Msgf("Provider %s is not supported", c.Provider)
	}

	required := map[string]string{
		"CityDBFile":        c.CityDBFile,
		"UpdatedCityDBFile": c.UpdatedCityDBFile,
		"ASNDBFile":         c.ASNDBFile,
		"UpdatedASNDBFile":  c.UpdatedASNDBFile,
	}
	if c.Provider != "none" {
		required["ProviderIP"] = c.ProviderIP
		required["ProviderUser"] = c.ProviderUser
		required["ProviderPassword"] = c.ProviderPassword
	}
	if c.Provider == "opn" {
		required["ListUUID"] = c.ListUUID
	}
	for name, value := range required {
		if value == "" {
			logger.Fatal().Msgf("Firewall %s is missing", name)
		}
	}

	c.applyDefault()
}

func (c *FirewallConfig) applyDefault() {
	if c.BanMinutes == 0 {
		c.BanMinutes = defaultBanMinutes
	}

	if c.Forgivable.DurationInMinute == 0 {
		c.Forgivable.DurationInMinute = defaultDurationInMinute
	}

	if c.Forgivable.Count == 0 {
		c.Forgivable.Count = defaultCount
	}
}

type FirewallMiddleware struct {
	fw *firewall.Firewall
}

func NewFirewallMiddleware(conf *FirewallConfig) *FirewallMiddleware {
	var firewallProvider firewall.IFirewall
	switch conf.Provider {
	case "ros":
		firewallProvider = ros.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "pf":
		firewallProvider = pf.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "opn":
		firewallProvider = opn.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword, conf.ListUUID)
	default:
		// nil provider only logs, nothing is blocked.
	}

	var fwlogger firewall.ILogger
	if conf.GoogleKeyFile != "" {
		var err error
		fwlogger, err = gcplog.New(conf.GoogleKeyFile, conf.GoogleProjectID, appName)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create gcp logger")
		}
	} else {
		fwlogger = zerolog.New(logger, zlog.InfoLevel, appName)
	}

	mm, err := ipgeo.NewAutoUpdateMMIPGeo(
		conf.CityDBFile,
		conf.UpdatedCityDBFile,
		conf.ASNDBFile,
		conf.UpdatedASNDBFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create firewall middleware")
	}

	fw := firewall.New(
		conf.Whitelist,
		firewallProvider,
		fwlogger,
		mm,
		firewall.ForgivableError{
			Duration:    time.Duration(conf.Forgivable.DurationInMinute) * time.Minute,
			Count:       int(conf.Forgivable.Count),
			BanInMinute: int(conf.BanMinutes),
		})

	return &FirewallMiddleware{
		fw: fw,
	}
}

// Middleware reports the client IP to the firewall after any handler that
// flagged the request with KeyHackingError.
func (m *FirewallMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		suspect, ok := ReportedSuspect(c)
		if !ok {
			return
		}

		ip := c.ClientIP()
		ev := logger.Warn().Str("ip", ip).Str("route", suspect.Route)
		if suspect.Subject != "" {
			ev = ev.Str(suspect.Kind, truncate(suspect.Subject))
		}
		ev.Msg(suspect.Reason)
		m.fw.LogIPError(ip, suspect.String())
	}
}
