package plex

import "time"

const (
	defaultTVURL          = "https://plex.tv"
	defaultTimeoutSeconds = 10
	defaultProduct        = "Welcomarr"
)

var defaultLocalCandidates = []string{
	"http://127.0.0.1:32400",
	"http://localhost:32400",
	"http://host.docker.internal:32400",
}

type Config struct {
	// TVURL is the base of the plex.tv API.
	TVURL string `yaml:"tv_url"`

	// TimeoutSeconds bounds every request to plex.tv or a server.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// LocalCandidates are probed in order when local discovery is enabled
	// in the settings and no other method returned libraries.
	LocalCandidates []string `yaml:"local_candidates"`

	// ClientIdentifier is sent as X-Plex-Client-Identifier.
	ClientIdentifier string `yaml:"client_identifier"`
}

func (c *Config) ApplyDefaults() {
	if c.TVURL == "" {
		c.TVURL = defaultTVURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if len(c.LocalCandidates) == 0 {
		c.LocalCandidates = defaultLocalCandidates
	}
	if c.ClientIdentifier == "" {
		c.ClientIdentifier = "welcomarr"
	}
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
