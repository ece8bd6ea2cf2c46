// Package plex talks to plex.tv and Plex Media Servers to resolve who is who
// and to share libraries with invited users.
package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "plex").Logger()
)

const maxBodyBytes = 1 << 20

// Observer is told about every request the client makes.
type Observer interface {
	ObserveExternalRequest(op string, err error, elapsed time.Duration)
}

type Client struct {
	config     *Config
	httpClient *http.Client
	observer   Observer
}

func NewClient(config *Config, observer Observer) *Client {
	config.ApplyDefaults()
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout()},
		observer:   observer,
	}
}

// Connection is what the client needs to reach the operator's server.
type Connection struct {
	Token          string
	ServerURL      string
	LocalDiscovery bool
}

type Section struct {
	ID    string
	Title string
	Type  string
}

type Source string

const (
	SourceCloud  Source = "cloud"
	SourceDirect Source = "direct"
	SourceLocal  Source = "local"
)

// Sections is a library listing and where it came from. ServerURL is the
// direct URL that answered, empty for the cloud relay.
type Sections struct {
	Sections  []Section
	Source    Source
	ServerURL string
}

// flexString decodes ids sent either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type resource struct {
	Name             string `json:"name"`
	Provides         string `json:"provides"`
	ClientIdentifier string `json:"clientIdentifier"`
}

func (r *resource) providesServer() bool {
	return slices.Contains(strings.Split(r.Provides, ","), "server")
}

type plexUser struct {
	ID       flexString `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
}

type cloudLibrary struct {
	ID    flexString `json:"id"`
	Key   flexString `json:"key"`
	Title string     `json:"title"`
	Name  string     `json:"name"`
	Type  string     `json:"type"`
}

type directSections struct {
	MediaContainer struct {
		Directory []cloudLibrary `json:"Directory"`
		Metadata  []cloudLibrary `json:"Metadata"`
	} `json:"MediaContainer"`
}

func (l *cloudLibrary) section() Section {
	s := Section{ID: string(l.Key), Title: l.Title, Type: l.Type}
	if s.ID == "" {
		s.ID = string(l.ID)
	}
	if s.Title == "" {
		s.Title = l.Name
	}
	if s.Title == "" {
		s.Title = s.ID
	}
	if s.Type == "" {
		s.Type = "unknown"
	}
	return s
}

// ResolveServerIdentity returns the machine identifier of the first resource
// of the token's account that provides a server.
func (c *Client) ResolveServerIdentity(ctx context.Context, token string) (string, error) {
	resources := []resource{}
	if err := c.do(ctx, "resources", http.MethodGet, c.tvURL("/api/v2/resources", url.Values{"includeHttps": {"1"}}), token, nil, &resources); err != nil {
		return "", err
	}

	for _, r := range resources {
		if r.providesServer() && r.ClientIdentifier != "" {
			return r.ClientIdentifier, nil
		}
	}
	return "", fmt.Errorf("server for token: %w", ErrNotFound)
}

// ResolveInviteeIdentity finds the id of a user known to the token's account
// by username or email. Matching ignores case.
func (c *Client) ResolveInviteeIdentity(ctx context.Context, usernameOrEmail, token string) (string, error) {
	users := []plexUser{}
	if err := c.do(ctx, "users", http.MethodGet, c.tvURL("/api/v2/users", nil), token, nil, &users); err != nil {
		return "", err
	}

	want := strings.TrimSpace(usernameOrEmail)
	for _, u := range users {
		if strings.EqualFold(u.Username, want) || (u.Email != "" && strings.EqualFold(u.Email, want)) {
			return string(u.ID), nil
		}
	}
	return "", fmt.Errorf("user %q: %w", usernameOrEmail, ErrNotFound)
}

// ListLibrarySections tries the cloud relay, then the configured server URL,
// then the local candidates when discovery is on. The first method returning
// a non-empty list wins.
func (c *Client) ListLibrarySections(ctx context.Context, conn Connection) (*Sections, error) {
	var errs []error

	serverID, err := c.ResolveServerIdentity(ctx, conn.Token)
	if err == nil {
		libs := []cloudLibrary{}
		err = c.do(ctx, "cloud libraries", http.MethodGet, c.tvURL("/api/v2/servers/"+url.PathEscape(serverID)+"/libraries", nil), conn.Token, nil, &libs)
		if err == nil && len(libs) > 0 {
			return &Sections{Sections: toSections(libs), Source: SourceCloud}, nil
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Cloud library listing failed")
		errs = append(errs, err)
	}

	if conn.ServerURL != "" {
		sections, err := c.listDirect(ctx, conn.ServerURL, conn.Token)
		if err == nil {
			return &Sections{Sections: sections, Source: SourceDirect, ServerURL: conn.ServerURL}, nil
		}
		logger.Warn().Err(err).Str("server_url", conn.ServerURL).Msg("Direct library listing failed")
		errs = append(errs, err)
	}

	if conn.LocalDiscovery {
		for _, candidate := range c.config.LocalCandidates {
			if candidate == conn.ServerURL {
				continue
			}
			sections, err := c.listDirect(ctx, candidate, conn.Token)
			if err == nil {
				logger.Info().Str("server_url", candidate).Msg("Discovered local server")
				return &Sections{Sections: sections, Source: SourceLocal, ServerURL: candidate}, nil
			}
			errs = append(errs, err)
		}
	}

	return nil, errors.Join(append([]error{ErrNoLibraries}, errs...)...)
}

func (c *Client) listDirect(ctx context.Context, serverURL, token string) ([]Section, error) {
	u := strings.TrimRight(serverURL, "/") + "/library/sections"
	resp := &directSections{}
	if err := c.do(ctx, "server libraries", http.MethodGet, u, token, nil, resp); err != nil {
		return nil, err
	}

	dirs := resp.MediaContainer.Directory
	if len(dirs) == 0 {
		dirs = resp.MediaContainer.Metadata
	}
	if len(dirs) == 0 {
		return nil, ErrNoLibraries
	}
	return toSections(dirs), nil
}

func toSections(libs []cloudLibrary) []Section {
	sections := make([]Section, 0, len(libs))
	for _, l := range libs {
		s := l.section()
		if s.ID == "" {
			continue
		}
		sections = append(sections, s)
	}
	return sections
}

type shareRequest struct {
	MachineIdentifier string `json:"machineIdentifier"`
	InvitedID         any    `json:"invitedId"`
	LibrarySectionIDs []any  `json:"librarySectionIds"`
}

// numeric sends ids that look like numbers as numbers, as plex.tv expects.
func numeric(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// GrantAccess shares sectionIDs of the server with the invitee. Any 2xx is
// success.
func (c *Client) GrantAccess(ctx context.Context, serverID, inviteeID string, sectionIDs []string, token string) error {
	req := &shareRequest{
		MachineIdentifier: serverID,
		InvitedID:         numeric(inviteeID),
		LibrarySectionIDs: make([]any, 0, len(sectionIDs)),
	}
	for _, id := range sectionIDs {
		req.LibrarySectionIDs = append(req.LibrarySectionIDs, numeric(id))
	}

	err := c.do(ctx, "share", http.MethodPost, c.tvURL("/api/v2/shared_servers", nil), token, req, nil)
	if err != nil {
		return err
	}
	logger.Info().Str("invitee_id", inviteeID).Strs("section_ids", sectionIDs).Msg("Shared libraries")
	return nil
}

func (c *Client) tvURL(path string, query url.Values) string {
	u := strings.TrimRight(c.config.TVURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request. Transport failures become UnavailableError, non-2xx
// statuses and undecodable bodies become RejectedError.
func (c *Client) do(ctx context.Context, op, method, u, token string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveExternalRequest(op, err, time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("plex %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("plex %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", token)
	req.Header.Set("X-Plex-Product", defaultProduct)
	req.Header.Set("X-Plex-Client-Identifier", c.config.ClientIdentifier)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &UnavailableError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return nil
}
