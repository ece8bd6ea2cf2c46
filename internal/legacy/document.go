// Package legacy imports the JSON data file of earlier Welcomarr releases.
//
// Two layouts exist. The PHP release keeps created/expires/usage_limit/
// usage_count per invitation, the Flask prototype keeps created_at/
// expires_at/max_uses/uses/active and ids linking users to invitations.
// Both are read into the same document.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexInt accepts a JSON number, a numeric string or null.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	f.Value, f.Set = n, true
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	*f = flexString(strings.Trim(string(b), `"`))
	return nil
}

// flexIDs accepts a list of ids given as strings or numbers.
type flexIDs []string

func (f *flexIDs) UnmarshalJSON(b []byte) error {
	raw := []json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		// PHP writes an empty object for an empty associative array
		if string(bytes.TrimSpace(b)) == "{}" || string(bytes.TrimSpace(b)) == "null" {
			*f = nil
			return nil
		}
		return err
	}
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		ids = append(ids, strings.Trim(string(bytes.TrimSpace(r)), `"`))
	}
	*f = ids
	return nil
}

type Document struct {
	Admin       *Admin       `json:"admin"`
	Settings    *Settings    `json:"settings"`
	Libraries   []Library    `json:"libraries"`
	Invitations []Invitation `json:"invitations"`
	Users       []User       `json:"users"`
}

type Admin struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type Settings struct {
	PlexServer     string `json:"plex_server"`
	PlexToken      string `json:"plex_token"`
	PlexURL        string `json:"plex_url"`
	LocalDiscovery bool   `json:"local_discovery"`
	WelcomeMessage string `json:"welcome_message"`
	SiteName       string `json:"site_name"`
	ThemeColor     string `json:"theme_color"`
}

type Library struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
	Type string     `json:"type"`
}

type Invitation struct {
	ID         string  `json:"id"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Created    string  `json:"created"`
	CreatedAt  string  `json:"created_at"`
	Expires    string  `json:"expires"`
	ExpiresAt  string  `json:"expires_at"`
	UsageLimit flexInt `json:"usage_limit"`
	MaxUses    flexInt `json:"max_uses"`
	UsageCount flexInt `json:"usage_count"`
	Uses       flexInt `json:"uses"`
	Used       bool    `json:"used"`
	Active     *bool   `json:"active"`
	LastUsedBy string  `json:"last_used_by"`
	LastUsedAt string  `json:"last_used_at"`
	Libraries  flexIDs `json:"libraries"`
}

type User struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	PlexUsername   string  `json:"plex_username"`
	Username       string  `json:"username"`
	Joined         string  `json:"joined"`
	CreatedAt      string  `json:"created_at"`
	InvitationCode string  `json:"invitation_code"`
	InvitationID   string  `json:"invitation_id"`
	Libraries      flexIDs `json:"libraries"`
}

func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse legacy data: %w", err)
	}
	return doc, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime reads the timestamps both releases wrote. Zone-less values are
// taken in loc. Empty means unset.
func parseTime(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
