// Package plextest runs a fake plex.tv and media server for tests.
package plextest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	Token     = "test-token"
	MachineID = "machine-1"
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Library struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Share is one recorded POST to shared_servers.
type Share struct {
	MachineIdentifier string        `json:"machineIdentifier"`
	InvitedID         json.Number   `json:"invitedId"`
	LibrarySectionIDs []json.Number `json:"librarySectionIds"`
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       []User
	libraries   []Library
	cloudDown   bool
	shareStatus int
	shares      []Share
}

// New starts a server knowing two users and two libraries. It is closed
// when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		users: []User{
			{ID: 101, Username: "alice", Email: "alice@example.com"},
			{ID: 102, Username: "bob", Email: "bob@example.com"},
		},
		libraries: []Library{
			{Key: "1", Title: "Movies", Type: "movie"},
			{Key: "2", Title: "TV Shows", Type: "show"},
		},
		shareStatus: http.StatusCreated,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/resources", s.handleResources)
	mux.HandleFunc("GET /api/v2/users", s.handleUsers)
	mux.HandleFunc("GET /api/v2/servers/{id}/libraries", s.handleCloudLibraries)
	mux.HandleFunc("GET /library/sections", s.handleDirectLibraries)
	mux.HandleFunc("POST /api/v2/shared_servers", s.handleShare)

	s.Server = httptest.NewServer(s.authorize(mux))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) SetLibraries(libs []Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries = libs
}

// SetCloudDown makes the cloud library listing fail so clients fall back
// to the direct server URL.
func (s *Server) SetCloudDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cloudDown = down
}

func (s *Server) SetShareStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareStatus = code
}

func (s *Server) Shares() []Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Share(nil), s.shares...)
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != Token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, []map[string]string{
		{"name": "player", "provides": "player", "clientIdentifier": "player-1"},
		{"name": "My Server", "provides": "server,player", "clientIdentifier": MachineID},
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.users)
}

func (s *Server) handleCloudLibraries(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cloudDown || r.PathValue("id") != MachineID {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.libraries)
}

func (s *Server) handleDirectLibraries(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]any{"MediaContainer": map[string]any{"Directory": s.libraries}}
	writeJSON(w, resp)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	share := Share{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&share); err != nil || !strings.EqualFold(share.MachineIdentifier, MachineID) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shareStatus >= 300 {
		http.Error(w, "share refused", s.shareStatus)
		return
	}
	s.shares = append(s.shares, share)
	writeJSONStatus(w, s.shareStatus, map[string]string{"status": "ok"})
}
