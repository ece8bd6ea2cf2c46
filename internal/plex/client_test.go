package plex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welcomarr/welcomarr/internal/plex/plextest"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingObserver) ObserveExternalRequest(op string, err error, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func setupTestClient(t *testing.T) (*Client, *plextest.Server, *recordingObserver) {
	t.Helper()
	server := plextest.New(t)
	observer := &recordingObserver{}
	client := NewClient(&Config{TVURL: server.URL, TimeoutSeconds: 2}, observer)
	return client, server, observer
}

func closedURL(t *testing.T) string {
	t.Helper()
	s := httptest.NewServer(http.NotFoundHandler())
	s.Close()
	return s.URL
}

func TestResolveServerIdentity(t *testing.T) {
	client, _, observer := setupTestClient(t)
	ctx := context.Background()

	id, err := client.ResolveServerIdentity(ctx, plextest.Token)
	require.NoError(t, err)
	assert.Equal(t, plextest.MachineID, id)
	assert.Equal(t, []string{"resources"}, observer.ops)

	_, err = client.ResolveServerIdentity(ctx, "wrong-token")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)
	assert.True(t, IsRejected(err))
}

func TestResolveServerIdentity_NoServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"phone","provides":"client,player","clientIdentifier":"x"}]`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(&Config{TVURL: server.URL}, nil)
	_, err := client.ResolveServerIdentity(context.Background(), "t")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveInviteeIdentity(t *testing.T) {
	client, _, _ := setupTestClient(t)

	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr error
	}{
		{name: "username", input: "alice", wantID: "101"},
		{name: "username ignores case", input: "ALICE", wantID: "101"},
		{name: "email ignores case", input: " Bob@Example.com ", wantID: "102"},
		{name: "unknown", input: "zed", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := client.ResolveInviteeIdentity(context.Background(), tt.input, plextest.Token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestListLibrarySections(t *testing.T) {
	want := []Section{
		{ID: "1", Title: "Movies", Type: "movie"},
		{ID: "2", Title: "TV Shows", Type: "show"},
	}

	t.Run("cloud", func(t *testing.T) {
		client, _, _ := setupTestClient(t)

		res, err := client.ListLibrarySections(context.Background(), Connection{Token: plextest.Token})
		require.NoError(t, err)
		assert.Equal(t, SourceCloud, res.Source)
		assert.Equal(t, want, res.Sections)
		assert.Empty(t, res.ServerURL)
	})

	t.Run("direct", func(t *testing.T) {
		client, server, _ := setupTestClient(t)
		server.SetCloudDown(true)

		res, err := client.ListLibrarySections(context.Background(), Connection{Token: plextest.Token, ServerURL: server.URL + "/"})
		require.NoError(t, err)
		assert.Equal(t, SourceDirect, res.Source)
		assert.Equal(t, want, res.Sections)
	})

	t.Run("local discovery", func(t *testing.T) {
		server := plextest.New(t)
		server.SetCloudDown(true)
		client := NewClient(&Config{
			TVURL:           server.URL,
			TimeoutSeconds:  2,
			LocalCandidates: []string{closedURL(t), server.URL},
		}, nil)

		res, err := client.ListLibrarySections(context.Background(), Connection{
			Token:          plextest.Token,
			ServerURL:      closedURL(t),
			LocalDiscovery: true,
		})
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, res.Source)
		assert.Equal(t, server.URL, res.ServerURL)
	})

	t.Run("nothing answers", func(t *testing.T) {
		client, server, _ := setupTestClient(t)
		server.SetLibraries(nil)

		_, err := client.ListLibrarySections(context.Background(), Connection{Token: plextest.Token, ServerURL: server.URL})
		assert.ErrorIs(t, err, ErrNoLibraries)
	})
}

func TestGrantAccess(t *testing.T) {
	client, server, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.GrantAccess(ctx, plextest.MachineID, "101", []string{"1", "2"}, plextest.Token))

	shares := server.Shares()
	require.Len(t, shares, 1)
	assert.Equal(t, plextest.MachineID, shares[0].MachineIdentifier)
	assert.Equal(t, json.Number("101"), shares[0].InvitedID)
	assert.Equal(t, []json.Number{"1", "2"}, shares[0].LibrarySectionIDs)

	server.SetShareStatus(http.StatusUnprocessableEntity)
	err := client.GrantAccess(ctx, plextest.MachineID, "101", []string{"1"}, plextest.Token)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.StatusCode)
	assert.Contains(t, rejected.Body, "share refused")
}

func TestUnavailable(t *testing.T) {
	client := NewClient(&Config{TVURL: closedURL(t)}, nil)

	_, err := client.ResolveServerIdentity(context.Background(), "t")
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsRejected(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client := NewClient(&Config{TVURL: server.URL, TimeoutSeconds: 1}, nil)
	start := time.Now()
	_, err := client.ResolveInviteeIdentity(context.Background(), "alice", "t")
	assert.True(t, IsUnavailable(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12345, "b": "abc"}`), &v))
	assert.Equal(t, flexString("12345"), v.A)
	assert.Equal(t, flexString("abc"), v.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &v))
}
