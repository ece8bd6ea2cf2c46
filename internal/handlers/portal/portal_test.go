package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/invitation"
	"github.com/welcomarr/welcomarr/internal/librarysync"
	"github.com/welcomarr/welcomarr/internal/metrics"
	"github.com/welcomarr/welcomarr/internal/models"
	"github.com/welcomarr/welcomarr/internal/plex"
	"github.com/welcomarr/welcomarr/internal/plex/plextest"
	"github.com/welcomarr/welcomarr/internal/storage"
)

const testAdminPassword = "admin-pass"

type testEnv struct {
	portal *Portal
	db     *gormw.DB
	store  *storage.Store
	plex   *plextest.Server
	router *gin.Engine
}

func setupTestPortal(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate())

	store := storage.New(database)
	require.NoError(t, store.EnsureDefaults(ctx, testAdminPassword))

	server := plextest.New(t)
	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	settings.PlexToken = plextest.Token
	require.NoError(t, store.UpdateSettings(ctx, settings))

	collector := metrics.NewCollector(nil)
	client := plex.NewClient(&plex.Config{TVURL: server.URL}, collector)
	syncer := librarysync.NewSyncer(store, client, collector)
	require.True(t, syncer.Sync(ctx).Success)

	config := &Config{}
	config.applyDefaults()

	p := NewPortal(
		config,
		store,
		invitation.NewService(store, config.CodeLength),
		invitation.NewCoordinator(store, client, syncer, collector, 5*time.Second),
		syncer,
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	p.RegisterHandlers(router.Group("/"))

	return &testEnv{
		portal: p,
		db:     database,
		store:  store,
		plex:   server,
		router: router,
	}
}

func (e *testEnv) createInvitation(t *testing.T, params invitation.CreateParams) *models.Invitation {
	t.Helper()
	inv, err := e.portal.invitations.Create(context.Background(), params)
	require.NoError(t, err)
	return inv
}

func (e *testEnv) serve(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.serve(req, cookies...)
}

func (e *testEnv) sendJSON(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	return e.serve(req, cookies...)
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.serve(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

// login returns the session cookie of the seeded admin.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.postForm("/admin/login", url.Values{
		"username": {"admin"},
		"password": {testAdminPassword},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
