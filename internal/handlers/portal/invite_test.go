package portal

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welcomarr/welcomarr/internal/handlers/middleware"
	"github.com/welcomarr/welcomarr/internal/invitation"
	"github.com/welcomarr/welcomarr/internal/models"
)

func TestInvitePage(t *testing.T) {
	testCases := []struct {
		name         string
		setup        func(e *testEnv) string
		expectedCode int
		expectedBody string
	}{
		{
			name: "Active",
			setup: func(e *testEnv) string {
				return e.createInvitation(t, invitation.CreateParams{UsageLimit: 1}).Code
			},
			expectedCode: http.StatusOK,
			expectedBody: `"valid":true`,
		},
		{
			name:         "Unknown code",
			setup:        func(e *testEnv) string { return "NOPE0000" },
			expectedCode: http.StatusNotFound,
			expectedBody: "Invalid or expired invitation code!",
		},
		{
			name: "Expired",
			setup: func(e *testEnv) string {
				inv := e.createInvitation(t, invitation.CreateParams{ExpiresDays: 1})
				require.NoError(t, e.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).
					Update("expires_at", time.Now().Add(-time.Hour)).Error)
				return inv.Code
			},
			expectedCode: http.StatusGone,
			expectedBody: `"status":"Expired"`,
		},
		{
			name: "Fully used",
			setup: func(e *testEnv) string {
				inv := e.createInvitation(t, invitation.CreateParams{UsageLimit: 1})
				require.NoError(t, e.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).
					Update("usage_count", 1).Error)
				return inv.Code
			},
			expectedCode: http.StatusGone,
			expectedBody: `"status":"Fully used"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := setupTestPortal(t)
			code := tc.setup(e)

			rec := e.get("/invite/" + code)

			assert.Equal(t, tc.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.expectedBody)
		})
	}
}

func TestInvitePage_ShowsSettings(t *testing.T) {
	e := setupTestPortal(t)
	inv := e.createInvitation(t, invitation.CreateParams{})

	data := decode[InvitePageData](t, e.get("/invite/"+inv.Code))
	assert.Equal(t, models.DefaultSiteName, data.SiteName)
	assert.Equal(t, models.DefaultWelcomeMessage, data.WelcomeMessage)
	assert.Equal(t, invitation.StatusActive, data.Status)
}

func redeemForm(username string) url.Values {
	return url.Values{
		"name":          {"Alice"},
		"email":         {"alice@example.com"},
		"plex_username": {username},
	}
}

func TestHandleRedeem_Success(t *testing.T) {
	e := setupTestPortal(t)
	inv := e.createInvitation(t, invitation.CreateParams{UsageLimit: 5})

	rec := e.postForm("/invite/"+inv.Code, redeemForm("ALICE"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[invitation.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, models.GrantGranted, res.GrantStatus)
	assert.Equal(t, "success", res.Level)
	assert.Equal(t, uint(1), res.UsageCount)

	shares := e.plex.Shares()
	require.Len(t, shares, 1)
	assert.Equal(t, "101", shares[0].InvitedID.String())
	assert.Len(t, shares[0].LibrarySectionIDs, 2)

	users, err := e.store.ListUsers(t.Context())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ALICE", users[0].PlexUsername)
	assert.Equal(t, inv.Code, users[0].InvitationCode)
	assert.Len(t, users[0].Libraries, 2)
}

func TestHandleRedeem_GrantFailureStillRecorded(t *testing.T) {
	e := setupTestPortal(t)
	e.plex.SetShareStatus(http.StatusInternalServerError)
	inv := e.createInvitation(t, invitation.CreateParams{UsageLimit: 1})

	rec := e.postForm("/invite/"+inv.Code, redeemForm("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[invitation.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, models.GrantFailed, res.GrantStatus)
	assert.Equal(t, "warning", res.Level)
	assert.Contains(t, res.GrantMessage, "HTTP 500")

	// the use is spent
	rec = e.postForm("/invite/"+inv.Code, redeemForm("bob"))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandleRedeem_UnknownInvitee(t *testing.T) {
	e := setupTestPortal(t)
	inv := e.createInvitation(t, invitation.CreateParams{})

	res := decode[invitation.Result](t, e.postForm("/invite/"+inv.Code, redeemForm("mallory")))
	assert.Equal(t, models.GrantFailed, res.GrantStatus)
	assert.Equal(t, "User not found on Plex", res.GrantMessage)
	assert.Empty(t, e.plex.Shares())
}

func TestHandleRedeem_Errors(t *testing.T) {
	e := setupTestPortal(t)
	inv := e.createInvitation(t, invitation.CreateParams{})

	tests := []struct {
		name         string
		code         string
		form         url.Values
		expectedCode int
		expectedBody string
	}{
		{
			name:         "unknown code",
			code:         "UNKNOWN1",
			form:         redeemForm("alice"),
			expectedCode: http.StatusNotFound,
			expectedBody: "Invalid or expired invitation code!",
		},
		{
			name:         "missing username",
			code:         inv.Code,
			form:         url.Values{"name": {"Alice"}},
			expectedCode: http.StatusBadRequest,
			expectedBody: "Plex username or email is required",
		},
		{
			name:         "bad email",
			code:         inv.Code,
			form:         url.Values{"plex_username": {"alice"}, "email": {"nope"}},
			expectedCode: http.StatusBadRequest,
			expectedBody: "invalid email format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.postForm("/invite/"+tt.code, tt.form)

			assert.Equal(t, tt.expectedCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
		})
	}

	// nothing was consumed by the rejected attempts
	fresh, err := e.store.GetInvitationByCode(t.Context(), inv.Code)
	require.NoError(t, err)
	assert.Equal(t, uint(0), fresh.UsageCount)
}

func TestHandleRedeem_FlagsGuessing(t *testing.T) {
	e := setupTestPortal(t)

	var suspect middleware.Suspect
	e.router.Use(func(c *gin.Context) {
		c.Next()
		suspect, _ = middleware.ReportedSuspect(c)
	})
	e.portal.RegisterHandlers(e.router.Group("/guarded"))

	rec := e.postForm("/guarded/invite/UNKNOWN1", redeemForm("alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, middleware.Suspect{
		Route:   "POST /guarded/invite/:code",
		Reason:  "Invalid or expired invitation code!",
		Kind:    "code",
		Subject: "UNKNOWN1",
	}, suspect)
}

func TestHandleRedeem_UsageLimit(t *testing.T) {
	e := setupTestPortal(t)
	inv := e.createInvitation(t, invitation.CreateParams{UsageLimit: 5})

	for i := 1; i <= 5; i++ {
		rec := e.postForm("/invite/"+inv.Code, redeemForm("alice"))
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("redemption %d: %s", i, rec.Body.String()))
		assert.Equal(t, uint(i), decode[invitation.Result](t, rec).UsageCount)
	}

	rec := e.postForm("/invite/"+inv.Code, redeemForm("alice"))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum number of uses")

	users, err := e.store.ListUsersByInvitation(t.Context(), inv.Code)
	require.NoError(t, err)
	assert.Len(t, users, 5)
}
