package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRedemption("success")
	c.RecordRedemption("success")
	c.RecordRedemption("fully_used")
	c.RecordGrant("Failed")
	c.RecordSync(true, 3)
	c.RecordSync(false, 0)
	c.ObserveExternalRequest("users", nil, 10*time.Millisecond)
	c.ObserveExternalRequest("users", errors.New("boom"), 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.redemptions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.redemptions.WithLabelValues("fully_used")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.grants.WithLabelValues("Failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.syncs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.syncs.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.syncedLibraries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.externalRequests.WithLabelValues("users", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.externalRequests.WithLabelValues("users", "error")))
}

func TestHandler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRedemption("success")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `welcomarr_redemptions_total{outcome="success"} 1`)
}
