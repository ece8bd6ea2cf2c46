package invitation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/welcomarr/welcomarr/internal/models"
)

func ptr[T any](v T) *T {
	return &v
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		invitation *models.Invitation
		want       Status
	}{
		{
			name: "missing",
			want: StatusNotFound,
		},
		{
			name:       "fresh",
			invitation: &models.Invitation{UsageLimit: 1},
			want:       StatusActive,
		},
		{
			name:       "never expires unlimited heavily used",
			invitation: &models.Invitation{UsageLimit: 0, UsageCount: 1000},
			want:       StatusActive,
		},
		{
			name:       "expired",
			invitation: &models.Invitation{ExpiresAt: ptr(now.Add(-24 * time.Hour))},
			want:       StatusExpired,
		},
		{
			name:       "expires exactly now",
			invitation: &models.Invitation{ExpiresAt: ptr(now)},
			want:       StatusActive,
		},
		{
			name:       "expired wins over fully used",
			invitation: &models.Invitation{ExpiresAt: ptr(now.Add(-time.Second)), UsageLimit: 1, UsageCount: 1},
			want:       StatusExpired,
		},
		{
			name:       "fully used",
			invitation: &models.Invitation{UsageLimit: 5, UsageCount: 5},
			want:       StatusFullyUsed,
		},
		{
			name:       "one use left",
			invitation: &models.Invitation{UsageLimit: 5, UsageCount: 4},
			want:       StatusActive,
		},
		{
			name:       "legacy used flag",
			invitation: &models.Invitation{Used: true},
			want:       StatusUsed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.invitation, now))
			// repeated evaluation never changes the answer
			assert.Equal(t, tc.want, Evaluate(tc.invitation, now))
			assert.Equal(t, tc.want == StatusActive, IsValid(tc.invitation, now))
		})
	}
}

func TestEvaluate_UnlimitedIgnoresUsage(t *testing.T) {
	now := time.Now()
	for count := uint(0); count < 50; count += 7 {
		inv := &models.Invitation{UsageLimit: 0, UsageCount: count, ExpiresAt: ptr(now.Add(time.Hour))}
		assert.True(t, IsValid(inv, now), "usage_count=%d", count)
	}
}

func TestEvaluate_FullyUsedIsPermanent(t *testing.T) {
	now := time.Now()
	inv := &models.Invitation{UsageLimit: 3, UsageCount: 3}
	for i := 0; i < 5; i++ {
		assert.False(t, IsValid(inv, now.Add(time.Duration(i)*time.Hour)))
		inv.UsageCount++
	}
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusActive.Err())
	assert.ErrorIs(t, StatusNotFound.Err(), ErrNotFound)
	assert.ErrorIs(t, StatusExpired.Err(), ErrExpired)
	assert.ErrorIs(t, StatusFullyUsed.Err(), ErrFullyUsed)
	assert.ErrorIs(t, StatusUsed.Err(), ErrFullyUsed)
}
