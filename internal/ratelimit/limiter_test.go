package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"everkeep/internal/ratelimit"
	id "everkeep/pkg/domain"
)

func TestTierLimits(t *testing.T) {
	assert.Equal(t, ratelimit.Limits{PerDay: 2, PerMonth: 10}, ratelimit.TierLimits[id.TierFree])
	assert.Equal(t, ratelimit.Limits{PerDay: 10, PerMonth: 100}, ratelimit.TierLimits[id.TierHeritage])
	assert.Equal(t, ratelimit.Limits{PerDay: 30, PerMonth: 400}, ratelimit.TierLimits[id.TierLegacy])
}

func TestMemoryLimiterDailyLimit(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewMemoryLimiter()
	profileID := id.NewProfileID()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, profileID, id.TierFree)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "generation %d", i)
		require.NoError(t, limiter.Record(ctx, profileID))
	}

	decision, err := limiter.Allow(ctx, profileID, id.TierFree)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily generation limit reached", decision.Reason)
	assert.Equal(t, 0, decision.RemainingDay)
	assert.Equal(t, 8, decision.RemainingMonth)
}

func TestMemoryLimiterDayWindowResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 23, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter().WithClock(func() time.Time { return now })
	profileID := id.NewProfileID()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.Record(ctx, profileID))
	}
	decision, err := limiter.Allow(ctx, profileID, id.TierFree)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Next UTC day: daily counter resets, monthly persists.
	now = now.Add(2 * time.Hour)
	decision, err = limiter.Allow(ctx, profileID, id.TierFree)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.RemainingDay)
	assert.Equal(t, 8, decision.RemainingMonth)
}

func TestMemoryLimiterMonthlyLimit(t *testing.T) {
	ctx := context.Background()
	day := 0
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter().WithClock(func() time.Time {
		return now.AddDate(0, 0, day)
	})
	profileID := id.NewProfileID()

	// Two per day for five days exhausts the free monthly allowance.
	for day = 0; day < 5; day++ {
		for i := 0; i < 2; i++ {
			decision, err := limiter.Allow(ctx, profileID, id.TierFree)
			require.NoError(t, err)
			require.True(t, decision.Allowed)
			require.NoError(t, limiter.Record(ctx, profileID))
		}
	}

	day = 5
	decision, err := limiter.Allow(ctx, profileID, id.TierFree)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "monthly generation limit reached", decision.Reason)

	// A new month clears it.
	day = 31
	decision, err = limiter.Allow(ctx, profileID, id.TierFree)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewMemoryLimiter()
	profileID := id.NewProfileID()

	decision, err := limiter.Allow(ctx, profileID, id.PlanTier("enterprise"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.RemainingDay)
	assert.Equal(t, 10, decision.RemainingMonth)
}

func TestProfilesAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewMemoryLimiter()
	first := id.NewProfileID()
	second := id.NewProfileID()

	require.NoError(t, limiter.Record(ctx, first))
	require.NoError(t, limiter.Record(ctx, first))

	decision, err := limiter.Allow(ctx, second, id.TierFree)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.RemainingDay)
}
