//go:build integration

package ratelimit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"everkeep/internal/ratelimit"
	id "everkeep/pkg/domain"
	"everkeep/pkg/testutil/containers"
)

type RedisLimiterSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	limiter *ratelimit.RedisLimiter
}

func TestRedisLimiterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLimiterSuite))
}

func (s *RedisLimiterSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.limiter = ratelimit.NewRedisLimiter(s.redis.Client)
}

func (s *RedisLimiterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLimiterSuite) TestAllowAndRecord() {
	ctx := context.Background()
	profileID := id.NewProfileID()

	decision, err := s.limiter.Allow(ctx, profileID, id.TierFree)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(2, decision.RemainingDay)

	for i := 0; i < 2; i++ {
		s.Require().NoError(s.limiter.Record(ctx, profileID))
	}

	decision, err = s.limiter.Allow(ctx, profileID, id.TierFree)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal("daily generation limit reached", decision.Reason)
	s.Equal(8, decision.RemainingMonth)
}

func (s *RedisLimiterSuite) TestCountersSurviveReconnect() {
	ctx := context.Background()
	profileID := id.NewProfileID()

	s.Require().NoError(s.limiter.Record(ctx, profileID))

	// A fresh limiter over the same backend sees the same counters.
	fresh := ratelimit.NewRedisLimiter(s.redis.Client)
	decision, err := fresh.Allow(ctx, profileID, id.TierFree)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(1, decision.RemainingDay)
}

func (s *RedisLimiterSuite) TestProfilesAreIndependent() {
	ctx := context.Background()
	first := id.NewProfileID()
	second := id.NewProfileID()

	s.Require().NoError(s.limiter.Record(ctx, first))
	s.Require().NoError(s.limiter.Record(ctx, first))

	decision, err := s.limiter.Allow(ctx, second, id.TierFree)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(2, decision.RemainingDay)
}
