package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/outreach/pkg/cache"
	"github.com/grigta/outreach/pkg/convflow"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/scheduler"
)

type StateCacheTestSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *StateCache
	ctx   context.Context
}

func (s *StateCacheTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.cache = NewStateCache(cache.NewRedisCacheFromClient(client), logger.Nop())
	s.ctx = context.Background()
}

func (s *StateCacheTestSuite) TearDownTest() {
	s.mr.Close()
}

func (s *StateCacheTestSuite) TestConversationRoundTrip() {
	state := &convflow.ConversationState{
		ConversationID: "acc1_lead42",
		FlowID:         "standard_outreach",
		CurrentNodeID:  "value_prop",
		Variables:      map[string]string{"kol_name": "Alex"},
		MessageCount:   3,
		StartedAt:      time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		LastActivity:   time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC),
	}

	s.Require().NoError(s.cache.SaveConversation(s.ctx, state))

	loaded, err := s.cache.Conversation(s.ctx, "acc1_lead42")
	s.Require().NoError(err)
	s.Equal("value_prop", loaded.CurrentNodeID)
	s.Equal("Alex", loaded.Variables["kol_name"])
	s.Equal(3, loaded.MessageCount)
	s.True(loaded.LastActivity.Equal(state.LastActivity))
}

func (s *StateCacheTestSuite) TestConversationMissing() {
	_, err := s.cache.Conversation(s.ctx, "nope")
	s.ErrorIs(err, convflow.ErrConversationNotFound)
}

func (s *StateCacheTestSuite) TestConversationExpires() {
	state := &convflow.ConversationState{ConversationID: "acc1_lead1", FlowID: "standard_outreach"}
	s.Require().NoError(s.cache.SaveConversation(s.ctx, state))

	s.mr.FastForward(DefaultConversationTTL + time.Minute)

	_, err := s.cache.Conversation(s.ctx, "acc1_lead1")
	s.ErrorIs(err, convflow.ErrConversationNotFound)
}

func (s *StateCacheTestSuite) TestDeleteConversation() {
	state := &convflow.ConversationState{ConversationID: "acc1_lead2", FlowID: "standard_outreach"}
	s.Require().NoError(s.cache.SaveConversation(s.ctx, state))
	s.Require().NoError(s.cache.DeleteConversation(s.ctx, "acc1_lead2"))

	_, err := s.cache.Conversation(s.ctx, "acc1_lead2")
	s.ErrorIs(err, convflow.ErrConversationNotFound)
}

func (s *StateCacheTestSuite) TestConversationIDs() {
	for _, id := range []string{"a_1", "a_2", "b_1"} {
		s.Require().NoError(s.cache.SaveConversation(s.ctx, &convflow.ConversationState{ConversationID: id}))
	}

	ids, err := s.cache.ConversationIDs(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"a_1", "a_2", "b_1"}, ids)
}

func (s *StateCacheTestSuite) TestScheduleStateRoundTrip() {
	state := scheduler.ScheduleState{
		AccountID: "acc1",
		Platform:  scheduler.PlatformInstagram,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Timezone:  "Europe/Berlin",
		HourlyCounts: map[scheduler.ActionType]int{
			scheduler.ActionFollow: 5,
			scheduler.ActionDM:     2,
		},
		DailyCounts: map[scheduler.ActionType]int{
			scheduler.ActionFollow: 17,
		},
	}

	s.Require().NoError(s.cache.SaveScheduleState(s.ctx, state))

	loaded, err := s.cache.ScheduleState(s.ctx, "acc1")
	s.Require().NoError(err)
	s.Equal(scheduler.PlatformInstagram, loaded.Platform)
	s.Equal(5, loaded.HourlyCounts[scheduler.ActionFollow])
	s.Equal(17, loaded.DailyCounts[scheduler.ActionFollow])
	s.Equal("Europe/Berlin", loaded.Timezone)
}

func (s *StateCacheTestSuite) TestScheduleStatesScan() {
	states := []scheduler.ScheduleState{
		{AccountID: "acc1", Platform: scheduler.PlatformInstagram},
		{AccountID: "acc2", Platform: scheduler.PlatformX},
		{AccountID: "acc3", Platform: scheduler.PlatformInstagram},
	}
	s.Require().NoError(s.cache.SaveScheduleStates(s.ctx, states))

	loaded, err := s.cache.ScheduleStates(s.ctx)
	s.Require().NoError(err)
	s.Len(loaded, 3)

	seen := map[string]bool{}
	for _, state := range loaded {
		seen[state.AccountID] = true
	}
	s.True(seen["acc1"] && seen["acc2"] && seen["acc3"])
}

func TestStateCacheTestSuite(t *testing.T) {
	suite.Run(t, new(StateCacheTestSuite))
}
