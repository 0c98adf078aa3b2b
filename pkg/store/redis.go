package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grigta/outreach/pkg/cache"
	"github.com/grigta/outreach/pkg/convflow"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/scheduler"
)

const (
	conversationKeyPrefix  = "outreach:conv:"
	scheduleStateKeyPrefix = "outreach:sched:"

	// DefaultConversationTTL matches how long a stalled conversation stays
	// resumable before it is considered abandoned.
	DefaultConversationTTL = 24 * time.Hour
)

// StateCache keeps hot runtime state in Redis so a restarted worker can
// pick up mid-conversation, and so rate-limit budgets survive short
// outages without a round trip to Mongo.
type StateCache struct {
	cache   *cache.RedisCache
	convTTL time.Duration
	log     logger.Logger
}

type StateCacheOption func(*StateCache)

func WithConversationTTL(ttl time.Duration) StateCacheOption {
	return func(s *StateCache) { s.convTTL = ttl }
}

func NewStateCache(c *cache.RedisCache, log logger.Logger, opts ...StateCacheOption) *StateCache {
	if log == nil {
		log = logger.Nop()
	}
	s := &StateCache{
		cache:   c,
		convTTL: DefaultConversationTTL,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StateCache) SaveConversation(ctx context.Context, state *convflow.ConversationState) error {
	key := conversationKeyPrefix + state.ConversationID
	if err := s.cache.Set(ctx, key, state, s.convTTL); err != nil {
		return fmt.Errorf("failed to cache conversation %s: %w", state.ConversationID, err)
	}
	return nil
}

func (s *StateCache) Conversation(ctx context.Context, conversationID string) (*convflow.ConversationState, error) {
	var state convflow.ConversationState
	err := s.cache.GetJSON(ctx, conversationKeyPrefix+conversationID, &state)
	if err == cache.ErrCacheMiss {
		return nil, convflow.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateCache) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.cache.Delete(ctx, conversationKeyPrefix+conversationID)
}

// ConversationIDs lists every cached conversation, for resuming on boot.
func (s *StateCache) ConversationIDs(ctx context.Context) ([]string, error) {
	keys, err := s.cache.Keys(ctx, conversationKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, conversationKeyPrefix))
	}
	return ids, nil
}

func (s *StateCache) SaveScheduleState(ctx context.Context, state scheduler.ScheduleState) error {
	key := scheduleStateKeyPrefix + state.AccountID
	if err := s.cache.Set(ctx, key, state, 0); err != nil {
		return fmt.Errorf("failed to cache schedule state for %s: %w", state.AccountID, err)
	}
	return nil
}

func (s *StateCache) SaveScheduleStates(ctx context.Context, states []scheduler.ScheduleState) error {
	for _, state := range states {
		if err := s.SaveScheduleState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateCache) ScheduleState(ctx context.Context, accountID string) (scheduler.ScheduleState, error) {
	var state scheduler.ScheduleState
	err := s.cache.GetJSON(ctx, scheduleStateKeyPrefix+accountID, &state)
	return state, err
}

func (s *StateCache) ScheduleStates(ctx context.Context) ([]scheduler.ScheduleState, error) {
	keys, err := s.cache.Keys(ctx, scheduleStateKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	states := make([]scheduler.ScheduleState, 0, len(keys))
	for _, key := range keys {
		var state scheduler.ScheduleState
		if err := s.cache.GetJSON(ctx, key, &state); err != nil {
			if err == cache.ErrCacheMiss {
				continue
			}
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
