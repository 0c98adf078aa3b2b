package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
)

var ErrAccountNotRegistered = errors.New("account not registered")

const (
	newAccountMaxAge     = 7 * 24 * time.Hour
	warmingAccountMaxAge = 30 * 24 * time.Hour

	defaultWorkHourStart = 8
	defaultWorkHourEnd   = 22
)

type accountState struct {
	mu    sync.Mutex
	state ScheduleState
}

// RateLimiter enforces per-account action budgets: hourly and daily caps
// scaled by account age, minimum spacing between same-type actions, and
// cooling periods. Counters reset lazily at wall-clock hour and day
// boundaries; there are no background timers.
type RateLimiter struct {
	mu       sync.RWMutex
	accounts map[string]*accountState

	limits        map[Platform]map[ActionType]RateLimitConfig
	workHourStart int
	workHourEnd   int

	now    func() time.Time
	rngMu  sync.Mutex
	rng    *rand.Rand
	log    logger.Logger
	events messaging.Publisher
}

type Option func(*RateLimiter)

// WithClock replaces the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *RateLimiter) { r.now = now }
}

func WithSeed(seed int64) Option {
	return func(r *RateLimiter) { r.rng = rand.New(rand.NewSource(seed)) }
}

// WithLimits overrides the stock per-platform budgets.
func WithLimits(limits map[Platform]map[ActionType]RateLimitConfig) Option {
	return func(r *RateLimiter) { r.limits = limits }
}

func WithWorkHours(start, end int) Option {
	return func(r *RateLimiter) {
		r.workHourStart = start
		r.workHourEnd = end
	}
}

func NewRateLimiter(log logger.Logger, events messaging.Publisher, opts ...Option) *RateLimiter {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	r := &RateLimiter{
		accounts:      make(map[string]*accountState),
		limits:        DefaultLimits(),
		workHourStart: defaultWorkHourStart,
		workHourEnd:   defaultWorkHourEnd,
		now:           time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		log:           log,
		events:        events,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterAccount makes the account known to the limiter. Registering an
// already known account refreshes its creation time and timezone but keeps
// counters.
func (r *RateLimiter) RegisterAccount(accountID string, platform Platform, createdAt time.Time, timezone string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.accounts[accountID]; ok {
		existing.mu.Lock()
		existing.state.CreatedAt = createdAt
		existing.state.Timezone = timezone
		existing.mu.Unlock()
		return
	}

	now := r.now()
	r.accounts[accountID] = &accountState{
		state: ScheduleState{
			AccountID:     accountID,
			Platform:      platform,
			CreatedAt:     createdAt,
			Timezone:      timezone,
			HourlyCounts:  make(map[ActionType]int),
			DailyCounts:   make(map[ActionType]int),
			HourlyResetAt: now.Truncate(time.Hour),
			DailyResetAt:  truncateToDay(now),
			LastActionAt:  make(map[ActionType]time.Time),
		},
	}

	r.log.Debug("Account registered",
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "platform", Value: string(platform)},
	)
}

// RestoreState reinstates a persisted snapshot, e.g. after a restart.
func (r *RateLimiter) RestoreState(state ScheduleState) {
	if state.HourlyCounts == nil {
		state.HourlyCounts = make(map[ActionType]int)
	}
	if state.DailyCounts == nil {
		state.DailyCounts = make(map[ActionType]int)
	}
	if state.LastActionAt == nil {
		state.LastActionAt = make(map[ActionType]time.Time)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[state.AccountID] = &accountState{state: state}
}

// Snapshot returns a copy of every account's state for persistence.
func (r *RateLimiter) Snapshot() []ScheduleState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ScheduleState, 0, len(r.accounts))
	for _, acc := range r.accounts {
		acc.mu.Lock()
		out = append(out, copyState(acc.state))
		acc.mu.Unlock()
	}
	return out
}

func (r *RateLimiter) account(accountID string) (*accountState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[accountID]
	return acc, ok
}

// AgeCategory classifies the account by its age right now.
func (r *RateLimiter) AgeCategory(accountID string) (AgeCategory, error) {
	acc, ok := r.account(accountID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return ageCategoryAt(acc.state.CreatedAt, r.now()), nil
}

func ageCategoryAt(createdAt, now time.Time) AgeCategory {
	age := now.Sub(createdAt)
	switch {
	case age < newAccountMaxAge:
		return AgeNew
	case age < warmingAccountMaxAge:
		return AgeWarming
	default:
		return AgeMature
	}
}

// CanExecute checks whether the account may perform the action now. The
// account's counters are lazily reset first, and an expired cooling period
// is cleared as a side effect.
func (r *RateLimiter) CanExecute(accountID string, action ActionType) Decision {
	acc, ok := r.account(accountID)
	if !ok {
		recordDecision("", string(action), "not_registered")
		return Decision{Allowed: false, Reason: "Account not registered"}
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	now := r.now()
	state := &acc.state
	r.resetCountersLocked(state, now)

	if !state.CoolingUntil.IsZero() {
		if now.Before(state.CoolingUntil) {
			recordDecision(string(state.Platform), string(action), "cooling")
			return Decision{Allowed: false, Reason: fmt.Sprintf("Account cooling until %s", state.CoolingUntil.UTC().Format(time.RFC3339))}
		}
		state.CoolingUntil = time.Time{}
	}

	limits, ok := r.limits[state.Platform][action]
	if !ok {
		// No budget defined for the action means no restriction.
		recordDecision(string(state.Platform), string(action), "allowed")
		return Decision{Allowed: true}
	}

	age := ageCategoryAt(state.CreatedAt, now)

	if hourlyLimit := limits.ScaledHourly(age); state.HourlyCounts[action] >= hourlyLimit {
		recordDecision(string(state.Platform), string(action), "hourly_limit")
		return Decision{Allowed: false, Reason: fmt.Sprintf("Hourly limit reached (%d/%d)", state.HourlyCounts[action], hourlyLimit)}
	}

	if dailyLimit := limits.ScaledDaily(age); state.DailyCounts[action] >= dailyLimit {
		recordDecision(string(state.Platform), string(action), "daily_limit")
		return Decision{Allowed: false, Reason: fmt.Sprintf("Daily limit reached (%d/%d)", state.DailyCounts[action], dailyLimit)}
	}

	if last, ok := state.LastActionAt[action]; ok {
		if elapsed := now.Sub(last); elapsed < limits.MinInterval {
			recordDecision(string(state.Platform), string(action), "min_interval")
			return Decision{Allowed: false, Reason: fmt.Sprintf("Min interval not met (need %s, elapsed %s)",
				limits.MinInterval.Round(time.Second), elapsed.Round(time.Second))}
		}
	}

	recordDecision(string(state.Platform), string(action), "allowed")
	return Decision{Allowed: true}
}

// Record notes an executed action. Successful actions consume budget;
// failed attempts only update the last-action timestamp so retries still
// space out.
func (r *RateLimiter) Record(accountID string, action ActionType, success bool) error {
	acc, ok := r.account(accountID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	now := r.now()
	state := &acc.state
	r.resetCountersLocked(state, now)

	state.LastActionAt[action] = now
	if success {
		state.HourlyCounts[action]++
		state.DailyCounts[action]++
	}
	return nil
}

// SetCooling pauses all actions for the account until the period elapses.
func (r *RateLimiter) SetCooling(accountID string, d time.Duration, reason string) error {
	acc, ok := r.account(accountID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	until := r.now().Add(d)

	acc.mu.Lock()
	acc.state.CoolingUntil = until
	platform := acc.state.Platform
	acc.mu.Unlock()

	recordCooling(string(platform))
	r.log.Warn("Account cooling period set",
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "until", Value: until.UTC().Format(time.RFC3339)},
		logger.Field{Key: "reason", Value: reason},
	)

	if err := r.events.Publish(messaging.EventsExchange, messaging.EventAccountCooling, messaging.NewMessage(messaging.EventAccountCooling, map[string]interface{}{
		"account_id": accountID,
		"until":      until.UTC(),
		"reason":     reason,
	})); err != nil {
		r.log.Error("Failed to publish cooling event", logger.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// ClearCooling lifts a cooling period early.
func (r *RateLimiter) ClearCooling(accountID string) error {
	acc, ok := r.account(accountID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	acc.state.CoolingUntil = time.Time{}
	acc.mu.Unlock()
	return nil
}

// RecommendedDelay returns a randomized pause before the next action of
// this type, drawn from the configured interval range.
func (r *RateLimiter) RecommendedDelay(accountID string, action ActionType) (time.Duration, error) {
	acc, ok := r.account(accountID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	platform := acc.state.Platform
	acc.mu.Unlock()

	limits, ok := r.limits[platform][action]
	if !ok {
		return 0, nil
	}

	spread := limits.MaxInterval - limits.MinInterval
	if spread <= 0 {
		return limits.MinInterval, nil
	}

	r.rngMu.Lock()
	jitter := time.Duration(r.rng.Int63n(int64(spread)))
	r.rngMu.Unlock()
	return limits.MinInterval + jitter, nil
}

// NextAvailableTime is the earliest instant the action could be allowed,
// assuming no further consumption in the meantime.
func (r *RateLimiter) NextAvailableTime(accountID string, action ActionType) (time.Time, error) {
	acc, ok := r.account(accountID)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	now := r.now()
	state := &acc.state
	r.resetCountersLocked(state, now)

	earliest := now
	if state.CoolingUntil.After(earliest) {
		earliest = state.CoolingUntil
	}

	limits, ok := r.limits[state.Platform][action]
	if !ok {
		return earliest, nil
	}

	if last, ok := state.LastActionAt[action]; ok {
		if next := last.Add(limits.MinInterval); next.After(earliest) {
			earliest = next
		}
	}

	age := ageCategoryAt(state.CreatedAt, now)
	if state.HourlyCounts[action] >= limits.ScaledHourly(age) {
		if next := state.HourlyResetAt.Add(time.Hour); next.After(earliest) {
			earliest = next
		}
	}
	if state.DailyCounts[action] >= limits.ScaledDaily(age) {
		if next := state.DailyResetAt.Add(24 * time.Hour); next.After(earliest) {
			earliest = next
		}
	}
	return earliest, nil
}

// Stats reports current consumption against the account's scaled limits.
func (r *RateLimiter) Stats(accountID string) (*AccountStats, error) {
	acc, ok := r.account(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotRegistered, accountID)
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	now := r.now()
	state := &acc.state
	r.resetCountersLocked(state, now)

	age := ageCategoryAt(state.CreatedAt, now)
	stats := &AccountStats{
		AccountID:    accountID,
		Platform:     state.Platform,
		AgeCategory:  age,
		CoolingUntil: state.CoolingUntil,
		HourlyUsed:   make(map[ActionType]int),
		DailyUsed:    make(map[ActionType]int),
		HourlyLimit:  make(map[ActionType]int),
		DailyLimit:   make(map[ActionType]int),
		LastActionAt: make(map[ActionType]time.Time),
	}

	for action, limits := range r.limits[state.Platform] {
		stats.HourlyUsed[action] = state.HourlyCounts[action]
		stats.DailyUsed[action] = state.DailyCounts[action]
		stats.HourlyLimit[action] = limits.ScaledHourly(age)
		stats.DailyLimit[action] = limits.ScaledDaily(age)
		if last, ok := state.LastActionAt[action]; ok {
			stats.LastActionAt[action] = last
		}
	}
	return stats, nil
}

// WithinWorkHours reports whether the local time for the given timezone
// falls inside the configured activity window.
func (r *RateLimiter) WithinWorkHours(t time.Time, timezone string) bool {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			t = t.In(loc)
		}
	}
	return t.Hour() >= r.workHourStart && t.Hour() < r.workHourEnd
}

// resetCountersLocked clears counters whose wall-clock window has rolled
// over. Caller holds the account lock.
func (r *RateLimiter) resetCountersLocked(state *ScheduleState, now time.Time) {
	if hour := now.Truncate(time.Hour); hour.After(state.HourlyResetAt) {
		state.HourlyCounts = make(map[ActionType]int)
		state.HourlyResetAt = hour
	}
	if day := truncateToDay(now); day.After(state.DailyResetAt) {
		state.DailyCounts = make(map[ActionType]int)
		state.DailyResetAt = day
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func copyState(s ScheduleState) ScheduleState {
	out := s
	out.HourlyCounts = make(map[ActionType]int, len(s.HourlyCounts))
	for k, v := range s.HourlyCounts {
		out.HourlyCounts[k] = v
	}
	out.DailyCounts = make(map[ActionType]int, len(s.DailyCounts))
	for k, v := range s.DailyCounts {
		out.DailyCounts[k] = v
	}
	out.LastActionAt = make(map[ActionType]time.Time, len(s.LastActionAt))
	for k, v := range s.LastActionAt {
		out.LastActionAt[k] = v
	}
	return out
}
