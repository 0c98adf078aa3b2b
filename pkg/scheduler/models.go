package scheduler

import (
	"time"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformX         Platform = "x"
)

type ActionType string

const (
	ActionFollow   ActionType = "follow"
	ActionUnfollow ActionType = "unfollow"
	ActionDM       ActionType = "dm"
	ActionLike     ActionType = "like"
)

// AgeCategory buckets accounts by how long they have existed. Younger
// accounts get scaled-down limits.
type AgeCategory string

const (
	AgeNew     AgeCategory = "new"     // under 7 days
	AgeWarming AgeCategory = "warming" // under 30 days
	AgeMature  AgeCategory = "mature"
)

func (c AgeCategory) Multiplier() float64 {
	switch c {
	case AgeNew:
		return 0.3
	case AgeWarming:
		return 0.6
	default:
		return 1.0
	}
}

// RateLimitConfig is the per-action budget for a mature account.
type RateLimitConfig struct {
	HourlyLimit int           `json:"hourly_limit"`
	DailyLimit  int           `json:"daily_limit"`
	MinInterval time.Duration `json:"min_interval"`
	MaxInterval time.Duration `json:"max_interval"`
}

// ScaledHourly applies the age multiplier, never dropping below 1.
func (c RateLimitConfig) ScaledHourly(age AgeCategory) int {
	return scaleLimit(c.HourlyLimit, age.Multiplier())
}

func (c RateLimitConfig) ScaledDaily(age AgeCategory) int {
	return scaleLimit(c.DailyLimit, age.Multiplier())
}

func scaleLimit(limit int, multiplier float64) int {
	scaled := int(float64(limit) * multiplier)
	if scaled < 1 {
		return 1
	}
	return scaled
}

// DefaultLimits returns the stock per-platform budgets. Values are
// conservative relative to what the platforms tolerate.
func DefaultLimits() map[Platform]map[ActionType]RateLimitConfig {
	return map[Platform]map[ActionType]RateLimitConfig{
		PlatformInstagram: {
			ActionFollow:   {HourlyLimit: 20, DailyLimit: 100, MinInterval: 60 * time.Second, MaxInterval: 300 * time.Second},
			ActionUnfollow: {HourlyLimit: 30, DailyLimit: 150, MinInterval: 30 * time.Second, MaxInterval: 120 * time.Second},
			ActionDM:       {HourlyLimit: 10, DailyLimit: 50, MinInterval: 120 * time.Second, MaxInterval: 600 * time.Second},
			ActionLike:     {HourlyLimit: 50, DailyLimit: 300, MinInterval: 10 * time.Second, MaxInterval: 60 * time.Second},
		},
		PlatformX: {
			ActionFollow: {HourlyLimit: 30, DailyLimit: 200, MinInterval: 30 * time.Second, MaxInterval: 180 * time.Second},
			ActionDM:     {HourlyLimit: 20, DailyLimit: 100, MinInterval: 60 * time.Second, MaxInterval: 300 * time.Second},
			ActionLike:   {HourlyLimit: 100, DailyLimit: 500, MinInterval: 5 * time.Second, MaxInterval: 30 * time.Second},
		},
	}
}

// Decision is the outcome of a rate-limit check. Reason is set only when
// the action is denied.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// AccountStats is a point-in-time view of an account's consumption.
type AccountStats struct {
	AccountID    string                   `json:"account_id"`
	Platform     Platform                 `json:"platform"`
	AgeCategory  AgeCategory              `json:"age_category"`
	CoolingUntil time.Time                `json:"cooling_until,omitempty"`
	HourlyUsed   map[ActionType]int       `json:"hourly_used"`
	DailyUsed    map[ActionType]int       `json:"daily_used"`
	HourlyLimit  map[ActionType]int       `json:"hourly_limit"`
	DailyLimit   map[ActionType]int       `json:"daily_limit"`
	LastActionAt map[ActionType]time.Time `json:"last_action_at,omitempty"`
}

// ScheduleState is the persistable snapshot of one account's counters.
type ScheduleState struct {
	AccountID     string                   `json:"account_id" bson:"account_id"`
	Platform      Platform                 `json:"platform" bson:"platform"`
	CreatedAt     time.Time                `json:"created_at" bson:"created_at"`
	Timezone      string                   `json:"timezone,omitempty" bson:"timezone,omitempty"`
	HourlyCounts  map[ActionType]int       `json:"hourly_counts" bson:"hourly_counts"`
	DailyCounts   map[ActionType]int       `json:"daily_counts" bson:"daily_counts"`
	HourlyResetAt time.Time                `json:"hourly_reset_at" bson:"hourly_reset_at"`
	DailyResetAt  time.Time                `json:"daily_reset_at" bson:"daily_reset_at"`
	LastActionAt  map[ActionType]time.Time `json:"last_action_at" bson:"last_action_at"`
	CoolingUntil  time.Time                `json:"cooling_until,omitempty" bson:"cooling_until,omitempty"`
}
