package executor

import (
	"errors"
	"time"

	"github.com/grigta/outreach/pkg/proxypool"
	"github.com/grigta/outreach/pkg/scheduler"
)

// ExecutionStatus is the overall status of a batch task.
type ExecutionStatus string

const (
	StatusPending     ExecutionStatus = "pending"
	StatusRunning     ExecutionStatus = "running"
	StatusCompleted   ExecutionStatus = "completed"
	StatusFailed      ExecutionStatus = "failed"
	StatusRateLimited ExecutionStatus = "rate_limited"
	StatusBlocked     ExecutionStatus = "account_blocked"
)

// ActionResult is the outcome of one action.
type ActionResult string

const (
	ResultSuccess          ActionResult = "success"
	ResultFailed           ActionResult = "failed"
	ResultSkipped          ActionResult = "skipped"
	ResultRateLimited      ActionResult = "rate_limited"
	ResultTargetNotFound   ActionResult = "target_not_found"
	ResultAlreadyFollowing ActionResult = "already_following"
	ResultPrivateAccount   ActionResult = "private_account"
)

var (
	ErrNoSession      = errors.New("no active session for account")
	ErrSessionExists  = errors.New("session already active for account")
	ErrTargetNotFound = errors.New("target not found")
	ErrAlreadyFollows = errors.New("already following target")
	ErrPrivateAccount = errors.New("target account is private")
)

// ExecutionContext is the per-account session state used by the driver.
type ExecutionContext struct {
	AccountID        string                 `json:"account_id"`
	ProfileID        string                 `json:"profile_id"` // anti-detect browser profile
	Platform         scheduler.Platform     `json:"platform"`
	Proxy            *proxypool.ProxyConfig `json:"proxy,omitempty"`
	WSEndpoint       string                 `json:"ws_endpoint,omitempty"`
	SessionStartedAt time.Time              `json:"session_started_at"`
}

// ActionLog records one executed action.
type ActionLog struct {
	ID           string               `json:"id" bson:"_id"`
	AccountID    string               `json:"account_id" bson:"account_id"`
	Platform     scheduler.Platform   `json:"platform" bson:"platform"`
	ActionType   scheduler.ActionType `json:"action_type" bson:"action_type"`
	TargetID     string               `json:"target_id" bson:"target_id"`
	Result       ActionResult         `json:"result" bson:"result"`
	ExecutedAt   time.Time            `json:"executed_at" bson:"executed_at"`
	DurationMS   int64                `json:"duration_ms" bson:"duration_ms"`
	ErrorMessage string               `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// DMTarget pairs a recipient with the message to send.
type DMTarget struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// BatchResult aggregates the outcome of a batch task.
type BatchResult struct {
	TaskID       string          `json:"task_id"`
	TotalActions int             `json:"total_actions"`
	Successful   int             `json:"successful"`
	Failed       int             `json:"failed"`
	Skipped      int             `json:"skipped"`
	RateLimited  int             `json:"rate_limited"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at,omitempty"`
	ActionLogs   []*ActionLog    `json:"action_logs,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// SuccessRate is successful actions over total. Empty batches report zero.
func (r *BatchResult) SuccessRate() float64 {
	if r.TotalActions == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.TotalActions)
}
