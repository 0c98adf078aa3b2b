package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grigta/outreach/pkg/followback"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
	"github.com/grigta/outreach/pkg/proxypool"
	"github.com/grigta/outreach/pkg/scheduler"
)

// Default delay ranges between actions in a batch.
var (
	DefaultFollowDelayRange = [2]time.Duration{60 * time.Second, 180 * time.Second}
	DefaultDMDelayRange     = [2]time.Duration{120 * time.Second, 300 * time.Second}
)

// Executor runs outreach actions through a browser driver, gated by the
// rate limiter and wrapped in humanization pauses.
type Executor struct {
	mu       sync.RWMutex
	sessions map[string]*ExecutionContext

	driver    Driver
	limiter   *scheduler.RateLimiter
	proxies   *proxypool.Pool
	detector  *followback.Detector
	humanizer *Humanizer

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	log    logger.Logger
	events messaging.Publisher
}

type Option func(*Executor)

func WithRateLimiter(l *scheduler.RateLimiter) Option {
	return func(e *Executor) { e.limiter = l }
}

func WithProxyPool(p *proxypool.Pool) Option {
	return func(e *Executor) { e.proxies = p }
}

func WithDetector(d *followback.Detector) Option {
	return func(e *Executor) { e.detector = d }
}

func WithHumanizer(h *Humanizer) Option {
	return func(e *Executor) { e.humanizer = h }
}

// WithSleep replaces the delay function. Tests use it to run instantly.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithClock replaces the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(driver Driver, log logger.Logger, events messaging.Publisher, opts ...Option) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	e := &Executor{
		sessions:  make(map[string]*ExecutionContext),
		driver:    driver,
		humanizer: NewHumanizer(),
		sleep:     sleepCtx,
		now:       time.Now,
		log:       log,
		events:    events,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartSession opens a browser session for the account. Calling it again
// for an account with a live session returns the existing context.
func (e *Executor) StartSession(ctx context.Context, accountID, profileID string, platform scheduler.Platform) (*ExecutionContext, error) {
	e.mu.Lock()
	if existing, ok := e.sessions[accountID]; ok {
		e.mu.Unlock()
		cp := *existing
		return &cp, nil
	}
	e.mu.Unlock()

	execCtx := &ExecutionContext{
		AccountID:        accountID,
		ProfileID:        profileID,
		Platform:         platform,
		SessionStartedAt: e.now(),
	}

	if e.proxies != nil {
		proxy, err := e.proxies.Assign(accountID, proxypool.Filter{})
		if err != nil {
			return nil, fmt.Errorf("failed to assign proxy for %s: %w", accountID, err)
		}
		execCtx.Proxy = proxy
	}

	if err := e.driver.Open(ctx, execCtx); err != nil {
		return nil, fmt.Errorf("failed to open browser session for %s: %w", accountID, err)
	}

	// Re-check under the lock: a concurrent call may have opened a session
	// for this account while the driver was busy. The winner keeps its
	// session, the loser closes the browser it just opened.
	e.mu.Lock()
	if existing, ok := e.sessions[accountID]; ok {
		e.mu.Unlock()
		if err := e.driver.Close(ctx, execCtx); err != nil {
			e.log.Warn("Failed to close duplicate browser session",
				logger.Field{Key: "account_id", Value: accountID},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
		cp := *existing
		return &cp, nil
	}
	e.sessions[accountID] = execCtx
	e.mu.Unlock()

	setActiveSessions(len(e.Sessions()))
	e.log.Info("Automation session started",
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "profile_id", Value: profileID},
		logger.Field{Key: "platform", Value: string(platform)},
	)
	cp := *execCtx
	return &cp, nil
}

// StopSession closes the account's browser session.
func (e *Executor) StopSession(ctx context.Context, accountID string) error {
	e.mu.Lock()
	execCtx, ok := e.sessions[accountID]
	if ok {
		delete(e.sessions, accountID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, accountID)
	}

	if err := e.driver.Close(ctx, execCtx); err != nil {
		e.log.Warn("Failed to close browser session",
			logger.Field{Key: "account_id", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	setActiveSessions(len(e.Sessions()))
	e.log.Info("Automation session stopped", logger.Field{Key: "account_id", Value: accountID})
	return nil
}

// Session returns the account's active session context.
func (e *Executor) Session(accountID string) (*ExecutionContext, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	execCtx, ok := e.sessions[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, accountID)
	}
	cp := *execCtx
	return &cp, nil
}

// Sessions lists account IDs with live sessions.
func (e *Executor) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

// ExecuteFollow follows the target, viewing their profile first most of
// the time the way a person would.
func (e *Executor) ExecuteFollow(ctx context.Context, accountID, target string) (*ActionLog, error) {
	execCtx, err := e.Session(accountID)
	if err != nil {
		return nil, err
	}

	log := e.newLog(execCtx, scheduler.ActionFollow, target)
	if denied := e.checkLimit(execCtx, scheduler.ActionFollow, log); denied {
		return log, nil
	}

	if e.humanizer.ShouldViewProfile() {
		if err := e.driver.ViewProfile(ctx, execCtx, target); err == nil {
			if err := e.sleep(ctx, e.humanizer.ReadingDelay(len(target)*10)); err != nil {
				log.Result = ResultSkipped
				return log, err
			}
		}
	}
	if err := e.sleep(ctx, e.humanizer.ActionDelay()); err != nil {
		log.Result = ResultSkipped
		return log, err
	}

	start := e.now()
	actionErr := e.driver.Follow(ctx, execCtx, target)
	e.finishLog(log, start, actionErr)

	switch log.Result {
	case ResultSuccess:
		e.recordAction(execCtx, scheduler.ActionFollow, true)
		if e.detector != nil {
			e.detector.RegisterFollow(accountID, target, false)
		}
	case ResultPrivateAccount:
		// The follow request was still sent, so it consumes budget.
		e.recordAction(execCtx, scheduler.ActionFollow, true)
		if e.detector != nil {
			e.detector.RegisterFollow(accountID, target, true)
		}
	default:
		e.recordAction(execCtx, scheduler.ActionFollow, false)
	}

	e.publishActionEvent(log)
	return log, nil
}

// ExecuteUnfollow removes a follow, typically after the follow-back
// window expired.
func (e *Executor) ExecuteUnfollow(ctx context.Context, accountID, target string) (*ActionLog, error) {
	execCtx, err := e.Session(accountID)
	if err != nil {
		return nil, err
	}

	log := e.newLog(execCtx, scheduler.ActionUnfollow, target)
	if denied := e.checkLimit(execCtx, scheduler.ActionUnfollow, log); denied {
		return log, nil
	}

	if err := e.sleep(ctx, e.humanizer.ActionDelay()); err != nil {
		log.Result = ResultSkipped
		return log, err
	}

	start := e.now()
	actionErr := e.driver.Unfollow(ctx, execCtx, target)
	e.finishLog(log, start, actionErr)
	e.recordAction(execCtx, scheduler.ActionUnfollow, log.Result == ResultSuccess)
	e.publishActionEvent(log)
	return log, nil
}

// ExecuteDM sends a direct message with a typing-speed delay.
func (e *Executor) ExecuteDM(ctx context.Context, accountID, target, message string) (*ActionLog, error) {
	execCtx, err := e.Session(accountID)
	if err != nil {
		return nil, err
	}

	log := e.newLog(execCtx, scheduler.ActionDM, target)
	if denied := e.checkLimit(execCtx, scheduler.ActionDM, log); denied {
		return log, nil
	}

	if err := e.sleep(ctx, e.humanizer.TypingDelay(message)); err != nil {
		log.Result = ResultSkipped
		return log, err
	}

	start := e.now()
	actionErr := e.driver.SendDM(ctx, execCtx, target, message)
	e.finishLog(log, start, actionErr)
	if log.Result == ResultSuccess {
		log.Metadata = map[string]string{"message_length": fmt.Sprintf("%d", len(message))}
		if e.detector != nil {
			if err := e.detector.MarkDMSent(accountID, target); err != nil && !errors.Is(err, followback.ErrRelationshipNotFound) {
				e.log.Warn("Failed to mark DM sent", logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}
	e.recordAction(execCtx, scheduler.ActionDM, log.Result == ResultSuccess)
	e.publishActionEvent(log)
	return log, nil
}

// ExecuteLike likes a post.
func (e *Executor) ExecuteLike(ctx context.Context, accountID, postID string) (*ActionLog, error) {
	execCtx, err := e.Session(accountID)
	if err != nil {
		return nil, err
	}

	log := e.newLog(execCtx, scheduler.ActionLike, postID)
	if denied := e.checkLimit(execCtx, scheduler.ActionLike, log); denied {
		return log, nil
	}

	if err := e.sleep(ctx, e.humanizer.ActionDelay()); err != nil {
		log.Result = ResultSkipped
		return log, err
	}

	start := e.now()
	actionErr := e.driver.Like(ctx, execCtx, postID)
	e.finishLog(log, start, actionErr)
	e.recordAction(execCtx, scheduler.ActionLike, log.Result == ResultSuccess)
	e.publishActionEvent(log)
	return log, nil
}

// BatchFollow follows a list of targets with long randomized gaps. The
// batch stops at the first rate-limited action.
func (e *Executor) BatchFollow(ctx context.Context, taskID, accountID string, targets []string, delayRange [2]time.Duration) (*BatchResult, error) {
	if delayRange == [2]time.Duration{} {
		delayRange = DefaultFollowDelayRange
	}
	return e.runBatch(ctx, taskID, accountID, len(targets), delayRange, func(ctx context.Context, i int) (*ActionLog, error) {
		return e.ExecuteFollow(ctx, accountID, targets[i])
	})
}

// BatchDM sends a list of DMs with long randomized gaps.
func (e *Executor) BatchDM(ctx context.Context, taskID, accountID string, targets []DMTarget, delayRange [2]time.Duration) (*BatchResult, error) {
	if delayRange == [2]time.Duration{} {
		delayRange = DefaultDMDelayRange
	}
	return e.runBatch(ctx, taskID, accountID, len(targets), delayRange, func(ctx context.Context, i int) (*ActionLog, error) {
		return e.ExecuteDM(ctx, accountID, targets[i].Username, targets[i].Message)
	})
}

func (e *Executor) runBatch(ctx context.Context, taskID, accountID string, total int, delayRange [2]time.Duration, run func(ctx context.Context, i int) (*ActionLog, error)) (*BatchResult, error) {
	result := &BatchResult{
		TaskID:       taskID,
		TotalActions: total,
		Status:       StatusRunning,
		StartedAt:    e.now(),
	}

	if _, err := e.Session(accountID); err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
		return result, err
	}

	for i := 0; i < total; i++ {
		log, err := run(ctx, i)
		if err != nil && log == nil {
			result.Status = StatusFailed
			result.ErrorMessage = err.Error()
			return result, err
		}
		result.ActionLogs = append(result.ActionLogs, log)

		switch log.Result {
		case ResultSuccess:
			result.Successful++
		case ResultRateLimited:
			result.RateLimited++
			result.Status = StatusRateLimited
		case ResultSkipped:
			result.Skipped++
		default:
			result.Failed++
		}

		if result.Status == StatusRateLimited || err != nil {
			break
		}

		if i < total-1 {
			if err := e.sleep(ctx, e.humanizer.BatchDelay(delayRange[0], delayRange[1])); err != nil {
				result.Status = StatusFailed
				result.ErrorMessage = err.Error()
				break
			}
		}
	}

	result.CompletedAt = e.now()
	if result.Status == StatusRunning {
		result.Status = StatusCompleted
	}

	e.log.Info("Batch completed",
		logger.Field{Key: "task_id", Value: taskID},
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "successful", Value: result.Successful},
		logger.Field{Key: "total", Value: result.TotalActions},
		logger.Field{Key: "status", Value: string(result.Status)},
	)
	return result, nil
}

func (e *Executor) newLog(execCtx *ExecutionContext, action scheduler.ActionType, target string) *ActionLog {
	return &ActionLog{
		ID:         uuid.New().String(),
		AccountID:  execCtx.AccountID,
		Platform:   execCtx.Platform,
		ActionType: action,
		TargetID:   target,
		ExecutedAt: e.now(),
	}
}

// checkLimit short-circuits the action when the limiter denies it. The
// denial reason lands in the log's error message.
func (e *Executor) checkLimit(execCtx *ExecutionContext, action scheduler.ActionType, log *ActionLog) bool {
	if e.limiter == nil {
		return false
	}
	decision := e.limiter.CanExecute(execCtx.AccountID, action)
	if decision.Allowed {
		return false
	}
	log.Result = ResultRateLimited
	log.ErrorMessage = decision.Reason
	recordActionMetric(execCtx.Platform, action, ResultRateLimited)

	if err := e.events.Publish(messaging.EventsExchange, messaging.EventActionRateLimited, messaging.NewMessage(messaging.EventActionRateLimited, map[string]interface{}{
		"account_id":  execCtx.AccountID,
		"action_type": string(action),
		"reason":      decision.Reason,
	})); err != nil {
		e.log.Error("Failed to publish rate limit event", logger.Field{Key: "error", Value: err.Error()})
	}
	return true
}

func (e *Executor) finishLog(log *ActionLog, start time.Time, actionErr error) {
	log.DurationMS = e.now().Sub(start).Milliseconds()

	switch {
	case actionErr == nil:
		log.Result = ResultSuccess
	case errors.Is(actionErr, ErrTargetNotFound):
		log.Result = ResultTargetNotFound
		log.ErrorMessage = actionErr.Error()
	case errors.Is(actionErr, ErrAlreadyFollows):
		log.Result = ResultAlreadyFollowing
		log.ErrorMessage = actionErr.Error()
	case errors.Is(actionErr, ErrPrivateAccount):
		log.Result = ResultPrivateAccount
		log.ErrorMessage = actionErr.Error()
	default:
		log.Result = ResultFailed
		log.ErrorMessage = actionErr.Error()
	}
}

func (e *Executor) recordAction(execCtx *ExecutionContext, action scheduler.ActionType, success bool) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Record(execCtx.AccountID, action, success); err != nil {
		e.log.Warn("Failed to record action",
			logger.Field{Key: "account_id", Value: execCtx.AccountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (e *Executor) publishActionEvent(log *ActionLog) {
	recordActionMetric(log.Platform, log.ActionType, log.Result)
	observeActionDuration(log.ActionType, log.DurationMS)

	eventType := messaging.EventActionExecuted
	if log.Result == ResultFailed {
		eventType = messaging.EventActionFailed
	}
	if err := e.events.Publish(messaging.EventsExchange, eventType, messaging.NewMessage(eventType, map[string]interface{}{
		"account_id":  log.AccountID,
		"action_type": string(log.ActionType),
		"target_id":   log.TargetID,
		"result":      string(log.Result),
		"duration_ms": log.DurationMS,
	})); err != nil {
		e.log.Error("Failed to publish action event", logger.Field{Key: "error", Value: err.Error()})
	}
}
