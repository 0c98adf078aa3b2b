package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusExecuting ActionStatus = "executing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
	StatusCancelled ActionStatus = "cancelled"
)

var ErrActionNotFound = errors.New("scheduled action not found")

// ScheduledAction is one queued unit of platform work.
type ScheduledAction struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"account_id"`
	Platform    Platform          `json:"platform"`
	Type        ActionType        `json:"type"`
	TargetID    string            `json:"target_id,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	Priority    int               `json:"priority"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Status      ActionStatus      `json:"status"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	CreatedAt   time.Time         `json:"created_at"`
	// Companion marks filler actions inserted for realism, such as a
	// feed scroll before a follow.
	Companion bool `json:"companion,omitempty"`
}

// Companion action types. They carry no payload and exist purely to break
// up mechanical action patterns.
const (
	ActionScrollFeed  ActionType = "scroll_feed"
	ActionViewProfile ActionType = "view_profile"
)

const (
	defaultMaxRetries = 3
	retryBackoff      = 5 * time.Minute

	companionViewChance = 0.7

	preScrollMinLead = 5 * time.Second
	preScrollMaxLead = 15 * time.Second
	preViewMinLead   = 2 * time.Second
	preViewMaxLead   = 8 * time.Second
)

// Queue is a priority-ordered action queue. Higher priority first, earlier
// schedule time breaking ties.
type Queue struct {
	mu      sync.Mutex
	actions []*ScheduledAction
	now     func() time.Time
	rng     *rand.Rand
}

func NewQueue() *Queue {
	return &Queue{
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewQueueSeeded fixes the clock and random source. Used in tests.
func NewQueueSeeded(now func() time.Time, seed int64) *Queue {
	return &Queue{
		now: now,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Schedule enqueues the action, assigning an ID and pending status.
func (q *Queue) Schedule(action *ScheduledAction) (*ScheduledAction, error) {
	if action.AccountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	if action.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.prepareLocked(action)
	q.actions = append(q.actions, action)
	q.sortLocked()
	setQueueDepth(len(q.actions))
	return action, nil
}

// ScheduleHumanized enqueues the action together with companion filler:
// every primary action gets a feed scroll shortly before it, and follows
// and DMs usually get a profile view as well. Returns all enqueued actions,
// primary last.
func (q *Queue) ScheduleHumanized(action *ScheduledAction) ([]*ScheduledAction, error) {
	if action.AccountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	if action.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.prepareLocked(action)

	batch := []*ScheduledAction{}

	scroll := &ScheduledAction{
		AccountID:   action.AccountID,
		Platform:    action.Platform,
		Type:        ActionScrollFeed,
		Priority:    action.Priority,
		ScheduledAt: action.ScheduledAt.Add(-q.randLeadLocked(preScrollMinLead, preScrollMaxLead)),
		Companion:   true,
	}
	q.prepareLocked(scroll)
	batch = append(batch, scroll)

	if (action.Type == ActionFollow || action.Type == ActionDM) && q.rng.Float64() < companionViewChance {
		view := &ScheduledAction{
			AccountID:   action.AccountID,
			Platform:    action.Platform,
			Type:        ActionViewProfile,
			TargetID:    action.TargetID,
			Priority:    action.Priority,
			ScheduledAt: action.ScheduledAt.Add(-q.randLeadLocked(preViewMinLead, preViewMaxLead)),
			Companion:   true,
		}
		q.prepareLocked(view)
		batch = append(batch, view)
	}

	batch = append(batch, action)
	q.actions = append(q.actions, batch...)
	q.sortLocked()
	setQueueDepth(len(q.actions))
	return batch, nil
}

// Due returns up to limit pending actions whose time has come, in priority
// order, marking each as executing. limit <= 0 means no cap.
func (q *Queue) Due(limit int) []*ScheduledAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []*ScheduledAction
	for _, a := range q.actions {
		if limit > 0 && len(due) >= limit {
			break
		}
		if a.Status == StatusPending && !a.ScheduledAt.After(now) {
			a.Status = StatusExecuting
			due = append(due, a)
		}
	}
	return due
}

// Complete marks an executing action as finished. Failed actions are
// requeued with a backoff until MaxRetries is exhausted.
func (q *Queue) Complete(id string, success bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, a := range q.actions {
		if a.ID != id {
			continue
		}
		if success {
			a.Status = StatusCompleted
		} else if a.RetryCount < a.MaxRetries {
			a.RetryCount++
			a.Status = StatusPending
			a.ScheduledAt = q.now().Add(time.Duration(a.RetryCount) * retryBackoff)
			q.sortLocked()
			return nil
		} else {
			a.Status = StatusFailed
		}
		q.actions = append(q.actions[:i], q.actions[i+1:]...)
		setQueueDepth(len(q.actions))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrActionNotFound, id)
}

// Cancel removes a pending action. Executing actions cannot be cancelled.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, a := range q.actions {
		if a.ID != id {
			continue
		}
		if a.Status != StatusPending {
			return fmt.Errorf("action %s is %s, not pending", id, a.Status)
		}
		a.Status = StatusCancelled
		q.actions = append(q.actions[:i], q.actions[i+1:]...)
		setQueueDepth(len(q.actions))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrActionNotFound, id)
}

// CancelAccount drops every pending action for the account and returns how
// many were removed.
func (q *Queue) CancelAccount(accountID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.actions[:0]
	removed := 0
	for _, a := range q.actions {
		if a.AccountID == accountID && a.Status == StatusPending {
			a.Status = StatusCancelled
			removed++
			continue
		}
		kept = append(kept, a)
	}
	q.actions = kept
	setQueueDepth(len(q.actions))
	return removed
}

// Pending returns the number of queued pending actions.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, a := range q.actions {
		if a.Status == StatusPending {
			n++
		}
	}
	return n
}

// Peek returns a copy of the queue contents in order.
func (q *Queue) Peek() []ScheduledAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ScheduledAction, 0, len(q.actions))
	for _, a := range q.actions {
		out = append(out, *a)
	}
	return out
}

func (q *Queue) prepareLocked(a *ScheduledAction) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.ScheduledAt.IsZero() {
		a.ScheduledAt = q.now()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = q.now()
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = defaultMaxRetries
	}
	a.Status = StatusPending
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.actions, func(i, j int) bool {
		if q.actions[i].Priority != q.actions[j].Priority {
			return q.actions[i].Priority > q.actions[j].Priority
		}
		return q.actions[i].ScheduledAt.Before(q.actions[j].ScheduledAt)
	})
}

func (q *Queue) randLeadLocked(min, max time.Duration) time.Duration {
	return min + time.Duration(q.rng.Int63n(int64(max-min)))
}
