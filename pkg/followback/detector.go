package followback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
)

const (
	// DefaultTimeout is how long a target gets to follow back before the
	// relationship is written off and unfollowed.
	DefaultTimeout = 7 * 24 * time.Hour

	// DefaultMinCheckInterval throttles repeated probes against the same
	// relationship.
	DefaultMinCheckInterval = time.Hour

	dmSentKey = "dm_sent"
)

// FollowerChecker answers whether target follows the account back. The
// executor's browser driver provides the production implementation.
type FollowerChecker interface {
	IsFollowingBack(ctx context.Context, accountID, targetID string) (bool, error)
}

// Detector tracks follow relationships and detects follow-backs and
// timeouts. The mutual transition fires exactly once per relationship, so
// downstream DM triggers never double-send.
type Detector struct {
	mu   sync.RWMutex
	rels map[string]*Relationship

	checker          FollowerChecker
	timeout          time.Duration
	minCheckInterval time.Duration

	now    func() time.Time
	log    logger.Logger
	events messaging.Publisher
}

type Option func(*Detector)

func WithTimeout(d time.Duration) Option {
	return func(det *Detector) { det.timeout = d }
}

func WithMinCheckInterval(d time.Duration) Option {
	return func(det *Detector) { det.minCheckInterval = d }
}

// WithClock replaces the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(det *Detector) { det.now = now }
}

func NewDetector(checker FollowerChecker, log logger.Logger, events messaging.Publisher, opts ...Option) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	d := &Detector{
		rels:             make(map[string]*Relationship),
		checker:          checker,
		timeout:          DefaultTimeout,
		minCheckInterval: DefaultMinCheckInterval,
		now:              time.Now,
		log:              log,
		events:           events,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterFollow records that the account just followed the target.
// Private targets start as pending since the follow request must be
// accepted first. Re-registering an existing pair resets its window.
func (d *Detector) RegisterFollow(accountID, targetID string, private bool) *Relationship {
	now := d.now()
	rel := &Relationship{
		ID:         RelationshipID(accountID, targetID),
		AccountID:  accountID,
		TargetID:   targetID,
		Status:     StatusFollowing,
		Private:    private,
		FollowedAt: now,
		TimeoutAt:  now.Add(d.timeout),
		Metadata:   make(map[string]string),
	}
	if private {
		rel.Status = StatusPending
	}

	d.mu.Lock()
	d.rels[rel.ID] = rel
	d.mu.Unlock()

	recordFollowRegistered()
	d.log.Debug("Follow registered",
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "target_id", Value: targetID},
		logger.Field{Key: "private", Value: private},
	)
	cp := *rel
	return &cp
}

// Relationship returns a copy of the tracked pair.
func (d *Detector) Relationship(accountID, targetID string) (*Relationship, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rel, ok := d.rels[RelationshipID(accountID, targetID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, RelationshipID(accountID, targetID))
	}
	cp := *rel
	return &cp, nil
}

// Check probes one relationship. Checks within the throttle window return
// the current state without hitting the platform.
func (d *Detector) Check(ctx context.Context, accountID, targetID string) (*DetectionResult, error) {
	id := RelationshipID(accountID, targetID)

	d.mu.Lock()
	rel, ok := d.rels[id]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}

	now := d.now()
	if !rel.LastCheckedAt.IsZero() && now.Sub(rel.LastCheckedAt) < d.minCheckInterval {
		cp := *rel
		d.mu.Unlock()
		return &DetectionResult{Relationship: &cp, Checked: false}, nil
	}

	if rel.Status == StatusMutual || rel.Status == StatusNotFollowing || rel.Status == StatusBlocked {
		cp := *rel
		d.mu.Unlock()
		return &DetectionResult{Relationship: &cp, Checked: false}, nil
	}
	d.mu.Unlock()

	// Probe outside the lock; platform calls are slow.
	followsBack, err := d.checker.IsFollowingBack(ctx, accountID, targetID)
	if err != nil {
		return nil, fmt.Errorf("follow-back check failed for %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rel, ok = d.rels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}
	rel.LastCheckedAt = now

	result := &DetectionResult{Checked: true}

	if followsBack {
		if rel.Status != StatusMutual {
			rel.Status = StatusMutual
			rel.FollowBackAt = now
			result.StatusChanged = true
			result.ShouldDM = true
			recordMutual()

			d.log.Info("Follow-back detected",
				logger.Field{Key: "account_id", Value: accountID},
				logger.Field{Key: "target_id", Value: targetID},
			)
			if err := d.events.Publish(messaging.EventsExchange, messaging.EventFollowBackMutual, messaging.NewMessage(messaging.EventFollowBackMutual, map[string]interface{}{
				"account_id": accountID,
				"target_id":  targetID,
			})); err != nil {
				d.log.Error("Failed to publish follow-back event", logger.Field{Key: "error", Value: err.Error()})
			}
		}
	} else if now.After(rel.TimeoutAt) {
		result.ShouldUnfollow = true
	}

	cp := *rel
	result.Relationship = &cp
	return result, nil
}

// CheckBatch probes many targets for one account sequentially, respecting
// the per-relationship throttle.
func (d *Detector) CheckBatch(ctx context.Context, accountID string, targetIDs []string) *BatchDetectionResult {
	batch := &BatchDetectionResult{}
	for _, targetID := range targetIDs {
		select {
		case <-ctx.Done():
			return batch
		default:
		}

		result, err := d.Check(ctx, accountID, targetID)
		if err != nil {
			batch.Errors++
			continue
		}
		batch.Results = append(batch.Results, result)
		if result.StatusChanged {
			batch.NewMutual++
		}
		if result.ShouldUnfollow {
			batch.TimedOut++
		}
	}
	return batch
}

// PendingChecks lists relationships eligible for a probe right now,
// oldest check first.
func (d *Detector) PendingChecks(accountID string) []*Relationship {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := d.now()
	var out []*Relationship
	for _, rel := range d.rels {
		if rel.AccountID != accountID {
			continue
		}
		if rel.Status != StatusFollowing && rel.Status != StatusPending {
			continue
		}
		if !rel.LastCheckedAt.IsZero() && now.Sub(rel.LastCheckedAt) < d.minCheckInterval {
			continue
		}
		cp := *rel
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastCheckedAt.Before(out[j].LastCheckedAt)
	})
	return out
}

// TimedOut lists relationships whose follow-back window has expired.
func (d *Detector) TimedOut(accountID string) []*Relationship {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := d.now()
	var out []*Relationship
	for _, rel := range d.rels {
		if rel.AccountID != accountID {
			continue
		}
		if (rel.Status == StatusFollowing || rel.Status == StatusPending) && now.After(rel.TimeoutAt) {
			cp := *rel
			out = append(out, &cp)
		}
	}
	return out
}

// ProcessTimeouts unfollows every expired relationship through the given
// unfollow function and returns the targets actually unfollowed.
func (d *Detector) ProcessTimeouts(ctx context.Context, accountID string, unfollow func(ctx context.Context, targetID string) error) ([]string, error) {
	expired := d.TimedOut(accountID)

	var unfollowed []string
	for _, rel := range expired {
		select {
		case <-ctx.Done():
			return unfollowed, ctx.Err()
		default:
		}

		if err := unfollow(ctx, rel.TargetID); err != nil {
			d.log.Warn("Failed to unfollow timed-out target",
				logger.Field{Key: "account_id", Value: accountID},
				logger.Field{Key: "target_id", Value: rel.TargetID},
				logger.Field{Key: "error", Value: err.Error()},
			)
			continue
		}

		d.mu.Lock()
		if live, ok := d.rels[rel.ID]; ok {
			live.Status = StatusNotFollowing
			live.UnfollowedAt = d.now()
		}
		d.mu.Unlock()

		recordTimeout()
		unfollowed = append(unfollowed, rel.TargetID)

		if err := d.events.Publish(messaging.EventsExchange, messaging.EventFollowTimeout, messaging.NewMessage(messaging.EventFollowTimeout, map[string]interface{}{
			"account_id": accountID,
			"target_id":  rel.TargetID,
		})); err != nil {
			d.log.Error("Failed to publish timeout event", logger.Field{Key: "error", Value: err.Error()})
		}
	}
	return unfollowed, nil
}

// DMReady lists mutual relationships that have not been messaged yet.
func (d *Detector) DMReady(accountID string) []*Relationship {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Relationship
	for _, rel := range d.rels {
		if rel.AccountID != accountID || rel.Status != StatusMutual {
			continue
		}
		if _, sent := rel.Metadata[dmSentKey]; sent {
			continue
		}
		cp := *rel
		out = append(out, &cp)
	}
	return out
}

// MarkDMSent records that the mutual target has been messaged.
func (d *Detector) MarkDMSent(accountID, targetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rel, ok := d.rels[RelationshipID(accountID, targetID)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelationshipNotFound, RelationshipID(accountID, targetID))
	}
	if rel.Metadata == nil {
		rel.Metadata = make(map[string]string)
	}
	rel.Metadata[dmSentKey] = d.now().UTC().Format(time.RFC3339)
	return nil
}

// MarkBlocked flags the relationship as blocked by the target.
func (d *Detector) MarkBlocked(accountID, targetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rel, ok := d.rels[RelationshipID(accountID, targetID)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelationshipNotFound, RelationshipID(accountID, targetID))
	}
	rel.Status = StatusBlocked
	return nil
}

// Stats summarizes the account's follow funnel. The follow-back rate is
// mutual over everything that left the following state plus current
// mutuals, so in-flight follows do not dilute it.
func (d *Detector) Stats(accountID string) Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := Stats{AccountID: accountID}
	resolved := 0
	for _, rel := range d.rels {
		if rel.AccountID != accountID {
			continue
		}
		stats.TotalFollowed++
		switch rel.Status {
		case StatusMutual:
			stats.Mutual++
			resolved++
			if _, sent := rel.Metadata[dmSentKey]; !sent {
				stats.AwaitingReply++
			}
		case StatusPending:
			stats.Pending++
		case StatusNotFollowing:
			stats.Unfollowed++
			resolved++
		case StatusBlocked:
			stats.Blocked++
			resolved++
		}
	}
	if resolved > 0 {
		stats.FollowBackRate = float64(stats.Mutual) / float64(resolved)
	}
	return stats
}

// Snapshot returns copies of every relationship for persistence.
func (d *Detector) Snapshot() []*Relationship {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Relationship, 0, len(d.rels))
	for _, rel := range d.rels {
		cp := *rel
		out = append(out, &cp)
	}
	return out
}

// Restore reinstates persisted relationships.
func (d *Detector) Restore(rels []*Relationship) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rel := range rels {
		cp := *rel
		if cp.Metadata == nil {
			cp.Metadata = make(map[string]string)
		}
		d.rels[cp.ID] = &cp
	}
}
