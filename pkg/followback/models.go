package followback

import (
	"errors"
	"fmt"
	"time"
)

type FollowStatus string

const (
	StatusNotFollowing FollowStatus = "not_following"
	StatusFollowing    FollowStatus = "following"
	StatusMutual       FollowStatus = "mutual"
	StatusPending      FollowStatus = "pending" // private account, follow request not yet accepted
	StatusBlocked      FollowStatus = "blocked"
)

var ErrRelationshipNotFound = errors.New("relationship not found")

// Relationship tracks one directed follow from an automation account to a
// target user.
type Relationship struct {
	ID            string            `json:"id" bson:"_id"`
	AccountID     string            `json:"account_id" bson:"account_id"`
	TargetID      string            `json:"target_id" bson:"target_id"`
	Status        FollowStatus      `json:"status" bson:"status"`
	Private       bool              `json:"private,omitempty" bson:"private,omitempty"`
	FollowedAt    time.Time         `json:"followed_at" bson:"followed_at"`
	TimeoutAt     time.Time         `json:"timeout_at" bson:"timeout_at"`
	FollowBackAt  time.Time         `json:"follow_back_at,omitempty" bson:"follow_back_at,omitempty"`
	UnfollowedAt  time.Time         `json:"unfollowed_at,omitempty" bson:"unfollowed_at,omitempty"`
	LastCheckedAt time.Time         `json:"last_checked_at,omitempty" bson:"last_checked_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// RelationshipID is "<account>_<target>", unique per directed pair.
func RelationshipID(accountID, targetID string) string {
	return fmt.Sprintf("%s_%s", accountID, targetID)
}

// DetectionResult reports the outcome of one follow-back check.
type DetectionResult struct {
	Relationship   *Relationship `json:"relationship"`
	Checked        bool          `json:"checked"`         // false when throttled
	StatusChanged  bool          `json:"status_changed"`  // transitioned to mutual this check
	ShouldDM       bool          `json:"should_dm"`       // set exactly once, on the mutual transition
	ShouldUnfollow bool          `json:"should_unfollow"` // follow-back window expired
}

type BatchDetectionResult struct {
	Results   []*DetectionResult `json:"results"`
	NewMutual int                `json:"new_mutual"`
	TimedOut  int                `json:"timed_out"`
	Errors    int                `json:"errors"`
}

type Stats struct {
	AccountID      string  `json:"account_id"`
	TotalFollowed  int     `json:"total_followed"`
	Mutual         int     `json:"mutual"`
	Pending        int     `json:"pending"`
	Unfollowed     int     `json:"unfollowed"`
	Blocked        int     `json:"blocked"`
	AwaitingReply  int     `json:"awaiting_reply"`
	FollowBackRate float64 `json:"follow_back_rate"`
}
