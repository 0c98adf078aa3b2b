package contentsync

import (
	"errors"
	"time"
)

// ContentType categorizes a scraped piece of content.
type ContentType string

const (
	ContentPost   ContentType = "post"
	ContentStory  ContentType = "story"
	ContentReel   ContentType = "reel"
	ContentTweet  ContentType = "tweet"
	ContentThread ContentType = "thread"
)

// SyncStatus tracks the lifecycle of one repost job.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
	SyncSkipped SyncStatus = "skipped"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrJobNotFound         = errors.New("sync job not found")
)

// ScrapedContent is one piece of content pulled from a source account.
type ScrapedContent struct {
	ID            string      `json:"id" bson:"_id"`
	Platform      string      `json:"platform" bson:"platform"`
	SourceAccount string      `json:"source_account" bson:"source_account"`
	ContentType   ContentType `json:"content_type" bson:"content_type"`
	Text          string      `json:"text,omitempty" bson:"text,omitempty"`
	MediaURLs     []string    `json:"media_urls,omitempty" bson:"media_urls,omitempty"`
	Hashtags      []string    `json:"hashtags,omitempty" bson:"hashtags,omitempty"`
	LikesCount    int         `json:"likes_count" bson:"likes_count"`
	CommentsCount int         `json:"comments_count" bson:"comments_count"`
	SharesCount   int         `json:"shares_count" bson:"shares_count"`
	PostedAt      time.Time   `json:"posted_at,omitempty" bson:"posted_at,omitempty"`
	ScrapedAt     time.Time   `json:"scraped_at" bson:"scraped_at"`
}

// SyncJob schedules one spun repost of source content onto a sub-account.
type SyncJob struct {
	ID            string          `json:"id" bson:"_id"`
	SourceID      string          `json:"source_id" bson:"source_id"`
	SubAccountID  string          `json:"sub_account_id" bson:"sub_account_id"`
	SourceContent *ScrapedContent `json:"source_content" bson:"source_content"`
	ModifiedText  string          `json:"modified_text,omitempty" bson:"modified_text,omitempty"`
	ScheduledAt   time.Time       `json:"scheduled_at" bson:"scheduled_at"`
	Status        SyncStatus      `json:"status" bson:"status"`
	SyncedAt      time.Time       `json:"synced_at,omitempty" bson:"synced_at,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// ProfileInfo is the public profile of a source account, used to seed
// sub-account profiles.
type ProfileInfo struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name,omitempty"`
	Bio            string `json:"bio,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	FollowerCount  int    `json:"follower_count,omitempty"`
	FollowingCount int    `json:"following_count,omitempty"`
}
