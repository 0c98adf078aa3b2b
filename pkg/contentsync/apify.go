package contentsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grigta/outreach/pkg/logger"
)

const (
	defaultApifyBaseURL = "https://api.apify.com/v2"

	actorInstagramPosts   = "apify~instagram-scraper"
	actorXPosts           = "apidojo~tweet-scraper"
	actorInstagramProfile = "apify~instagram-profile-scraper"
	actorXProfile         = "apidojo~twitter-user-scraper"
)

// ApifyScraper pulls content through hosted Apify actors.
type ApifyScraper struct {
	token   string
	baseURL string
	client  *http.Client
	log     logger.Logger
}

type ApifyOption func(*ApifyScraper)

// WithApifyBaseURL redirects actor calls, used by tests.
func WithApifyBaseURL(url string) ApifyOption {
	return func(a *ApifyScraper) { a.baseURL = url }
}

func WithApifyHTTPClient(client *http.Client) ApifyOption {
	return func(a *ApifyScraper) { a.client = client }
}

func NewApifyScraper(token string, log logger.Logger, opts ...ApifyOption) *ApifyScraper {
	if log == nil {
		log = logger.Nop()
	}
	a := &ApifyScraper{
		token:   token,
		baseURL: defaultApifyBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type instagramPostItem struct {
	ID            string   `json:"id"`
	Caption       string   `json:"caption"`
	DisplayURL    string   `json:"displayUrl"`
	Hashtags      []string `json:"hashtags"`
	LikesCount    int      `json:"likesCount"`
	CommentsCount int      `json:"commentsCount"`
	Timestamp     string   `json:"timestamp"`
}

type xPostItem struct {
	ID       string `json:"id"`
	FullText string `json:"full_text"`
	Media    []struct {
		URL string `json:"url"`
	} `json:"media"`
	Hashtags []struct {
		Text string `json:"text"`
	} `json:"hashtags"`
	FavoriteCount int    `json:"favorite_count"`
	RetweetCount  int    `json:"retweet_count"`
	CreatedAt     string `json:"created_at"`
}

type profileItem struct {
	Username        string `json:"username"`
	FullName        string `json:"fullName"`
	Name            string `json:"name"`
	Biography       string `json:"biography"`
	Description     string `json:"description"`
	ProfilePicURLHD string `json:"profilePicUrlHD"`
	ProfilePicURL   string `json:"profilePicUrl"`
	FollowersCount  int    `json:"followersCount"`
	FollowingCount  int    `json:"followingCount"`
}

func (a *ApifyScraper) ScrapePosts(ctx context.Context, platform, username string, count int) ([]*ScrapedContent, error) {
	switch platform {
	case PlatformInstagram:
		return a.scrapeInstagramPosts(ctx, username, count)
	case PlatformX:
		return a.scrapeXPosts(ctx, username, count)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
}

func (a *ApifyScraper) scrapeInstagramPosts(ctx context.Context, username string, count int) ([]*ScrapedContent, error) {
	payload := map[string]interface{}{
		"directUrls":   []string{fmt.Sprintf("https://www.instagram.com/%s/", username)},
		"resultsType":  "posts",
		"resultsLimit": count,
	}

	var items []instagramPostItem
	if err := a.runActor(ctx, actorInstagramPosts, payload, &items); err != nil {
		return nil, err
	}

	contents := make([]*ScrapedContent, 0, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("ig_%d", i)
		}
		content := &ScrapedContent{
			ID:            id,
			Platform:      PlatformInstagram,
			SourceAccount: username,
			ContentType:   ContentPost,
			Text:          item.Caption,
			Hashtags:      item.Hashtags,
			LikesCount:    item.LikesCount,
			CommentsCount: item.CommentsCount,
			PostedAt:      parseTimestamp(item.Timestamp),
			ScrapedAt:     time.Now(),
		}
		if item.DisplayURL != "" {
			content.MediaURLs = []string{item.DisplayURL}
		}
		contents = append(contents, content)
	}
	return contents, nil
}

func (a *ApifyScraper) scrapeXPosts(ctx context.Context, username string, count int) ([]*ScrapedContent, error) {
	payload := map[string]interface{}{
		"handles":       []string{username},
		"tweetsDesired": count,
		"proxyConfig":   map[string]interface{}{"useApifyProxy": true},
	}

	var items []xPostItem
	if err := a.runActor(ctx, actorXPosts, payload, &items); err != nil {
		return nil, err
	}

	contents := make([]*ScrapedContent, 0, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("x_%d", i)
		}
		content := &ScrapedContent{
			ID:            id,
			Platform:      PlatformX,
			SourceAccount: username,
			ContentType:   ContentTweet,
			Text:          item.FullText,
			LikesCount:    item.FavoriteCount,
			SharesCount:   item.RetweetCount,
			PostedAt:      parseTimestamp(item.CreatedAt),
			ScrapedAt:     time.Now(),
		}
		for _, media := range item.Media {
			if media.URL != "" {
				content.MediaURLs = append(content.MediaURLs, media.URL)
			}
		}
		for _, tag := range item.Hashtags {
			content.Hashtags = append(content.Hashtags, tag.Text)
		}
		contents = append(contents, content)
	}
	return contents, nil
}

func (a *ApifyScraper) ScrapeProfile(ctx context.Context, platform, username string) (*ProfileInfo, error) {
	var actor string
	var payload map[string]interface{}

	switch platform {
	case PlatformInstagram:
		actor = actorInstagramProfile
		payload = map[string]interface{}{"usernames": []string{username}}
	case PlatformX:
		actor = actorXProfile
		payload = map[string]interface{}{"handles": []string{username}}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	var items []profileItem
	if err := a.runActor(ctx, actor, payload, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &ProfileInfo{Username: username}, nil
	}

	item := items[0]
	info := &ProfileInfo{
		Username:       item.Username,
		DisplayName:    item.FullName,
		Bio:            item.Biography,
		AvatarURL:      item.ProfilePicURLHD,
		FollowerCount:  item.FollowersCount,
		FollowingCount: item.FollowingCount,
	}
	if info.Username == "" {
		info.Username = username
	}
	if info.DisplayName == "" {
		info.DisplayName = item.Name
	}
	if info.Bio == "" {
		info.Bio = item.Description
	}
	if info.AvatarURL == "" {
		info.AvatarURL = item.ProfilePicURL
	}
	return info, nil
}

func (a *ApifyScraper) runActor(ctx context.Context, actor string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode actor payload: %w", err)
	}

	url := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items", a.baseURL, actor)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build actor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("actor call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("actor %s returned status %d", actor, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode actor response: %w", err)
	}
	return nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
