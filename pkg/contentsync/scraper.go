package contentsync

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	PlatformInstagram = "instagram"
	PlatformX         = "x"
)

// Scraper pulls public content and profile data from a source account.
type Scraper interface {
	ScrapePosts(ctx context.Context, platform, username string, count int) ([]*ScrapedContent, error)
	ScrapeProfile(ctx context.Context, platform, username string) (*ProfileInfo, error)
}

// SampleScraper fabricates plausible content. It stands in when no
// scraping credentials are configured.
type SampleScraper struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewSampleScraper() *SampleScraper {
	return NewSampleScraperSeeded(time.Now().UnixNano())
}

func NewSampleScraperSeeded(seed int64) *SampleScraper {
	return &SampleScraper{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

func (s *SampleScraper) ScrapePosts(ctx context.Context, platform, username string, count int) ([]*ScrapedContent, error) {
	if platform != PlatformInstagram && platform != PlatformX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	contentType := ContentPost
	if platform == PlatformX {
		contentType = ContentTweet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	posts := make([]*ScrapedContent, 0, count)
	for i := 0; i < count; i++ {
		posts = append(posts, &ScrapedContent{
			ID:            fmt.Sprintf("sample_%s_%d", platform, i),
			Platform:      platform,
			SourceAccount: username,
			ContentType:   contentType,
			Text:          fmt.Sprintf("This is sample post #%d from @%s. Great insights on market trends!", i, username),
			Hashtags:      []string{"crypto", "investing", "finance"},
			LikesCount:    100 + s.rng.Intn(9900),
			CommentsCount: 10 + s.rng.Intn(490),
			PostedAt:      now.AddDate(0, 0, -i),
			ScrapedAt:     now,
		})
	}
	return posts, nil
}

func (s *SampleScraper) ScrapeProfile(ctx context.Context, platform, username string) (*ProfileInfo, error) {
	if platform != PlatformInstagram && platform != PlatformX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return &ProfileInfo{
		Username:    username,
		DisplayName: fmt.Sprintf("%s Finance", capitalize(username)),
		Bio:         "Financial analyst | Sharing insights on markets | Not financial advice",
	}, nil
}
