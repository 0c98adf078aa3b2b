package contentsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/outreach/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeScraper struct {
	mu        sync.Mutex
	postCalls int
	posts     []*ScrapedContent
	profile   *ProfileInfo
	err       error
}

func (f *fakeScraper) ScrapePosts(ctx context.Context, platform, username string, count int) ([]*ScrapedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.posts) > count {
		return f.posts[:count], nil
	}
	return f.posts, nil
}

func (f *fakeScraper) ScrapeProfile(ctx context.Context, platform, username string) (*ProfileInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeScraper) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postCalls
}

func makePosts(n int) []*ScrapedContent {
	posts := make([]*ScrapedContent, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, &ScrapedContent{
			ID:            fmt.Sprintf("c%d", i),
			Platform:      PlatformInstagram,
			SourceAccount: "kol_alex",
			ContentType:   ContentPost,
			Text:          fmt.Sprintf("Post %d with amazing insights", i),
		})
	}
	return posts
}

type ServiceTestSuite struct {
	suite.Suite
	clock   *fakeClock
	scraper *fakeScraper
	service *Service
	ctx     context.Context
}

func (s *ServiceTestSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	s.scraper = &fakeScraper{posts: makePosts(5)}
	s.service = NewService(s.scraper, logger.Nop(),
		WithClock(s.clock.Now),
		WithSeed(42),
		WithSpinner(NewSpinnerSeeded(42)),
	)
	s.ctx = context.Background()
}

func (s *ServiceTestSuite) TestScrapePostsCachesResults() {
	posts, err := s.service.ScrapePosts(s.ctx, PlatformInstagram, "kol_alex", 3)
	s.Require().NoError(err)
	s.Len(posts, 3)
	s.Equal(1, s.scraper.calls())

	again, err := s.service.ScrapePosts(s.ctx, PlatformInstagram, "kol_alex", 3)
	s.Require().NoError(err)
	s.Len(again, 3)
	s.Equal(1, s.scraper.calls(), "second call must hit the cache")
}

func (s *ServiceTestSuite) TestScrapePostsRefetchesWhenCacheTooSmall() {
	_, err := s.service.ScrapePosts(s.ctx, PlatformInstagram, "kol_alex", 2)
	s.Require().NoError(err)

	_, err = s.service.ScrapePosts(s.ctx, PlatformInstagram, "kol_alex", 5)
	s.Require().NoError(err)
	s.Equal(2, s.scraper.calls())
}

func (s *ServiceTestSuite) TestScrapePostsUnsupportedPlatform() {
	_, err := s.service.ScrapePosts(s.ctx, "tiktok", "kol_alex", 3)
	s.ErrorIs(err, ErrUnsupportedPlatform)
	s.Equal(0, s.scraper.calls())
}

func (s *ServiceTestSuite) TestScrapePostsPropagatesScraperError() {
	s.scraper.err = errors.New("actor quota exceeded")
	_, err := s.service.ScrapePosts(s.ctx, PlatformX, "kol_alex", 3)
	s.ErrorContains(err, "actor quota exceeded")
}

func (s *ServiceTestSuite) TestCreateSyncJobs() {
	contents := makePosts(3)
	jobs := s.service.CreateSyncJobs("kol_alex", []string{"sub1", "sub2"}, contents, time.Hour, 2*time.Hour, 6*time.Hour)

	s.Require().Len(jobs, 6)

	earliest := s.clock.Now().Add(time.Hour + 2*time.Hour)
	prev := s.clock.Now()
	for _, job := range jobs {
		s.Equal(SyncPending, job.Status)
		s.Equal("kol_alex", job.SourceID)
		s.NotEmpty(job.ModifiedText)
		s.True(job.ScheduledAt.After(prev), "jobs must be chained in time")
		prev = job.ScheduledAt
	}
	s.False(jobs[0].ScheduledAt.Before(earliest))

	// Gaps between consecutive jobs stay within the configured window.
	for i := 1; i < len(jobs); i++ {
		gap := jobs[i].ScheduledAt.Sub(jobs[i-1].ScheduledAt)
		s.GreaterOrEqual(gap, 2*time.Hour)
		s.LessOrEqual(gap, 6*time.Hour)
	}
}

func (s *ServiceTestSuite) TestCreateSyncJobsDefaults() {
	jobs := s.service.CreateSyncJobs("kol_alex", []string{"sub1"}, makePosts(1), 0, 0, 0)
	s.Require().Len(jobs, 1)

	min := s.clock.Now().Add(DefaultStartDelay + DefaultMinGap)
	s.False(jobs[0].ScheduledAt.Before(min))
}

func (s *ServiceTestSuite) TestPendingJobs() {
	s.service.CreateSyncJobs("kol_alex", []string{"sub1", "sub2"}, makePosts(2), time.Hour, 2*time.Hour, 3*time.Hour)

	s.Empty(s.service.PendingJobs("", 0), "nothing due yet")

	s.clock.Advance(48 * time.Hour)

	due := s.service.PendingJobs("", 0)
	s.Require().Len(due, 4)
	for i := 1; i < len(due); i++ {
		s.False(due[i].ScheduledAt.Before(due[i-1].ScheduledAt), "oldest first")
	}

	sub1 := s.service.PendingJobs("sub1", 0)
	s.Len(sub1, 2)
	for _, job := range sub1 {
		s.Equal("sub1", job.SubAccountID)
	}

	limited := s.service.PendingJobs("", 1)
	s.Len(limited, 1)
}

func (s *ServiceTestSuite) TestMarkCompleted() {
	jobs := s.service.CreateSyncJobs("kol_alex", []string{"sub1"}, makePosts(1), time.Hour, 2*time.Hour, 3*time.Hour)
	s.Require().Len(jobs, 1)

	s.Require().NoError(s.service.MarkCompleted(jobs[0].ID))

	job, err := s.service.Job(jobs[0].ID)
	s.Require().NoError(err)
	s.Equal(SyncSynced, job.Status)
	s.True(job.SyncedAt.Equal(s.clock.Now()))

	s.clock.Advance(72 * time.Hour)
	s.Empty(s.service.PendingJobs("", 0), "completed jobs never become due")
}

func (s *ServiceTestSuite) TestMarkFailed() {
	jobs := s.service.CreateSyncJobs("kol_alex", []string{"sub1"}, makePosts(1), time.Hour, 2*time.Hour, 3*time.Hour)

	s.Require().NoError(s.service.MarkFailed(jobs[0].ID, "session expired"))

	job, err := s.service.Job(jobs[0].ID)
	s.Require().NoError(err)
	s.Equal(SyncFailed, job.Status)
	s.Equal("session expired", job.ErrorMessage)
}

func (s *ServiceTestSuite) TestMarkUnknownJob() {
	s.ErrorIs(s.service.MarkCompleted("nope"), ErrJobNotFound)
	s.ErrorIs(s.service.MarkFailed("nope", "x"), ErrJobNotFound)

	_, err := s.service.Job("nope")
	s.ErrorIs(err, ErrJobNotFound)
}

func (s *ServiceTestSuite) TestSyncProfile() {
	s.scraper.profile = &ProfileInfo{Username: "kol_alex", DisplayName: "Alex", Bio: "Markets daily"}

	info, err := s.service.SyncProfile(s.ctx, PlatformInstagram, "kol_alex")
	s.Require().NoError(err)
	s.Equal("Alex", info.DisplayName)
}

func (s *ServiceTestSuite) TestBioVariationEmptyOriginal() {
	bio := s.service.BioVariation("", "alice_trades")
	s.Contains(bio, "alice_trades")
	s.Contains(bio, "Sharing insights on markets")
}

func (s *ServiceTestSuite) TestBioVariationKeepsLimit() {
	long := ""
	for i := 0; i < 40; i++ {
		long += "data "
	}
	bio := s.service.BioVariation(long, "alice_trades")
	s.LessOrEqual(len(bio), maxBioLength)
}

func (s *ServiceTestSuite) TestBioVariationAppendsHandle() {
	bio := s.service.BioVariation("Crypto analyst", "alice_trades")
	s.Contains(bio, "alice_trades")
	s.Contains(bio, "Crypto analyst")
	s.LessOrEqual(len(bio), maxBioLength)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestSampleScraperPosts(t *testing.T) {
	scraper := NewSampleScraperSeeded(1)

	posts, err := scraper.ScrapePosts(context.Background(), PlatformX, "kol_alex", 4)
	require.NoError(t, err)
	require.Len(t, posts, 4)
	for _, post := range posts {
		assert.Equal(t, ContentTweet, post.ContentType)
		assert.Equal(t, "kol_alex", post.SourceAccount)
		assert.GreaterOrEqual(t, post.LikesCount, 100)
	}
}

func TestSampleScraperProfile(t *testing.T) {
	scraper := NewSampleScraperSeeded(1)

	info, err := scraper.ScrapeProfile(context.Background(), PlatformInstagram, "alex")
	require.NoError(t, err)
	assert.Equal(t, "alex", info.Username)
	assert.NotEmpty(t, info.Bio)
}
