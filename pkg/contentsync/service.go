package contentsync

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
)

const (
	// DefaultStartDelay pushes the first repost away from the scrape so
	// sub-accounts do not mirror the source in real time.
	DefaultStartDelay = time.Hour
	DefaultMinGap     = 2 * time.Hour
	DefaultMaxGap     = 6 * time.Hour

	spinVariation = 0.4
	maxBioLength  = 150
)

// Service distributes spun copies of source content across sub-accounts
// on a staggered schedule.
type Service struct {
	mu      sync.RWMutex
	scraper Scraper
	spinner *Spinner
	cache   map[string][]*ScrapedContent
	jobs    map[string]*SyncJob
	rng     *rand.Rand
	now     func() time.Time
	log     logger.Logger
}

type Option func(*Service)

func WithSpinner(spinner *Spinner) Option {
	return func(s *Service) { s.spinner = spinner }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSeed(seed int64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewSource(seed)) }
}

func NewService(scraper Scraper, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		scraper: scraper,
		spinner: NewSpinner(),
		cache:   make(map[string][]*ScrapedContent),
		jobs:    make(map[string]*SyncJob),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapePosts fetches recent posts from a source account, serving from
// the cache when it already holds enough.
func (s *Service) ScrapePosts(ctx context.Context, platform, username string, count int) ([]*ScrapedContent, error) {
	if platform != PlatformInstagram && platform != PlatformX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	cacheKey := platform + ":" + username

	s.mu.RLock()
	cached := s.cache[cacheKey]
	s.mu.RUnlock()
	if len(cached) >= count {
		return cached[:count], nil
	}

	contents, err := s.scraper.ScrapePosts(ctx, platform, username, count)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s posts for %s: %w", platform, username, err)
	}

	s.mu.Lock()
	s.cache[cacheKey] = contents
	s.mu.Unlock()

	recordScrapedPosts(platform, len(contents))
	s.log.Info("Scraped source content",
		logger.Field{Key: "platform", Value: platform},
		logger.Field{Key: "username", Value: username},
		logger.Field{Key: "count", Value: len(contents)})
	return contents, nil
}

// CreateSyncJobs schedules one spun repost of each content item per
// sub-account. Posts are shuffled per account and spaced by a random gap
// in [minGap, maxGap] so the accounts never post in lockstep.
func (s *Service) CreateSyncJobs(sourceID string, subAccountIDs []string, contents []*ScrapedContent, startDelay, minGap, maxGap time.Duration) []*SyncJob {
	if startDelay <= 0 {
		startDelay = DefaultStartDelay
	}
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if maxGap < minGap {
		maxGap = minGap
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.now().Add(startDelay)
	jobs := make([]*SyncJob, 0, len(subAccountIDs)*len(contents))

	for _, subAccountID := range subAccountIDs {
		shuffled := make([]*ScrapedContent, len(contents))
		copy(shuffled, contents)
		s.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		for _, content := range shuffled {
			gap := minGap
			if maxGap > minGap {
				gap += time.Duration(s.rng.Int63n(int64(maxGap - minGap)))
			}
			scheduledAt := current.Add(gap)

			job := &SyncJob{
				ID:            fmt.Sprintf("sync_%s_%s", subAccountID, content.ID),
				SourceID:      sourceID,
				SubAccountID:  subAccountID,
				SourceContent: content,
				ModifiedText:  s.spinner.Spin(content.Text, spinVariation),
				ScheduledAt:   scheduledAt,
				Status:        SyncPending,
			}
			jobs = append(jobs, job)
			s.jobs[job.ID] = job

			current = scheduledAt
		}
	}

	s.log.Info("Created content sync jobs",
		logger.Field{Key: "jobs", Value: len(jobs)},
		logger.Field{Key: "accounts", Value: len(subAccountIDs)})
	return jobs
}

// PendingJobs returns jobs whose scheduled time has passed, oldest first.
// An empty subAccountID matches every account.
func (s *Service) PendingJobs(subAccountID string, limit int) []*SyncJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var due []*SyncJob
	for _, job := range s.jobs {
		if job.Status != SyncPending || job.ScheduledAt.After(now) {
			continue
		}
		if subAccountID != "" && job.SubAccountID != subAccountID {
			continue
		}
		due = append(due, job)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}

func (s *Service) Job(jobID string) (*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *Service) MarkCompleted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = SyncSynced
	job.SyncedAt = s.now()
	recordJobStatus(SyncSynced)
	return nil
}

func (s *Service) MarkFailed(jobID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = SyncFailed
	job.ErrorMessage = message
	recordJobStatus(SyncFailed)
	return nil
}

// SyncProfile pulls the source account's public profile for seeding a
// sub-account.
func (s *Service) SyncProfile(ctx context.Context, platform, username string) (*ProfileInfo, error) {
	info, err := s.scraper.ScrapeProfile(ctx, platform, username)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape profile %s: %w", username, err)
	}
	return info, nil
}

// BioVariation spins a source bio into one usable by a sub-account,
// keeping it under the platform bio limit.
func (s *Service) BioVariation(originalBio, subAccountName string) string {
	if originalBio == "" {
		return fmt.Sprintf("Sharing insights on markets | Fan of quality content | %s", subAccountName)
	}

	bio := s.spinner.Spin(originalBio, 0.5)

	suffixes := []string{
		fmt.Sprintf(" | Managed by %s", subAccountName),
		fmt.Sprintf(" ✨ %s", subAccountName),
		fmt.Sprintf(" | %s's insights", subAccountName),
	}

	s.mu.Lock()
	suffix := suffixes[s.rng.Intn(len(suffixes))]
	s.mu.Unlock()

	if len(bio)+len(suffix) <= maxBioLength {
		bio += suffix
	}
	if len(bio) > maxBioLength {
		bio = bio[:maxBioLength]
	}
	return bio
}
