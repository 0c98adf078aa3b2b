package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/grigta/outreach/pkg/executor"
	"github.com/grigta/outreach/pkg/followback"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/proxypool"
	"github.com/grigta/outreach/pkg/scheduler"
	"github.com/grigta/outreach/pkg/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubChecker struct{}

func (stubChecker) IsFollowingBack(context.Context, string, string) (bool, error) {
	return false, nil
}

type ExecutorTestSuite struct {
	suite.Suite
	clock    *fakeClock
	driver   *testutil.FakeDriver
	limiter  *scheduler.RateLimiter
	detector *followback.Detector
	exec     *executor.Executor
}

func (s *ExecutorTestSuite) SetupTest() {
	s.clock = &fakeClock{t: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	s.driver = testutil.NewFakeDriver()
	s.limiter = scheduler.NewRateLimiter(logger.Nop(), nil,
		scheduler.WithClock(s.clock.Now),
		scheduler.WithSeed(7),
	)
	s.limiter.RegisterAccount("acc1", scheduler.PlatformInstagram, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "UTC")
	s.detector = followback.NewDetector(stubChecker{}, logger.Nop(), nil, followback.WithClock(s.clock.Now))

	// Sleeps advance the fake clock instead of blocking.
	s.exec = executor.NewExecutor(s.driver, logger.Nop(), nil,
		executor.WithRateLimiter(s.limiter),
		executor.WithDetector(s.detector),
		executor.WithHumanizer(executor.NewHumanizerSeeded(7)),
		executor.WithClock(s.clock.Now),
		executor.WithSleep(func(_ context.Context, d time.Duration) error {
			s.clock.Advance(d)
			return nil
		}),
	)
}

func (s *ExecutorTestSuite) startSession() {
	_, err := s.exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Require().NoError(err)
}

func (s *ExecutorTestSuite) TestStartSession() {
	execCtx, err := s.exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Require().NoError(err)

	s.Equal("acc1", execCtx.AccountID)
	s.Equal("profile-1", execCtx.ProfileID)
	s.Equal(s.clock.Now(), execCtx.SessionStartedAt)
	s.Equal([]string{"acc1"}, s.driver.Opened)
}

func (s *ExecutorTestSuite) TestStartSession_Idempotent() {
	s.startSession()
	s.startSession()

	s.Len(s.driver.Opened, 1)
	s.Len(s.exec.Sessions(), 1)
}

func (s *ExecutorTestSuite) TestStartSession_ConcurrentSingleSession() {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
			s.NoError(err)
		}()
	}
	wg.Wait()

	// Racers that opened a duplicate browser must have closed it again.
	s.Len(s.exec.Sessions(), 1)
	s.Equal(len(s.driver.Opened)-1, len(s.driver.Closed))
}

func (s *ExecutorTestSuite) TestStartSession_AssignsProxy() {
	pool := proxypool.NewPool(logger.Nop(), nil)
	s.Require().NoError(pool.Add(&proxypool.ProxyConfig{ID: "p1", Host: "10.0.0.1", Port: 8080}))

	exec := executor.NewExecutor(s.driver, logger.Nop(), nil,
		executor.WithProxyPool(pool),
		executor.WithClock(s.clock.Now),
	)
	execCtx, err := exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Require().NoError(err)

	s.Require().NotNil(execCtx.Proxy)
	s.Equal("p1", execCtx.Proxy.ID)
}

func (s *ExecutorTestSuite) TestStartSession_DriverFailure() {
	s.driver.OpenErr = errors.New("launch failed")

	_, err := s.exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Error(err)
	s.Empty(s.exec.Sessions())
}

func (s *ExecutorTestSuite) TestStopSession() {
	s.startSession()

	s.Require().NoError(s.exec.StopSession(context.Background(), "acc1"))
	s.Equal([]string{"acc1"}, s.driver.Closed)

	err := s.exec.StopSession(context.Background(), "acc1")
	s.ErrorIs(err, executor.ErrNoSession)
}

func (s *ExecutorTestSuite) TestExecuteFollow_Success() {
	s.startSession()

	log, err := s.exec.ExecuteFollow(context.Background(), "acc1", "target1")
	s.Require().NoError(err)

	s.Equal(executor.ResultSuccess, log.Result)
	s.Equal(scheduler.ActionFollow, log.ActionType)
	s.Equal(scheduler.PlatformInstagram, log.Platform)
	s.Equal(1, s.driver.CallCount("follow:"))

	// The follow is registered for follow-back tracking.
	rel, err := s.detector.Relationship("acc1", "target1")
	s.Require().NoError(err)
	s.Equal(followback.StatusFollowing, rel.Status)
}

func (s *ExecutorTestSuite) TestExecuteFollow_NoSession() {
	_, err := s.exec.ExecuteFollow(context.Background(), "acc1", "target1")
	s.ErrorIs(err, executor.ErrNoSession)
}

func (s *ExecutorTestSuite) TestExecuteFollow_MinIntervalShortCircuit() {
	s.startSession()

	log, err := s.exec.ExecuteFollow(context.Background(), "acc1", "target1")
	s.Require().NoError(err)
	s.Equal(executor.ResultSuccess, log.Result)

	// Only seconds of humanization delay have passed, far below the
	// 60 second follow spacing.
	log, err = s.exec.ExecuteFollow(context.Background(), "acc1", "target2")
	s.Require().NoError(err)

	s.Equal(executor.ResultRateLimited, log.Result)
	s.Contains(log.ErrorMessage, "Min interval not met")
	s.Equal(1, s.driver.CallCount("follow:"))
}

func (s *ExecutorTestSuite) TestExecuteFollow_ErrorMapping() {
	s.startSession()
	s.driver.FollowErrs["gone"] = executor.ErrTargetNotFound
	s.driver.FollowErrs["known"] = executor.ErrAlreadyFollows
	s.driver.FollowErrs["hidden"] = executor.ErrPrivateAccount
	s.driver.FollowErrs["broken"] = errors.New("selector timeout")

	tests := []struct {
		target string
		want   executor.ActionResult
	}{
		{"gone", executor.ResultTargetNotFound},
		{"known", executor.ResultAlreadyFollowing},
		{"hidden", executor.ResultPrivateAccount},
		{"broken", executor.ResultFailed},
	}
	for _, tt := range tests {
		s.clock.Advance(10 * time.Minute)
		log, err := s.exec.ExecuteFollow(context.Background(), "acc1", tt.target)
		s.Require().NoError(err)
		s.Equal(tt.want, log.Result, "target %s", tt.target)
		s.NotEmpty(log.ErrorMessage)
	}

	// A private target still gets tracked, as a pending follow request.
	rel, err := s.detector.Relationship("acc1", "hidden")
	s.Require().NoError(err)
	s.Equal(followback.StatusPending, rel.Status)
}

func (s *ExecutorTestSuite) TestExecuteFollow_CancelledContextSkips() {
	s.startSession()

	exec := executor.NewExecutor(s.driver, logger.Nop(), nil,
		executor.WithClock(s.clock.Now),
		executor.WithSleep(func(context.Context, time.Duration) error {
			return context.Canceled
		}),
	)
	_, err := exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Require().NoError(err)
	before := s.driver.CallCount("follow:")

	log, err := exec.ExecuteFollow(context.Background(), "acc1", "target1")
	s.ErrorIs(err, context.Canceled)
	s.Equal(executor.ResultSkipped, log.Result)
	s.Equal(before, s.driver.CallCount("follow:"))
}

func (s *ExecutorTestSuite) TestExecuteDM() {
	s.startSession()

	log, err := s.exec.ExecuteDM(context.Background(), "acc1", "target1", "Hey! Quick question for you")
	s.Require().NoError(err)

	s.Equal(executor.ResultSuccess, log.Result)
	s.Equal("Hey! Quick question for you", s.driver.Messages["target1"])
	s.Equal("27", log.Metadata["message_length"])
}

func (s *ExecutorTestSuite) TestExecuteUnfollow() {
	s.startSession()

	log, err := s.exec.ExecuteUnfollow(context.Background(), "acc1", "target1")
	s.Require().NoError(err)
	s.Equal(executor.ResultSuccess, log.Result)
	s.Equal(1, s.driver.CallCount("unfollow:"))
}

func (s *ExecutorTestSuite) TestExecuteLike() {
	s.startSession()

	log, err := s.exec.ExecuteLike(context.Background(), "acc1", "post123")
	s.Require().NoError(err)
	s.Equal(executor.ResultSuccess, log.Result)
	s.Equal(scheduler.ActionLike, log.ActionType)
}

func (s *ExecutorTestSuite) TestBatchFollow_Completes() {
	s.startSession()

	// Batch delays advance the fake clock past the follow spacing, so
	// every action clears the limiter.
	result, err := s.exec.BatchFollow(context.Background(), "task1", "acc1",
		[]string{"t1", "t2", "t3"}, [2]time.Duration{})
	s.Require().NoError(err)

	s.Equal(executor.StatusCompleted, result.Status)
	s.Equal(3, result.TotalActions)
	s.Equal(3, result.Successful)
	s.Equal(0, result.Failed)
	s.Len(result.ActionLogs, 3)
	s.InDelta(1.0, result.SuccessRate(), 0.001)
}

func (s *ExecutorTestSuite) TestBatchFollow_StopsOnRateLimit() {
	limits := scheduler.DefaultLimits()
	limits[scheduler.PlatformInstagram][scheduler.ActionFollow] = scheduler.RateLimitConfig{
		HourlyLimit: 2,
		DailyLimit:  10,
		MinInterval: time.Second,
		MaxInterval: 2 * time.Second,
	}
	limiter := scheduler.NewRateLimiter(logger.Nop(), nil,
		scheduler.WithClock(s.clock.Now),
		scheduler.WithLimits(limits),
	)
	limiter.RegisterAccount("acc1", scheduler.PlatformInstagram, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "UTC")

	exec := executor.NewExecutor(s.driver, logger.Nop(), nil,
		executor.WithRateLimiter(limiter),
		executor.WithClock(s.clock.Now),
		executor.WithSleep(func(_ context.Context, d time.Duration) error {
			s.clock.Advance(d)
			return nil
		}),
	)
	_, err := exec.StartSession(context.Background(), "acc1", "profile-1", scheduler.PlatformInstagram)
	s.Require().NoError(err)

	result, err := exec.BatchFollow(context.Background(), "task1", "acc1",
		[]string{"t1", "t2", "t3", "t4"}, [2]time.Duration{})
	s.Require().NoError(err)

	s.Equal(executor.StatusRateLimited, result.Status)
	s.Equal(2, result.Successful)
	s.Equal(1, result.RateLimited)
	s.Len(result.ActionLogs, 3)
}

func (s *ExecutorTestSuite) TestBatchFollow_NoSession() {
	result, err := s.exec.BatchFollow(context.Background(), "task1", "ghost", []string{"t1"}, [2]time.Duration{})
	s.Error(err)
	s.Equal(executor.StatusFailed, result.Status)
}

func (s *ExecutorTestSuite) TestBatchDM() {
	s.startSession()

	targets := []executor.DMTarget{
		{Username: "t1", Message: "hello t1"},
		{Username: "t2", Message: "hello t2"},
	}
	result, err := s.exec.BatchDM(context.Background(), "task2", "acc1", targets, [2]time.Duration{})
	s.Require().NoError(err)

	s.Equal(executor.StatusCompleted, result.Status)
	s.Equal(2, result.Successful)
	s.Equal("hello t2", s.driver.Messages["t2"])
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}
