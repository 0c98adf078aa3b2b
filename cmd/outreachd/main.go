package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grigta/outreach/pkg/cache"
	"github.com/grigta/outreach/pkg/config"
	"github.com/grigta/outreach/pkg/contentsync"
	"github.com/grigta/outreach/pkg/convflow"
	"github.com/grigta/outreach/pkg/crypto"
	"github.com/grigta/outreach/pkg/database"
	"github.com/grigta/outreach/pkg/executor"
	"github.com/grigta/outreach/pkg/followback"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
	"github.com/grigta/outreach/pkg/proxypool"
	"github.com/grigta/outreach/pkg/scheduler"
	"github.com/grigta/outreach/pkg/spintax"
	"github.com/grigta/outreach/pkg/store"
	"github.com/grigta/outreach/pkg/tzsched"
)

const (
	healthCheckInterval = 5 * time.Minute
	snapshotInterval    = 5 * time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadConfig()

	format := "json"
	if cfg.App.Env == "development" {
		format = "text"
	}
	log := logger.New(cfg.App.LogLevel, format)

	var encryptor *crypto.Encryptor
	if cfg.Encryption.Key != "" {
		var err error
		encryptor, err = crypto.NewEncryptor(cfg.Encryption.Key)
		if err != nil {
			log.Fatal("Failed to create encryptor", logger.Field{Key: "error", Value: err})
		}
	}

	mongodb, err := database.NewMongoDB(cfg.Mongo.URI, cfg.Mongo.DBName, 10*time.Second)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", logger.Field{Key: "error", Value: err})
	}
	defer mongodb.Close()

	redis, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", logger.Field{Key: "error", Value: err})
	}
	defer redis.Close()

	rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", logger.Field{Key: "error", Value: err})
	}
	defer rabbitmq.Close()

	if err := rabbitmq.SetupTopology(); err != nil {
		log.Fatal("Failed to set up RabbitMQ topology", logger.Field{Key: "error", Value: err})
	}

	mongoStore := store.NewMongoStore(mongodb, log)
	if err := mongoStore.EnsureIndexes(); err != nil {
		log.WithError(err).Error("Failed to create indexes")
	}
	stateCache := store.NewStateCache(redis, log)

	limiter := scheduler.NewRateLimiter(log, rabbitmq,
		scheduler.WithWorkHours(cfg.Limits.WorkHourStart, cfg.Limits.WorkHourEnd))
	restoreScheduleStates(ctx, mongoStore, limiter, log)

	pool := proxypool.NewPool(log, rabbitmq)
	if loaded, err := pool.LoadFromFile(cfg.Proxy.InventoryPath, encryptor); err != nil {
		log.WithError(err).Warn("Failed to load proxy inventory")
	} else {
		log.Info("Loaded proxy inventory", logger.Field{Key: "proxies", Value: loaded})
	}

	probe := proxypool.NewHTTPProbe(cfg.Proxy.CheckURL, cfg.Proxy.CheckTimeout)
	healthChecker := proxypool.NewHealthChecker(pool, probe, log, rabbitmq,
		proxypool.WithMaxFailedChecks(cfg.Proxy.MaxFailedChecks),
		proxypool.WithCoolingPeriod(cfg.Proxy.CoolingPeriod))

	driver := executor.NewPlaywrightDriver(cfg.Browser.Headless, log)
	if err := driver.Start(); err != nil {
		log.Fatal("Failed to start browser driver", logger.Field{Key: "error", Value: err})
	}
	defer driver.Stop()

	checker := &sessionChecker{driver: driver}
	detector := followback.NewDetector(checker, log, rabbitmq,
		followback.WithTimeout(time.Duration(cfg.FollowBack.TimeoutDays)*24*time.Hour),
		followback.WithMinCheckInterval(cfg.FollowBack.MinCheckInterval))
	if rels, err := mongoStore.AllRelationships(ctx); err != nil {
		log.WithError(err).Warn("Failed to restore relationships")
	} else if len(rels) > 0 {
		detector.Restore(rels)
		log.Info("Restored relationships", logger.Field{Key: "count", Value: len(rels)})
	}

	exec := executor.NewExecutor(driver, log, rabbitmq,
		executor.WithRateLimiter(limiter),
		executor.WithProxyPool(pool),
		executor.WithDetector(detector))
	checker.exec = exec

	engine := spintax.NewEngine()
	templates := spintax.NewRegistry(engine, log)
	for _, tmpl := range spintax.DefaultTemplates() {
		if err := templates.Add(tmpl); err != nil {
			log.WithError(err).Warn("Failed to register template", logger.Field{Key: "template", Value: tmpl.ID})
		}
	}

	flows := convflow.NewEngine(templates, log, rabbitmq,
		convflow.WithEscalationThreshold(cfg.Conversation.EscalationThreshold))
	if count, err := flows.LoadFlowsFromDir(cfg.Conversation.FlowsPath); err != nil {
		log.WithError(err).Warn("Failed to load conversation flows")
	} else if count > 0 {
		log.Info("Loaded conversation flows", logger.Field{Key: "count", Value: count})
	}

	timezones := tzsched.NewScheduler(log)
	log.Info("Initialized region schedules",
		logger.Field{Key: "active_regions", Value: len(timezones.ActiveRegions())})

	var scraper contentsync.Scraper
	if cfg.ContentSync.ApifyToken != "" {
		scraper = contentsync.NewApifyScraper(cfg.ContentSync.ApifyToken, log)
	} else {
		log.Warn("Apify token not configured, content sync will use sample data")
		scraper = contentsync.NewSampleScraper()
	}
	syncService := contentsync.NewService(scraper, log)
	if err := startContentSyncConsumer(ctx, rabbitmq, syncService, cfg, log); err != nil {
		log.WithError(err).Warn("Content sync consumer not started")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthChecker.Run(ctx, healthCheckInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runFollowBackLoop(ctx, exec, detector, cfg.FollowBack.MinCheckInterval, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSnapshotLoop(ctx, mongoStore, stateCache, limiter, detector, pool, log)
	}()

	metricsServer := &http.Server{Addr: cfg.App.MetricsAddr, Handler: promhttp.Handler()}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Metrics server listening", logger.Field{Key: "addr", Value: cfg.App.MetricsAddr})
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = metricsServer.Shutdown(shutdownCtx)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	}

	persistSnapshots(shutdownCtx, mongoStore, stateCache, limiter, detector, pool, log)
	log.Info("Shutdown complete")
}

// sessionChecker probes follow-back status through the account's live
// browser session.
type sessionChecker struct {
	exec   *executor.Executor
	driver executor.Driver
}

func (c *sessionChecker) IsFollowingBack(ctx context.Context, accountID, targetID string) (bool, error) {
	session, err := c.exec.Session(accountID)
	if err != nil {
		return false, err
	}
	return c.driver.IsFollowingBack(ctx, session, targetID)
}

type contentSyncCommand struct {
	SourceID      string   `json:"source_id"`
	Platform      string   `json:"platform"`
	Username      string   `json:"username"`
	SubAccountIDs []string `json:"sub_account_ids"`
	Count         int      `json:"count"`
}

// startContentSyncConsumer reacts to sync requests published on the
// events exchange by scraping the source and scheduling spun reposts.
func startContentSyncConsumer(ctx context.Context, rabbitmq *messaging.RabbitMQ, syncService *contentsync.Service, cfg *config.Config, log logger.Logger) error {
	const queueName = "outreach.content-sync"

	if _, err := rabbitmq.DeclareQueue(queueName, true, false, false); err != nil {
		return err
	}
	if err := rabbitmq.BindQueue(queueName, messaging.EventContentSyncRequested, messaging.EventsExchange); err != nil {
		return err
	}

	return rabbitmq.ConsumeWithHandler(ctx, queueName, "outreachd", func(body []byte) error {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return err
		}

		var command contentSyncCommand
		if err := json.Unmarshal(envelope.Data, &command); err != nil {
			return err
		}
		if command.Count <= 0 {
			command.Count = 10
		}

		contents, err := syncService.ScrapePosts(ctx, command.Platform, command.Username, command.Count)
		if err != nil {
			return err
		}

		jobs := syncService.CreateSyncJobs(command.SourceID, command.SubAccountIDs, contents,
			cfg.ContentSync.StartDelay, cfg.ContentSync.MinGap, cfg.ContentSync.MaxGap)
		log.Info("Scheduled content sync jobs",
			logger.Field{Key: "source", Value: command.Username},
			logger.Field{Key: "jobs", Value: len(jobs)})
		return nil
	})
}

func restoreScheduleStates(ctx context.Context, mongoStore *store.MongoStore, limiter *scheduler.RateLimiter, log logger.Logger) {
	states, err := mongoStore.ScheduleStates(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to restore schedule states")
		return
	}
	for _, state := range states {
		limiter.RestoreState(state)
	}
	if len(states) > 0 {
		log.Info("Restored schedule states", logger.Field{Key: "count", Value: len(states)})
	}
}

// runFollowBackLoop periodically re-checks pending follows for every
// account with a live session and unfollows the ones that timed out.
func runFollowBackLoop(ctx context.Context, exec *executor.Executor, detector *followback.Detector, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, accountID := range exec.Sessions() {
				pending := detector.PendingChecks(accountID)
				targets := make([]string, 0, len(pending))
				for _, rel := range pending {
					targets = append(targets, rel.TargetID)
				}
				if len(targets) > 0 {
					result := detector.CheckBatch(ctx, accountID, targets)
					if result.NewMutual > 0 {
						log.Info("New mutual follows",
							logger.Field{Key: "account_id", Value: accountID},
							logger.Field{Key: "count", Value: result.NewMutual})
					}
				}

				unfollowed, err := detector.ProcessTimeouts(ctx, accountID, func(ctx context.Context, targetID string) error {
					_, err := exec.ExecuteUnfollow(ctx, accountID, targetID)
					return err
				})
				if err != nil {
					log.WithError(err).Warn("Timeout processing incomplete",
						logger.Field{Key: "account_id", Value: accountID})
				}
				if len(unfollowed) > 0 {
					log.Info("Unfollowed expired targets",
						logger.Field{Key: "account_id", Value: accountID},
						logger.Field{Key: "count", Value: len(unfollowed)})
				}
			}
		}
	}
}

func runSnapshotLoop(ctx context.Context, mongoStore *store.MongoStore, stateCache *store.StateCache, limiter *scheduler.RateLimiter, detector *followback.Detector, pool *proxypool.Pool, log logger.Logger) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			persistSnapshots(ctx, mongoStore, stateCache, limiter, detector, pool, log)
		}
	}
}

func persistSnapshots(ctx context.Context, mongoStore *store.MongoStore, stateCache *store.StateCache, limiter *scheduler.RateLimiter, detector *followback.Detector, pool *proxypool.Pool, log logger.Logger) {
	states := limiter.Snapshot()
	if err := mongoStore.SaveScheduleStates(ctx, states); err != nil {
		log.WithError(err).Warn("Failed to persist schedule states")
	}
	if err := stateCache.SaveScheduleStates(ctx, states); err != nil {
		log.WithError(err).Warn("Failed to cache schedule states")
	}

	if err := mongoStore.SaveRelationships(ctx, detector.Snapshot()); err != nil {
		log.WithError(err).Warn("Failed to persist relationships")
	}

	if err := mongoStore.SaveProxies(ctx, pool.Snapshot()); err != nil {
		log.WithError(err).Warn("Failed to persist proxies")
	}
}
