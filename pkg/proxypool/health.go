package proxypool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
)

const (
	defaultCheckURL      = "https://httpbin.org/ip"
	defaultCheckTimeout  = 10 * time.Second
	defaultMaxFailed     = 3
	defaultCoolingPeriod = 30 * time.Minute
	defaultSlowLatencyMS = 5000.0
	defaultMaxConcurrent = 10
)

// Probe measures a proxy once. Production code uses HTTPProbe; tests
// substitute a local server or a stub.
type Probe interface {
	Check(ctx context.Context, proxy *ProxyConfig) (latencyMS float64, externalIP string, err error)
}

// HTTPProbe routes a request through the proxy to an IP echo endpoint and
// measures the round trip.
type HTTPProbe struct {
	CheckURL string
	Timeout  time.Duration
}

func NewHTTPProbe(checkURL string, timeout time.Duration) *HTTPProbe {
	if checkURL == "" {
		checkURL = defaultCheckURL
	}
	if timeout == 0 {
		timeout = defaultCheckTimeout
	}
	return &HTTPProbe{CheckURL: checkURL, Timeout: timeout}
}

func (p *HTTPProbe) Check(ctx context.Context, proxy *ProxyConfig) (float64, string, error) {
	proxyURL, err := url.Parse(proxy.ConnectionString())
	if err != nil {
		return 0, "", fmt.Errorf("invalid proxy URL: %w", err)
	}

	client := &http.Client{
		Timeout: p.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.CheckURL, nil)
	if err != nil {
		return 0, "", err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("proxy check failed: %w", err)
	}
	defer resp.Body.Close()
	latency := float64(time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return latency, "", fmt.Errorf("proxy check returned status %d", resp.StatusCode)
	}

	var body struct {
		Origin string `json:"origin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return latency, "", fmt.Errorf("failed to decode check response: %w", err)
	}
	return latency, body.Origin, nil
}

// HealthChecker probes proxies and folds results back into the pool:
// running average latency, slow flagging, and cooling after repeated
// failures.
type HealthChecker struct {
	pool  *Pool
	probe Probe

	maxFailedChecks int
	coolingPeriod   time.Duration
	slowLatencyMS   float64
	maxConcurrent   int

	log    logger.Logger
	events messaging.Publisher
}

type CheckerOption func(*HealthChecker)

func WithMaxFailedChecks(n int) CheckerOption {
	return func(h *HealthChecker) { h.maxFailedChecks = n }
}

func WithCoolingPeriod(d time.Duration) CheckerOption {
	return func(h *HealthChecker) { h.coolingPeriod = d }
}

func WithSlowLatency(ms float64) CheckerOption {
	return func(h *HealthChecker) { h.slowLatencyMS = ms }
}

func WithMaxConcurrent(n int) CheckerOption {
	return func(h *HealthChecker) { h.maxConcurrent = n }
}

func NewHealthChecker(pool *Pool, probe Probe, log logger.Logger, events messaging.Publisher, opts ...CheckerOption) *HealthChecker {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	h := &HealthChecker{
		pool:            pool,
		probe:           probe,
		maxFailedChecks: defaultMaxFailed,
		coolingPeriod:   defaultCoolingPeriod,
		slowLatencyMS:   defaultSlowLatencyMS,
		maxConcurrent:   defaultMaxConcurrent,
		log:             log,
		events:          events,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Check probes one proxy and updates its health record.
func (h *HealthChecker) Check(ctx context.Context, proxyID string) (*HealthCheckResult, error) {
	proxy, err := h.pool.Get(proxyID)
	if err != nil {
		return nil, err
	}

	result := &HealthCheckResult{
		ProxyID:   proxyID,
		CheckedAt: h.pool.now(),
	}

	latency, externalIP, probeErr := h.probe.Check(ctx, proxy)
	if probeErr != nil {
		result.Error = probeErr.Error()
	} else {
		result.Healthy = true
		result.LatencyMS = latency
		result.ExternalIP = externalIP
	}

	updateErr := h.pool.update(proxyID, func(p *ProxyConfig) {
		p.TotalChecks++
		p.LastCheckAt = result.CheckedAt

		if probeErr != nil {
			p.FailedChecks++
			p.ConsecutiveFails++
			if p.Status != StatusBanned {
				p.Status = StatusFailed
				if p.ConsecutiveFails >= h.maxFailedChecks {
					p.Status = StatusCooling
					p.CoolingUntil = result.CheckedAt.Add(h.coolingPeriod)
				}
			}
			return
		}

		p.ConsecutiveFails = 0
		p.ExternalIP = externalIP
		// Running average over successful checks.
		successes := p.TotalChecks - p.FailedChecks
		p.AvgLatencyMS = (p.AvgLatencyMS*float64(successes-1) + latency) / float64(successes)

		if p.Status != StatusBanned {
			if latency >= h.slowLatencyMS {
				p.Status = StatusSlow
			} else {
				p.Status = StatusActive
			}
		}
	})
	if updateErr != nil {
		return nil, updateErr
	}

	recordHealthCheck(result.Healthy)
	if !result.Healthy {
		h.log.Warn("Proxy health check failed",
			logger.Field{Key: "proxy_id", Value: proxyID},
			logger.Field{Key: "error", Value: result.Error},
		)
		if updated, err := h.pool.Get(proxyID); err == nil && updated.Status == StatusCooling {
			recordStatusChange(string(StatusCooling))
			if err := h.events.Publish(messaging.EventsExchange, messaging.EventProxyCooling, messaging.NewMessage(messaging.EventProxyCooling, map[string]interface{}{
				"proxy_id":      proxyID,
				"cooling_until": updated.CoolingUntil,
			})); err != nil {
				h.log.Error("Failed to publish proxy cooling event", logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}
	return result, nil
}

// CheckAll probes every proxy with bounded concurrency.
func (h *HealthChecker) CheckAll(ctx context.Context) []*HealthCheckResult {
	proxies := h.pool.Snapshot()

	sem := make(chan struct{}, h.maxConcurrent)
	results := make([]*HealthCheckResult, len(proxies))
	var wg sync.WaitGroup

	for i, proxy := range proxies {
		wg.Add(1)
		go func(i int, proxyID string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = &HealthCheckResult{ProxyID: proxyID, Error: ctx.Err().Error(), CheckedAt: h.pool.now()}
				return
			}

			result, err := h.Check(ctx, proxyID)
			if err != nil {
				result = &HealthCheckResult{ProxyID: proxyID, Error: err.Error(), CheckedAt: h.pool.now()}
			}
			results[i] = result
		}(i, proxy.ID)
	}
	wg.Wait()
	return results
}

// Run probes the whole pool on an interval until the context is cancelled.
func (h *HealthChecker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}
