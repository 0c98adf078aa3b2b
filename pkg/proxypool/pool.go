package proxypool

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
)

// Filter narrows proxy selection. Zero values match everything.
type Filter struct {
	Country string
	Quality Quality
}

// Pool manages proxy inventory and sticky account assignments. An account
// keeps its proxy until it is released, rotated, or the proxy dies; this
// keeps each account's apparent location stable.
type Pool struct {
	mu          sync.RWMutex
	proxies     map[string]*ProxyConfig
	assignments map[string]string // account ID -> proxy ID

	now    func() time.Time
	rng    *rand.Rand
	log    logger.Logger
	events messaging.Publisher
}

func NewPool(log logger.Logger, events messaging.Publisher) *Pool {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	return &Pool{
		proxies:     make(map[string]*ProxyConfig),
		assignments: make(map[string]string),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         log,
		events:      events,
	}
}

// WithClock replaces the time source. Used in tests.
func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

// WithSeed replaces the random source with a deterministic one.
func (p *Pool) WithSeed(seed int64) *Pool {
	p.rng = rand.New(rand.NewSource(seed))
	return p
}

// Add registers a proxy. Missing IDs are generated; status defaults to
// active.
func (p *Pool) Add(proxy *ProxyConfig) error {
	if proxy.Host == "" || proxy.Port == 0 {
		return fmt.Errorf("proxy host and port are required")
	}
	if proxy.Protocol == "" {
		proxy.Protocol = ProtocolHTTP
	}
	if proxy.ID == "" {
		proxy.ID = uuid.New().String()
	}
	if proxy.Status == "" {
		proxy.Status = StatusActive
	}

	p.mu.Lock()
	p.proxies[proxy.ID] = proxy
	total := len(p.proxies)
	p.mu.Unlock()

	setPoolSize(total)
	p.log.Debug("Proxy added",
		logger.Field{Key: "proxy_id", Value: proxy.ID},
		logger.Field{Key: "host", Value: proxy.Host},
		logger.Field{Key: "quality", Value: string(proxy.Quality)},
	)
	return nil
}

// AddBatch registers many proxies, stopping at the first invalid one.
func (p *Pool) AddBatch(proxies []*ProxyConfig) error {
	for _, proxy := range proxies {
		if err := p.Add(proxy); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the proxy and drops any assignment pointing at it.
func (p *Pool) Remove(proxyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.proxies[proxyID]; !ok {
		return fmt.Errorf("%w: %s", ErrProxyNotFound, proxyID)
	}
	delete(p.proxies, proxyID)
	for account, id := range p.assignments {
		if id == proxyID {
			delete(p.assignments, account)
		}
	}
	setPoolSize(len(p.proxies))
	return nil
}

// Get returns a copy of the proxy.
func (p *Pool) Get(proxyID string) (*ProxyConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxy, ok := p.proxies[proxyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProxyNotFound, proxyID)
	}
	cp := *proxy
	return &cp, nil
}

// Available returns copies of proxies currently usable under the filter.
// Banned proxies never qualify; cooling proxies whose period has elapsed
// are reactivated on the spot.
func (p *Pool) Available(filter Filter) []*ProxyConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked(filter)
}

func (p *Pool) availableLocked(filter Filter) []*ProxyConfig {
	now := p.now()
	var out []*ProxyConfig
	for _, proxy := range p.proxies {
		if proxy.Status == StatusCooling && !now.Before(proxy.CoolingUntil) {
			proxy.Status = StatusActive
			proxy.CoolingUntil = time.Time{}
			proxy.ConsecutiveFails = 0
		}
		if proxy.Status != StatusActive && proxy.Status != StatusSlow {
			continue
		}
		if filter.Country != "" && proxy.Country != filter.Country {
			continue
		}
		if filter.Quality != "" && proxy.Quality != filter.Quality {
			continue
		}
		cp := *proxy
		out = append(out, &cp)
	}
	return out
}

// Best returns the healthiest available proxy: highest success rate,
// lowest latency breaking ties.
func (p *Pool) Best(filter Filter) (*ProxyConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestLocked(filter)
}

func (p *Pool) bestLocked(filter Filter) (*ProxyConfig, error) {
	candidates := p.availableLocked(filter)
	if len(candidates) == 0 {
		return nil, ErrPoolExhausted
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := candidates[i].SuccessRate(), candidates[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return candidates[i].AvgLatencyMS < candidates[j].AvgLatencyMS
	})
	return candidates[0], nil
}

// RandomAvailable returns a uniformly random available proxy. Useful when
// spreading fresh accounts across the pool instead of piling them onto
// the current best proxy.
func (p *Pool) RandomAvailable(filter Filter) (*ProxyConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.availableLocked(filter)
	if len(candidates) == 0 {
		return nil, ErrPoolExhausted
	}
	return candidates[p.rng.Intn(len(candidates))], nil
}

// Assign gives the account a proxy, returning the existing one if the
// account already holds a live assignment.
func (p *Pool) Assign(accountID string, filter Filter) (*ProxyConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proxyID, ok := p.assignments[accountID]; ok {
		if proxy, exists := p.proxies[proxyID]; exists && proxy.Status != StatusBanned {
			cp := *proxy
			return &cp, nil
		}
		delete(p.assignments, accountID)
	}

	best, err := p.bestLocked(filter)
	if err != nil {
		return nil, err
	}
	p.assignments[accountID] = best.ID
	setAssignedCount(len(p.assignments))

	p.log.Info("Proxy assigned",
		logger.Field{Key: "account_id", Value: accountID},
		logger.Field{Key: "proxy_id", Value: best.ID},
	)
	return best, nil
}

// AssignedProxy returns the account's current proxy.
func (p *Pool) AssignedProxy(accountID string) (*ProxyConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxyID, ok := p.assignments[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAssigned, accountID)
	}
	proxy, ok := p.proxies[proxyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProxyNotFound, proxyID)
	}
	cp := *proxy
	return &cp, nil
}

// Release frees the account's assignment.
func (p *Pool) Release(accountID string) {
	p.mu.Lock()
	delete(p.assignments, accountID)
	setAssignedCount(len(p.assignments))
	p.mu.Unlock()
}

// Rotate swaps the account onto a different proxy, avoiding the current
// one when any alternative exists.
func (p *Pool) Rotate(accountID string, filter Filter) (*ProxyConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	currentID := p.assignments[accountID]
	delete(p.assignments, accountID)

	candidates := p.availableLocked(filter)
	var filtered []*ProxyConfig
	for _, c := range candidates {
		if c.ID != currentID {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		filtered = candidates
	}
	if len(filtered) == 0 {
		return nil, ErrPoolExhausted
	}

	sort.Slice(filtered, func(i, j int) bool {
		ri, rj := filtered[i].SuccessRate(), filtered[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return filtered[i].AvgLatencyMS < filtered[j].AvgLatencyMS
	})

	next := filtered[0]
	p.assignments[accountID] = next.ID
	setAssignedCount(len(p.assignments))
	recordRotation()

	if err := p.events.Publish(messaging.EventsExchange, messaging.EventProxyRotated, messaging.NewMessage(messaging.EventProxyRotated, map[string]interface{}{
		"account_id": accountID,
		"from":       currentID,
		"to":         next.ID,
	})); err != nil {
		p.log.Error("Failed to publish rotation event", logger.Field{Key: "error", Value: err.Error()})
	}
	return next, nil
}

// MarkBanned flags the proxy as blocked by the platform. Banned proxies
// never return to rotation.
func (p *Pool) MarkBanned(proxyID string, reason string) error {
	p.mu.Lock()
	proxy, ok := p.proxies[proxyID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProxyNotFound, proxyID)
	}
	proxy.Status = StatusBanned
	p.mu.Unlock()

	recordStatusChange(string(StatusBanned))
	p.log.Warn("Proxy banned",
		logger.Field{Key: "proxy_id", Value: proxyID},
		logger.Field{Key: "reason", Value: reason},
	)

	if err := p.events.Publish(messaging.EventsExchange, messaging.EventProxyBanned, messaging.NewMessage(messaging.EventProxyBanned, map[string]interface{}{
		"proxy_id": proxyID,
		"reason":   reason,
	})); err != nil {
		p.log.Error("Failed to publish ban event", logger.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// Snapshot returns copies of every proxy for persistence.
func (p *Pool) Snapshot() []*ProxyConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*ProxyConfig, 0, len(p.proxies))
	for _, proxy := range p.proxies {
		cp := *proxy
		out = append(out, &cp)
	}
	return out
}

func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		Total:     len(p.proxies),
		Assigned:  len(p.assignments),
		ByStatus:  make(map[Status]int),
		ByQuality: make(map[Quality]int),
	}
	for _, proxy := range p.proxies {
		stats.ByStatus[proxy.Status]++
		stats.ByQuality[proxy.Quality]++
	}
	return stats
}

// update applies fn to the live proxy entry under the pool lock. Used by
// the health checker.
func (p *Pool) update(proxyID string, fn func(*ProxyConfig)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[proxyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProxyNotFound, proxyID)
	}
	fn(proxy)
	return nil
}
