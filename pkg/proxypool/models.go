package proxypool

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS5 Protocol = "socks5"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusSlow    Status = "slow"
	StatusFailed  Status = "failed"
	StatusBanned  Status = "banned"
	StatusCooling Status = "cooling"
)

type Quality string

const (
	QualityResidential Quality = "residential"
	QualityDatacenter  Quality = "datacenter"
	QualityMobile      Quality = "mobile"
)

var (
	ErrPoolExhausted = errors.New("proxy pool exhausted")
	ErrProxyNotFound = errors.New("proxy not found")
	ErrNotAssigned   = errors.New("account has no assigned proxy")
)

// ProxyConfig describes one upstream proxy and its observed health.
type ProxyConfig struct {
	ID       string   `json:"id" yaml:"id" bson:"_id"`
	Host     string   `json:"host" yaml:"host" bson:"host"`
	Port     int      `json:"port" yaml:"port" bson:"port"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty" bson:"username,omitempty"`
	Password string   `json:"-" yaml:"password,omitempty" bson:"password,omitempty"`
	Protocol Protocol `json:"protocol" yaml:"protocol" bson:"protocol"`
	Quality  Quality  `json:"quality" yaml:"quality" bson:"quality"`
	Country  string   `json:"country,omitempty" yaml:"country,omitempty" bson:"country,omitempty"`
	Provider string   `json:"provider,omitempty" yaml:"provider,omitempty" bson:"provider,omitempty"`

	Status           Status    `json:"status" yaml:"-" bson:"status"`
	TotalChecks      int       `json:"total_checks" yaml:"-" bson:"total_checks"`
	FailedChecks     int       `json:"failed_checks" yaml:"-" bson:"failed_checks"`
	ConsecutiveFails int       `json:"consecutive_fails" yaml:"-" bson:"consecutive_fails"`
	AvgLatencyMS     float64   `json:"avg_latency_ms" yaml:"-" bson:"avg_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at,omitempty" yaml:"-" bson:"last_check_at,omitempty"`
	CoolingUntil     time.Time `json:"cooling_until,omitempty" yaml:"-" bson:"cooling_until,omitempty"`
	ExternalIP       string    `json:"external_ip,omitempty" yaml:"-" bson:"external_ip,omitempty"`
}

// SuccessRate is 1 minus the failure ratio. A proxy with no checks yet
// reports a perfect rate so it gets tried.
func (p *ProxyConfig) SuccessRate() float64 {
	if p.TotalChecks == 0 {
		return 1.0
	}
	return 1.0 - float64(p.FailedChecks)/float64(p.TotalChecks)
}

// ConnectionString renders the proxy as a URL usable by HTTP transports.
func (p *ProxyConfig) ConnectionString() string {
	if p.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Protocol, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
}

// PlaywrightProxy maps the config to a browser launch option.
func (p *ProxyConfig) PlaywrightProxy() *playwright.Proxy {
	proxy := &playwright.Proxy{
		Server: fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port),
	}
	if p.Username != "" {
		proxy.Username = playwright.String(p.Username)
		proxy.Password = playwright.String(p.Password)
	}
	return proxy
}

type HealthCheckResult struct {
	ProxyID    string    `json:"proxy_id"`
	Healthy    bool      `json:"healthy"`
	LatencyMS  float64   `json:"latency_ms,omitempty"`
	ExternalIP string    `json:"external_ip,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

type PoolStats struct {
	Total     int             `json:"total"`
	Assigned  int             `json:"assigned"`
	ByStatus  map[Status]int  `json:"by_status"`
	ByQuality map[Quality]int `json:"by_quality"`
}
