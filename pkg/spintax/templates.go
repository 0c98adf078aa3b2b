package spintax

import (
	"fmt"
	"sync"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/grigta/outreach/pkg/logger"
)

// Weight given to a template that has never been used, so new templates get
// traffic without dominating proven ones. Templates with a known success
// rate never drop below minTemplateWeight.
const (
	untestedTemplateWeight = 0.5
	minTemplateWeight      = 0.1
)

type MessageTemplate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Platform     string    `json:"platform,omitempty"`
	Content      string    `json:"content"`
	Variables    []string  `json:"variables,omitempty"`
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// SuccessRate is successes over uses. Zero uses reports zero.
func (t *MessageTemplate) SuccessRate() float64 {
	if t.UsageCount == 0 {
		return 0
	}
	return float64(t.SuccessCount) / float64(t.UsageCount)
}

type GeneratedMessage struct {
	TemplateID string            `json:"template_id"`
	Text       string            `json:"text"`
	Variables  map[string]string `json:"variables,omitempty"`
}

var (
	ErrTemplateNotFound = fmt.Errorf("template not found")
	ErrNoTemplates      = fmt.Errorf("no templates match")
)

// Registry holds message templates and picks between them, weighting the
// choice by observed reply rate.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*MessageTemplate
	engine    *Engine
	src       exprand.Source
	log       logger.Logger
}

func NewRegistry(engine *Engine, log logger.Logger) *Registry {
	return NewRegistrySeeded(engine, log, uint64(time.Now().UnixNano()))
}

func NewRegistrySeeded(engine *Engine, log logger.Logger, seed uint64) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{
		templates: make(map[string]*MessageTemplate),
		engine:    engine,
		src:       exprand.NewSource(seed),
		log:       log,
	}
	for _, t := range DefaultTemplates() {
		r.templates[t.ID] = t
	}
	return r
}

// Add validates the template's spintax before accepting it.
func (r *Registry) Add(t *MessageTemplate) error {
	validation := r.engine.Validate(t.Content)
	if !validation.Valid {
		return fmt.Errorf("invalid template %q: %v", t.ID, validation.Issues)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Variables = validation.Variables
	r.templates[t.ID] = t

	r.log.Debug("Template registered",
		logger.Field{Key: "template_id", Value: t.ID},
		logger.Field{Key: "category", Value: t.Category},
	)
	return nil
}

func (r *Registry) Get(id string) (*MessageTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// List returns templates filtered by category and platform. Empty filter
// values match everything; a template with no platform matches any platform.
func (r *Registry) List(category, platform string) []*MessageTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*MessageTemplate
	for _, t := range r.templates {
		if category != "" && t.Category != category {
			continue
		}
		if platform != "" && t.Platform != "" && t.Platform != platform {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Generate renders the given template and counts the use.
func (r *Registry) Generate(id string, vars map[string]string) (*GeneratedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	t.UsageCount++
	return &GeneratedMessage{
		TemplateID: t.ID,
		Text:       r.engine.Render(t.Content, vars),
		Variables:  vars,
	}, nil
}

// GenerateRandom renders one template from the category, sampled with a
// weight proportional to each template's reply rate.
func (r *Registry) GenerateRandom(category, platform string, vars map[string]string) (*GeneratedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*MessageTemplate
	for _, t := range r.templates {
		if t.Category != category {
			continue
		}
		if platform != "" && t.Platform != "" && t.Platform != platform {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: category %q", ErrNoTemplates, category)
	}

	weights := make([]float64, len(candidates))
	for i, t := range candidates {
		if t.UsageCount == 0 {
			weights[i] = untestedTemplateWeight
			continue
		}
		weights[i] = t.SuccessRate()
		if weights[i] < minTemplateWeight {
			weights[i] = minTemplateWeight
		}
	}

	picked := candidates[0]
	if idx, ok := sampleuv.NewWeighted(weights, r.src).Take(); ok {
		picked = candidates[idx]
	}

	picked.UsageCount++
	return &GeneratedMessage{
		TemplateID: picked.ID,
		Text:       r.engine.Render(picked.Content, vars),
		Variables:  vars,
	}, nil
}

// RecordSuccess marks one use of the template as successful, e.g. the
// recipient replied.
func (r *Registry) RecordSuccess(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	t.SuccessCount++
	return nil
}

// Preview returns n sample renderings without counting usage.
func (r *Registry) Preview(id string, vars map[string]string, n int) ([]string, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	samples := make([]string, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, r.engine.Render(t.Content, vars))
	}
	return samples, nil
}

type RegistryStats struct {
	TotalTemplates  int                `json:"total_templates"`
	TotalUsage      int                `json:"total_usage"`
	MeanSuccessRate float64            `json:"mean_success_rate"`
	ByTemplate      map[string]float64 `json:"by_template"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		TotalTemplates: len(r.templates),
		ByTemplate:     make(map[string]float64, len(r.templates)),
	}

	var rates []float64
	for id, t := range r.templates {
		stats.TotalUsage += t.UsageCount
		rate := t.SuccessRate()
		stats.ByTemplate[id] = rate
		if t.UsageCount > 0 {
			rates = append(rates, rate)
		}
	}
	if len(rates) > 0 {
		stats.MeanSuccessRate = stat.Mean(rates, nil)
	}
	return stats
}

// DefaultTemplates is the stock outreach template set. Callers normally
// extend it through Add.
func DefaultTemplates() []*MessageTemplate {
	now := time.Now().UTC()
	templates := []*MessageTemplate{
		{
			ID:       "opening_friendly",
			Name:     "Friendly opener",
			Category: "opening",
			Content:  "{Hey|Hi|Hello} [name]! {Just saw|Came across|Noticed} your {profile|page} and {really liked|loved} your {content|posts}. {How's it going?|Hope you're having a great day!}",
		},
		{
			ID:       "opening_professional",
			Name:     "Professional opener",
			Category: "opening",
			Content:  "{Hello|Hi} [name], {I noticed|I came across} your work in [niche] and {was impressed|found it really interesting}. {Would love to connect.|Thought I'd reach out.}",
		},
		{
			ID:       "value_proposition",
			Name:     "Value proposition",
			Category: "value",
			Content:  "{We help|I help} people in [niche] {grow their audience|get more clients|scale their business} {without|with zero} {paid ads|big budgets}. {Interested?|Want to hear more?|Curious?}",
		},
		{
			ID:       "whatsapp_invite",
			Name:     "Move to WhatsApp",
			Category: "invite",
			Content:  "{By the way|Btw}, {it's easier|it would be easier} to {chat|talk} on WhatsApp. {Here's my number|You can reach me at} [phone]. {Message me|Text me} {anytime|when you're free}!",
		},
		{
			ID:       "objection_why_whatsapp",
			Name:     "Objection: why WhatsApp",
			Category: "objection",
			Content:  "{Good question!|Fair enough!} {I check|We use} WhatsApp {much more often|way more}, so {I can reply faster|you'll get quicker answers} {there|over there}. {No pressure though!|Totally up to you.}",
		},
		{
			ID:       "objection_trust",
			Name:     "Objection: trust",
			Category: "objection",
			Content:  "{Totally understand|I get it}, {there's a lot of spam|lots of scams} out there. {Feel free to|You can} check {my profile|our page} {first|before deciding}. {No rush.|Take your time.}",
		},
		{
			ID:       "follow_up_no_reply",
			Name:     "Follow up after silence",
			Category: "follow_up",
			Content:  "{Hey|Hi} [name], {just following up|just checking in} {on my last message|in case you missed my message}. {Still interested?|Would love to hear from you!}",
		},
	}
	engine := NewEngine()
	for _, t := range templates {
		t.CreatedAt = now
		t.Variables = engine.Variables(t.Content)
	}
	return templates
}
