package executor

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	minActionDelay = 2 * time.Second
	maxActionDelay = 8 * time.Second

	profileViewChance = 0.8
	scrollChance      = 0.7
	burstChance       = 0.15

	typingPerChar  = 50 * time.Millisecond
	maxTypingDelay = 10 * time.Second

	readingPerChar = 30 * time.Millisecond
	minReadingTime = time.Second
	maxReadingTime = 8 * time.Second
)

// Humanizer generates the pauses and side activity that make automated
// sessions look like a person at a phone.
type Humanizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewHumanizer() *Humanizer {
	return NewHumanizerSeeded(time.Now().UnixNano())
}

func NewHumanizerSeeded(seed int64) *Humanizer {
	return &Humanizer{rng: rand.New(rand.NewSource(seed))}
}

// ActionDelay is the generic pause before an action.
func (h *Humanizer) ActionDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return minActionDelay + time.Duration(h.rng.Float64()*float64(maxActionDelay-minActionDelay))
}

// TypingDelay models typing a message at roughly 50ms per character plus
// a bit of thinking time, capped so long messages do not stall a batch.
func (h *Humanizer) TypingDelay(message string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	d := time.Duration(len(message)) * typingPerChar
	d += time.Duration(1+2*h.rng.Float64()) * time.Second
	if d > maxTypingDelay {
		d = maxTypingDelay
	}
	return d
}

// ReadingDelay models skimming a profile or message before reacting.
func (h *Humanizer) ReadingDelay(textLen int) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	d := time.Duration(textLen) * readingPerChar
	if d < minReadingTime {
		d = minReadingTime
	}
	if d > maxReadingTime {
		d = maxReadingTime
	}
	jitter := time.Duration(h.rng.Float64() * float64(time.Second))
	return d + jitter
}

// ShouldViewProfile rolls whether to open the target's profile before a
// follow or DM.
func (h *Humanizer) ShouldViewProfile() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < profileViewChance
}

// ShouldScroll rolls whether to scroll the feed before the next action.
func (h *Humanizer) ShouldScroll() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < scrollChance
}

// BatchDelay is the pause between two actions in a batch. The delay is
// exponentially distributed within the range so most gaps are short with
// occasional long pauses, and a burst roll occasionally compresses it.
func (h *Humanizer) BatchDelay(min, max time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if max <= min {
		return min
	}
	if h.rng.Float64() < burstChance {
		return min + time.Duration(h.rng.Float64()*float64(min))/2
	}

	lambda := 1.0 / float64(max-min)
	exp := -math.Log(1.0-h.rng.Float64()) / lambda
	d := min + time.Duration(exp)
	if d > max {
		d = max
	}
	return d
}

// TimeOfDayFactor slows activity at night and speeds it up during peak
// engagement hours.
func (h *Humanizer) TimeOfDayFactor(t time.Time) float64 {
	hour := t.Hour()
	switch {
	case (hour >= 10 && hour <= 12) || (hour >= 14 && hour <= 16) || (hour >= 19 && hour <= 21):
		return 0.7
	case hour < 8 || hour > 22:
		return 2.0
	}
	return 1.0
}
