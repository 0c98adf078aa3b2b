package contentsync

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/grigta/outreach/pkg/spintax"
)

// greetingSpintax opens a spun post so two sub-accounts never start the
// same way.
const greetingSpintax = "{Hey|Hi|Hello|What's up} {everyone|folks|friends|people}{!|!!|...}"

type replacement struct {
	word string
	alts []string
	re   *regexp.Regexp
}

// wordReplacements are applied probabilistically while spinning. Order
// matters so spins stay reproducible under a fixed seed.
var wordReplacements = []replacement{
	{word: "amazing", alts: []string{"incredible", "awesome", "fantastic", "great"}},
	{word: "important", alts: []string{"crucial", "vital", "essential", "key"}},
	{word: "think", alts: []string{"believe", "feel", "consider", "reckon"}},
	{word: "share", alts: []string{"post", "put out", "drop"}},
	{word: "check out", alts: []string{"take a look at", "have a look at", "see"}},
}

func init() {
	for i := range wordReplacements {
		wordReplacements[i].re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(wordReplacements[i].word) + `\b`)
	}
}

// Spinner rewrites scraped text just enough that reposts do not look
// copy-pasted.
type Spinner struct {
	mu     sync.Mutex
	rng    *rand.Rand
	engine *spintax.Engine
}

func NewSpinner() *Spinner {
	return NewSpinnerSeeded(time.Now().UnixNano())
}

func NewSpinnerSeeded(seed int64) *Spinner {
	return &Spinner{
		rng:    rand.New(rand.NewSource(seed)),
		engine: spintax.NewEngineSeeded(seed),
	}
}

// Spin rewrites text with the given variation level between 0 (return as
// is) and 1 (replace every known word). Each known word is swapped at
// most once, keeping the case of the original occurrence.
func (s *Spinner) Spin(text string, level float64) string {
	if text == "" {
		return text
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := text
	for _, rep := range wordReplacements {
		if s.rng.Float64() >= level {
			continue
		}
		loc := rep.re.FindStringIndex(result)
		if loc == nil {
			continue
		}
		alt := rep.alts[s.rng.Intn(len(rep.alts))]
		if startsUpper(result[loc[0]:loc[1]]) {
			alt = capitalize(alt)
		}
		result = result[:loc[0]] + alt + result[loc[1]:]
	}

	// Occasionally flip the closing punctuation.
	if s.rng.Float64() < level*0.5 {
		switch {
		case strings.HasSuffix(result, "!"):
			result = result[:len(result)-1] + "."
		case strings.HasSuffix(result, ".") && s.rng.Float64() < 0.5:
			result = result[:len(result)-1] + "!"
		}
	}

	return result
}

// Greeting renders a fresh opener line.
func (s *Spinner) Greeting() string {
	return s.engine.Spin(greetingSpintax)
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func capitalize(word string) string {
	for i, r := range word {
		return string(unicode.ToUpper(r)) + word[i+len(string(r)):]
	}
	return word
}
