package spintax

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	spinPattern     = regexp.MustCompile(`\{([^{}]+)\}`)
	variablePattern = regexp.MustCompile(`\[([a-zA-Z_][a-zA-Z0-9_]*)\]`)
)

// maxSpinIterations bounds nested group resolution so a malformed template
// cannot loop forever.
const maxSpinIterations = 10

// Engine renders spintax templates. The pattern {a|b|c} picks one
// alternative at random; groups may be nested, innermost groups resolve
// first. [name] placeholders are substituted after spinning so variable
// values are never re-interpreted as spintax.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine() *Engine {
	return NewEngineSeeded(time.Now().UnixNano())
}

// NewEngineSeeded returns an engine with a deterministic random source.
func NewEngineSeeded(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Spin resolves all spintax groups in text.
func (e *Engine) Spin(text string) string {
	result := text
	for i := 0; i < maxSpinIterations; i++ {
		if !spinPattern.MatchString(result) {
			break
		}
		result = spinPattern.ReplaceAllStringFunc(result, func(match string) string {
			options := strings.Split(match[1:len(match)-1], "|")
			e.mu.Lock()
			choice := options[e.rng.Intn(len(options))]
			e.mu.Unlock()
			return choice
		})
	}
	return result
}

// ReplaceVariables substitutes [placeholders] with values. Placeholders
// without a value are left untouched.
func (e *Engine) ReplaceVariables(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Render spins the template, then substitutes variables. Order matters:
// [name] tokens survive Spin untouched, and a substituted value
// containing braces must not be spun.
func (e *Engine) Render(text string, vars map[string]string) string {
	return e.ReplaceVariables(e.Spin(text), vars)
}

// Variables returns the distinct placeholder names in text, in order of
// first appearance.
func (e *Engine) Variables(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Issues    []string `json:"issues,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Sample    string   `json:"sample"`
}

// Validate checks brace balance and empty alternatives, and produces one
// sample rendering with placeholders left intact.
func (e *Engine) Validate(text string) ValidationResult {
	result := ValidationResult{Valid: true}

	depth := 0
	for _, r := range text {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				result.Valid = false
				result.Issues = append(result.Issues, "unbalanced braces: '}' without matching '{'")
				depth = 0
			}
		}
	}
	if depth > 0 {
		result.Valid = false
		result.Issues = append(result.Issues, "unbalanced braces: unclosed '{'")
	}

	for _, match := range spinPattern.FindAllStringSubmatch(text, -1) {
		for _, option := range strings.Split(match[1], "|") {
			if strings.TrimSpace(option) == "" {
				result.Valid = false
				result.Issues = append(result.Issues, "empty alternative in group {"+match[1]+"}")
				break
			}
		}
	}

	result.Variables = e.Variables(text)
	result.Sample = e.Spin(text)
	return result
}
