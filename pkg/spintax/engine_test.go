package spintax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpin_SingleGroup(t *testing.T) {
	engine := NewEngineSeeded(1)

	for i := 0; i < 50; i++ {
		result := engine.Spin("{Hello|Hi|Hey} world")
		assert.Contains(t, []string{"Hello world", "Hi world", "Hey world"}, result)
	}
}

func TestSpin_NoGroups(t *testing.T) {
	engine := NewEngineSeeded(1)
	assert.Equal(t, "plain text", engine.Spin("plain text"))
}

func TestSpin_NestedGroups(t *testing.T) {
	engine := NewEngineSeeded(42)

	valid := map[string]bool{
		"a": true, "b": true, "c": true,
	}
	for i := 0; i < 100; i++ {
		result := engine.Spin("{a|{b|c}}")
		assert.True(t, valid[result], "unexpected rendering %q", result)
	}
}

func TestSpin_AllAlternativesReachable(t *testing.T) {
	engine := NewEngineSeeded(7)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		seen[engine.Spin("{a|b|c|d}")] = true
	}
	assert.Len(t, seen, 4, "every alternative should appear eventually")
}

func TestSpin_MalformedUnclosedBrace(t *testing.T) {
	engine := NewEngineSeeded(1)
	// No complete group matches, text passes through untouched.
	assert.Equal(t, "{a|b", engine.Spin("{a|b"))
}

func TestReplaceVariables(t *testing.T) {
	engine := NewEngineSeeded(1)

	tests := []struct {
		name     string
		text     string
		vars     map[string]string
		expected string
	}{
		{
			name:     "single variable",
			text:     "Hi [name]!",
			vars:     map[string]string{"name": "Anna"},
			expected: "Hi Anna!",
		},
		{
			name:     "multiple variables",
			text:     "[greeting] [name], welcome to [place]",
			vars:     map[string]string{"greeting": "Hello", "name": "Bob", "place": "the club"},
			expected: "Hello Bob, welcome to the club",
		},
		{
			name:     "missing variable left intact",
			text:     "Hi [name], about [topic]",
			vars:     map[string]string{"name": "Anna"},
			expected: "Hi Anna, about [topic]",
		},
		{
			name:     "no variables",
			text:     "plain text",
			vars:     map[string]string{"name": "Anna"},
			expected: "plain text",
		},
		{
			name:     "repeated variable",
			text:     "[name] and [name]",
			vars:     map[string]string{"name": "Anna"},
			expected: "Anna and Anna",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, engine.ReplaceVariables(tt.text, tt.vars))
		})
	}
}

func TestRender_SubstitutedValuesNotSpun(t *testing.T) {
	engine := NewEngineSeeded(1)

	// The substituted value contains braces and must not be spun.
	result := engine.Render("[name] says {hi|hello}", map[string]string{"name": "{x|y}"})
	assert.True(t, strings.HasPrefix(result, "{x|y} says "), "got %q", result)

	for i := 0; i < 50; i++ {
		result := engine.Render("{A|B} [x]", map[string]string{"x": "{C|D}"})
		assert.Contains(t, []string{"A {C|D}", "B {C|D}"}, result)
	}
}

func TestVariables(t *testing.T) {
	engine := NewEngineSeeded(1)

	vars := engine.Variables("Hi [name], check [link] out, [name]!")
	assert.Equal(t, []string{"name", "link"}, vars)
}

func TestVariables_None(t *testing.T) {
	engine := NewEngineSeeded(1)
	assert.Empty(t, engine.Variables("{a|b} plain"))
}

func TestValidate_Valid(t *testing.T) {
	engine := NewEngineSeeded(1)

	result := engine.Validate("{Hey|Hi} [name], {how are you|what's up}?")
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
	assert.Equal(t, []string{"name"}, result.Variables)
	assert.NotEmpty(t, result.Sample)
	assert.NotContains(t, result.Sample, "{")
}

func TestValidate_UnbalancedBraces(t *testing.T) {
	engine := NewEngineSeeded(1)

	tests := []struct {
		name string
		text string
	}{
		{"unclosed", "{a|b"},
		{"extra close", "a|b}"},
		{"crossed", "}{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Validate(tt.text)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Issues)
			assert.Contains(t, result.Issues[0], "unbalanced braces")
		})
	}
}

func TestValidate_EmptyAlternative(t *testing.T) {
	engine := NewEngineSeeded(1)

	result := engine.Validate("{a||b}")
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Issues)
	assert.Contains(t, result.Issues[0], "empty alternative")
}

func BenchmarkSpin(b *testing.B) {
	engine := NewEngineSeeded(1)
	text := "{Hey|Hi|Hello} [name]! {Just saw|Came across} your {profile|{page|feed}} and {loved|liked} it."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Spin(text)
	}
}
