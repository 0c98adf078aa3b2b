package contentsync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerZeroLevelLeavesTextAlone(t *testing.T) {
	spinner := NewSpinnerSeeded(1)

	text := "This is amazing and important, check out my page!"
	assert.Equal(t, text, spinner.Spin(text, 0))
}

func TestSpinnerEmptyText(t *testing.T) {
	spinner := NewSpinnerSeeded(1)
	assert.Equal(t, "", spinner.Spin("", 1.0))
}

func TestSpinnerFullLevelReplacesKnownWords(t *testing.T) {
	spinner := NewSpinnerSeeded(42)

	result := spinner.Spin("this market is amazing and timing is important", 1.0)
	assert.NotContains(t, result, "amazing")
	assert.NotContains(t, result, "important")
	assert.Contains(t, result, "market")
}

func TestSpinnerPreservesLeadingCase(t *testing.T) {
	spinner := NewSpinnerSeeded(7)

	result := spinner.Spin("Amazing stuff", 1.0)
	assert.Regexp(t, `^(Incredible|Awesome|Fantastic|Great) stuff$`, result)
}

func TestSpinnerRespectsWordBoundaries(t *testing.T) {
	spinner := NewSpinnerSeeded(3)

	// "think" inside "thinking" must not match.
	assert.Equal(t, "thinking ahead", spinner.Spin("thinking ahead", 1.0))
}

func TestSpinnerReplacesPhrases(t *testing.T) {
	spinner := NewSpinnerSeeded(11)

	result := spinner.Spin("check out my latest update", 1.0)
	assert.NotContains(t, result, "check out")
	assert.Regexp(t, `^(take a look at|have a look at|see) my latest update$`, result)
}

func TestSpinnerReplacesAtMostOnce(t *testing.T) {
	spinner := NewSpinnerSeeded(5)

	result := spinner.Spin("amazing amazing", 1.0)
	assert.Equal(t, 1, strings.Count(result, "amazing"))
}

func TestSpinnerKeepsValidClosingPunctuation(t *testing.T) {
	spinner := NewSpinnerSeeded(9)

	for i := 0; i < 50; i++ {
		result := spinner.Spin("Great news!", 1.0)
		last := result[len(result)-1:]
		assert.Contains(t, []string{"!", "."}, last)
	}
}

func TestSpinnerGreeting(t *testing.T) {
	spinner := NewSpinnerSeeded(13)

	for i := 0; i < 20; i++ {
		greeting := spinner.Greeting()
		assert.Regexp(t, `^(Hey|Hi|Hello|What's up) (everyone|folks|friends|people)(!|!!|\.\.\.)$`, greeting)
	}
}
