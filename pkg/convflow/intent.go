package convflow

import (
	"regexp"
	"strings"
)

// Intent is the detected intent of an incoming message.
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentInterest     Intent = "interest"
	IntentQuestion     Intent = "question"
	IntentObjection    Intent = "objection"
	IntentPositive     Intent = "positive"
	IntentNegative     Intent = "negative"
	IntentRequestHuman Intent = "request_human"
	IntentSpam         Intent = "spam"
	IntentUnknown      Intent = "unknown"
)

// negativeKeywords force an immediate human handoff regardless of any
// other signal in the message.
var negativeKeywords = []string{
	"scam", "fraud", "report", "block", "lawsuit",
	"police", "complaint", "harassment", "stop messaging",
}

type intentPatterns struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// Match order matters: earlier intents win when several patterns fire.
var orderedPatterns = []intentPatterns{
	{IntentGreeting, compileAll(
		`\b(hi|hello|hey|hola|sup|what'?s up)\b`,
		`^(hi|hello|hey)\s*[!.?]*$`,
	)},
	{IntentInterest, compileAll(
		`\b(interested|tell me more|sounds good|sounds interesting)\b`,
		`\b(want to know|curious|learn more)\b`,
		`\b(yes please|sure|definitely|absolutely)\b`,
	)},
	{IntentPositive, compileAll(
		`\b(yes|yeah|yep|yup|ok|okay|sure|great|cool|nice|awesome)\b`,
		`\b(thanks|thank you|appreciate)\b`,
		`👍|❤️|🙌|💯|✅`,
	)},
	{IntentNegative, compileAll(
		`\b(no|nope|not interested|no thanks|stop|leave me alone)\b`,
		`\b(unsubscribe|remove|block)\b`,
	)},
	{IntentObjection, compileAll(
		`\b(why|how|what if|but|however|scam|fake|spam)\b`,
		`\b(is this legit|are you real|prove it)\b`,
		`\b(too good to be true|sounds fishy)\b`,
	)},
	{IntentQuestion, compileAll(
		`\?$`,
		`\b(what|who|where|when|how|why|which)\b.*\?`,
		`\b(can you|could you|would you)\b`,
	)},
	{IntentRequestHuman, compileAll(
		`\b(real person|human|agent|representative|manager)\b`,
		`\b(speak to someone|talk to|connect me)\b`,
	)},
	{IntentSpam, compileAll(
		`\b(buy followers|make money fast|crypto giveaway)\b`,
		`bit\.ly|tinyurl\.com`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classifier maps an incoming message to an Intent.
type Classifier interface {
	Classify(message string) Intent
}

// KeywordClassifier detects intent with keyword and regex matching. It is
// deliberately simple; a model-backed classifier can replace it behind
// the same interface.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(message string) Intent {
	msg := strings.ToLower(strings.TrimSpace(message))

	for _, keyword := range negativeKeywords {
		if strings.Contains(msg, keyword) {
			return IntentRequestHuman
		}
	}

	for _, group := range orderedPatterns {
		for _, pattern := range group.patterns {
			if pattern.MatchString(msg) {
				return group.intent
			}
		}
	}
	return IntentUnknown
}
