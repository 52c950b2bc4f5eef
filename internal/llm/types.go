package llm

import "strings"

// ChatMessage is one entry of an OpenAI-compatible chat exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) ChatMessage { return ChatMessage{Role: "system", Content: content} }
func User(content string) ChatMessage   { return ChatMessage{Role: "user", Content: content} }

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Intent is the closed set of user intents the classifier may return.
type Intent string

const (
	IntentGreeting          Intent = "greeting"
	IntentQuestion          Intent = "question"
	IntentRequest           Intent = "request"
	IntentGetWeather        Intent = "get_weather"
	IntentEmotionalSupport  Intent = "emotional_support"
	IntentManipulationCheck Intent = "manipulation_check"
	IntentUnknown           Intent = "unknown"
)

var knownIntents = map[Intent]struct{}{
	IntentGreeting:          {},
	IntentQuestion:          {},
	IntentRequest:           {},
	IntentGetWeather:        {},
	IntentEmotionalSupport:  {},
	IntentManipulationCheck: {},
	IntentUnknown:           {},
}

// NormalizeIntent lower-cases and trims raw model output, mapping anything
// outside the enumeration to IntentUnknown.
func NormalizeIntent(raw string) Intent {
	candidate := Intent(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownIntents[candidate]; ok {
		return candidate
	}
	return IntentUnknown
}

// Sentiment polarity.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Emotion is the detector's verdict. Emotion is free-form; Sentiment is one
// of the Sentiment constants.
type Emotion struct {
	Emotion   string `json:"emotion"`
	Sentiment string `json:"sentiment"`
}

// NeutralEmotion is substituted whenever detection fails.
func NeutralEmotion() Emotion {
	return Emotion{Emotion: "neutral", Sentiment: SentimentNeutral}
}
