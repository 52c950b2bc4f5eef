package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ent0n29/echo/internal/policy"
)

const (
	intentPrompt = "You are an intent detector. Respond with one word only: " +
		"'greeting', 'question', 'request', 'get_weather', 'emotional_support', 'manipulation_check', or 'unknown'."
	emotionPrompt = "You are an emotion and sentiment detector. " +
		`Reply ONLY with JSON like: {"emotion": "sad", "sentiment": "negative"}`

	intentMaxTokens  = 10
	emotionMaxTokens = 50
	detectTemp       = 0.7
)

// DetectIntent classifies text into the closed Intent set.
func (c *Client) DetectIntent(ctx context.Context, text string) Intent {
	intent, _ := c.detectIntent(ctx, text)
	return intent
}

func (c *Client) detectIntent(ctx context.Context, text string) (Intent, bool) {
	reply, err := c.CallModel(ctx, []ChatMessage{System(intentPrompt), User(text)}, intentMaxTokens, detectTemp)
	if err != nil || IsFailure(reply) {
		c.metrics.ObserveFallback("intent")
		c.logger.Warn().Msg("intent detection failed, using unknown")
		return IntentUnknown, false
	}
	intent := NormalizeIntent(reply)
	if intent == IntentUnknown && !strings.EqualFold(strings.TrimSpace(reply), string(IntentUnknown)) {
		c.logger.Info().Int("raw_chars", len(reply)).Str("raw_digest", policy.Digest(reply)).Msg("intent outside enumeration")
	}
	return intent, true
}

// DetectIntentCached memoizes DetectIntent per exact input. Failed calls are
// not cached.
func (c *Client) DetectIntentCached(ctx context.Context, text string) Intent {
	if intent, ok := c.intents.Get(text); ok {
		c.metrics.ObserveIntentCache(true)
		return intent
	}
	c.metrics.ObserveIntentCache(false)
	intent, ok := c.detectIntent(ctx, text)
	if ok {
		c.intents.Add(text, intent)
	}
	return intent
}

// DetectEmotion asks for a JSON verdict and tolerates surrounding prose. Any
// failure yields NeutralEmotion.
func (c *Client) DetectEmotion(ctx context.Context, text string) Emotion {
	reply, err := c.CallModel(ctx, []ChatMessage{System(emotionPrompt), User(text)}, emotionMaxTokens, detectTemp)
	if err != nil || IsFailure(reply) {
		c.metrics.ObserveFallback("emotion")
		c.logger.Warn().Msg("emotion detection failed, using neutral")
		return NeutralEmotion()
	}
	emotion, ok := ParseEmotion(reply)
	if !ok {
		c.metrics.ObserveFallback("emotion")
		c.logger.Warn().Int("raw_chars", len(reply)).Str("raw_digest", policy.Digest(reply)).Msg("unusable emotion reply, using neutral")
		return NeutralEmotion()
	}
	return emotion
}

// ParseEmotion extracts the span between the first '{' and the last '}' and
// requires non-empty string emotion and sentiment fields. The emotion label is
// kept as the model wrote it, trimmed; sentiment folds into the closed set.
func ParseEmotion(reply string) (Emotion, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Emotion{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Emotion{}, false
	}
	emotion, ok := raw["emotion"].(string)
	if !ok || strings.TrimSpace(emotion) == "" {
		return Emotion{}, false
	}
	sentiment, ok := raw["sentiment"].(string)
	if !ok {
		return Emotion{}, false
	}
	return Emotion{
		Emotion:   strings.TrimSpace(emotion),
		Sentiment: normalizeSentiment(sentiment),
	}, true
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
