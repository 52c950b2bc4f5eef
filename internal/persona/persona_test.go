package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaringPromptWithoutHistory(t *testing.T) {
	got := Caring{}.BuildPrompt(PromptContext{
		UserText:  "I feel really down today",
		Intent:    "emotional_support",
		Emotion:   "sad",
		Sentiment: "negative",
	})
	want := "You are Echo, a helpful AI assistant.\n" +
		"User's emotion: sad\n" +
		"User's intent: emotional_support\n" +
		"Sentiment: negative\n" +
		"User said: I feel really down today\n" +
		"Reply as Echo with empathy and understanding (2-3 sentences):"
	assert.Equal(t, want, got)
}

func TestCaringPromptWithHistory(t *testing.T) {
	got := Caring{}.BuildPrompt(PromptContext{
		UserText: "and now?",
		History:  "User: hi\nEcho: hello",
	})
	assert.Contains(t, got, "User's emotion: neutral\n")
	assert.Contains(t, got, "User's intent: unknown\n")
	assert.Contains(t, got, "\nHere is the recent conversation:\nUser: hi\nEcho: hello\nRespond appropriately.")
}

func TestPlayfulPrompt(t *testing.T) {
	p := Playful{}
	got := p.BuildPrompt(PromptContext{UserText: "guess what", Emotion: "happy"})
	assert.Contains(t, got, "You are Suzi.")
	assert.Contains(t, got, "User said: guess what\n")
	assert.NotContains(t, got, "recent conversation")
	assert.Equal(t, 0.95, p.Temperature())
}

func TestParse(t *testing.T) {
	cases := map[string]Kind{
		"":        KindCaring,
		"caring":  KindCaring,
		" Echo ":  KindCaring,
		"PLAYFUL": KindPlayful,
		"suzi":    KindPlayful,
	}
	for name, want := range cases {
		p, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p.Kind(), name)
	}

	_, err := Parse("grumpy")
	assert.Error(t, err)
}

func TestFallbackReplies(t *testing.T) {
	assert.Equal(t, "I hear you. I'm here for you, always.", Caring{}.FallbackReply())
	assert.NotEmpty(t, Playful{}.FallbackReply())
	assert.Equal(t, 0.8, Caring{}.Temperature())
}
