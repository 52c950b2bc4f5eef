package nlp

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/echo/internal/llm"
	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/persona"
)

type fakeModel struct {
	mu        sync.Mutex
	intent    llm.Intent
	emotion   llm.Emotion
	reply     string
	prompts   []string
	maxTokens int
	temp      float64
}

func (f *fakeModel) CallModel(_ context.Context, msgs []llm.ChatMessage, maxTokens int, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, msgs[0].Content)
	f.maxTokens = maxTokens
	f.temp = temperature
	return f.reply, nil
}

func (f *fakeModel) DetectIntentCached(context.Context, string) llm.Intent { return f.intent }
func (f *fakeModel) DetectEmotion(context.Context, string) llm.Emotion     { return f.emotion }

func supportModel() *fakeModel {
	return &fakeModel{
		intent:  llm.IntentEmotionalSupport,
		emotion: llm.Emotion{Emotion: "sad", Sentiment: llm.SentimentNegative},
		reply:   "I'm sorry you're feeling down. I'm here with you.",
	}
}

func TestAnalyzePersistsTurn(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	model := supportModel()
	e := NewEngine(model)

	res := e.Analyze(context.Background(), "s1", "I feel really down today", store)

	assert.Equal(t, AnalysisResult{
		SessionID: "s1",
		Intent:    "emotional_support",
		Emotion:   "sad",
		Sentiment: "negative",
		Response:  "I'm sorry you're feeling down. I'm here with you.",
	}, res)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t,
		"User: I feel really down today\nEcho: I'm sorry you're feeling down. I'm here with you.",
		store.GetContextText("s1"))
	assert.Equal(t, replyMaxTokens, model.maxTokens)
	assert.Equal(t, 0.8, model.temp)
}

func TestAnalyzeKeepsTurnTextOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	store, err := memory.NewStore(memory.WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	e := NewEngine(supportModel(), WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	res := e.Analyze(context.Background(), "s1", "I feel really down today", store)
	require.Equal(t, "I'm sorry you're feeling down. I'm here with you.", res.Response)

	logs := buf.String()
	assert.Contains(t, logs, "analysis complete")
	assert.NotContains(t, logs, "really down")
	assert.NotContains(t, logs, "feeling down")
}

func TestAnalyzeEmbedsHistory(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	_, err = store.AddMemory(context.Background(), "s1", "hi", "hello friend")
	require.NoError(t, err)
	model := supportModel()

	NewEngine(model).Analyze(context.Background(), "s1", "still sad", store)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Here is the recent conversation:\nUser: hi\nEcho: hello friend\nRespond appropriately.")
	assert.Contains(t, model.prompts[0], "User said: still sad\n")
}

func TestAnalyzeWithoutMemory(t *testing.T) {
	model := supportModel()
	res := NewEngine(model).Analyze(context.Background(), "", "hello", nil)
	assert.Empty(t, res.SessionID)
	assert.Equal(t, "emotional_support", res.Intent)
	require.Len(t, model.prompts, 1)
	assert.NotContains(t, model.prompts[0], "recent conversation")
}

func TestAnalyzeGeneratesSessionID(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)

	res := NewEngine(supportModel()).Analyze(context.Background(), "", "hello", store)
	require.NotEmpty(t, res.SessionID)
	assert.Contains(t, store.GetContextText(res.SessionID), "User: hello")
}

func TestAnalyzeFailedReplyUsesFallback(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	model := supportModel()
	model.reply = "[Model Error]: failed after 3 attempts"

	res := NewEngine(model).Analyze(context.Background(), "s1", "hello", store)
	assert.Equal(t, persona.Caring{}.FallbackReply(), res.Response)
	assert.Equal(t, "sad", res.Emotion)
	assert.Zero(t, store.Len())
}

func TestAnalyzeUsesPersona(t *testing.T) {
	model := supportModel()
	NewEngine(model, WithPersona(persona.Playful{})).Analyze(context.Background(), "", "hey", nil)
	require.Len(t, model.prompts, 1)
	assert.True(t, strings.HasPrefix(model.prompts[0], "You are Suzi."))
	assert.Equal(t, 0.95, model.temp)
}

func TestUnavailableResult(t *testing.T) {
	assert.Equal(t, AnalysisResult{
		Intent:    "unknown",
		Emotion:   "neutral",
		Sentiment: "neutral",
		Response:  "I heard you, but my analysis system is currently unavailable.",
	}, UnavailableResult())
}
