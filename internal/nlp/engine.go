// Package nlp runs one analysis turn: intent and emotion detection followed by
// a persona-shaped reply, optionally grounded on and persisted to session memory.
package nlp

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/echo/internal/llm"
	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/persona"
)

const replyMaxTokens = 150

const unavailableReply = "I heard you, but my analysis system is currently unavailable."

// AnalysisResult is the outcome of one turn. It is always fully populated.
type AnalysisResult struct {
	SessionID string `json:"session_id,omitempty"`
	Intent    string `json:"intent"`
	Emotion   string `json:"emotion"`
	Sentiment string `json:"sentiment"`
	Response  string `json:"response"`
}

// UnavailableResult is what callers return when no engine could be built.
func UnavailableResult() AnalysisResult {
	return AnalysisResult{
		Intent:    string(llm.IntentUnknown),
		Emotion:   "neutral",
		Sentiment: llm.SentimentNeutral,
		Response:  unavailableReply,
	}
}

// Model is the subset of the remote model client the engine drives.
type Model interface {
	CallModel(ctx context.Context, messages []llm.ChatMessage, maxTokens int, temperature float64) (string, error)
	DetectIntentCached(ctx context.Context, text string) llm.Intent
	DetectEmotion(ctx context.Context, text string) llm.Emotion
}

type Engine struct {
	model   Model
	persona persona.Persona
	logger  zerolog.Logger
	metrics *observability.Metrics
}

type Option func(*Engine)

func WithPersona(p persona.Persona) Option {
	return func(e *Engine) {
		if p != nil {
			e.persona = p
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(model Model, opts ...Option) *Engine {
	e := &Engine{
		model:   model,
		persona: persona.Caring{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Persona returns the persona shaping replies.
func (e *Engine) Persona() persona.Persona { return e.persona }

// Analyze runs one turn. mem may be nil, in which case no context is read and
// nothing is persisted. A failed reply is replaced by the persona's fallback
// and not written to memory.
func (e *Engine) Analyze(ctx context.Context, sessionID, userText string, mem memory.ContextStore) AnalysisResult {
	started := time.Now()
	defer func() {
		total := time.Since(started)
		e.metrics.ObserveStage(observability.StageTotal, total)
		e.metrics.ObserveAnalysisLatency(total)
	}()

	var history string
	if mem != nil && sessionID != "" {
		t := time.Now()
		history = mem.GetContextText(sessionID)
		e.metrics.ObserveStage(observability.StageContext, time.Since(t))
	}

	var (
		intent  llm.Intent
		emotion llm.Emotion
	)
	detectStart := time.Now()
	var g errgroup.Group
	g.Go(func() error {
		intent = e.model.DetectIntentCached(ctx, userText)
		return nil
	})
	g.Go(func() error {
		emotion = e.model.DetectEmotion(ctx, userText)
		return nil
	})
	_ = g.Wait()
	e.metrics.ObserveStage(observability.StageDetect, time.Since(detectStart))

	prompt := e.persona.BuildPrompt(persona.PromptContext{
		UserText:  userText,
		Intent:    string(intent),
		Emotion:   emotion.Emotion,
		Sentiment: emotion.Sentiment,
		History:   history,
	})

	replyStart := time.Now()
	reply, err := e.model.CallModel(ctx, []llm.ChatMessage{llm.System(prompt), llm.User(userText)}, replyMaxTokens, e.persona.Temperature())
	e.metrics.ObserveStage(observability.StageReply, time.Since(replyStart))

	failed := err != nil || llm.IsFailure(reply) || reply == ""
	if failed {
		e.metrics.ObserveFallback("reply")
		e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("reply generation failed, using fallback")
		reply = e.persona.FallbackReply()
	}

	result := AnalysisResult{
		SessionID: sessionID,
		Intent:    string(intent),
		Emotion:   emotion.Emotion,
		Sentiment: emotion.Sentiment,
		Response:  reply,
	}

	if mem != nil && !failed {
		t := time.Now()
		id, err := mem.AddMemory(ctx, sessionID, userText, reply)
		e.metrics.ObserveStage(observability.StagePersist, time.Since(t))
		if err != nil {
			e.logger.Error().Err(err).Str("session_id", sessionID).Msg("persist turn failed")
		} else {
			result.SessionID = id
		}
	}

	e.logger.Info().
		Str("session_id", result.SessionID).
		Str("intent", result.Intent).
		Str("emotion", result.Emotion).
		Str("sentiment", result.Sentiment).
		Int("reply_chars", len(result.Response)).
		Dur("elapsed", time.Since(started)).
		Msg("analysis complete")
	return result
}
