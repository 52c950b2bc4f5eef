package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/nlp"
	"github.com/ent0n29/echo/internal/observability"
)

var (
	ErrNoTranscriber = errors.New("voice: no transcriber configured")
	ErrEmptyText     = errors.New("voice: text is empty")
)

// Analyzer is satisfied by *nlp.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, sessionID, userText string, mem memory.ContextStore) nlp.AnalysisResult
}

// TurnResult is one full conversational turn. Audio is present only when
// synthesis succeeded.
type TurnResult struct {
	SessionID       string `json:"session_id,omitempty"`
	TranscribedText string `json:"transcribed_text"`
	Intent          string `json:"intent"`
	Emotion         string `json:"emotion"`
	Sentiment       string `json:"sentiment"`
	ResponseText    string `json:"response_text"`
	AudioBase64     string `json:"audio_base64,omitempty"`
	AudioFormat     string `json:"audio_format,omitempty"`
}

type PipelineConfig struct {
	Transcriber Transcriber
	Synthesizer Synthesizer
	// Analyzer may be nil; turns then carry nlp.UnavailableResult.
	Analyzer Analyzer
	Memory   memory.ContextStore
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// Pipeline chains transcription, analysis and synthesis. Each collaborator
// degrades independently.
type Pipeline struct {
	stt      Transcriber
	tts      Synthesizer
	analyzer Analyzer
	mem      memory.ContextStore
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		stt:      cfg.Transcriber,
		tts:      cfg.Synthesizer,
		analyzer: cfg.Analyzer,
		mem:      cfg.Memory,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

func (p *Pipeline) CanTranscribe() bool { return p.stt != nil }
func (p *Pipeline) CanSynthesize() bool { return p.tts != nil }

// RunAudio transcribes clip and runs the resulting text as a turn.
func (p *Pipeline) RunAudio(ctx context.Context, sessionID string, clip Audio) (TurnResult, error) {
	if p.stt == nil {
		p.metrics.ObservePipelineOutcome("stt_unavailable")
		return TurnResult{}, ErrNoTranscriber
	}
	started := time.Now()
	text, err := p.stt.Transcribe(ctx, clip)
	if err != nil {
		p.metrics.ObservePipelineOutcome("stt_error")
		return TurnResult{}, fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		p.metrics.ObservePipelineOutcome("no_speech")
		p.logger.Info().Str("session_id", sessionID).Msg("no speech detected")
		return TurnResult{}, ErrNoSpeech
	}
	p.logger.Debug().Str("session_id", sessionID).Dur("elapsed", time.Since(started)).Msg("transcribed")
	return p.turn(ctx, sessionID, text), nil
}

// RunText runs a typed turn; audio is still synthesized when available.
func (p *Pipeline) RunText(ctx context.Context, sessionID, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyText
	}
	return p.turn(ctx, sessionID, text), nil
}

func (p *Pipeline) turn(ctx context.Context, sessionID, text string) TurnResult {
	analysis := nlp.UnavailableResult()
	if p.analyzer != nil {
		analysis = p.analyzer.Analyze(ctx, sessionID, text, p.mem)
	} else {
		p.logger.Warn().Msg("analysis unavailable, returning fallback result")
	}
	if analysis.SessionID == "" {
		analysis.SessionID = sessionID
	}

	res := TurnResult{
		SessionID:       analysis.SessionID,
		TranscribedText: text,
		Intent:          analysis.Intent,
		Emotion:         analysis.Emotion,
		Sentiment:       analysis.Sentiment,
		ResponseText:    analysis.Response,
	}

	if p.tts == nil {
		p.metrics.ObservePipelineOutcome("ok_text_only")
		return res
	}
	spoken := speakable(analysis.Response)
	if spoken == "" {
		p.metrics.ObservePipelineOutcome("ok_text_only")
		return res
	}
	clip, err := p.tts.Synthesize(ctx, spoken)
	if err != nil {
		p.metrics.ObservePipelineOutcome("tts_skipped")
		p.logger.Warn().Err(err).Str("session_id", res.SessionID).Msg("speech synthesis failed, returning text only")
		return res
	}
	res.AudioBase64 = base64.StdEncoding.EncodeToString(clip.Data)
	res.AudioFormat = clip.Format
	p.metrics.ObservePipelineOutcome("ok")
	return res
}
