package voice

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailoverPair wraps primary and fallback collaborators. After a primary
// failure the fallback stays active until it fails too, then primary is retried.
// The two halves share state so a dead speech service flips both at once.
func NewFailoverPair(primarySTT Transcriber, primaryTTS Synthesizer, fallbackSTT Transcriber, fallbackTTS Synthesizer) (Transcriber, Synthesizer) {
	state := &failoverState{}
	return &failoverTranscriber{state: state, primary: primarySTT, fallback: fallbackSTT},
		&failoverSynthesizer{state: state, primary: primaryTTS, fallback: fallbackTTS}
}

type failoverState struct {
	onFallback atomic.Bool
}

// run tries the preferred side first and flips state on the outcome.
func run[T any](s *failoverState, primary, fallback func() (T, error), what string) (T, error) {
	if s.onFallback.Load() {
		v, fbErr := fallback()
		if fbErr == nil {
			return v, nil
		}
		v, prErr := primary()
		if prErr == nil {
			s.onFallback.Store(false)
			return v, nil
		}
		return v, fmt.Errorf("%s fallback failed: %v; primary failed: %w", what, fbErr, prErr)
	}

	v, prErr := primary()
	if prErr == nil {
		return v, nil
	}
	v, fbErr := fallback()
	if fbErr != nil {
		return v, fmt.Errorf("%s primary failed: %v; fallback failed: %w", what, prErr, fbErr)
	}
	s.onFallback.Store(true)
	return v, nil
}

type failoverTranscriber struct {
	state    *failoverState
	primary  Transcriber
	fallback Transcriber
}

func (f *failoverTranscriber) Transcribe(ctx context.Context, clip Audio) (string, error) {
	return run(f.state,
		func() (string, error) { return f.primary.Transcribe(ctx, clip) },
		func() (string, error) { return f.fallback.Transcribe(ctx, clip) },
		"stt")
}

type failoverSynthesizer struct {
	state    *failoverState
	primary  Synthesizer
	fallback Synthesizer
}

func (f *failoverSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	return run(f.state,
		func() (Audio, error) { return f.primary.Synthesize(ctx, text) },
		func() (Audio, error) { return f.fallback.Synthesize(ctx, text) },
		"tts")
}
