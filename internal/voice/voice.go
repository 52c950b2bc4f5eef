// Package voice turns audio into an analysis turn and, optionally, back into audio.
package voice

import (
	"context"
	"errors"
)

// ErrNoSpeech means transcription succeeded but produced no text.
var ErrNoSpeech = errors.New("voice: no speech detected")

// Audio is an encoded clip plus its container format ("wav", "mp3", ...).
type Audio struct {
	Data   []byte
	Format string
}

// Transcriber converts a clip to text. An empty string with a nil error is
// the no-speech outcome.
type Transcriber interface {
	Transcribe(ctx context.Context, clip Audio) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}
