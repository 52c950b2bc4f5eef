package voice

import (
	"context"
	"unicode/utf8"

	"github.com/ent0n29/echo/internal/audio"
)

const (
	mockTranscript      = "simulated voice input"
	mockSilenceLevel    = 500
	mockMSPerRune       = 60
	mockMaxSpeechMillis = 10_000
)

// MockProvider stands in for both collaborators when no speech service is
// configured. Any audible clip transcribes to a fixed phrase.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (*MockProvider) Transcribe(ctx context.Context, clip Audio) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(clip.Data) == 0 {
		return "", nil
	}
	pcm, _, err := audio.DecodeWAVPCM16LE(clip.Data)
	if err != nil {
		pcm = clip.Data
	}
	if audio.IsSilent(pcm, mockSilenceLevel) {
		return "", nil
	}
	return mockTranscript, nil
}

// Synthesize returns silence roughly as long as the text would take to say.
func (*MockProvider) Synthesize(ctx context.Context, text string) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	ms := utf8.RuneCountInString(text) * mockMSPerRune
	if ms > mockMaxSpeechMillis {
		ms = mockMaxSpeechMillis
	}
	wav, err := audio.EncodeWAVPCM16LE(audio.Silence(ms, audio.DefaultSampleRate), audio.DefaultSampleRate)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: wav, Format: "wav"}, nil
}
