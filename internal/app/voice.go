package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/voice"
)

type voiceSetup struct {
	stt      voice.Transcriber
	tts      voice.Synthesizer
	provider string
	detail   string
}

// resolveVoiceProviders picks transcription and synthesis backends. In auto
// mode a configured HTTP backend is paired with the mock provider so a dead
// upstream degrades instead of failing turns.
func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	httpSTT := func() voice.Transcriber {
		if strings.TrimSpace(cfg.STTAPIKey) == "" {
			return nil
		}
		return voice.NewHTTPTranscriber(voice.HTTPConfig{
			APIKey: cfg.STTAPIKey,
			URL:    cfg.STTAPIURL,
			Model:  cfg.STTModel,
		})
	}
	httpTTS := func() voice.Synthesizer {
		if strings.TrimSpace(cfg.TTSAPIURL) == "" {
			return nil
		}
		return voice.NewHTTPSynthesizer(voice.HTTPConfig{
			APIKey: cfg.TTSAPIKey,
			URL:    cfg.TTSAPIURL,
			Model:  cfg.TTSModel,
			Voice:  cfg.TTSVoice,
		})
	}

	switch mode {
	case "none":
		return voiceSetup{provider: "none", detail: "voice disabled"}, nil
	case "mock":
		p := voice.NewMockProvider()
		return voiceSetup{stt: p, tts: p, provider: "mock", detail: "mock"}, nil
	case "http":
		stt, tts := httpSTT(), httpTTS()
		if stt == nil {
			return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=http requires STT_API_KEY or an LLM API key")
		}
		setup := voiceSetup{stt: stt, provider: "http", detail: "http transcription"}
		if tts != nil {
			setup.tts = tts
			setup.detail = "http transcription + synthesis"
		} else {
			setup.detail = "http transcription (no TTS_API_URL, text-only replies)"
		}
		return setup, nil
	case "auto":
		mock := voice.NewMockProvider()
		stt, tts := httpSTT(), httpTTS()
		switch {
		case stt != nil && tts != nil:
			fstt, ftts := voice.NewFailoverPair(stt, tts, mock, mock)
			return voiceSetup{stt: fstt, tts: ftts, provider: "http", detail: "http (automatic mock fallback)"}, nil
		case stt != nil:
			fstt, _ := voice.NewFailoverPair(stt, mock, mock, mock)
			return voiceSetup{stt: fstt, tts: mock, provider: "http", detail: "http transcription (automatic mock fallback), mock synthesis"}, nil
		default:
			return voiceSetup{stt: mock, tts: mock, provider: "mock", detail: "mock (no STT credential)"}, nil
		}
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|http|mock|none)", cfg.VoiceProvider)
	}
}
