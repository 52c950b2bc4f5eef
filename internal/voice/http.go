package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/echo/internal/policy"
)

const (
	DefaultSTTURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	DefaultSTTModel = "whisper-large-v3"
	DefaultTTSURL   = "https://api.openai.com/v1/audio/speech"
	DefaultTTSModel = "tts-1"
	DefaultTTSVoice = "alloy"

	maxAudioBytes = 16 << 20
)

type HTTPConfig struct {
	APIKey  string
	URL     string
	Model   string
	Voice   string
	Timeout time.Duration
}

func (c HTTPConfig) client() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// HTTPTranscriber posts clips to an OpenAI-compatible /audio/transcriptions endpoint.
type HTTPTranscriber struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPTranscriber(cfg HTTPConfig) *HTTPTranscriber {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultSTTURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultSTTModel
	}
	return &HTTPTranscriber{cfg: cfg, client: cfg.client()}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, clip Audio) (string, error) {
	if len(clip.Data) == 0 {
		return "", nil
	}
	format := clip.Format
	if format == "" {
		format = "wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", t.cfg.Model)
	_ = mw.WriteField("response_format", "json")
	_ = mw.WriteField("temperature", "0")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	setBearer(req, t.cfg.APIKey)

	b, err := do(t.client, req, 1<<20)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// HTTPSynthesizer requests WAV speech from an OpenAI-compatible /audio/speech endpoint.
type HTTPSynthesizer struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPSynthesizer(cfg HTTPConfig) *HTTPSynthesizer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultTTSURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultTTSModel
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = DefaultTTSVoice
	}
	return &HTTPSynthesizer{cfg: cfg, client: cfg.client()}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	payload, err := json.Marshal(map[string]string{
		"model":           s.cfg.Model,
		"input":           text,
		"voice":           s.cfg.Voice,
		"response_format": "wav",
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setBearer(req, s.cfg.APIKey)

	b, err := do(s.client, req, maxAudioBytes)
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize: %w", err)
	}
	if len(b) == 0 {
		return Audio{}, fmt.Errorf("synthesize: empty audio")
	}
	return Audio{Data: b, Format: "wav"}, nil
}

func setBearer(req *http.Request, key string) {
	if key = strings.TrimSpace(key); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func do(client *http.Client, req *http.Request, limit int64) ([]byte, error) {
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream error: %s", policy.UpstreamDetail(res.StatusCode, b))
	}
	return b, nil
}
