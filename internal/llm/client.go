package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/policy"
	"github.com/ent0n29/echo/internal/reliability"
)

const (
	DefaultURL            = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel          = "llama3-8b-8192"
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
	DefaultIntentCache    = 128

	failurePrefix = "[Model Error]"
	maxBodyBytes  = 1 << 20
)

// ErrNoMessages is returned when CallModel is invoked without messages.
var ErrNoMessages = errors.New("llm: at least one message is required")

// ErrMissingAPIKey is returned by New when no credential is configured.
var ErrMissingAPIKey = errors.New("llm: api key is required")

// IsFailure reports whether a CallModel result is the exhausted-retries
// sentinel rather than a completion.
func IsFailure(reply string) bool {
	return strings.HasPrefix(reply, failurePrefix)
}

func failureText(attempts int) string {
	return fmt.Sprintf("%s: failed after %d attempts", failurePrefix, attempts)
}

// Config controls client construction.
type Config struct {
	APIKey          string
	URL             string
	Model           string
	MaxAttempts     int
	AttemptTimeout  time.Duration
	Backoff         reliability.BackoffPolicy
	IntentCacheSize int
}

// Client talks to an OpenAI-compatible chat completions endpoint. It never
// surfaces transport or upstream failures as errors: after MaxAttempts it
// returns a sentinel reply that IsFailure recognizes.
type Client struct {
	cfg     Config
	http    *http.Client
	sleep   func(time.Duration)
	logger  zerolog.Logger
	metrics *observability.Metrics
	intents *lru.Cache[string, Intent]
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithSleeper replaces time.Sleep between attempts.
func WithSleeper(fn func(time.Duration)) Option {
	return func(cl *Client) {
		if fn != nil {
			cl.sleep = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	def := reliability.DefaultBackoffPolicy()
	if cfg.Backoff.Default <= 0 {
		cfg.Backoff.Default = def.Default
	}
	if cfg.Backoff.RateLimit <= 0 {
		cfg.Backoff.RateLimit = def.RateLimit
	}
	if cfg.IntentCacheSize <= 0 {
		cfg.IntentCacheSize = DefaultIntentCache
	}

	cache, err := lru.New[string, Intent](cfg.IntentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("intent cache: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		sleep:   time.Sleep,
		logger:  zerolog.Nop(),
		intents: cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// CallModel sends one chat completion request, retrying with a fixed backoff.
// The caller's cancellation is not propagated into the retry loop.
func (c *Client) CallModel(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        1,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	base := context.WithoutCancel(ctx)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		reply, failure, detail := c.attempt(base, payload)
		c.metrics.ObserveModelAttempt(outcomeLabel(failure))
		if failure == reliability.FailureNone {
			c.metrics.ObserveModelCall(true)
			c.logger.Debug().
				Int("attempt", attempt).
				Int("reply_chars", len(reply)).
				Str("reply_digest", policy.Digest(reply)).
				Msg("model call ok")
			return reply, nil
		}

		c.logger.Warn().
			Int("attempt", attempt).
			Str("failure", string(failure)).
			Str("detail", detail).
			Msg("model attempt failed")

		if attempt < c.cfg.MaxAttempts {
			c.sleep(c.cfg.Backoff.Backoff(failure))
		}
	}

	c.metrics.ObserveModelCall(false)
	c.logger.Error().Int("attempts", c.cfg.MaxAttempts).Msg("model call exhausted retries")
	return failureText(c.cfg.MaxAttempts), nil
}

func (c *Client) attempt(ctx context.Context, payload []byte) (string, reliability.Failure, string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", reliability.FailureTransport, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.http.Do(req)
	if err != nil {
		return "", reliability.FailureTransport, err.Error()
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return "", reliability.FailureTransport, fmt.Sprintf("read response: %v", err)
	}

	if f := reliability.Classify(res.StatusCode, len(body)); f != reliability.FailureNone {
		detail := policy.UpstreamDetail(res.StatusCode, body)
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			detail += " (transient)"
		}
		return "", f, detail
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", reliability.FailureMalformed, fmt.Sprintf("decode response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return "", reliability.FailureMalformed, "response has no choices"
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), reliability.FailureNone, ""
}

func outcomeLabel(f reliability.Failure) string {
	if f == reliability.FailureNone {
		return "ok"
	}
	return string(f)
}
