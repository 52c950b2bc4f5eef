package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReply struct {
	status int
	body   string
}

type upstream struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []completionRequest
	auth     []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	u.mu.Lock()
	u.requests = append(u.requests, req)
	u.auth = append(u.auth, r.Header.Get("Authorization"))
	reply := scriptedReply{status: http.StatusOK, body: completion("fallthrough")}
	if len(u.replies) > 0 {
		reply = u.replies[0]
		u.replies = u.replies[1:]
	}
	u.mu.Unlock()

	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func newTestClient(t *testing.T, replies ...scriptedReply) (*Client, *upstream, *[]time.Duration) {
	t.Helper()
	up := &upstream{replies: replies}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	var sleeps []time.Duration
	c, err := New(Config{APIKey: "test-key", URL: srv.URL}, WithSleeper(func(d time.Duration) {
		sleeps = append(sleeps, d)
	}))
	require.NoError(t, err)
	return c, up, &sleeps
}

func TestCallModelSuccess(t *testing.T) {
	c, up, sleeps := newTestClient(t, scriptedReply{http.StatusOK, completion("  hello there \n")})

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 42, 0.8)
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
	assert.Empty(t, *sleeps)

	require.Equal(t, 1, up.calls())
	req := up.requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, 42, req.MaxTokens)
	assert.Equal(t, 0.8, req.Temperature)
	assert.Equal(t, 1.0, req.TopP)
	assert.False(t, req.Stream)
	assert.Equal(t, []ChatMessage{User("hi")}, req.Messages)
	assert.Equal(t, "Bearer test-key", up.auth[0])
}

func TestCallModelExhaustsRetries(t *testing.T) {
	c, up, sleeps := newTestClient(t,
		scriptedReply{http.StatusInternalServerError, "boom"},
		scriptedReply{http.StatusBadGateway, "boom"},
		scriptedReply{http.StatusServiceUnavailable, "boom"},
	)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.True(t, IsFailure(got))
	assert.Equal(t, "[Model Error]: failed after 3 attempts", got)
	assert.Equal(t, 3, up.calls())
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, *sleeps)
}

func TestCallModelRateLimitBackoff(t *testing.T) {
	c, up, sleeps := newTestClient(t,
		scriptedReply{http.StatusTooManyRequests, `{"error":"slow down"}`},
		scriptedReply{http.StatusOK, completion("ok")},
	)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, up.calls())
	assert.Equal(t, []time.Duration{5 * time.Second}, *sleeps)
}

func TestCallModelRetriesEmptyAndMalformedBodies(t *testing.T) {
	c, up, sleeps := newTestClient(t,
		scriptedReply{http.StatusOK, ""},
		scriptedReply{http.StatusOK, "not json"},
		scriptedReply{http.StatusOK, completion("third time")},
	)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "third time", got)
	assert.Equal(t, 3, up.calls())
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, *sleeps)
}

func TestCallModelNoChoicesIsMalformed(t *testing.T) {
	c, _, _ := newTestClient(t,
		scriptedReply{http.StatusOK, `{"choices":[]}`},
		scriptedReply{http.StatusOK, `{"choices":[]}`},
		scriptedReply{http.StatusOK, `{"choices":[]}`},
	)
	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.True(t, IsFailure(got))
}

func TestCallModelTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var sleeps []time.Duration
	c, err := New(Config{APIKey: "k", URL: url}, WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))
	require.NoError(t, err)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.True(t, IsFailure(got))
	assert.Len(t, sleeps, 2)
}

func TestCallModelAttemptTimeoutRetries(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	var sleeps []time.Duration
	c, err := New(Config{APIKey: "k", URL: srv.URL, AttemptTimeout: 20 * time.Millisecond},
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))
	require.NoError(t, err)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "[Model Error]: failed after 3 attempts", got)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeps)
}

func TestCallModelKeepsModelTextOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	up := &upstream{replies: []scriptedReply{
		{http.StatusBadRequest, `{"error":{"message":"cannot answer: my diary says I feel hopeless","type":"invalid_request_error"}}`},
		{http.StatusOK, completion("You sound hopeless, and I'm listening.")},
	}}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "k", URL: srv.URL},
		WithSleeper(func(time.Duration) {}),
		WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	require.NoError(t, err)

	got, err := c.CallModel(context.Background(), []ChatMessage{User("my diary says I feel hopeless")}, 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "You sound hopeless, and I'm listening.", got)

	logs := buf.String()
	assert.Contains(t, logs, "invalid_request_error")
	assert.Contains(t, logs, "reply_digest")
	assert.NotContains(t, logs, "hopeless")
	assert.NotContains(t, logs, "diary")
}

func TestCallModelIgnoresCallerCancellation(t *testing.T) {
	c, up, _ := newTestClient(t, scriptedReply{http.StatusOK, completion("still here")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := c.CallModel(ctx, []ChatMessage{User("hi")}, 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "still here", got)
	assert.Equal(t, 1, up.calls())
}

func TestCallModelRejectsEmptyMessages(t *testing.T) {
	c, up, _ := newTestClient(t)
	_, err := c.CallModel(context.Background(), nil, 10, 0.7)
	assert.ErrorIs(t, err, ErrNoMessages)
	assert.Zero(t, up.calls())
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{APIKey: "  "})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.cfg.URL)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultMaxAttempts, c.cfg.MaxAttempts)
	assert.Equal(t, DefaultAttemptTimeout, c.cfg.AttemptTimeout)
	assert.Equal(t, 3*time.Second, c.cfg.Backoff.Default)
	assert.Equal(t, 5*time.Second, c.cfg.Backoff.RateLimit)
}
