package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/nlp"
	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/session"
	"github.com/ent0n29/echo/internal/voice"
)

// MemoryStore is the memory surface exposed over HTTP.
type MemoryStore interface {
	memory.ContextStore
	GetContent() []memory.ConversationTurn
	ClearMemory(ctx context.Context, sessionID string)
	ClearAll(ctx context.Context)
}

// Turns runs conversational turns; *voice.Pipeline satisfies it.
type Turns interface {
	RunText(ctx context.Context, sessionID, text string) (voice.TurnResult, error)
	RunAudio(ctx context.Context, sessionID string, clip voice.Audio) (voice.TurnResult, error)
}

type Deps struct {
	Sessions *session.Manager
	Memory   MemoryStore
	// Analyzer may be nil when the model client could not be built.
	Analyzer voice.Analyzer
	Turns    Turns
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	Checks   func() []Check
	Persona  string

	AllowAnyOrigin bool
}

type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func New(deps Deps) *Server {
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if deps.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)

	r.Post("/v1/analyze", s.handleAnalyze)
	r.Post("/v1/voice/turn", s.handleVoiceTurn)

	r.Get("/v1/memory", s.handleMemoryContent)
	r.Get("/v1/memory/{session}/context", s.handleMemoryContext)
	r.Delete("/v1/memory", s.handleClearMemory)

	r.Get("/v1/chat/ws", s.handleChatWS)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"persona": s.deps.Persona,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Sessions.Create(s.deps.Persona)
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.ActiveCount())
	s.deps.Metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		Session:         sess,
		InactivityTTLMS: s.deps.Sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.deps.Sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.ActiveCount())
	s.deps.Metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

// resolveSession registers the id with the session manager and bumps its
// turn counter.
func (s *Server) resolveSession(id string) string {
	sess := s.deps.Sessions.Ensure(id, s.deps.Persona)
	_ = s.deps.Sessions.RecordTurn(sess.ID)
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.ActiveCount())
	return sess.ID
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

const maxBodyBytes = 20 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func analyze(ctx context.Context, a voice.Analyzer, mem MemoryStore, sessionID, text string) nlp.AnalysisResult {
	if a == nil {
		res := nlp.UnavailableResult()
		res.SessionID = sessionID
		return res
	}
	var store memory.ContextStore
	if mem != nil {
		store = mem
	}
	res := a.Analyze(ctx, sessionID, text, store)
	if res.SessionID == "" {
		res.SessionID = sessionID
	}
	return res
}
