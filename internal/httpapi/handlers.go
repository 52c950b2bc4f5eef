package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/voice"
)

type analyzeRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}
	sessionID := s.resolveSession(req.SessionID)
	respondJSON(w, http.StatusOK, analyze(r.Context(), s.deps.Analyzer, s.deps.Memory, sessionID, text))
}

type voiceTurnRequest struct {
	SessionID   string `json:"session_id"`
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	if s.deps.Turns == nil {
		respondError(w, http.StatusServiceUnavailable, "voice_unavailable", "voice pipeline not configured")
		return
	}
	var req voiceTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.AudioBase64))
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_audio", "audio_base64 must be non-empty base64")
		return
	}

	sessionID := s.resolveSession(req.SessionID)
	res, err := s.deps.Turns.RunAudio(r.Context(), sessionID, voice.Audio{Data: data, Format: req.Format})
	switch {
	case errors.Is(err, voice.ErrNoSpeech):
		respondError(w, http.StatusUnprocessableEntity, "no_speech", "no speech detected")
	case errors.Is(err, voice.ErrNoTranscriber):
		respondError(w, http.StatusServiceUnavailable, "stt_unavailable", err.Error())
	case err != nil:
		s.deps.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("voice turn failed")
		respondError(w, http.StatusBadGateway, "stt_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleMemoryContent(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Memory == nil {
		respondJSON(w, http.StatusOK, []memory.ConversationTurn{})
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Memory.GetContent())
}

func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session"))
	ctxText := ""
	if s.deps.Memory != nil {
		ctxText = s.deps.Memory.GetContextText(id)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"context":    ctxText,
	})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if s.deps.Memory != nil {
		if id == "" {
			s.deps.Memory.ClearAll(r.Context())
		} else {
			s.deps.Memory.ClearMemory(r.Context(), id)
		}
	}
	scope := "all"
	if id != "" {
		scope = "session"
	}
	s.deps.Logger.Info().Str("scope", scope).Str("session_id", id).Msg("memory cleared")
	w.WriteHeader(http.StatusNoContent)
}
