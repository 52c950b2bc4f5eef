package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/echo/internal/protocol"
	"github.com/ent0n29/echo/internal/voice"
)

const (
	wsReadLimit    = 8 << 20
	wsIdleDeadline = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Sessions.Ensure(r.URL.Query().Get("session_id"), s.deps.Persona)
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.ActiveCount())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.deps.Metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 32)
	outbound := make(chan any, 32)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		s.runChat(ctx, sess.ID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				_ = conn.Close()
				// Drain so the runner never blocks on a dead socket.
				for range outbound {
				}
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.deps.Metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	outbound <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sess.ID,
		Code:      "session_ready",
		Detail:    s.deps.Persona,
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.deps.Metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.deps.Metrics.ObserveSessionEvent("ws_disconnected")
}

// runChat handles one connection's messages in order. Parse errors arrive as
// ready-made ErrorEvents and are forwarded unchanged.
func (s *Server) runChat(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	for msg := range inbound {
		if ctx.Err() != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.ErrorEvent:
			send(m)
		case protocol.ClientText:
			_ = s.deps.Sessions.RecordTurn(sessionID)
			send(s.textTurn(ctx, sessionID, m.Text))
		case protocol.ClientAudio:
			_ = s.deps.Sessions.RecordTurn(sessionID)
			send(s.audioTurn(ctx, sessionID, m))
		case protocol.ClientControl:
			send(s.control(ctx, sessionID, m))
		}
	}
}

func (s *Server) textTurn(ctx context.Context, sessionID, text string) any {
	if s.deps.Turns != nil {
		res, err := s.deps.Turns.RunText(ctx, sessionID, text)
		if err != nil {
			return wsError(sessionID, "invalid_text", "pipeline", false, err.Error())
		}
		return resultMessage(res)
	}
	a := analyze(ctx, s.deps.Analyzer, s.deps.Memory, sessionID, strings.TrimSpace(text))
	return protocol.AnalysisResult{
		Type:         protocol.TypeAnalysisResult,
		SessionID:    a.SessionID,
		Intent:       a.Intent,
		Emotion:      a.Emotion,
		Sentiment:    a.Sentiment,
		ResponseText: a.Response,
	}
}

func (s *Server) audioTurn(ctx context.Context, sessionID string, m protocol.ClientAudio) any {
	if s.deps.Turns == nil {
		return wsError(sessionID, "voice_unavailable", "stt", false, "voice pipeline not configured")
	}
	data, err := base64.StdEncoding.DecodeString(m.AudioBase64)
	if err != nil {
		return wsError(sessionID, "invalid_audio", "gateway", false, "audio_base64 is not valid base64")
	}
	res, err := s.deps.Turns.RunAudio(ctx, sessionID, voice.Audio{Data: data, Format: m.Format})
	switch {
	case errors.Is(err, voice.ErrNoSpeech):
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "no_speech"}
	case err != nil:
		return wsError(sessionID, "stt_failed", "stt", true, err.Error())
	}
	return resultMessage(res)
}

func (s *Server) control(ctx context.Context, sessionID string, m protocol.ClientControl) any {
	switch m.Action {
	case protocol.ActionClearMemory:
		if s.deps.Memory != nil {
			s.deps.Memory.ClearMemory(ctx, sessionID)
		}
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "memory_cleared"}
	case protocol.ActionEndSession:
		_, _ = s.deps.Sessions.End(sessionID)
		s.deps.Metrics.SetActiveSessions(s.deps.Sessions.ActiveCount())
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "session_ended"}
	default:
		_ = s.deps.Sessions.Touch(sessionID)
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "pong"}
	}
}

func resultMessage(res voice.TurnResult) protocol.AnalysisResult {
	return protocol.AnalysisResult{
		Type:            protocol.TypeAnalysisResult,
		SessionID:       res.SessionID,
		TranscribedText: res.TranscribedText,
		Intent:          res.Intent,
		Emotion:         res.Emotion,
		Sentiment:       res.Sentiment,
		ResponseText:    res.ResponseText,
		AudioBase64:     res.AudioBase64,
		AudioFormat:     res.AudioFormat,
	}
}

func wsError(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientAudio:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AnalysisResult:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
