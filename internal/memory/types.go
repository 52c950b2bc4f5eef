package memory

import (
	"context"
	"errors"
	"time"
)

// DefaultCapacity is the number of turns retained before eviction.
const DefaultCapacity = 5

// ErrDecrypt is returned when a stored turn cannot be opened with the store key.
var ErrDecrypt = errors.New("memory: decrypt turn")

// ConversationTurn is one user utterance and the assistant reply. Text fields
// hold ciphertext; plaintext only exists transiently while rendering context.
type ConversationTurn struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserText      []byte    `json:"user_text"`
	AssistantText []byte    `json:"assistant_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvictionPolicy decides which turn leaves the store once capacity is exceeded.
type EvictionPolicy string

const (
	// EvictGlobal drops the oldest turn across all sessions.
	EvictGlobal EvictionPolicy = "global"
	// EvictPerSession bounds each session independently.
	EvictPerSession EvictionPolicy = "session"
)

// ParseEvictionPolicy accepts "global" or "session".
func ParseEvictionPolicy(v string) (EvictionPolicy, error) {
	switch EvictionPolicy(v) {
	case "", EvictGlobal:
		return EvictGlobal, nil
	case EvictPerSession:
		return EvictPerSession, nil
	default:
		return "", errors.New("memory: eviction policy must be global or session")
	}
}

// ContextStore is the slice of the store the analysis pipeline depends on.
type ContextStore interface {
	GetContextText(sessionID string) string
	AddMemory(ctx context.Context, sessionID, userText, assistantText string) (string, error)
}

// Journal mirrors the store's ciphertext turns outside the process. It never
// receives plaintext.
type Journal interface {
	Append(ctx context.Context, turn ConversationTurn) error
	Remove(ctx context.Context, ids ...string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteAll(ctx context.Context) error
	// Load returns retained turns in chronological order; limit <= 0 means all.
	Load(ctx context.Context, limit int) ([]ConversationTurn, error)
	Close() error
}
