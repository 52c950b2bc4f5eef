package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const journalTimeout = 2 * time.Second

// Store is a bounded, session-partitioned, encrypted conversation log kept in
// process memory. Appends and evictions happen under one lock.
type Store struct {
	mu       sync.RWMutex
	turns    []ConversationTurn
	capacity int
	eviction EvictionPolicy
	cipher   *Cipher
	journal  Journal
	logger   zerolog.Logger
	now      func() time.Time
	observe  func(turns int)

	// Journal writes carry a ticket issued under mu and are applied strictly
	// in ticket order, so the journal sees mutations in store order.
	jmu     sync.Mutex
	jcond   *sync.Cond
	jnext   uint64 // guarded by mu
	jserved uint64 // guarded by jmu
}

// Option configures a Store.
type Option func(*Store) error

func WithCapacity(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("memory: capacity must be positive, got %d", n)
		}
		s.capacity = n
		return nil
	}
}

func WithEviction(p EvictionPolicy) Option {
	return func(s *Store) error {
		if _, err := ParseEvictionPolicy(string(p)); err != nil {
			return err
		}
		s.eviction = p
		return nil
	}
}

// WithKey supplies the symmetric key instead of generating one.
func WithKey(key []byte) Option {
	return func(s *Store) error {
		c, err := NewCipher(key)
		if err != nil {
			return err
		}
		s.cipher = c
		return nil
	}
}

func WithJournal(j Journal) Option {
	return func(s *Store) error {
		s.journal = j
		return nil
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) error {
		s.logger = l
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		s.now = now
		return nil
	}
}

// WithObserver registers a callback receiving the turn count after each mutation.
func WithObserver(fn func(turns int)) Option {
	return func(s *Store) error {
		s.observe = fn
		return nil
	}
}

func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		capacity: DefaultCapacity,
		eviction: EvictGlobal,
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.jcond = sync.NewCond(&s.jmu)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cipher == nil {
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		if s.cipher, err = NewCipher(key); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddMemory encrypts and appends a turn, evicting per policy once over
// capacity. An empty sessionID gets a fresh random id, which is returned.
func (s *Store) AddMemory(ctx context.Context, sessionID, userText, assistantText string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}
	userCT, err := s.cipher.Seal([]byte(userText), aad(sessionID, "user"))
	if err != nil {
		return sessionID, fmt.Errorf("encrypt user text: %w", err)
	}
	assistantCT, err := s.cipher.Seal([]byte(assistantText), aad(sessionID, "assistant"))
	if err != nil {
		return sessionID, fmt.Errorf("encrypt assistant text: %w", err)
	}
	turn := ConversationTurn{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		UserText:      userCT,
		AssistantText: assistantCT,
		CreatedAt:     s.now(),
	}

	s.mu.Lock()
	evicted := s.appendLocked(turn)
	n := len(s.turns)
	ticket := s.ticketLocked()
	s.mu.Unlock()

	s.notify(n)
	s.mirrorAppend(ctx, ticket, turn, evicted)
	return sessionID, nil
}

func (s *Store) appendLocked(turn ConversationTurn) []string {
	s.turns = append(s.turns, turn)
	var evicted []string
	switch s.eviction {
	case EvictPerSession:
		for s.countLocked(turn.SessionID) > s.capacity {
			idx := s.oldestIndexLocked(turn.SessionID)
			evicted = append(evicted, s.turns[idx].ID)
			s.turns = append(s.turns[:idx], s.turns[idx+1:]...)
		}
	default:
		for len(s.turns) > s.capacity {
			evicted = append(evicted, s.turns[0].ID)
			s.turns = s.turns[1:]
		}
	}
	return evicted
}

func (s *Store) countLocked(sessionID string) int {
	n := 0
	for _, t := range s.turns {
		if t.SessionID == sessionID {
			n++
		}
	}
	return n
}

func (s *Store) oldestIndexLocked(sessionID string) int {
	for i, t := range s.turns {
		if t.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// GetContextText renders the session's turns as alternating "User:" / "Echo:"
// lines. Turns that fail to decrypt are skipped.
func (s *Store) GetContextText(sessionID string) string {
	s.mu.RLock()
	matched := make([]ConversationTurn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.SessionID == sessionID {
			matched = append(matched, t)
		}
	}
	s.mu.RUnlock()

	lines := make([]string, 0, 2*len(matched))
	for _, t := range matched {
		user, err := s.cipher.Open(t.UserText, aad(t.SessionID, "user"))
		if err != nil {
			s.logger.Warn().Str("turn_id", t.ID).Err(err).Msg("skipping undecryptable turn")
			continue
		}
		assistant, err := s.cipher.Open(t.AssistantText, aad(t.SessionID, "assistant"))
		if err != nil {
			s.logger.Warn().Str("turn_id", t.ID).Err(err).Msg("skipping undecryptable turn")
			continue
		}
		lines = append(lines, "User: "+string(user), "Echo: "+string(assistant))
	}
	return strings.Join(lines, "\n")
}

// ClearMemory removes one session's turns.
func (s *Store) ClearMemory(ctx context.Context, sessionID string) {
	s.mu.Lock()
	kept := s.turns[:0]
	for _, t := range s.turns {
		if t.SessionID != sessionID {
			kept = append(kept, t)
		}
	}
	s.turns = kept
	n := len(s.turns)
	ticket := s.ticketLocked()
	s.mu.Unlock()

	s.notify(n)
	s.mirror(ctx, ticket, "delete_session", func(ctx context.Context) error {
		return s.journal.DeleteSession(ctx, sessionID)
	})
}

// ClearAll removes every session's turns.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.turns = nil
	ticket := s.ticketLocked()
	s.mu.Unlock()

	s.notify(0)
	s.mirror(ctx, ticket, "delete_all", func(ctx context.Context) error {
		return s.journal.DeleteAll(ctx)
	})
}

// GetContent returns a copy of the raw records with ciphertext untouched.
func (s *Store) GetContent() []ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of retained turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Restore replays journaled turns into the store, applying the current
// eviction policy. It only makes sense when the key was supplied externally.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	loaded, err := s.journal.Load(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	var evicted []string
	s.mu.Lock()
	for _, t := range loaded {
		evicted = append(evicted, s.appendLocked(t)...)
	}
	n := len(s.turns)
	var ticket uint64
	if len(evicted) > 0 {
		ticket = s.ticketLocked()
	}
	s.mu.Unlock()

	s.notify(n)
	if len(evicted) > 0 {
		s.mirror(ctx, ticket, "remove", func(ctx context.Context) error {
			return s.journal.Remove(ctx, evicted...)
		})
	}
	return len(loaded), nil
}

// Close releases the journal, if any.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func (s *Store) mirrorAppend(ctx context.Context, ticket uint64, turn ConversationTurn, evicted []string) {
	s.mirror(ctx, ticket, "append", func(ctx context.Context) error {
		if err := s.journal.Append(ctx, turn); err != nil {
			return err
		}
		if len(evicted) == 0 {
			return nil
		}
		return s.journal.Remove(ctx, evicted...)
	})
}

// ticketLocked reserves the next journal slot. Callers hold mu and must pass
// the ticket to mirror exactly once.
func (s *Store) ticketLocked() uint64 {
	if s.journal == nil {
		return 0
	}
	t := s.jnext
	s.jnext++
	return t
}

// mirror applies a journal write once every earlier ticket has been served.
// Journal failures are logged: the in-process store stays authoritative.
func (s *Store) mirror(ctx context.Context, ticket uint64, op string, fn func(context.Context) error) {
	if s.journal == nil {
		return
	}
	s.jmu.Lock()
	for s.jserved != ticket {
		s.jcond.Wait()
	}
	s.jmu.Unlock()
	defer func() {
		s.jmu.Lock()
		s.jserved++
		s.jcond.Broadcast()
		s.jmu.Unlock()
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := fn(jctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Str("op", op).Msg("journal write failed")
	}
}

func (s *Store) notify(n int) {
	if s.observe != nil {
		s.observe(n)
	}
}

func aad(sessionID, role string) []byte {
	return []byte(sessionID + "\x00" + role)
}
