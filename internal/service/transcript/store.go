package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/model/chat"
	"github.com/zhouzirui/supportbot/internal/storage"
)

// Settings controls persistence and retention.
type Settings struct {
	Persist     bool
	Key         string
	MaxMessages int
}

// Store is the ordered message log of one widget. Appends are capped at
// MaxMessages in memory as well as in the persisted copy; the oldest
// messages are evicted first.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	backend  storage.Backend
	settings Settings
	logger   zerolog.Logger
}

// NewStore returns an empty store. backend may be nil when persistence is off.
func NewStore(backend storage.Backend, settings Settings) *Store {
	if settings.MaxMessages < 1 {
		settings.MaxMessages = 1
	}
	return &Store{
		messages: make([]chat.Message, 0, 16),
		backend:  backend,
		settings: settings,
		logger:   log.With().Str("component", "transcript").Str("key", settings.Key).Logger(),
	}
}

func (s *Store) persistent() bool {
	return s.settings.Persist && s.backend != nil && s.settings.Key != ""
}

// LoadInitial replaces the in-memory log with the persisted one. Missing or
// unreadable state leaves the store empty; errors are logged, never returned.
func (s *Store) LoadInitial(ctx context.Context) {
	if !s.persistent() {
		return
	}

	raw, err := s.backend.Get(ctx, s.settings.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load messages")
		return
	}

	var loaded []chat.Message
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse persisted messages, starting empty")
		return
	}

	s.mu.Lock()
	s.messages = trimTail(loaded, s.settings.MaxMessages)
	s.mu.Unlock()
}

// Append adds msg to the end of the log and persists the retained window.
func (s *Store) Append(ctx context.Context, msg chat.Message) {
	s.mu.Lock()
	s.messages = trimTail(append(s.messages, msg), s.settings.MaxMessages)
	snapshot := append([]chat.Message(nil), s.messages...)
	s.mu.Unlock()

	s.save(ctx, snapshot)
}

// Reset leaves welcome as the only message and removes the persisted state.
// The welcome message itself is persisted with the next append.
func (s *Store) Reset(ctx context.Context, welcome chat.Message) {
	s.mu.Lock()
	s.messages = []chat.Message{welcome}
	s.mu.Unlock()

	if s.persistent() {
		if err := s.backend.Delete(ctx, s.settings.Key); err != nil {
			s.logger.Warn().Err(err).Msg("failed to remove persisted messages")
		}
	}
}

// Messages returns a copy of the log in insertion order.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages...)
}

// Last returns up to n of the most recent messages.
func (s *Store) Last(n int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), trimTail(s.messages, n)...)
}

// Len reports the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// CountUser reports how many retained messages came from the user.
func (s *Store) CountUser() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.messages {
		if m.IsUser {
			count++
		}
	}
	return count
}

func (s *Store) save(ctx context.Context, messages []chat.Message) {
	if !s.persistent() {
		return
	}

	raw, err := json.Marshal(messages)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode messages")
		return
	}
	if err := s.backend.Put(ctx, s.settings.Key, raw); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save messages")
	}
}

func trimTail(messages []chat.Message, limit int) []chat.Message {
	if limit < 0 {
		limit = 0
	}
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
