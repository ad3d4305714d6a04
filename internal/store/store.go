// Package store persists the conversation transcript and identifier on top
// of an injectable storage backend, with recency-capping, quota fallback and
// external-change synchronization.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"

	"aura-assist/engine/internal/model"
	"aura-assist/engine/internal/storage"
)

// Persisted keys. Shared with any other context pointed at the same backend.
const (
	keyMessages       = "chatMessages"
	keyConversationID = "conversationId"
)

const conversationIDPrefix = "conv_"

// ConversationStore owns the two persisted values of a conversation. Writes
// are last-write-wins across contexts; there is no cross-context lock.
type ConversationStore struct {
	backend      storage.Backend
	greeting     string
	historyLimit int
	reducedLimit int

	mu       sync.Mutex
	handlers []func([]model.Message)
}

// New wires a store over a backend. historyLimit is the normal retention
// cap; reducedLimit is the fallback applied under storage quota pressure.
func New(backend storage.Backend, greeting string, historyLimit, reducedLimit int) *ConversationStore {
	return &ConversationStore{
		backend:      backend,
		greeting:     greeting,
		historyLimit: historyLimit,
		reducedLimit: reducedLimit,
	}
}

// Greeting returns the single assistant message a fresh conversation opens
// with.
func (s *ConversationStore) Greeting() model.Message {
	return model.NewMessage(model.RoleAssistant, s.greeting)
}

// Load reads the persisted transcript. Absence, a malformed payload or an
// empty list all fall back to the default greeting conversation; failures
// are logged, never raised.
func (s *ConversationStore) Load(ctx context.Context) []model.Message {
	raw, err := s.backend.Get(ctx, keyMessages)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("could not read persisted transcript, starting fresh", "error", err)
		}
		return []model.Message{s.Greeting()}
	}
	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		slog.Warn("persisted transcript is malformed, starting fresh", "error", err)
		return []model.Message{s.Greeting()}
	}
	if len(messages) == 0 {
		return []model.Message{s.Greeting()}
	}
	return messages
}

// LoadOrCreateID returns the persisted conversation id, generating and
// persisting one when absent.
func (s *ConversationStore) LoadOrCreateID(ctx context.Context) (string, error) {
	raw, err := s.backend.Get(ctx, keyConversationID)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("could not read conversation id: %w", err)
	}
	id := newConversationID()
	if err := s.backend.Set(ctx, keyConversationID, []byte(id)); err != nil {
		return "", fmt.Errorf("could not persist conversation id: %w", err)
	}
	return id, nil
}

// Save persists at most the last historyLimit messages. On a quota failure
// it retries with the last reducedLimit messages. The returned slice is what
// was actually persisted; the caller must adopt it as its in-memory
// transcript so memory and store never diverge after a save cycle.
func (s *ConversationStore) Save(ctx context.Context, messages []model.Message) ([]model.Message, error) {
	capped := tail(messages, s.historyLimit)
	if err := s.write(ctx, capped); err == nil {
		return capped, nil
	} else if !errors.Is(err, storage.ErrQuotaExceeded) {
		return nil, err
	}

	reduced := tail(messages, s.reducedLimit)
	slog.Warn("storage quota exceeded, reducing transcript retention",
		"kept", len(reduced), "dropped", len(messages)-len(reduced))
	if err := s.write(ctx, reduced); err != nil {
		return nil, err
	}
	return reduced, nil
}

// Reset replaces the conversation with a single fresh greeting and issues a
// new conversation id.
func (s *ConversationStore) Reset(ctx context.Context) ([]model.Message, string, error) {
	messages := []model.Message{s.Greeting()}
	if err := s.write(ctx, messages); err != nil {
		return nil, "", fmt.Errorf("could not reset transcript: %w", err)
	}
	id := newConversationID()
	if err := s.backend.Set(ctx, keyConversationID, []byte(id)); err != nil {
		return nil, "", fmt.Errorf("could not persist new conversation id: %w", err)
	}
	return messages, id, nil
}

// FlushOnBackground writes the full in-memory buffer through immediately,
// protecting against process termination while backgrounded. The buffer may
// exceed the retention cap here; the next regular Save re-applies it.
func (s *ConversationStore) FlushOnBackground(ctx context.Context, messages []model.Message) error {
	return s.write(ctx, messages)
}

// SubscribeExternalChange registers a handler for transcripts written by
// other contexts. Handlers run on the watch goroutine.
func (s *ConversationStore) SubscribeExternalChange(handler func([]model.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// StartWatch begins observing the backend for external writes until ctx is
// cancelled. Malformed incoming payloads are discarded with a warning and
// the current in-memory transcript is left untouched.
func (s *ConversationStore) StartWatch(ctx context.Context) error {
	events, err := s.backend.Watch(ctx)
	if err != nil {
		return fmt.Errorf("could not watch backend: %w", err)
	}
	go func() {
		for ev := range events {
			if ev.Key != keyMessages {
				continue
			}
			var messages []model.Message
			if err := json.Unmarshal(ev.Value, &messages); err != nil {
				slog.Warn("discarding malformed external transcript", "error", err)
				continue
			}
			s.mu.Lock()
			handlers := make([]func([]model.Message), len(s.handlers))
			copy(handlers, s.handlers)
			s.mu.Unlock()
			for _, handler := range handlers {
				handler(messages)
			}
		}
	}()
	return nil
}

func (s *ConversationStore) write(ctx context.Context, messages []model.Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("could not marshal transcript: %w", err)
	}
	return s.backend.Set(ctx, keyMessages, raw)
}

func tail(messages []model.Message, limit int) []model.Message {
	if limit > 0 && len(messages) > limit {
		return messages[len(messages)-limit:]
	}
	return messages
}

// newConversationID produces `conv_` plus a random lowercase base-36
// fragment, matching the persisted id pattern other contexts expect.
func newConversationID() string {
	return conversationIDPrefix + strconv.FormatUint(rand.Uint64(), 36)
}
