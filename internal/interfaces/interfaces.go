package interfaces

import (
	"context"

	"aura-assist/engine/internal/model"
)

// This file defines the collaborator-facing contract of the session engine.
// Depending on this interface, instead of the concrete controller, decouples
// the API layer from the session layer and enables testing via mocking.

// SessionController is the surface the engine exposes to presentation code.
type SessionController interface {
	// Submit runs one send/receive cycle for validated user text.
	Submit(ctx context.Context, text string) error
	// ResetConversation replaces the transcript with a single greeting and
	// issues a new conversation id.
	ResetConversation(ctx context.Context) error
	// MarkFeedback sets the collaborator-owned feedback flag on a message.
	MarkFeedback(ctx context.Context, index int, given bool) error
	// FlushOnBackground writes the transcript through when the hosting page
	// is hidden or backgrounded.
	FlushOnBackground(ctx context.Context) error
	// Snapshot returns the current transcript, loading flag and last
	// input rejection.
	Snapshot() model.Snapshot
	// Loading reports whether a reply is currently awaited.
	Loading() bool
	// Subscribe registers an observer for state changes and returns its
	// unsubscribe function.
	Subscribe(observer func(model.Snapshot)) func()
}
