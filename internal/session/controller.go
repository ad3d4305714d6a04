// Package session orchestrates the chat session engine: it accepts user
// submissions, drives the input gate, conversation store and streaming
// client, and exposes the current transcript and loading state to
// presentation code.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	app_errors "aura-assist/engine/internal/errors"
	"aura-assist/engine/internal/gate"
	"aura-assist/engine/internal/llm"
	"aura-assist/engine/internal/model"
	"aura-assist/engine/internal/store"
)

// State of the controller per conversation.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
	// StateError is transient and informational; it never blocks the next
	// submission once Idle is reached.
	StateError State = "error"
)

// failureNotice is the single generic message surfaced for any stream
// failure. Partial content is replaced, never silently retried.
const failureNotice = "Sorry, something went wrong. Please try again."

// Controller is the chat session state machine. All exported methods are
// safe for concurrent use; chunk updates for an exchange are applied
// strictly in receipt order.
type Controller struct {
	gate   *gate.Gate
	store  *store.ConversationStore
	client llm.Client

	mu             sync.Mutex
	conversationID string
	messages       []model.Message
	state          State
	rejection      string
	// streamIdx is the index of the in-progress assistant message for the
	// active exchange, -1 when none exists yet.
	streamIdx   int
	subscribers map[int]func(model.Snapshot)
	nextSubID   int
}

func New(g *gate.Gate, st *store.ConversationStore, client llm.Client) *Controller {
	return &Controller{
		gate:        g,
		store:       st,
		client:      client,
		state:       StateIdle,
		streamIdx:   -1,
		subscribers: make(map[int]func(model.Snapshot)),
	}
}

// Start restores (or creates) the conversation and begins consuming
// external transcript changes from other contexts.
func (c *Controller) Start(ctx context.Context) error {
	id, err := c.store.LoadOrCreateID(ctx)
	if err != nil {
		return fmt.Errorf("could not initialize conversation id: %w", err)
	}
	messages := c.store.Load(ctx)

	c.mu.Lock()
	c.conversationID = id
	c.messages = messages
	c.mu.Unlock()

	c.store.SubscribeExternalChange(c.adoptExternal)
	if err := c.store.StartWatch(ctx); err != nil {
		return err
	}
	return nil
}

// adoptExternal replaces the transcript with one written by another
// context. While a reply is streaming the incoming list is dropped rather
// than clobbering the in-progress assistant message; the next save from
// this context wins (last-write-wins, see package store).
func (c *Controller) adoptExternal(messages []model.Message) {
	c.mu.Lock()
	if c.state == StateAwaitingReply {
		c.mu.Unlock()
		return
	}
	c.messages = messages
	c.mu.Unlock()
	c.notify()
}

// Submit runs one send/receive cycle. A submission while a reply is already
// awaited returns ErrBusy and does nothing; a gate rejection is recorded
// for display and returns without touching network or storage.
func (c *Controller) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state == StateAwaitingReply {
		c.mu.Unlock()
		return app_errors.ErrBusy
	}

	clean, err := c.gate.Validate(text)
	if err != nil {
		c.rejection = rejectionReason(err)
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.rejection = ""

	// Sanitized once on acceptance and again defensively before send.
	userMessage := model.NewMessage(model.RoleUser, gate.Sanitize(clean))
	c.messages = append(c.messages, userMessage)
	c.state = StateAwaitingReply
	c.streamIdx = -1

	history := make([]llm.Message, 0, len(c.messages))
	for _, msg := range c.messages {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	req := &llm.CompletionRequest{
		Messages:       history,
		ConversationID: c.conversationID,
	}
	c.mu.Unlock()

	c.notify()
	c.persist(ctx)

	// The exchange outlives the submitting caller: no cancellation is
	// implemented for an in-flight stream, new submissions are rejected
	// instead.
	exchangeCtx := context.WithoutCancel(ctx)
	ch := make(chan model.StreamChunk)
	go func() {
		_ = c.client.StreamCompletion(exchangeCtx, req, ch)
	}()
	go c.consume(exchangeCtx, ch)

	return nil
}

// consume folds the chunk stream into the trailing assistant message and
// finalizes the exchange. Every exit path clears the loading state.
func (c *Controller) consume(ctx context.Context, ch <-chan model.StreamChunk) {
	var buffer strings.Builder
	failed := false

	for chunk := range ch {
		if chunk.Err != "" {
			failed = true
			break
		}
		buffer.WriteString(chunk.Content)
		if buffer.Len() > 0 {
			c.applyAssistantBuffer(buffer.String())
		}
	}

	c.mu.Lock()
	if failed {
		c.state = StateError
	}
	c.mu.Unlock()

	if failed {
		// Replace any half-updated message with the generic notice.
		c.applyAssistantBuffer(failureNotice)
	}

	c.mu.Lock()
	c.state = StateIdle
	c.streamIdx = -1
	c.mu.Unlock()

	// Persist before the final notification so observers seeing the idle
	// state can rely on the transcript having been written through.
	c.persist(ctx)
	c.notify()
}

// applyAssistantBuffer applies the accumulated buffer to the transcript: if
// this exchange already owns a trailing assistant message its content is
// replaced with the full buffer, otherwise a new assistant message is
// created. Re-applying the same buffer is a no-op.
func (c *Controller) applyAssistantBuffer(content string) {
	c.mu.Lock()
	if c.streamIdx >= 0 && c.streamIdx < len(c.messages) {
		c.messages[c.streamIdx].Content = content
	} else {
		c.messages = append(c.messages, model.NewMessage(model.RoleAssistant, content))
		c.streamIdx = len(c.messages) - 1
	}
	c.mu.Unlock()
	c.notify()
}

// ResetConversation replaces the transcript with a single greeting and a
// new conversation id. Rejected while a reply is streaming.
func (c *Controller) ResetConversation(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateAwaitingReply {
		c.mu.Unlock()
		return app_errors.ErrBusy
	}
	c.mu.Unlock()

	messages, id, err := c.store.Reset(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = messages
	c.conversationID = id
	c.rejection = ""
	c.streamIdx = -1
	c.mu.Unlock()

	c.notify()
	return nil
}

// MarkFeedback sets the collaborator-owned feedback flag on a message. The
// engine stores the flag but never mutates it on its own.
func (c *Controller) MarkFeedback(ctx context.Context, index int, given bool) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.messages) {
		c.mu.Unlock()
		return fmt.Errorf("%w: no message at index %d", app_errors.ErrNotFound, index)
	}
	c.messages[index].FeedbackGiven = &given
	c.mu.Unlock()

	c.notify()
	c.persist(ctx)
	return nil
}

// FlushOnBackground writes the current transcript through immediately when
// the hosting page reports being hidden or backgrounded.
func (c *Controller) FlushOnBackground(ctx context.Context) error {
	c.mu.Lock()
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	c.mu.Unlock()
	return c.store.FlushOnBackground(ctx, messages)
}

// Transcript returns a copy of the current ordered message sequence.
func (c *Controller) Transcript() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

// Loading reports whether a reply is currently awaited.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingReply
}

// LastRejection returns the most recent input-gate rejection reason, empty
// when the last submission was accepted.
func (c *Controller) LastRejection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejection
}

// Snapshot returns the collaborator-facing view of the session.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	return model.Snapshot{
		ConversationID: c.conversationID,
		Messages:       messages,
		Loading:        c.state == StateAwaitingReply,
		Rejection:      c.rejection,
	}
}

// Subscribe registers a presentation-layer observer and returns its
// unsubscribe function. Observers receive a snapshot after every transcript
// or state change, on the mutating goroutine.
func (c *Controller) Subscribe(observer func(model.Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = observer
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Controller) notify() {
	snapshot := c.Snapshot()
	c.mu.Lock()
	observers := make([]func(model.Snapshot), 0, len(c.subscribers))
	for _, observer := range c.subscribers {
		observers = append(observers, observer)
	}
	c.mu.Unlock()
	for _, observer := range observers {
		observer(snapshot)
	}
}

// persist saves the transcript and adopts whatever the store actually kept,
// so the in-memory copy follows the retention caps.
func (c *Controller) persist(ctx context.Context) {
	c.mu.Lock()
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	c.mu.Unlock()

	saved, err := c.store.Save(ctx, messages)
	if err != nil {
		slog.Warn("could not persist transcript", "error", err)
		return
	}
	if len(saved) == len(messages) {
		return
	}

	c.mu.Lock()
	// Adopt the reduced list only if nothing changed underneath the save;
	// a superseding write wins otherwise.
	if len(c.messages) == len(messages) {
		c.messages = saved
		if c.streamIdx >= 0 {
			c.streamIdx -= len(messages) - len(saved)
		}
	}
	c.mu.Unlock()
	c.notify()
}

// rejectionReason strips the sentinel prefix for inline display.
func rejectionReason(err error) string {
	reason := err.Error()
	if cut, ok := strings.CutPrefix(reason, app_errors.ErrValidation.Error()+": "); ok {
		return cut
	}
	return reason
}
