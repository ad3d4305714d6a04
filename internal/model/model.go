package model

import "time"

// Roles a message can carry. The engine itself only ever writes these two;
// anything else in persisted data is preserved as-is.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry. Content is mutable only while the
// owning stream is still appending to it; once the stream completes, or a
// newer message is added, the entry is frozen.
type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	// Timestamp is a display-formatted local time string assigned when the
	// message is created. It is presentation data, not an ordering key;
	// ordering is positional.
	Timestamp string `json:"timestamp"`
	// FeedbackGiven is owned by the presentation layer. The engine stores it
	// but never sets or clears it on its own.
	FeedbackGiven *bool `json:"feedbackGiven,omitempty"`
}

// NewMessage stamps a message with the current wall-clock display time.
func NewMessage(role, content string) Message {
	return Message{
		Content:   content,
		Role:      role,
		Timestamp: time.Now().Format("3:04 PM"),
	}
}

// Snapshot is the collaborator-facing view of a conversation: the ordered
// transcript plus the controller's observable flags.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	Loading        bool      `json:"loading"`
	// Rejection carries the most recent input-gate rejection reason, empty
	// when the last submission was accepted.
	Rejection string `json:"rejection,omitempty"`
}

// StreamChunk is one increment of a streaming assistant reply. Content is the
// raw decoded text of the increment; consumers concatenate chunks verbatim.
type StreamChunk struct {
	Content string
	Done    bool
	Err     string
}
