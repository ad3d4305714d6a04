package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aura-assist/engine/internal/format"
	"aura-assist/engine/internal/interfaces"
	"aura-assist/engine/internal/model"
)

// ChatHandler exposes the session engine over HTTP. Everything about how
// the transcript is displayed lives on the other side of this boundary.
type ChatHandler struct {
	controller interfaces.SessionController
	formatter  *format.Formatter
}

func NewChatHandler(controller interfaces.SessionController, formatter *format.Formatter) *ChatHandler {
	return &ChatHandler{controller: controller, formatter: formatter}
}

// SendMessageRequest is the DTO for a new user submission. The input gate
// applies its own length and content rules after this structural check.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required" example:"How do I reset my password?"`
}

// FeedbackRequest is the DTO for the collaborator-owned feedback flag.
type FeedbackRequest struct {
	Given *bool `json:"given" validate:"required"`
}

// RichMessage pairs a transcript entry with its render-ready content nodes.
type RichMessage struct {
	model.Message
	Rich []format.Node `json:"rich"`
}

// ConversationResponse is the full collaborator-facing view.
type ConversationResponse struct {
	ConversationID string        `json:"conversation_id"`
	Loading        bool          `json:"loading"`
	Rejection      string        `json:"rejection,omitempty"`
	Messages       []RichMessage `json:"messages"`
}

func (h *ChatHandler) conversationResponse(snapshot model.Snapshot) ConversationResponse {
	messages := make([]RichMessage, 0, len(snapshot.Messages))
	for _, msg := range snapshot.Messages {
		messages = append(messages, RichMessage{Message: msg, Rich: h.formatter.Format(msg.Content)})
	}
	return ConversationResponse{
		ConversationID: snapshot.ConversationID,
		Loading:        snapshot.Loading,
		Rejection:      snapshot.Rejection,
		Messages:       messages,
	}
}

// GetConversation godoc
// @Summary      Current conversation
// @Description  Returns the transcript with render-ready content nodes, the loading flag and the last input rejection.
// @Tags         Conversation
// @Produce      json
// @Success      200  {object}  ConversationResponse
// @Router       /v1/conversation [get]
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.conversationResponse(h.controller.Snapshot()))
}

// HandleSendMessage godoc
// @Summary      Send a message
// @Description  Submits user text and streams transcript updates as SSE until the assistant reply is finalized.
// @Tags         Conversation
// @Accept       json
// @Produce      text/event-stream
// @Param        message  body  SendMessageRequest  true  "User text"
// @Success      200  {object}  ConversationResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /v1/messages [post]
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	// Subscribe before submitting so no update between the first chunk and
	// the final save can be missed.
	updates := make(chan model.Snapshot, 128)
	unsubscribe := h.controller.Subscribe(func(snapshot model.Snapshot) {
		select {
		case updates <- snapshot:
		default:
		}
	})
	defer unsubscribe()

	if err := h.controller.Submit(r.Context(), req.Content); err != nil {
		respondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Drain updates until the exchange settles. The ticker covers the rare
	// case of the final snapshot being dropped from the buffer.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			slog.Debug("client disconnected from message stream")
			return
		case snapshot := <-updates:
			if err := writeStreamEvent(w, h.conversationResponse(snapshot)); err != nil {
				return
			}
			if !snapshot.Loading {
				return
			}
		case <-ticker.C:
			if !h.controller.Loading() {
				_ = writeStreamEvent(w, h.conversationResponse(h.controller.Snapshot()))
				return
			}
		}
	}
}

// HandleReset godoc
// @Summary      Reset the conversation
// @Description  Replaces the transcript with a single greeting and issues a new conversation id.
// @Tags         Conversation
// @Produce      json
// @Success      200  {object}  ConversationResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /v1/conversation/reset [post]
func (h *ChatHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ResetConversation(r.Context()); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.conversationResponse(h.controller.Snapshot()))
}

// HandleFeedback godoc
// @Summary      Mark message feedback
// @Description  Sets the presentation-owned feedback flag on one message.
// @Tags         Conversation
// @Accept       json
// @Produce      json
// @Param        index     path  int              true  "Message index"
// @Param        feedback  body  FeedbackRequest  true  "Feedback flag"
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/messages/{index}/feedback [post]
func (h *ChatHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid message index"})
		return
	}
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.controller.MarkFeedback(r.Context(), index, *req.Given); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleBackground godoc
// @Summary      Background flush
// @Description  Writes the transcript through immediately when the hosting page reports being hidden.
// @Tags         Lifecycle
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/lifecycle/background [post]
func (h *ChatHandler) HandleBackground(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.FlushOnBackground(r.Context()); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
