// Package llm issues chat-completion requests and folds the streamed
// response into ordered text increments.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"

	app_errors "aura-assist/engine/internal/errors"
	"aura-assist/engine/internal/model"
)

// Message is the wire shape of one history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the full ordered history (prior messages plus
// the new user message) and the conversation identity.
type CompletionRequest struct {
	Messages       []Message
	ConversationID string
}

// Client streams a completion for a conversation. The client owns the
// channel and closes it when the stream ends, successfully or not.
type Client interface {
	StreamCompletion(ctx context.Context, req *CompletionRequest, ch chan<- model.StreamChunk) error
}

// completionBody is the remote endpoint's request schema. Sampling is
// pinned deterministic and the model identifier is fixed per deployment.
type completionBody struct {
	Messages       []Message `json:"messages"`
	ChatbotID      string    `json:"chatbotId"`
	Stream         bool      `json:"stream"`
	ConversationID string    `json:"conversationId"`
	Temperature    float64   `json:"temperature"`
	Model          string    `json:"model"`
}

type httpStreamingClient struct {
	client    *http.Client
	url       string
	apiKey    string
	chatbotID string
	model     string
}

// NewClient builds a streaming client for the configured endpoint. No
// request timeout is imposed; a hung connection is only broken by the
// transport itself or by ctx.
func NewClient(url, apiKey, chatbotID, chatModel string) Client {
	return &httpStreamingClient{
		client:    &http.Client{},
		url:       url,
		apiKey:    apiKey,
		chatbotID: chatbotID,
		model:     chatModel,
	}
}

// StreamCompletion POSTs the history and decodes the response body
// incrementally as raw text. No event framing is assumed: every decoded
// increment is one chunk, and consumers concatenate chunks verbatim. On
// failure an error chunk is emitted before the channel closes.
func (c *httpStreamingClient) StreamCompletion(ctx context.Context, req *CompletionRequest, ch chan<- model.StreamChunk) error {
	defer close(ch)

	exchangeID := uuid.NewString()
	body, err := json.Marshal(completionBody{
		Messages:       req.Messages,
		ChatbotID:      c.chatbotID,
		Stream:         true,
		ConversationID: req.ConversationID,
		Temperature:    0,
		Model:          c.model,
	})
	if err != nil {
		return c.fail(ctx, ch, fmt.Errorf("could not marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return c.fail(ctx, ch, fmt.Errorf("could not create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("starting completion stream", "exchange_id", exchangeID, "history_len", len(req.Messages))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return c.fail(ctx, ch, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.fail(ctx, ch, fmt.Errorf("api returned status %d: %s", resp.StatusCode, snippet))
	}

	buf := make([]byte, 2048)
	var rem []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data := append(rem, buf[:n]...)
			complete, rest := splitCompleteRunes(data)
			rem = rest
			if len(complete) > 0 {
				if err := c.emit(ctx, ch, model.StreamChunk{Content: string(complete)}); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			final := model.StreamChunk{Content: string(rem), Done: true}
			slog.Debug("completion stream finished", "exchange_id", exchangeID)
			return c.emit(ctx, ch, final)
		}
		if readErr != nil {
			return c.fail(ctx, ch, fmt.Errorf("stream read failed: %w", readErr))
		}
	}
}

// fail surfaces one error chunk and returns the error wrapped as a
// transport failure. No retry.
func (c *httpStreamingClient) fail(ctx context.Context, ch chan<- model.StreamChunk, err error) error {
	err = fmt.Errorf("%w: %s", app_errors.ErrTransport, err)
	slog.Warn("completion stream failed", "error", err)
	_ = c.emit(ctx, ch, model.StreamChunk{Err: err.Error(), Done: true})
	return err
}

func (c *httpStreamingClient) emit(ctx context.Context, ch chan<- model.StreamChunk, chunk model.StreamChunk) error {
	select {
	case ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// splitCompleteRunes cuts data at the last complete UTF-8 boundary so a
// multi-byte rune split across reads is never surfaced half-decoded.
func splitCompleteRunes(data []byte) (complete, rest []byte) {
	end := len(data)
	for end > 0 && end > len(data)-utf8.UTFMax {
		r, size := utf8.DecodeLastRune(data[:end])
		if r != utf8.RuneError || size > 1 {
			break
		}
		end--
	}
	return data[:end], data[end:]
}
