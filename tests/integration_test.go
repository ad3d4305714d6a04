// Package tests wires the whole engine together in-process: file-backed
// persistence in a temp dir, the real HTTP API and a fake upstream
// completion endpoint standing in for the remote chat service.
package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-assist/engine/internal/api"
	"aura-assist/engine/internal/format"
	"aura-assist/engine/internal/gate"
	"aura-assist/engine/internal/llm"
	"aura-assist/engine/internal/session"
	"aura-assist/engine/internal/storage"
	"aura-assist/engine/internal/store"
)

const greeting = "Hi! How can I help you today?"

type conversationView struct {
	ConversationID string `json:"conversation_id"`
	Loading        bool   `json:"loading"`
	Messages       []struct {
		Content string `json:"content"`
		Role    string `json:"role"`
	} `json:"messages"`
}

// newFakeCompletionServer streams the given fragments as a raw text body,
// flushing after each one the way the real upstream does.
func newFakeCompletionServer(t *testing.T, fragments []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, fragment := range fragments {
			_, err := fmt.Fprint(w, fragment)
			require.NoError(t, err)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
}

func newEngineServer(t *testing.T, dataDir, upstreamURL string) *httptest.Server {
	t.Helper()

	backend, err := storage.NewFileBackend(dataDir, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	conversationStore := store.New(backend, greeting, 100, 50)
	chatClient := llm.NewClient(upstreamURL, "test-key", "test-bot", "test-model")
	controller := session.New(gate.New(500), conversationStore, chatClient)
	require.NoError(t, controller.Start(context.Background()))

	handler := api.NewChatHandler(controller, format.New("example.com"))
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)
	return server
}

func getConversation(t *testing.T, baseURL string) conversationView {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/v1/conversation")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view conversationView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func TestEngine_FullExchange(t *testing.T) {
	upstream := newFakeCompletionServer(t, []string{"Hel", "lo, ", "world"})
	defer upstream.Close()

	dataDir := t.TempDir()
	server := newEngineServer(t, dataDir, upstream.URL)

	// A fresh engine greets and is idle.
	view := getConversation(t, server.URL)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, greeting, view.Messages[0].Content)
	assert.False(t, view.Loading)
	assert.Regexp(t, `^conv_[0-9a-z]+$`, view.ConversationID)

	// Send a message and drain the SSE stream to completion.
	resp, err := http.Post(server.URL+"/api/v1/messages", "application/json",
		strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var last conversationView
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		events++
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last))
	}
	require.NoError(t, scanner.Err())
	require.Greater(t, events, 0)

	assert.False(t, last.Loading)
	require.Len(t, last.Messages, 3)
	assert.Equal(t, "hello", last.Messages[1].Content)
	assert.Equal(t, "user", last.Messages[1].Role)
	assert.Equal(t, "Hello, world", last.Messages[2].Content)
	assert.Equal(t, "assistant", last.Messages[2].Role)

	// The finalized transcript survives a full engine restart on the same
	// data dir.
	restarted := newEngineServer(t, dataDir, upstream.URL)
	view = getConversation(t, restarted.URL)
	require.Len(t, view.Messages, 3)
	assert.Equal(t, "Hello, world", view.Messages[2].Content)
}

func TestEngine_FeedbackAndReset(t *testing.T) {
	upstream := newFakeCompletionServer(t, []string{"Sure."})
	defer upstream.Close()

	server := newEngineServer(t, t.TempDir(), upstream.URL)
	before := getConversation(t, server.URL)

	// Feedback on the greeting message.
	resp, err := http.Post(server.URL+"/api/v1/messages/0/feedback", "application/json",
		strings.NewReader(`{"given":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Feedback out of range.
	resp, err = http.Post(server.URL+"/api/v1/messages/42/feedback", "application/json",
		strings.NewReader(`{"given":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Reset issues a new id and a lone greeting.
	resp, err = http.Post(server.URL+"/api/v1/conversation/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := getConversation(t, server.URL)
	require.Len(t, after.Messages, 1)
	assert.Equal(t, greeting, after.Messages[0].Content)
	assert.NotEqual(t, before.ConversationID, after.ConversationID)
}

func TestEngine_GateRejectionOverHTTP(t *testing.T) {
	upstream := newFakeCompletionServer(t, []string{"never reached"})
	defer upstream.Close()

	server := newEngineServer(t, t.TempDir(), upstream.URL)

	resp, err := http.Post(server.URL+"/api/v1/messages", "application/json",
		strings.NewReader(`{"content":"javascript:alert(1)"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The transcript is untouched by a rejected submission.
	view := getConversation(t, server.URL)
	assert.Len(t, view.Messages, 1)
}

func TestEngine_BackgroundFlush(t *testing.T) {
	upstream := newFakeCompletionServer(t, []string{"ok"})
	defer upstream.Close()

	server := newEngineServer(t, t.TempDir(), upstream.URL)

	resp, err := http.Post(server.URL+"/api/v1/lifecycle/background", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
