package persona

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/pkg/logger"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestLLMClientGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		body := decodeBody(t, r)
		assert.Contains(t, body, "systemInstruction")
		contents := body["contents"].([]any)
		require.Len(t, contents, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Which account "},{"text":"sir?"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4}}`))
	}))
	defer srv.Close()

	client := NewLLMClient(LLMConfig{
		Provider:     "gemini",
		GoogleAPIKey: "g-key",
		Model:        "gemini-test",
		GeminiURL:    srv.URL + "/models",
	}, logger.NewNop())

	out, err := client.Chat(context.Background(), []Message{{Role: "user", Text: "hi"}}, "be Rajesh")
	require.NoError(t, err)
	assert.Equal(t, "Which account sir?", out)
}

func TestLLMClientClaude(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		body := decodeBody(t, r)
		assert.Equal(t, "be Rajesh", body["system"])
		assert.EqualValues(t, 150, body["max_tokens"])

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Oh no, which bank?"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	client := NewLLMClient(LLMConfig{Provider: "claude", ClaudeAPIKey: "c-key", ClaudeURL: srv.URL}, logger.NewNop())

	out, err := client.Chat(context.Background(), []Message{{Role: "user", Text: "hi"}}, "be Rajesh")
	require.NoError(t, err)
	assert.Equal(t, "Oh no, which bank?", out)
}

func TestLLMClientOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer o-key", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Please send the link."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewLLMClient(LLMConfig{Provider: "openai", OpenAIAPIKey: "o-key", OpenAIURL: srv.URL}, logger.NewNop())

	out, err := client.Chat(context.Background(), []Message{{Role: "user", Text: "hi"}}, "be Rajesh")
	require.NoError(t, err)
	assert.Equal(t, "Please send the link.", out)
}

func TestLLMClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		case "/empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	t.Run("non-200", func(t *testing.T) {
		client := NewLLMClient(LLMConfig{Provider: "openai", OpenAIURL: srv.URL + "/status"}, logger.NewNop())
		_, err := client.Chat(context.Background(), nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("no choices", func(t *testing.T) {
		client := NewLLMClient(LLMConfig{Provider: "openai", OpenAIURL: srv.URL + "/empty"}, logger.NewNop())
		_, err := client.Chat(context.Background(), nil, "")
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		client := NewLLMClient(LLMConfig{Provider: "claude", ClaudeURL: srv.URL + "/slow", Timeout: 20 * time.Millisecond}, logger.NewNop())
		_, err := client.Chat(context.Background(), nil, "")
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		client := NewLLMClient(LLMConfig{Provider: "bard"}, logger.NewNop())
		_, err := client.Chat(context.Background(), nil, "")
		assert.ErrorContains(t, err, "unsupported provider")
	})
}

func TestNewLLMClientDefaults(t *testing.T) {
	client := NewLLMClient(LLMConfig{}, logger.NewNop())

	assert.Equal(t, "gemini", client.Provider())
	assert.Equal(t, "gemini-2.0-flash", client.config.Model)
	assert.Equal(t, 150, client.config.MaxTokens)
	assert.Equal(t, 0.9, client.config.Temperature)
}
