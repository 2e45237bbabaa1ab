package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": " arre, busy hoon! "}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newCompletionServer(t *testing.T, status int, body string, hits *atomic.Int32, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Complete(t *testing.T) {
	var hits atomic.Int32
	var seen map[string]any
	srv := newCompletionServer(t, http.StatusOK, completionBody, &hits, &seen)

	cfg := testAIConfig()
	cfg.BaseURL = srv.URL + "/v1/"
	r := NewResponder(cfg, testPrompt(), newOpenAIClient(cfg, discardLogger()), nil, discardLogger())

	got := r.GenerateReply(context.Background(), Turn{SenderName: "Priya", Text: "free tonight?"})
	require.Equal(t, "arre, busy hoon!", got)
	require.EqualValues(t, 1, hits.Load())

	require.Equal(t, "test-model", seen["model"])
	require.InDelta(t, 0.9, seen["temperature"], 1e-9)
	require.EqualValues(t, 150, seen["max_tokens"])
	messages, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
	require.Equal(t, `Priya messages you: "free tonight?". Respond as you would.`, messages[1].(map[string]any)["content"])
}

func TestOpenAIClient_ErrorsAreNotRetried(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   string
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error": {"message": "Invalid API Key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			kind:   FailureAuth,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			kind:   FailureRateLimit,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "boom", "type": "server_error"}}`,
			kind:   FailureServer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := newCompletionServer(t, tc.status, tc.body, &hits, nil)

			cfg := testAIConfig()
			cfg.BaseURL = srv.URL + "/v1/"
			client := newOpenAIClient(cfg, discardLogger())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Complete(ctx, CompletionRequest{Model: "test-model", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
			require.Error(t, err)
			require.Equal(t, tc.kind, Classify(err))
			require.EqualValues(t, 1, hits.Load())

			r := NewResponder(cfg, testPrompt(), client, nil, discardLogger())
			require.Equal(t, cfg.FallbackMessage, r.GenerateReply(ctx, Turn{Text: "hi"}))
		})
	}
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	var hits atomic.Int32
	srv := newCompletionServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, &hits, nil)

	cfg := testAIConfig()
	cfg.BaseURL = srv.URL + "/v1/"
	_, err := newOpenAIClient(cfg, discardLogger()).Complete(context.Background(), CompletionRequest{Model: "m"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}
