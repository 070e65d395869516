package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Timeout: 2 * time.Second}, nil)
}

func TestInvoke_OK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		msgs := body["messages"].([]any)
		assert.Len(t, msgs, 2)

		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"content":"{\"total\":1}"}}]}`))
	})

	got, err := c.Invoke(context.Background(), llm.Prompt{System: "s", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, `{"total":1}`, got)
	assert.Equal(t, "gpt-test", c.Model())
}

func TestInvoke_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   llm.ErrorKind
	}{
		{name: "rate limit", status: 429, body: `{"error":{"message":"slow down"}}`, want: llm.KindTransient},
		{name: "server error", status: 502, body: `bad gateway`, want: llm.KindTransient},
		{name: "bad request", status: 400, body: `{"error":{"message":"invalid"}}`, want: llm.KindPermanent},
		{name: "too large", status: 413, body: ``, want: llm.KindPermanent},
		{name: "refusal", status: 200, body: `{"choices":[{"finish_reason":"stop","message":{"content":"","refusal":"no"}}]}`, want: llm.KindPermanent},
		{name: "content filter", status: 200, body: `{"choices":[{"finish_reason":"content_filter","message":{"content":""}}]}`, want: llm.KindPermanent},
		{name: "no choices", status: 200, body: `{"choices":[]}`, want: llm.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Invoke(context.Background(), llm.Prompt{})

			var ce *llm.CallError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.want, ce.Kind)
			assert.Equal(t, "openai", ce.Provider)
		})
	}
}

func TestInvoke_TimeoutIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// drain the body so the server notices the client disconnect
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Invoke(ctx, llm.Prompt{})
	var ce *llm.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, llm.KindTransient, ce.Kind)
}
