package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGroq struct {
	mu       sync.Mutex
	seen     []string
	statuses map[string]int
}

func (f *fakeGroq) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.seen = append(f.seen, req.Model)
		status := f.statuses[req.Model]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "  echo: " + req.Messages[0].Content + " "},
				"finish_reason": "stop",
			}},
		})
	})
}

func newTestClient(t *testing.T, statuses map[string]int) (*Client, *fakeGroq) {
	t.Helper()
	fake := &fakeGroq{statuses: statuses}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "key", BaseURL: srv.URL + "/"}), fake
}

func TestAsk_ReturnsTrimmedAnswer(t *testing.T) {
	c, fake := newTestClient(t, nil)

	ans, err := c.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", ans.Text)
	assert.Equal(t, "llama-3.1-8b-instant", ans.Model)
	assert.Equal(t, []string{"llama-3.1-8b-instant"}, fake.seen)
}

func TestAsk_RotatesPastMissingModel(t *testing.T) {
	c, fake := newTestClient(t, map[string]int{
		"llama-3.1-8b-instant":    http.StatusNotFound,
		"llama-3.1-70b-versatile": http.StatusNotFound,
	})

	ans, err := c.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "mixtral-8x7b-32768", ans.Model)
	assert.Equal(t, "mixtral-8x7b-32768", c.Model(), "rotation sticks")
	assert.Len(t, fake.seen, 3)
}

func TestAsk_RotationIsBounded(t *testing.T) {
	all := map[string]int{}
	for _, m := range DefaultModels {
		all[m] = http.StatusNotFound
	}
	c, fake := newTestClient(t, all)

	_, err := c.Ask(context.Background(), "hi")
	assert.True(t, apperr.IsTransient(err))
	assert.Len(t, fake.seen, len(DefaultModels))
}

func TestAsk_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusUnauthorized, apperr.KindConfiguration},
		{http.StatusTooManyRequests, apperr.KindTransient},
		{http.StatusServiceUnavailable, apperr.KindTransient},
		{http.StatusBadRequest, apperr.KindUsage},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, map[string]int{"llama-3.1-8b-instant": tt.status})
			_, err := c.Ask(context.Background(), "hi")
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestAsk_WithoutKey(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Configured())
	_, err := c.Ask(context.Background(), "hi")
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	status := c.CheckKey(context.Background())
	assert.False(t, status.Configured)
	assert.False(t, status.Valid)
}

func TestCheckKey(t *testing.T) {
	c, _ := newTestClient(t, nil)
	status := c.CheckKey(context.Background())
	assert.True(t, status.Valid)
	assert.Equal(t, "llama-3.1-8b-instant", status.Model)

	bad, _ := newTestClient(t, map[string]int{"llama-3.1-8b-instant": http.StatusUnauthorized})
	status = bad.CheckKey(context.Background())
	assert.True(t, status.Configured)
	assert.False(t, status.Valid)
	assert.Equal(t, "❌ The AI API key was rejected.", status.Detail)
}

func TestSetModel(t *testing.T) {
	c := New(Config{APIKey: "k", Model: "gemma2-9b-it"})
	assert.Equal(t, "gemma2-9b-it", c.Model())

	require.NoError(t, c.SetModel("mixtral-8x7b-32768"))
	assert.Equal(t, "mixtral-8x7b-32768", c.Model())

	err := c.SetModel("gpt-9")
	assert.Equal(t, apperr.KindUsage, apperr.KindOf(err))
	assert.Contains(t, apperr.UserMessage(err), "• llama-3.1-8b-instant")
}
