package features

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keepmind9/guildbot/internal/ai"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCompletions(t *testing.T, answer string) *ai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return ai.New(ai.Config{APIKey: "key", BaseURL: srv.URL + "/"})
}

func TestNeedsAIReply(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"why is the sky blue", true},
		{"is it raining?", true},
		{"tell me about go", true},
		{"i'm so happy", true},
		{"I feel fine", true},
		{"this thing works pretty well", true},
		{"ok", false},
		{"see you later.", false},
		{"lunch at noon!", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ev := event.New(event.MessageCreated, "test")
			ev.Text = mo.Some(tt.text)
			assert.Equal(t, tt.want, NeedsAIReply(ev))
		})
	}

	joined := event.New(event.MemberJoined, "test")
	joined.Text = mo.Some("why")
	assert.False(t, NeedsAIReply(joined))
}

func TestAsk_WithoutKey(t *testing.T) {
	h := newHarness(t)

	h.say("!ask what is go")

	assert.Equal(t, []string{"❌ Groq API key is not properly configured.\nUse `!checkkey` for details."}, h.gw.Texts())
}

func TestAsk_RepliesWithAnswer(t *testing.T) {
	client := fakeCompletions(t, "Go is a programming language.")
	h := newHarness(t, func(d *Deps) { d.AI = client })

	h.say("!ask what is go")

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	e := sent[0].Message.Embed
	require.NotNil(t, e)
	assert.Equal(t, "🤖 AI Response", e.Title)
	assert.Equal(t, "Go is a programming language.", e.Description)
	assert.Equal(t, "Model: "+client.Model()+" | Asked by alice", e.Footer)

	h.gw.Reset()
	h.say("!ask and again")
	assert.Len(t, h.gw.Texts(), 1)
	assert.Contains(t, h.gw.Texts()[0], "⏰ This command is on cooldown.")
}

func TestAutoReply(t *testing.T) {
	client := fakeCompletions(t, "Because of Rayleigh scattering.")
	h := newHarness(t, func(d *Deps) { d.AI = client })

	out := h.say("why is the sky blue")

	assert.Equal(t, "ai.auto", out.Responder)
	assert.Equal(t, []string{"\nBecause of Rayleigh scattering."}, h.gw.Texts())
}

func TestAutoReply_DropsErrorAnswers(t *testing.T) {
	client := fakeCompletions(t, "❌ something broke")
	h := newHarness(t, func(d *Deps) { d.AI = client })

	h.say("why is the sky blue")

	assert.Empty(t, h.gw.Sent())
}

func TestModel(t *testing.T) {
	client := fakeCompletions(t, "ok")
	h := newHarness(t, func(d *Deps) { d.AI = client })
	models := client.Models()
	require.NotEmpty(t, models)
	target := models[len(models)-1]

	h.say("!model " + target)

	assert.Equal(t, []string{"🔧 Model Changed\nSwitched to: **" + target + "**"}, h.gw.Texts())
	assert.Equal(t, target, client.Model())
}
