package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keepmind9/guildbot/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func adminRequest(t *testing.T, s *AdminServer, method, path string) (int, gjson.Result) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, gjson.Parse(rec.Body.String())
}

func TestAdmin_Healthz(t *testing.T) {
	s := NewAdminServer("127.0.0.1:0", newTestEngine(t).Engine)

	code, body := adminRequest(t, s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Get("status").String())
}

func TestAdmin_Status(t *testing.T) {
	te := newTestEngine(t)
	s := NewAdminServer("127.0.0.1:0", te.Engine)
	te.HandleEvent(chat("u1", "hello there"))

	code, body := adminRequest(t, s, http.MethodGet, "/status")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "discord", body.Get("platform").String())
	assert.Equal(t, "disconnected", body.Get("connection").String())
	assert.EqualValues(t, 1, body.Get("events_processed").Int())
	assert.Equal(t, len(features.Names()), len(body.Get("modules").Array()))
	assert.False(t, body.Get("scheduler_running").Bool())
}

func TestAdmin_Handlers(t *testing.T) {
	s := NewAdminServer("127.0.0.1:0", newTestEngine(t).Engine)

	code, body := adminRequest(t, s, http.MethodGet, "/handlers?module=basic")

	assert.Equal(t, http.StatusOK, code)
	handlers := body.Get("handlers").Array()
	require.NotEmpty(t, handlers)
	for _, h := range handlers {
		assert.Equal(t, "basic", h.Get("module").String())
	}
	ping := body.Get(`handlers.#(name=="basic.ping")`)
	require.True(t, ping.Exists())
	assert.Equal(t, "command:ping", ping.Get("trigger").String())
	assert.Equal(t, "responder", ping.Get("class").String())
	assert.True(t, ping.Get("slash").Bool())

	_, all := adminRequest(t, s, http.MethodGet, "/handlers")
	track := all.Get(`handlers.#(module=="stats")#.trigger`).Array()
	assert.NotEmpty(t, track)
}

func TestAdmin_ModuleLifecycle(t *testing.T) {
	te := newTestEngine(t)
	s := NewAdminServer("127.0.0.1:0", te.Engine)

	code, body := adminRequest(t, s, http.MethodDelete, "/modules/polls")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unloaded", body.Get("action").String())
	assert.False(t, te.Registry().Current().HasModule(features.ModulePolls))

	code, body = adminRequest(t, s, http.MethodDelete, "/modules/polls")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "module polls is not loaded", body.Get("error").String())

	code, _ = adminRequest(t, s, http.MethodPost, "/modules/polls/reload")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = adminRequest(t, s, http.MethodPost, "/modules/Polls")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "polls", body.Get("module").String())
	assert.True(t, te.Registry().Current().HasModule(features.ModulePolls))

	code, _ = adminRequest(t, s, http.MethodPost, "/modules/polls")
	assert.Equal(t, http.StatusConflict, code)

	gen := te.Registry().Current().Generation
	code, body = adminRequest(t, s, http.MethodPost, "/modules/polls/reload")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, gen+1, body.Get("generation").Uint())
}

func TestAdmin_ModuleRefusals(t *testing.T) {
	s := NewAdminServer("127.0.0.1:0", newTestEngine(t).Engine)

	code, body := adminRequest(t, s, http.MethodPost, "/modules/music")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "unknown module music", body.Get("error").String())

	code, body = adminRequest(t, s, http.MethodDelete, "/modules/admin")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "the admin module cannot be unloaded", body.Get("error").String())
}
