package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "London", r.URL.Query().Get("q"))
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		w.Write([]byte(`{"name":"London","main":{"temp":11.5}}`))
	}))
	defer srv.Close()

	c := New("OpenWeatherMap", srv.URL, WithHeader("X-Key", "k"))
	res, err := c.Get(context.Background(), "/data/2.5/weather", url.Values{"q": {"London"}})

	require.NoError(t, err)
	assert.Equal(t, "London", res.Get("name").String())
	assert.InDelta(t, 11.5, res.Get("main.temp").Float(), 0.001)
}

func TestGet_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusUnauthorized, apperr.KindConfiguration},
		{http.StatusForbidden, apperr.KindConfiguration},
		{http.StatusTooManyRequests, apperr.KindTransient},
		{http.StatusBadGateway, apperr.KindTransient},
		{http.StatusNotFound, apperr.KindUsage},
		{http.StatusBadRequest, apperr.KindUsage},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := New("svc", srv.URL).Get(context.Background(), "/", nil)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestGet_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New("slow", srv.URL, WithTimeout(20*time.Millisecond)).Get(context.Background(), "/", nil)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, "❌ Could not reach slow. Please try again later.", apperr.UserMessage(err))
}

func TestGet_InvalidJSONIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New("svc", srv.URL).Get(context.Background(), "/", nil)
	assert.True(t, apperr.IsTransient(err))
}
