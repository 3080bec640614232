package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/timinghooks/internal/config"
	"github.com/psantana5/timinghooks/pkg/api"
	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/timers"
	"github.com/psantana5/timinghooks/pkg/tracing"
)

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.ERROR, false)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestBuildRouter(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "secret"
	cfg.Server.RateLimit = 1000

	tp, err := tracing.InitTracer(tracing.Config{ServiceName: "test"}, quietLogger())
	require.NoError(t, err)
	handler := api.NewHandler(timers.New(), store.NewMemoryStore(), quietLogger())

	router, limiter, err := buildRouter(cfg, handler, tp)
	require.NoError(t, err)
	require.NotNil(t, limiter)

	tests := []struct {
		path     string
		key      string
		expected int
	}{
		{"/health", "", http.StatusOK},
		{"/metrics", "", http.StatusOK},
		{"/summary", "", http.StatusUnauthorized},
		{"/summary", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if tt.key != "" {
			req.Header.Set("Authorization", "Bearer "+tt.key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.expected, w.Code, "%s with key %q", tt.path, tt.key)
	}

	// rejected requests never reach the route, so they are not timed
	assert.Equal(t, 1, handler.Server().Count("http GET /summary"))
}

func TestBuildRouter_RateLimitIgnoresClientHeaders(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "secret"
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 1

	tp, err := tracing.InitTracer(tracing.Config{ServiceName: "test"}, quietLogger())
	require.NoError(t, err)
	router, limiter, err := buildRouter(cfg, api.NewHandler(timers.New(), store.NewMemoryStore(), quietLogger()), tp)
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for _, token := range []string{"bogus-1", "bogus-2", "bogus-3"} {
		req := httptest.NewRequest("GET", "/summary", nil)
		req.RemoteAddr = "10.0.0.7:4000"
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Forwarded-For", token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, limiter.Len(), "rotating tokens must not create buckets")
}

func TestBuildRouter_BadHash(t *testing.T) {
	cfg := config.Default()
	cfg.Server.APIKeyHash = "not-bcrypt"
	tp, _ := tracing.InitTracer(tracing.Config{}, quietLogger())

	_, _, err := buildRouter(cfg, api.NewHandler(timers.New(), store.NewMemoryStore(), quietLogger()), tp)
	assert.Error(t, err)
}

func TestSaveFinalSnapshot(t *testing.T) {
	timings := timers.New()
	st := store.NewMemoryStore()
	save := saveFinalSnapshot(timings, st, "host-1", quietLogger())

	// nothing recorded, nothing stored
	require.NoError(t, save(context.Background()))
	infos, _ := st.List(context.Background())
	assert.Empty(t, infos)

	require.NoError(t, timings.Time(context.Background(), "request", nil))
	require.NoError(t, save(context.Background()))
	infos, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "shutdown", infos[0].Label)
	assert.Equal(t, "host-1", infos[0].Host)
	assert.Empty(t, timings.Names())
}
