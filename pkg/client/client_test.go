package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/timinghooks/pkg/api"
	"github.com/psantana5/timinghooks/pkg/auth"
	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/retry"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/timers"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2,
		Retryable:      retry.IsRetryable,
	}
}

func newCollector(t *testing.T, apiKey string) (*httptest.Server, *timers.Timers) {
	t.Helper()
	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(&bytes.Buffer{})

	timings := timers.New()
	handler := api.NewHandler(timings, store.NewMemoryStore(), logger)
	authenticator, err := auth.NewAuthenticator(apiKey, "")
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(authenticator.Middleware("/health"))
	handler.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, timings
}

func TestClient_RoundTrip(t *testing.T) {
	srv, timings := newCollector(t, "secret")
	c := New(srv.URL, WithAPIKey("secret"), WithRetry(fastRetry()))
	ctx := context.Background()

	state := timers.State{"reading": {{Start: 0, End: 1}}}
	require.NoError(t, c.MergeState(ctx, state))
	assert.Equal(t, 1, timings.Count("reading"))

	fetched, err := c.FetchState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, fetched)

	summary, err := c.FetchSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary["reading"].Count)

	info, err := c.PushSnapshot(ctx, "nightly", "worker-1", state)
	require.NoError(t, err)
	assert.Equal(t, "nightly", info.Label)

	infos, err := c.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, info.ID, infos[0].ID)

	snap, err := c.GetSnapshot(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, state, snap.State)

	require.NoError(t, c.DeleteSnapshot(ctx, info.ID))
	_, err = c.GetSnapshot(ctx, info.ID)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClient_Unauthorized(t *testing.T) {
	srv, _ := newCollector(t, "secret")
	c := New(srv.URL, WithAPIKey("wrong"), WithRetry(fastRetry()))

	_, err := c.FetchState(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"x":[{"start":0,"end":1}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry()))
	state, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Records())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry()))
	err := c.MergeState(context.Background(), timers.State{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DoesNotRepeatPostAfterConnectionLoss(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// the request was read, so a merge may have been applied
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry()))
	require.Error(t, c.MergeState(context.Background(), timers.State{"x": {{Start: 0, End: 1}}}))
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	_, err := c.FetchState(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "GET is safe to repeat")
}

func TestClient_RetriesPostBeforeSend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"names":1,"records":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, c.MergeState(context.Background(), timers.State{"x": {{Start: 0, End: 1}}}))
	assert.Equal(t, int32(2), calls.Load())

	// a closed listener refuses the connection
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	var retries atomic.Int32
	cfg := fastRetry()
	cfg.OnRetry = func(int, error, time.Duration) { retries.Add(1) }
	c = New(closed.URL, WithRetry(cfg))
	require.Error(t, c.MergeState(context.Background(), timers.State{}))
	assert.Equal(t, int32(2), retries.Load())
}

func TestClient_PushEmptyState(t *testing.T) {
	srv, timings := newCollector(t, "secret")
	require.NoError(t, timings.Time(context.Background(), "collector-only", nil))
	c := New(srv.URL, WithAPIKey("secret"), WithRetry(fastRetry()))

	info, err := c.PushSnapshot(context.Background(), "from-client", "client-host", timers.State{})
	require.NoError(t, err)
	assert.Equal(t, "client-host", info.Host)
	assert.Zero(t, info.Records)

	snap, err := c.GetSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.State)
}
