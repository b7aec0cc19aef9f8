package status_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facron/facron/internal/history"
	"github.com/facron/facron/internal/metrics"
	"github.com/facron/facron/internal/status"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fakeHistory struct {
	launches []history.Launch
	err      error
	lastN    int
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]history.Launch, error) {
	f.lastN = n
	if f.err != nil {
		return nil, f.err
	}
	return f.launches[:min(n, len(f.launches))], nil
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 10}))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

func TestRouter_Healthz(t *testing.T) {
	r := status.NewRouter(status.Deps{
		Health: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		Logger: noopLogger(),
	})

	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	m := metrics.New()
	m.CommandsLaunched.Add(4)
	r := status.NewRouter(status.Deps{Metrics: m.Handler(), Logger: noopLogger()})

	rec := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "facron_commands_launched_total 4\n")
}

func TestRouter_MissingDepsAreNotRouted(t *testing.T) {
	r := status.NewRouter(status.Deps{Logger: noopLogger()})

	for _, path := range []string{"/healthz", "/metrics", "/history"} {
		assert.Equal(t, http.StatusNotFound, get(t, r, path).Code, path)
	}
}

func TestRouter_History(t *testing.T) {
	h := &fakeHistory{launches: []history.Launch{
		{ID: "b", Path: "/etc/b", Argv: []string{"/bin/echo", "b"}},
		{ID: "a", Path: "/etc/a", Argv: []string{"/bin/echo", "a"}},
	}}
	r := status.NewRouter(status.Deps{History: h, HistoryLimit: 10, Logger: noopLogger()})

	rec := get(t, r, "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, h.lastN)

	var body struct {
		Launches []history.Launch `json:"launches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Launches, 2)
	assert.Equal(t, "b", body.Launches[0].ID)
	assert.Equal(t, []string{"/bin/echo", "a"}, body.Launches[1].Argv)
}

func TestRouter_HistoryLimitIsCapped(t *testing.T) {
	h := &fakeHistory{}
	r := status.NewRouter(status.Deps{History: h, HistoryLimit: 5, Logger: noopLogger()})

	rec := get(t, r, "/history?limit=2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, h.lastN)

	get(t, r, "/history?limit=500")
	assert.Equal(t, 5, h.lastN)
}

func TestRouter_HistoryEmptyIsArray(t *testing.T) {
	r := status.NewRouter(status.Deps{History: &fakeHistory{}, Logger: noopLogger()})

	rec := get(t, r, "/history")
	assert.JSONEq(t, `{"launches":[]}`, rec.Body.String())
}

func TestRouter_HistoryBadLimit(t *testing.T) {
	r := status.NewRouter(status.Deps{History: &fakeHistory{}, Logger: noopLogger()})

	for _, q := range []string{"abc", "0", "-3"} {
		assert.Equal(t, http.StatusBadRequest, get(t, r, "/history?limit="+q).Code, q)
	}
}

func TestRouter_HistoryStoreError(t *testing.T) {
	r := status.NewRouter(status.Deps{
		History: &fakeHistory{err: errors.New("disk gone")},
		Logger:  noopLogger(),
	})

	rec := get(t, r, "/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServer_ServesUntilCancelled(t *testing.T) {
	addr := freeAddr(t)
	m := metrics.New()
	srv := status.NewServer(addr, status.NewRouter(status.Deps{Metrics: m.Handler(), Logger: noopLogger()}), noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	srv := status.NewServer(l.Addr().String(), http.NotFoundHandler(), noopLogger())
	assert.Error(t, srv.Run(context.Background()))
}
