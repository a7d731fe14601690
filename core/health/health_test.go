package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/storage"
)

func newTestServer(t *testing.T) (*Server, *dialog.Registry) {
	t.Helper()
	store := storage.NewMemoryStore()
	registry := dialog.NewRegistry(store)
	return NewServer(":0", registry, store), registry
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "studiobot", body["service"])
	require.Equal(t, "ok", body["status"])
}

func TestHealthOK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["storage"])
}

func TestStatsReflectsRegistry(t *testing.T) {
	s, registry := newTestServer(t)
	ctx := context.Background()

	_, err := registry.SaveUser(ctx, dialog.User{ID: 1})
	require.NoError(t, err)
	_, _, err = registry.StartDialog(ctx, 1)
	require.NoError(t, err)

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats dialog.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.Users)
	require.Equal(t, 1, stats.ActiveDialogs)
	require.Equal(t, int64(1), stats.TotalDialogs)
}

func TestDialogsListsActiveSessions(t *testing.T) {
	s, registry := newTestServer(t)
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 10)
	require.NoError(t, err)
	_, _, err = registry.StartDialog(ctx, 20)
	require.NoError(t, err)

	rec := get(t, s, "/dialogs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int              `json:"count"`
		Dialogs []dialog.Session `json:"dialogs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	require.Len(t, body.Dialogs, 2)
}
