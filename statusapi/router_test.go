package statusapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/corvus-labs/clusterkit/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(t *testing.T) (http.Handler, *Tracker, *registry.Registry) {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"), testLogger())
	assert.NilError(t, err)
	t.Cleanup(func() { reg.Close() })

	tracker := NewTracker()
	router := NewRouter(Dependencies{Logger: testLogger(), Tracker: tracker, Registry: reg})
	return router, tracker, reg
}

func TestHealthzReturnsOK(t *testing.T) {
	router, _, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	var body healthResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, body.Status, "ok")
}

func TestLaunchersListReturnsTrackerSnapshot(t *testing.T) {
	router, tracker, _ := testRouter(t)
	tracker.Set(LauncherStatus{ID: "e0", Kind: "local", State: "running"})

	req := httptest.NewRequest(http.MethodGet, "/launchers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	var statuses []LauncherStatus
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, len(statuses), 1)
	assert.Equal(t, statuses[0].ID, "e0")
}

func TestLaunchersHistoryFiltersByKindQueryParam(t *testing.T) {
	router, _, reg := testRouter(t)
	assert.NilError(t, reg.RecordStart("e0", "local", map[string]any{}))
	assert.NilError(t, reg.RecordStart("e1", "container", map[string]any{}))

	req := httptest.NewRequest(http.MethodGet, "/launchers/history?kind=container", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	var records []*registry.LaunchRecord
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].LauncherID, "e1")
}
