package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/bus"
	"github.com/dreadnought-systems/airwatch/internal/dedupe"
	"github.com/dreadnought-systems/airwatch/internal/ingest"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/predict"
	"github.com/dreadnought-systems/airwatch/internal/store"
	"github.com/dreadnought-systems/airwatch/internal/threat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.New(0, 0)
	pipeline, err := ingest.New(st, dedupe.New(), b, threat.DefaultWeights, predict.DefaultParams)
	require.NoError(t, err)

	issuer := auth.NewIssuer("test-signing-key-for-tests", time.Hour)
	return New(pipeline, st, b, issuer, 2*time.Second), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/operators/register", registerRequest{
		Email: "ops@example.com", Credential: "hunter2", Role: "admin",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/operators/authenticate", authenticateRequest{
		Email: "ops@example.com", Credential: "hunter2",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "admin", resp["role"])
}

func TestAuthenticate_WrongCredentialIsUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/operators/register", registerRequest{
		Email: "ops@example.com", Credential: "hunter2",
	}, "")

	rec := doJSON(t, h, http.MethodPost, "/api/operators/authenticate", authenticateRequest{
		Email: "ops@example.com", Credential: "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func registerAndLogin(t *testing.T, h http.Handler, role string) string {
	t.Helper()
	doJSON(t, h, http.MethodPost, "/api/operators/register", registerRequest{
		Email: role + "@example.com", Credential: "hunter2", Role: model.OperatorRole(role),
	}, "")
	rec := doJSON(t, h, http.MethodPost, "/api/operators/authenticate", authenticateRequest{
		Email: role + "@example.com", Credential: "hunter2",
	}, "")
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func TestIngest_RequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/telemetry", map[string]any{
		"latitude": 34.0, "longitude": -118.0, "altitude": 1000, "groundspeed": 100, "track": 0,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngest_WithTokenPersistsTrack(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	token := registerAndLogin(t, h, "analyst")

	rec := doJSON(t, h, http.MethodPost, "/api/telemetry", map[string]any{
		"transponder_id": "N1", "latitude": 34.0, "longitude": -118.0,
		"altitude": 1000, "groundspeed": 100, "track": 0,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/tracks", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegionCreate_RequiresAdminRole(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	token := registerAndLogin(t, h, "analyst")

	rec := doJSON(t, h, http.MethodPost, "/api/regions", regionRequest{
		Name:        "zone-a",
		PolygonJSON: `{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[1,0],[0,0]]]}`,
	}, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegionCreate_RejectsMalformedGeometry(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	token := registerAndLogin(t, h, "admin")

	rec := doJSON(t, h, http.MethodPost, "/api/regions", regionRequest{
		Name:        "zone-a",
		PolygonJSON: `{"type":"Polygon","coordinates":[[[0,0],[0,1]]]}`,
	}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
