package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bitsy-Chuck/pomodex/internal/auth"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/storage/storagetest"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

func testVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.New(storagetest.NewFakeStore(), "", "test-signing-secret")
	require.NoError(t, err)
	return v
}

func TestRequireBearer_MissingToken(t *testing.T) {
	s := &Server{verifier: testVerifier(t)}
	called := false
	h := s.requireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequireBearer_ValidToken(t *testing.T) {
	v := testVerifier(t)
	s := &Server{verifier: v}

	token, err := v.CreateAccessToken("user-1")
	require.NoError(t, err)

	var gotUserID string
	h := s.requireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = callerUserID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestRequireInternalSecret(t *testing.T) {
	s := &Server{internalSecret: "shh"}
	h := s.requireInternalSecret(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing secret looks like 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/validate", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong secret looks like 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/validate", nil)
		req.Header.Set("X-Internal-Secret", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("correct secret passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/validate", nil)
		req.Header.Set("X-Internal-Secret", "shh")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCallerUserID_EmptyWithoutContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", callerUserID(req))
}

func TestStatusForErr(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{sandboxerr.New(sandboxerr.NotFound, "missing"), http.StatusNotFound},
		{sandboxerr.New(sandboxerr.InvalidState, "bad state"), http.StatusNotFound},
		{sandboxerr.New(sandboxerr.Conflict, "already exists"), http.StatusConflict},
		{sandboxerr.New(sandboxerr.Unauthorized, "nope"), http.StatusUnauthorized},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForErr(tc.err))
	}
}

func TestToSummary(t *testing.T) {
	now := time.Now().UTC()
	p := &types.Project{ID: "p1", Name: "proj", Status: types.ProjectStatusRunning, CreatedAt: now, LastActiveAt: now}
	sum := toSummary(p)
	assert.Equal(t, "p1", sum.ID)
	assert.Equal(t, "running", sum.Status)
}

func TestServer_ToDetail_PopulatesConnectionInfoOnlyWhenRunning(t *testing.T) {
	s := &Server{hostIP: "10.0.0.5", terminalPort: 7000}

	running := &types.Project{ID: "p1", Status: types.ProjectStatusRunning, SSHPort: 2222, SSHPrivateKey: "priv-key"}
	d := s.toDetail(running)
	assert.Equal(t, "10.0.0.5", d.SSHHost)
	assert.Equal(t, 2222, d.SSHPort)
	assert.Equal(t, "agent", d.SSHUser)
	assert.Contains(t, d.TerminalURL, "ws://10.0.0.5:7000/terminal/p1")
	assert.Equal(t, "priv-key", d.SSHPrivateKey)

	stopped := &types.Project{ID: "p2", Status: types.ProjectStatusStopped, SSHPrivateKey: "priv-key"}
	d2 := s.toDetail(stopped)
	assert.Empty(t, d2.SSHHost)
	assert.Empty(t, d2.TerminalURL)
	assert.Empty(t, d2.SSHPrivateKey)
}
