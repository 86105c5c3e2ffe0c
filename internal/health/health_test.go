package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bitsy-Chuck/pomodex/internal/runtime/runtimetest"
)

type fakeChecker struct {
	typ     CheckType
	healthy bool
	message string
}

func (f fakeChecker) Type() CheckType { return f.typ }

func (f fakeChecker) Check(_ context.Context) Result {
	return Result{Healthy: f.healthy, Message: f.message, CheckedAt: time.Now().UTC()}
}

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler(time.Second, fakeChecker{typ: CheckTypeDatabase, healthy: true}, fakeChecker{typ: CheckTypeRuntime, healthy: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_OneUnhealthyFailsOverall(t *testing.T) {
	h := NewHandler(time.Second,
		fakeChecker{typ: CheckTypeDatabase, healthy: true},
		fakeChecker{typ: CheckTypeRuntime, healthy: false, message: "daemon unreachable"},
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	runtimeCheck, ok := checks[string(CheckTypeRuntime)].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "daemon unreachable", runtimeCheck["message"])
}

func TestRuntimeChecker_Check(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	rc := NewRuntimeChecker(rt)

	res := rc.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, CheckTypeRuntime, rc.Type())

	rt.PingErr = assert.AnError
	res = rc.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, assert.AnError.Error(), res.Message)
}
