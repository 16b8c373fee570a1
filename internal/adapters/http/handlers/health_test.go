package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebook/internal/mocks"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newHealthEngine(t *testing.T, registry ports.HealthRegistry, gatherer prometheus.Gatherer) *gin.Engine {
	t.Helper()

	engine := gin.New()
	NewHealthHandler(HealthHandlerConfig{
		Registry:  registry,
		BuildInfo: NewBuildInfo("1.2.0", "abc123", "2026-01-15T10:00:00Z"),
		Gatherer:  gatherer,
	}).RegisterHealthRoutes(engine)

	return engine
}

func get(engine http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	return w
}

func TestHealthHandler_Liveness(t *testing.T) {
	w := get(newHealthEngine(t, mocks.NewMockHealthRegistry(t), nil), "/-/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		result     *ports.HealthResult
		wantStatus int
	}{
		{
			name: "healthy",
			result: &ports.HealthResult{
				Status: ports.HealthStatusHealthy,
				Checks: map[string]*ports.CheckResult{
					"bolt":         {Status: ports.HealthStatusHealthy},
					"quote-source": {Status: ports.HealthStatusHealthy},
				},
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "remote down",
			result: &ports.HealthResult{
				Status: ports.HealthStatusUnhealthy,
				Checks: map[string]*ports.CheckResult{
					"bolt":         {Status: ports.HealthStatusHealthy},
					"quote-source": {Status: ports.HealthStatusUnhealthy, Message: "service unavailable"},
				},
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := mocks.NewMockHealthRegistry(t)
			registry.EXPECT().CheckAll(mock.Anything).Return(tt.result)

			w := get(newHealthEngine(t, registry, nil), "/-/ready")

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp statusResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.result.Status), resp.Status)
			assert.Len(t, resp.Checks, 2)
		})
	}
}

func TestHealthHandler_Build(t *testing.T) {
	w := get(newHealthEngine(t, mocks.NewMockHealthRegistry(t), nil), "/-/build")

	assert.Equal(t, http.StatusOK, w.Code)

	var info BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestHealthHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "quotebook_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	w := get(newHealthEngine(t, mocks.NewMockHealthRegistry(t), reg), "/-/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quotebook_test_total 3")
}
