package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebook/internal/platform/config"
)

func TestQuoteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQuoteMetrics("quotebook", reg)

	m.ObserveMutation("add", nil)
	m.ObserveMutation("add", errors.New("duplicate"))
	m.SetQuoteCount(7)
	m.ObserveImport(2, 1, 3)
	m.ObserveSync(SyncOutcomeMerged, 150*time.Millisecond, 4, 1)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Mutations.WithLabelValues("add", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Mutations.WithLabelValues("add", "error")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.QuoteCount), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ImportItems.WithLabelValues("invalid")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SyncRuns.WithLabelValues(SyncOutcomeMerged)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.MergeRecords.WithLabelValues("updated")), 0)

	count, err := testutil.GatherAndCount(reg, "quotebook_sync_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQuoteMetrics_NilIsNoop(t *testing.T) {
	var m *QuoteMetrics

	assert.NotPanics(t, func() {
		m.ObserveMutation("add", nil)
		m.SetQuoteCount(1)
		m.ObserveImport(1, 0, 0)
		m.ObserveSync(SyncOutcomeFetchFailed, time.Second, 0, 0)
	})
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), FromAppConfig(
		&config.AppConfig{Name: "quotebook", Version: "1.0.0", Environment: "test"},
		&config.TelemetryConfig{Enabled: false},
	))

	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(Middleware("quotebook")...)
	engine.GET("/api/v1/quotes/random", func(c *gin.Context) {
		_, span := Tracer().Start(c.Request.Context(), "pick")
		span.End()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/random", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
