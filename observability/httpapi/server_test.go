package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/ragforge/observability/events"
	"github.com/ragforge/ragforge/observability/metrics"
	"github.com/ragforge/ragforge/observability/slo"
	"github.com/ragforge/ragforge/observability/tracing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() *Server {
	logger := events.NewLogger()
	logger.LogStageStart("ingest")

	tracer := tracing.NewTracer(100, nil, "test")
	span := tracer.StartSpan("ingest", tracing.StartOptions{})
	tracer.EndSpan(span)

	monitor := slo.NewMonitor(logger)
	monitor.Register(slo.Definition{Name: "availability", Target: 0.99, MeasurementWindow: 0, AlertThreshold: 0.9})
	monitor.RecordMeasurement("availability", true, nil)

	return &Server{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics.NewRegistry(),
		SLO:     monitor,
	}
}

func TestHandleEvents_ReturnsHistory(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got []events.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got)
}

func TestHandleSpans_ReturnsCompletedSpansAndStatistics(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/spans", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Contains(t, got, "spans")
	assert.Contains(t, got, "statistics")
}

func TestHandleMetrics_ReturnsRegistrySnapshot(t *testing.T) {
	srv := newTestServer()
	_, err := srv.Metrics.Counter("test_counter", "a test counter", nil)
	require.NoError(t, err)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Contains(t, got, "counters")
}

func TestHandleSLO_ReturnsSLIAndErrorBudget(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/slo/availability", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "availability", got["name"])
	assert.Contains(t, got, "sli")
}

func TestHandleEvents_DisabledWhenLoggerNil(t *testing.T) {
	srv := &Server{}
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
