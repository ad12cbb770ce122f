package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordTransition("admission", "VERIFIED", "APPROVED")
	m.RecordTransition("admission", "VERIFIED", "APPROVED")
	m.ObserveFinalize(FinalizeBlocked)
	m.ObserveDelivery("event", nil)
	m.ObserveDelivery("mail", errors.New("smtp down"))
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("admission", "VERIFIED", "APPROVED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.finalizeOutcomes.WithLabelValues(FinalizeBlocked)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("mail", "failed")))
	require.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/admissions", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordTransition("enquiry", "ACTIVE", "VERIFIED")
	m.ObserveFinalize(FinalizeApproved)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
