package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Utterance(OutcomeDelivered)
	m.Delivery(DeliveryFailed)
	m.ObserveCall("translate", time.Now(), nil)
	m.SessionOpened()
	m.SessionClosed()
	m.FrameDropped()
	m.Rejected("busy")
	assert.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Delivery(DeliveryTranslated)
	m.Delivery(DeliveryTranslated)
	m.Delivery(DeliveryFailed)
	m.ObserveCall("transcribe", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues(DeliveryTranslated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues(DeliveryFailed)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "babel_deliveries_total"))
	assert.True(t, strings.Contains(body, `babel_collaborator_duration_seconds_count{call="transcribe",result="error"} 1`))
}
