package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/recipes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recipes/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/recipes/{id}", "404"))
	assert.Equal(t, float64(3), got)
}

func TestRecordMediaDeletion(t *testing.T) {
	m := New()
	m.RecordMediaDeletion(OutcomeDeleted)
	m.RecordMediaDeletion(OutcomeDeleted)
	m.RecordMediaDeletion(OutcomeFailed)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.mediaDeletions.WithLabelValues(OutcomeDeleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mediaDeletions.WithLabelValues(OutcomeFailed)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMediaDeletion(OutcomeFailed)

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.RecordMediaDeletion(OutcomeDropped)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `recipebox_media_deletions_total{outcome="dropped"} 1`))
}
