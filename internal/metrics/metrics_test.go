package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedRegistries(t *testing.T) {
	// Each instance owns its registry, so two must not collide.
	require.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.CompletionsTotal.WithLabelValues("completed").Inc()
	m.BurnEntriesTotal.WithLabelValues("burned").Add(3)
	m.CompletionDuration.Observe(0.25)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `utilsign_completions_total{outcome="completed"} 1`)
	assert.Contains(t, body, `utilsign_burn_entries_total{result="burned"} 3`)
	assert.Contains(t, body, "utilsign_completion_duration_seconds_count 1")
}
