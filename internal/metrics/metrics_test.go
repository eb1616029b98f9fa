package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordTurn_ExposesSeriesOnHandler(t *testing.T) {
	m := New("aria_test")

	m.RecordTurn("done", 150*time.Millisecond, 3)

	body := scrape(t, m)
	assert.Contains(t, body, `aria_test_agent_turns_total{outcome="done"} 1`)
}

func TestMetrics_RecordToolCall_IncrementsErrorsOnlyWhenIsError(t *testing.T) {
	m := New("aria_test")

	m.RecordToolCall("web_search", 10*time.Millisecond, false)
	m.RecordToolCall("web_search", 10*time.Millisecond, true)

	body := scrape(t, m)
	assert.Contains(t, body, `aria_test_skill_calls_total{skill="web_search"} 2`)
	assert.Contains(t, body, `aria_test_skill_errors_total{skill="web_search"} 1`)
}

func TestMetrics_RecordProviderCall_IncrementsErrorsOnlyOnFailure(t *testing.T) {
	m := New("aria_test")

	m.RecordProviderCall("anthropic", "cloud_premium", 20*time.Millisecond, nil)
	m.RecordProviderCall("anthropic", "cloud_premium", 20*time.Millisecond, assertErr)

	body := scrape(t, m)
	assert.Contains(t, body, `aria_test_provider_calls_total{provider="anthropic",tier="cloud_premium"} 2`)
	assert.Contains(t, body, `aria_test_provider_errors_total{provider="anthropic",tier="cloud_premium"} 1`)
}

func TestMetrics_RecordGardenerTick_AndSubagentRun(t *testing.T) {
	m := New("aria_test")

	m.RecordGardenerTick("light", 5*time.Millisecond)
	m.RecordSubagentRun("completed")

	body := scrape(t, m)
	assert.Contains(t, body, `aria_test_gardener_ticks_total{tier="light"} 1`)
	assert.Contains(t, body, `aria_test_subagent_runs_total{status="completed"} 1`)
}

func TestMetrics_NilReceiverIsANoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordTurn("done", time.Millisecond, 1)
		m.RecordToolCall("x", time.Millisecond, false)
		m.RecordProviderCall("p", "t", time.Millisecond, nil)
		m.RecordGardenerTick("light", time.Millisecond)
		m.RecordSubagentRun("completed")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

var assertErr = &testError{"provider unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
