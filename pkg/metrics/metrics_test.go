package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enftaurus/vidyamitra/pkg/metrics"
)

func TestRegistry_Counters(t *testing.T) {
	r := metrics.NewRegistry()

	r.RecordWarning("presence", "coding")
	r.RecordWarning("presence", "coding")
	r.RecordTermination("tab_switch", "hr")
	r.RecordDetectorFailure()
	r.RecordSkippedTick()
	r.RecordSample("none")
	r.RecordLedgerReset(false)
	r.RecordStatusUnavailable()
	r.SessionStarted()

	count, err := testutil.GatherAndCount(r.Gatherer(), "vidyamitra_proctor_warnings_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one label series")

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 8)
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordTermination("presence", "technical")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `vidyamitra_proctor_terminations_total{cause="presence",round="technical"} 1`)
}

func TestDefault_InitializesOnce(t *testing.T) {
	a := metrics.Default()
	b := metrics.Default()
	assert.Same(t, a, b)
	assert.True(t, metrics.Enabled())
}
