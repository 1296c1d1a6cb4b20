package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/progress"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestObserveRecords(t *testing.T) {
	r := New()
	r.ObserveRecords("design", []progress.Record{
		{Status: progress.StatusDelay, IncompleteData: true, Warnings: []progress.Warning{{Code: progress.WarnMissingBudget}}},
		{Status: progress.StatusDelay},
		{Status: progress.StatusOnPlan},
	})
	body := scrape(t, r)
	assert.Contains(t, body, `sitepulse_records{phase="design",status="Delay"} 2`)
	assert.Contains(t, body, `sitepulse_records{phase="design",status="OnPlan"} 1`)
	assert.Contains(t, body, `sitepulse_records{phase="design",status="Hold"} 0`)
	assert.Contains(t, body, `sitepulse_incomplete_records{phase="design"} 1`)
	assert.Contains(t, body, `sitepulse_data_quality_warnings_total{code="missing_budget",phase="design"} 1`)

	r.ObserveRecords("design", nil)
	assert.Contains(t, scrape(t, r), `sitepulse_records{phase="design",status="Delay"} 0`)
}

func TestObserveTransitionAndRollups(t *testing.T) {
	r := New()
	r.ObserveTransition("bidding", nil)
	r.ObserveTransition("bidding", errors.New("nope"))
	r.ObserveRollups(progress.Rollups{TotalEarned: 12.5})
	r.ObserveDuration("rollups", time.Now())

	body := scrape(t, r)
	assert.Contains(t, body, `sitepulse_step_transitions_total{phase="bidding",result="rejected"} 1`)
	assert.Contains(t, body, `sitepulse_step_transitions_total{phase="bidding",result="accepted"} 1`)
	assert.Contains(t, body, `sitepulse_design_revenue{kind="earned"} 12.5`)
	assert.Contains(t, body, `sitepulse_computation_duration_seconds_count{view="rollups"} 1`)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveRecords("design", []progress.Record{{Status: progress.StatusDelay}})
	r.ObserveTransition("bidding", nil)
	r.ObserveRollups(progress.Rollups{})
	r.ObserveDuration("x", time.Now())
	assert.NotNil(t, r.Handler())
}
