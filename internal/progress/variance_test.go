package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPercentBounds(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}

	got, ok := PlanPercent(dates, date(t, "2024-01-01"))
	require.True(t, ok)
	assert.Equal(t, 0, got)

	got, _ = PlanPercent(dates, date(t, "2024-03-01"))
	assert.Equal(t, 100, got)

	got, _ = PlanPercent(dates, date(t, "2025-01-01"))
	assert.Equal(t, 100, got)

	got, _ = PlanPercent(dates, date(t, "2023-06-01"))
	assert.Equal(t, 0, got)
}

func TestPlanPercentInvalidWindow(t *testing.T) {
	now := date(t, "2024-02-01")
	cases := []DateWindow{
		{},
		{PlanStart: dptr(t, "2024-01-01")},
		{PlanEnd: dptr(t, "2024-01-01")},
		{PlanStart: dptr(t, "2024-03-01"), PlanEnd: dptr(t, "2024-03-01")},
		{PlanStart: dptr(t, "2024-03-01"), PlanEnd: dptr(t, "2024-01-01")},
	}
	for _, dates := range cases {
		got, ok := PlanPercent(dates, now)
		assert.False(t, ok)
		assert.Equal(t, 0, got)
	}
}

func TestScenarioDelayBeforePlanEnd(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	rec := NewCalculator(DefaultSlackPercent).LinearPhaseProgress(4, 10, dates, LifecycleActive, date(t, "2024-02-01"))

	assert.Equal(t, 40, rec.ActualPercent)
	assert.Equal(t, 52, rec.PlanPercent)
	assert.Equal(t, StatusDelay, rec.Status)
	assert.Equal(t, 0, rec.DelayDays)
	assert.True(t, rec.PlanKnown)
	assert.False(t, rec.IncompleteData)
}

func TestScenarioCompletedLate(t *testing.T) {
	dates := DateWindow{
		PlanStart:    dptr(t, "2024-01-01"),
		PlanEnd:      dptr(t, "2024-03-01"),
		ActualFinish: dptr(t, "2024-03-10"),
	}
	rec := NewCalculator(5).DesignProgress(designSteps(1, 2, 3, 4, 5, 6, 7), DefaultDesignWeights(), dates, LifecycleActive, date(t, "2024-06-01"))
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.ActualPercent)
	assert.Equal(t, 9, rec.DelayDays)
}

func TestCompletedOnTimeHasNoDelay(t *testing.T) {
	rec := Classify(VarianceInput{
		ActualPercent: 100,
		PlanPercent:   100,
		Lifecycle:     LifecycleActive,
		PlanEnd:       dptr(t, "2024-03-01"),
		ActualFinish:  dptr(t, "2024-02-20"),
		Now:           date(t, "2024-05-01"),
	}, 5)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 0, rec.DelayDays)
}

func TestCompletedWithoutFinishUsesNow(t *testing.T) {
	rec := Classify(VarianceInput{
		ActualPercent: 100,
		Lifecycle:     LifecycleActive,
		PlanEnd:       dptr(t, "2024-03-01"),
		Now:           date(t, "2024-03-04"),
	}, 5)
	assert.Equal(t, 3, rec.DelayDays)
}

func TestScenarioHoldAccruesNoDelay(t *testing.T) {
	rec := Classify(VarianceInput{
		ActualPercent: 30,
		PlanPercent:   80,
		Lifecycle:     LifecycleHold,
		PlanEnd:       dptr(t, "2024-03-01"),
		Now:           date(t, "2024-09-01"),
	}, 5)
	assert.Equal(t, StatusHold, rec.Status)
	assert.Equal(t, 0, rec.DelayDays)
	assert.Equal(t, 30, rec.ActualPercent)
	assert.Equal(t, 80, rec.PlanPercent)
}

func TestCancelledAlwaysZero(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01"), ActualFinish: dptr(t, "2024-04-01")}
	now := date(t, "2024-12-01")
	calc := NewCalculator(5)
	for _, rec := range []Record{
		calc.DesignProgress(designSteps(1, 2, 3, 4, 5, 6, 7), DefaultDesignWeights(), dates, LifecycleCancelled, now),
		calc.LinearPhaseProgress(10, 10, dates, LifecycleCancelled, now),
		calc.LinearPhaseProgress(3, 5, DateWindow{}, LifecycleCancelled, now),
	} {
		assert.Equal(t, 0, rec.ActualPercent)
		assert.Equal(t, 0, rec.PlanPercent)
		assert.Equal(t, StatusCancelled, rec.Status)
		assert.Equal(t, 0, rec.DelayDays)
	}
}

func TestDelayDaysAfterPlanEnd(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	rec := NewCalculator(5).LinearPhaseProgress(5, 10, dates, LifecycleActive, date(t, "2024-03-15"))
	assert.Equal(t, StatusDelay, rec.Status)
	assert.Equal(t, 14, rec.DelayDays)
}

func TestSlackBoundary(t *testing.T) {
	in := VarianceInput{ActualPercent: 45, PlanPercent: 50, Lifecycle: LifecycleActive}
	assert.Equal(t, StatusOnPlan, Classify(in, 5).Status)
	in.ActualPercent = 44
	assert.Equal(t, StatusDelay, Classify(in, 5).Status)
	assert.Equal(t, StatusOnPlan, Classify(in, 10).Status)
}

func TestLifecycleCompletedForcesFullProgress(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	rec := NewCalculator(5).DesignProgress(designSteps(1, 2), DefaultDesignWeights(), dates, LifecycleCompleted, date(t, "2024-02-01"))
	assert.Equal(t, 100, rec.ActualPercent)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestUnknownLifecycleTreatedAsActive(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	rec := NewCalculator(5).LinearPhaseProgress(5, 10, dates, Lifecycle("Paused"), date(t, "2024-02-01"))
	assert.Equal(t, StatusOnPlan, rec.Status)
	assert.True(t, rec.HasWarning(WarnUnknownLifecycle))
}

func TestMissingWindowIsUnknownNotError(t *testing.T) {
	rec := NewCalculator(5).LinearPhaseProgress(2, 10, DateWindow{}, LifecycleActive, date(t, "2024-02-01"))
	assert.Equal(t, 20, rec.ActualPercent)
	assert.Equal(t, 0, rec.PlanPercent)
	assert.Equal(t, StatusOnPlan, rec.Status)
	assert.False(t, rec.PlanKnown)
	assert.True(t, rec.HasWarning(WarnInvalidDateWindow))
}

func TestReportedProgress(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	now := date(t, "2024-02-01")
	calc := NewCalculator(5)

	rec := calc.ReportedProgress(nil, dates, LifecycleActive, now)
	assert.Equal(t, 0, rec.ActualPercent)
	assert.True(t, rec.IncompleteData)
	assert.True(t, rec.HasWarning(WarnMissingProgress))

	v := 49.6
	rec = calc.ReportedProgress(&v, dates, LifecycleActive, now)
	assert.Equal(t, 50, rec.ActualPercent)
	assert.Equal(t, StatusOnPlan, rec.Status)
	assert.False(t, rec.IncompleteData)

	rec = calc.ReportedProgress(nil, dates, LifecycleCompleted, now)
	assert.Equal(t, 100, rec.ActualPercent)
	assert.False(t, rec.IncompleteData)
}

func TestCalculatorsAreIdempotent(t *testing.T) {
	dates := DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}
	now := date(t, "2024-02-10")
	calc := NewCalculator(5)
	steps := designSteps(1, 2, 3)

	assert.Equal(t,
		calc.DesignProgress(steps, DefaultDesignWeights(), dates, LifecycleActive, now),
		calc.DesignProgress(steps, DefaultDesignWeights(), dates, LifecycleActive, now))
	assert.Equal(t,
		calc.LinearPhaseProgress(6, 10, dates, LifecycleHold, now),
		calc.LinearPhaseProgress(6, 10, dates, LifecycleHold, now))
}

func TestNegativeSlackClamped(t *testing.T) {
	assert.Equal(t, 0, NewCalculator(-3).SlackPercent)
}
