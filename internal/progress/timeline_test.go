package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBarInBounds(t *testing.T, b TimelineBar) {
	t.Helper()
	for _, v := range []float64{b.LeftPercent, b.PlanWidthPercent, b.ActualWidthPercent, b.BarWidthPercent} {
		assert.GreaterOrEqual(t, v, 0.0, b.ID)
		assert.LessOrEqual(t, v, 100.0, b.ID)
	}
}

func TestComputeTimelineWindowAndProRating(t *testing.T) {
	now := date(t, "2024-02-01")
	items := []TimelineInput{{
		ID:            "a",
		ActualPercent: 50,
		Status:        StatusOnPlan,
		Dates:         DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")},
	}}
	tl := ComputeTimeline(items, now, DefaultTimelineOptions())

	assert.True(t, tl.Window.Start.Equal(date(t, "2023-12-01")))
	assert.True(t, tl.Window.End.Equal(date(t, "2024-05-01")))
	assert.InDelta(t, 152, tl.Window.Days, 1e-9)
	assert.Len(t, tl.Window.Months, 6)

	require.Len(t, tl.Bars, 1)
	b := tl.Bars[0]
	assert.InDelta(t, 31.0/152*100, b.LeftPercent, 1e-9)
	assert.InDelta(t, 60.0/152*100, b.PlanWidthPercent, 1e-9)
	assert.InDelta(t, b.PlanWidthPercent/2, b.ActualWidthPercent, 1e-9)
	assert.InDelta(t, b.PlanWidthPercent, b.BarWidthPercent, 1e-9)
	assert.False(t, b.Late)
	assertBarInBounds(t, b)
}

func TestComputeTimelineOverdueExtendsToNow(t *testing.T) {
	now := date(t, "2024-04-01")
	items := []TimelineInput{{
		ID:            "late",
		ActualPercent: 30,
		Status:        StatusDelay,
		Dates:         DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")},
	}}
	tl := ComputeTimeline(items, now, DefaultTimelineOptions())
	require.Len(t, tl.Bars, 1)
	b := tl.Bars[0]
	assert.True(t, b.Late)
	assert.InDelta(t, 91/tl.Window.Days*100, b.ActualWidthPercent, 1e-9)
	assert.Greater(t, b.ActualWidthPercent, b.PlanWidthPercent)
	assert.Equal(t, b.ActualWidthPercent, b.BarWidthPercent)
	assertBarInBounds(t, b)
}

func TestComputeTimelineCompletedLate(t *testing.T) {
	now := date(t, "2024-02-01")
	items := []TimelineInput{
		{
			ID:     "done-late",
			Status: StatusCompleted,
			Dates: DateWindow{
				PlanStart:    dptr(t, "2024-01-01"),
				PlanEnd:      dptr(t, "2024-03-01"),
				ActualFinish: dptr(t, "2024-06-15"),
			},
		},
		{
			ID:        "done-early",
			Lifecycle: LifecycleCompleted,
			Dates: DateWindow{
				PlanStart:    dptr(t, "2024-01-01"),
				PlanEnd:      dptr(t, "2024-03-01"),
				ActualFinish: dptr(t, "2024-02-01"),
			},
		},
	}
	tl := ComputeTimeline(items, now, DefaultTimelineOptions())
	require.Len(t, tl.Bars, 2)
	assert.True(t, tl.Window.End.Equal(date(t, "2024-08-15")))

	late, early := tl.Bars[0], tl.Bars[1]
	assert.True(t, late.Completed)
	assert.True(t, late.Late)
	assert.False(t, early.Late)
	assert.Less(t, early.ActualWidthPercent, early.PlanWidthPercent)
	assertBarInBounds(t, late)
	assertBarInBounds(t, early)
}

func TestComputeTimelineDegenerateWindowUsesSliver(t *testing.T) {
	now := date(t, "2024-02-01")
	items := []TimelineInput{{
		ID:    "zero",
		Dates: DateWindow{PlanStart: dptr(t, "2024-02-01"), PlanEnd: dptr(t, "2024-02-01")},
	}, {
		ID:    "backwards",
		Dates: DateWindow{PlanStart: dptr(t, "2024-02-10"), PlanEnd: dptr(t, "2024-02-01")},
	}}
	tl := ComputeTimeline(items, now, DefaultTimelineOptions())
	require.Len(t, tl.Bars, 2)
	for _, b := range tl.Bars {
		assert.InDelta(t, 0.1, b.PlanWidthPercent, 1e-9)
		assert.GreaterOrEqual(t, b.BarWidthPercent, 0.1)
		assertBarInBounds(t, b)
	}
}

func TestComputeTimelineZeroMarginsSameDay(t *testing.T) {
	now := date(t, "2024-02-01")
	items := []TimelineInput{{
		ID:    "today",
		Dates: DateWindow{PlanStart: dptr(t, "2024-02-01"), PlanEnd: dptr(t, "2024-02-01")},
	}}
	tl := ComputeTimeline(items, now, TimelineOptions{MinWidthPercent: 0.1})
	assert.Equal(t, 1.0, tl.Window.Days)
	require.Len(t, tl.Bars, 1)
	b := tl.Bars[0]
	assert.Equal(t, 0.0, b.LeftPercent)
	assert.InDelta(t, 0.1, b.PlanWidthPercent, 1e-9)
	assert.InDelta(t, 0.1, b.BarWidthPercent, 1e-9)
	assertBarInBounds(t, b)
}

func TestComputeTimelineSkipsCancelledAndUndated(t *testing.T) {
	now := date(t, "2024-02-01")
	items := []TimelineInput{
		{ID: "cancelled", Lifecycle: LifecycleCancelled, Dates: DateWindow{PlanStart: dptr(t, "2020-01-01"), PlanEnd: dptr(t, "2030-01-01")}},
		{ID: "undated"},
		{ID: "ok", Dates: DateWindow{PlanStart: dptr(t, "2024-01-01"), PlanEnd: dptr(t, "2024-03-01")}},
	}
	tl := ComputeTimeline(items, now, DefaultTimelineOptions())
	assert.Equal(t, []string{"cancelled", "undated"}, tl.Skipped)
	require.Len(t, tl.Bars, 1)
	assert.Equal(t, "ok", tl.Bars[0].ID)
	assert.True(t, tl.Window.Start.Equal(date(t, "2023-12-01")))

	empty := ComputeTimeline(nil, now, DefaultTimelineOptions())
	assert.Empty(t, empty.Bars)
}
