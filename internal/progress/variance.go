package progress

import (
	"time"
)

// DefaultSlackPercent is how far actual may trail plan before a record is Delay.
const DefaultSlackPercent = 5

// PlanPercent is the share of the planned window that has elapsed by now,
// at calendar-day granularity. ok is false when the window is missing or
// planEnd is not after planStart; the percent is then 0.
func PlanPercent(dates DateWindow, now time.Time) (percent int, ok bool) {
	if dates.PlanStart == nil || dates.PlanEnd == nil {
		return 0, false
	}
	start, end := Day(*dates.PlanStart), Day(*dates.PlanEnd)
	if !end.After(start) {
		return 0, false
	}
	total := end.Sub(start).Hours()
	elapsed := Day(now).Sub(start).Hours()
	return clampPercent(elapsed / total * 100), true
}

// VarianceInput is everything Classify needs.
type VarianceInput struct {
	ActualPercent int
	PlanPercent   int
	Lifecycle     Lifecycle
	PlanEnd       *time.Time
	ActualFinish  *time.Time
	Now           time.Time
}

// Classify applies the first matching rule:
// Cancelled, Hold, Completed (actual >= 100), Delay (plan - actual > slack), OnPlan.
func Classify(in VarianceInput, slack int) Record {
	switch {
	case in.Lifecycle == LifecycleCancelled:
		return Record{Status: StatusCancelled}
	case in.Lifecycle == LifecycleHold:
		return Record{ActualPercent: in.ActualPercent, PlanPercent: in.PlanPercent, Status: StatusHold}
	case in.ActualPercent >= 100:
		return Record{
			ActualPercent: in.ActualPercent,
			PlanPercent:   in.PlanPercent,
			Status:        StatusCompleted,
			DelayDays:     completedDelay(in),
		}
	case in.PlanPercent-in.ActualPercent > slack:
		delay := 0
		if in.PlanEnd != nil && dayAfter(in.Now, *in.PlanEnd) {
			delay = ceilDays(*in.PlanEnd, in.Now)
		}
		return Record{ActualPercent: in.ActualPercent, PlanPercent: in.PlanPercent, Status: StatusDelay, DelayDays: delay}
	default:
		return Record{ActualPercent: in.ActualPercent, PlanPercent: in.PlanPercent, Status: StatusOnPlan}
	}
}

func completedDelay(in VarianceInput) int {
	if in.PlanEnd == nil {
		return 0
	}
	if in.ActualFinish != nil {
		if dayAfter(*in.ActualFinish, *in.PlanEnd) {
			return ceilDays(*in.PlanEnd, *in.ActualFinish)
		}
		return 0
	}
	if dayAfter(in.Now, *in.PlanEnd) {
		return ceilDays(*in.PlanEnd, in.Now)
	}
	return 0
}
