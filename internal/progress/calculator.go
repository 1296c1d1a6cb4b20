package progress

import (
	"time"
)

// Calculator binds the variance slack to the per-phase progress functions.
type Calculator struct {
	SlackPercent int
}

func NewCalculator(slackPercent int) Calculator {
	if slackPercent < 0 {
		slackPercent = 0
	}
	return Calculator{SlackPercent: slackPercent}
}

// DesignProgress computes a design-phase record from weighted pipeline steps.
func (c Calculator) DesignProgress(steps []PipelineStep, weights WeightTable, dates DateWindow, lifecycle Lifecycle, now time.Time) Record {
	actual, warns := WeightedPercent(steps, weights)
	return c.finish(actual, dates, lifecycle, now, warns)
}

// LinearPhaseProgress computes a record for index-based phases (Bidding, Contract).
func (c Calculator) LinearPhaseProgress(currentStep, totalSteps int, dates DateWindow, lifecycle Lifecycle, now time.Time) Record {
	actual, warns := LinearPercent(currentStep, totalSteps)
	return c.finish(actual, dates, lifecycle, now, warns)
}

// ReportedProgress classifies an externally reported percent, as the
// construction phase supplies. A nil percent counts as 0 and marks the record
// incomplete.
func (c Calculator) ReportedProgress(percent *float64, dates DateWindow, lifecycle Lifecycle, now time.Time) Record {
	var warns []Warning
	actual := 0
	missing := !finite(percent)
	if missing {
		warns = append(warns, warnf(WarnMissingProgress, "no reported progress"))
	} else {
		actual = clampPercent(*percent)
	}
	rec := c.finish(actual, dates, lifecycle, now, warns)
	rec.IncompleteData = missing && lifecycle != LifecycleCompleted
	return rec
}

func (c Calculator) finish(actual int, dates DateWindow, lifecycle Lifecycle, now time.Time, warns []Warning) Record {
	if !lifecycle.Valid() {
		if lifecycle != "" {
			warns = append(warns, warnf(WarnUnknownLifecycle, "unknown lifecycle status %q treated as Active", lifecycle))
		}
		lifecycle = LifecycleActive
	}
	if lifecycle == LifecycleCompleted {
		actual = 100
	}
	plan, known := PlanPercent(dates, now)
	if !known {
		warns = append(warns, warnf(WarnInvalidDateWindow, "plan window missing or not increasing"))
	}
	rec := Classify(VarianceInput{
		ActualPercent: actual,
		PlanPercent:   plan,
		Lifecycle:     lifecycle,
		PlanEnd:       dates.PlanEnd,
		ActualFinish:  dates.ActualFinish,
		Now:           now,
	}, c.SlackPercent)
	rec.PlanKnown = known && rec.Status != StatusCancelled
	rec.Warnings = warns
	return rec
}
