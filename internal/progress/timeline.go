package progress

import (
	"math"
	"time"
)

// TimelineOptions shape the shared visible window.
type TimelineOptions struct {
	MarginBeforeMonths int     `json:"margin_before_months"`
	MarginAfterMonths  int     `json:"margin_after_months"`
	MinWidthPercent    float64 `json:"min_width_percent"`
}

func DefaultTimelineOptions() TimelineOptions {
	return TimelineOptions{MarginBeforeMonths: 1, MarginAfterMonths: 2, MinWidthPercent: 0.1}
}

type TimelineInput struct {
	ID            string
	Label         string
	ActualPercent int
	Status        Status
	Lifecycle     Lifecycle
	Dates         DateWindow
}

type TimelineWindow struct {
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Days   float64     `json:"days"`
	Months []time.Time `json:"months"`
}

// TimelineBar holds percentages of the window width. BarWidthPercent is the
// container that fits both the plan and the actual bar.
type TimelineBar struct {
	ID                 string  `json:"id"`
	Label              string  `json:"label,omitempty"`
	LeftPercent        float64 `json:"left_percent"`
	PlanWidthPercent   float64 `json:"plan_width_percent"`
	ActualWidthPercent float64 `json:"actual_width_percent"`
	BarWidthPercent    float64 `json:"bar_width_percent"`
	Completed          bool    `json:"completed"`
	Late               bool    `json:"late"`
}

type Timeline struct {
	Window  TimelineWindow `json:"window"`
	Bars    []TimelineBar  `json:"bars"`
	Skipped []string       `json:"skipped,omitempty"`
}

// ComputeTimeline maps records onto a shared window spanning every start,
// plan end, actual finish and now, padded by the configured margins.
// Records without both plan dates and cancelled records are skipped.
func ComputeTimeline(items []TimelineInput, now time.Time, opts TimelineOptions) Timeline {
	if opts.MinWidthPercent <= 0 {
		opts.MinWidthPercent = DefaultTimelineOptions().MinWidthPercent
	}
	today := Day(now)
	var (
		out   Timeline
		valid []TimelineInput
	)
	for _, it := range items {
		if it.Dates.PlanStart == nil || it.Dates.PlanEnd == nil ||
			it.Lifecycle == LifecycleCancelled || it.Status == StatusCancelled {
			out.Skipped = append(out.Skipped, it.ID)
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		return out
	}

	lo, hi := today, today
	widen := func(t time.Time) {
		t = Day(t)
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	for _, it := range valid {
		widen(*it.Dates.PlanStart)
		widen(*it.Dates.PlanEnd)
		if it.Dates.ActualFinish != nil {
			widen(*it.Dates.ActualFinish)
		}
	}
	lo = lo.AddDate(0, -opts.MarginBeforeMonths, 0)
	hi = hi.AddDate(0, opts.MarginAfterMonths, 0)
	// A window of zero days would divide by zero; widen it to one day.
	if !hi.After(lo) {
		hi = lo.AddDate(0, 0, 1)
	}
	span := daysBetween(lo, hi)
	out.Window = TimelineWindow{Start: lo, End: hi, Days: span, Months: monthStarts(lo, hi)}

	pct := func(from, to time.Time) float64 {
		return daysBetween(from, to) / span * 100
	}
	for _, it := range valid {
		start, planEnd := Day(*it.Dates.PlanStart), Day(*it.Dates.PlanEnd)
		bar := TimelineBar{ID: it.ID, Label: it.Label}
		bar.LeftPercent = clampFloat(pct(lo, start), 0, 100)
		room := 100 - bar.LeftPercent

		plan := pct(start, planEnd)
		if math.IsNaN(plan) || plan < opts.MinWidthPercent {
			plan = opts.MinWidthPercent
		}
		bar.PlanWidthPercent = clampFloat(plan, 0, room)

		var actual float64
		bar.Completed = it.Status == StatusCompleted || it.Lifecycle == LifecycleCompleted
		switch {
		case bar.Completed:
			finish := planEnd
			if it.Dates.ActualFinish != nil {
				finish = Day(*it.Dates.ActualFinish)
			}
			actual = pct(start, finish)
			bar.Late = finish.After(planEnd)
		case today.After(planEnd):
			actual = pct(start, today)
			bar.Late = true
		default:
			actual = bar.PlanWidthPercent * float64(clampPercent(float64(it.ActualPercent))) / 100
			bar.Late = it.Status == StatusDelay
		}
		bar.ActualWidthPercent = clampFloat(actual, 0, room)

		w := bar.PlanWidthPercent
		if bar.ActualWidthPercent > w {
			w = bar.ActualWidthPercent
		}
		if w < opts.MinWidthPercent {
			w = opts.MinWidthPercent
		}
		bar.BarWidthPercent = clampFloat(w, 0, 100)
		out.Bars = append(out.Bars, bar)
	}
	return out
}

func monthStarts(lo, hi time.Time) []time.Time {
	var out []time.Time
	for m := time.Date(lo.Year(), lo.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(hi); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

// TimelineInput adapts a design result for ComputeTimeline.
func (r DesignResult) TimelineInput() TimelineInput {
	return TimelineInput{ID: r.ID, Label: r.Name, ActualPercent: r.ActualPercent, Status: r.Status, Lifecycle: r.Lifecycle, Dates: r.Dates}
}

func (r BiddingResult) TimelineInput() TimelineInput {
	return TimelineInput{ID: r.ID, Label: r.Name, ActualPercent: r.ActualPercent, Status: r.Status, Lifecycle: r.Lifecycle, Dates: r.Dates}
}

func (r ContractResult) TimelineInput() TimelineInput {
	return TimelineInput{ID: r.ID, Label: r.Name, ActualPercent: r.ActualPercent, Status: r.Status, Lifecycle: r.Lifecycle, Dates: r.Dates}
}

func (r ConstructionResult) TimelineInput() TimelineInput {
	return TimelineInput{ID: r.ID, Label: r.Name, ActualPercent: r.ActualPercent, Status: r.Status, Lifecycle: r.Lifecycle, Dates: r.Dates}
}
