// Package progress turns raw step and date data into normalized progress
// records: actual percent, plan percent, a health status and delay days.
//
// Nothing here reads the clock or touches storage. "now" and every record are
// passed in, so all functions are safe for concurrent use.
package progress

import (
	"fmt"
	"math"
	"strings"
)

// Status is the health label of a normalized record.
type Status string

const (
	StatusOnPlan    Status = "OnPlan"
	StatusDelay     Status = "Delay"
	StatusCompleted Status = "Completed"
	StatusHold      Status = "Hold"
	StatusCancelled Status = "Cancelled"
)

// Lifecycle is the manual project flag that overrides computed status.
type Lifecycle string

const (
	LifecycleActive    Lifecycle = "Active"
	LifecycleHold      Lifecycle = "Hold"
	LifecycleCancelled Lifecycle = "Cancelled"
	LifecycleCompleted Lifecycle = "Completed"
)

var lifecycles = []Lifecycle{LifecycleActive, LifecycleHold, LifecycleCancelled, LifecycleCompleted}

// ParseLifecycle accepts any casing. An empty string is Active.
func ParseLifecycle(s string) (Lifecycle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LifecycleActive, nil
	}
	for _, l := range lifecycles {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid lifecycle status %q", s)
}

func (l Lifecycle) Valid() bool {
	for _, v := range lifecycles {
		if l == v {
			return true
		}
	}
	return false
}

// WarningCode identifies a data-quality problem that was recovered from.
type WarningCode string

const (
	WarnInvalidDateWindow WarningCode = "invalid_date_window"
	WarnMissingWeight     WarningCode = "missing_weight_entry"
	WarnMissingBudget     WarningCode = "missing_budget"
	WarnMissingProgress   WarningCode = "missing_progress"
	WarnStepOutOfRange    WarningCode = "step_index_out_of_range"
	WarnDuplicateStep     WarningCode = "duplicate_step_position"
	WarnUnknownStepStatus WarningCode = "unknown_step_status"
	WarnUnknownLifecycle  WarningCode = "unknown_lifecycle_status"
	WarnBackwardMove      WarningCode = "backward_step_move"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func warnf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Record is the normalized, disposable progress output. It is re-derived on
// every read and never stored.
type Record struct {
	ActualPercent  int       `json:"actual_percent"`
	PlanPercent    int       `json:"plan_percent"`
	Status         Status    `json:"status"`
	DelayDays      int       `json:"delay_days"`
	PlanKnown      bool      `json:"plan_known"`
	IncompleteData bool      `json:"incomplete_data"`
	Warnings       []Warning `json:"warnings,omitempty"`
}

// HasWarning reports whether a warning with the given code was raised.
func (r Record) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// clampPercent rounds half away from zero and clamps into [0,100].
func clampPercent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
