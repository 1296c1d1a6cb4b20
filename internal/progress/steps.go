package progress

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCurrent   StepStatus = "current"
	StepCompleted StepStatus = "completed"
)

func (s StepStatus) Valid() bool {
	return s == StepPending || s == StepCurrent || s == StepCompleted
}

// PipelineStep is one milestone of a design pipeline.
type PipelineStep struct {
	Position int        `json:"position"`
	Label    string     `json:"label"`
	Status   StepStatus `json:"status"`
}

// WeightedPercent sums the weights of completed steps. Steps without a weight
// entry, repeated positions and unknown statuses contribute nothing and are
// reported as warnings.
func WeightedPercent(steps []PipelineStep, weights WeightTable) (int, []Warning) {
	var (
		sum   float64
		warns []Warning
	)
	seen := make(map[int]bool, len(steps))
	for _, s := range steps {
		if seen[s.Position] {
			warns = append(warns, warnf(WarnDuplicateStep, "step position %d appears more than once", s.Position))
			continue
		}
		seen[s.Position] = true
		if !s.Status.Valid() {
			warns = append(warns, warnf(WarnUnknownStepStatus, "step %d has unknown status %q", s.Position, s.Status))
		}
		w, ok := weights.Weight(s.Position)
		if !ok {
			warns = append(warns, warnf(WarnMissingWeight, "step position %d has no weight entry", s.Position))
			continue
		}
		if s.Status == StepCompleted {
			sum += w
		}
	}
	return clampPercent(sum), warns
}

// LinearPercent is current/total as a percent. Out-of-range input is clamped.
func LinearPercent(current, total int) (int, []Warning) {
	if total <= 0 {
		return 0, []Warning{warnf(WarnStepOutOfRange, "total steps %d must be positive", total)}
	}
	var warns []Warning
	switch {
	case current < 0:
		warns = append(warns, warnf(WarnStepOutOfRange, "step index %d below 0", current))
		current = 0
	case current > total:
		warns = append(warns, warnf(WarnStepOutOfRange, "step index %d beyond %d", current, total))
		current = total
	}
	return clampPercent(float64(current) / float64(total) * 100), warns
}
