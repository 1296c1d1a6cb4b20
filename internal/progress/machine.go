package progress

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStepOutOfRange = errors.New("step out of range")
	ErrBackwardMove   = errors.New("backward step move not allowed")
	ErrStepSkipped    = errors.New("skipping steps not allowed")
	ErrStepCompleted  = errors.New("step already completed")
)

// TransitionError wraps a rejected step-machine mutation.
type TransitionError struct {
	Phase string
	From  int
	To    int
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s step %d -> %d: %v", e.Phase, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

type StepState string

const (
	StatePending   StepState = "pending"
	StateScheduled StepState = "scheduled"
	StateCompleted StepState = "completed"
)

// StepMark is the per-step state. Date, Time and Note are set for Scheduled
// and Completed marks only; Time is only meaningful when Scheduled.
type StepMark struct {
	Position int       `json:"position"`
	State    StepState `json:"state"`
	Date     string    `json:"date,omitempty"`
	Time     string    `json:"time,omitempty"`
	Note     string    `json:"note,omitempty"`
}

type BackwardPolicy string

const (
	BackwardReject BackwardPolicy = "reject"
	BackwardAllow  BackwardPolicy = "allow"
	BackwardWarn   BackwardPolicy = "warn"
)

func ParseBackwardPolicy(s string) (BackwardPolicy, error) {
	switch p := BackwardPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case BackwardReject, BackwardAllow, BackwardWarn:
		return p, nil
	case "":
		return BackwardReject, nil
	default:
		return "", fmt.Errorf("invalid backward policy %q", s)
	}
}

// MachinePolicy configures one phase's pipeline.
type MachinePolicy struct {
	Phase         string
	TotalSteps    int
	Backward      BackwardPolicy
	RevisionSteps []int
	AllowSkip     bool
}

func (p MachinePolicy) revision(step int) bool {
	for _, s := range p.RevisionSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Transition describes an accepted move.
type Transition struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// StepMachine is a linear pipeline with states 0..N. The current index only
// changes through Complete and MoveTo; Schedule annotates without moving.
type StepMachine struct {
	policy  MachinePolicy
	current int
	marks   []StepMark
}

// NewStepMachine restores a machine from stored state. Stored values outside
// the pipeline are clamped or dropped and reported as warnings.
func NewStepMachine(policy MachinePolicy, current int, marks []StepMark) (*StepMachine, []Warning) {
	if policy.TotalSteps < 1 {
		policy.TotalSteps = 1
	}
	if policy.Backward == "" {
		policy.Backward = BackwardReject
	}
	m := &StepMachine{policy: policy, marks: make([]StepMark, policy.TotalSteps)}
	for i := range m.marks {
		m.marks[i] = StepMark{Position: i + 1, State: StatePending}
	}
	var warns []Warning
	switch {
	case current < 0:
		warns = append(warns, warnf(WarnStepOutOfRange, "%s step index %d below 0", policy.Phase, current))
		current = 0
	case current > policy.TotalSteps:
		warns = append(warns, warnf(WarnStepOutOfRange, "%s step index %d beyond %d", policy.Phase, current, policy.TotalSteps))
		current = policy.TotalSteps
	}
	m.current = current
	for _, mk := range marks {
		if mk.Position < 1 || mk.Position > policy.TotalSteps {
			warns = append(warns, warnf(WarnStepOutOfRange, "%s mark for step %d dropped", policy.Phase, mk.Position))
			continue
		}
		if mk.State == "" {
			mk.State = StatePending
		}
		m.marks[mk.Position-1] = mk
	}
	return m, warns
}

func (m *StepMachine) Current() int   { return m.current }
func (m *StepMachine) Terminal() bool { return m.current >= m.policy.TotalSteps }

// Marks returns a copy of all N step marks in position order.
func (m *StepMachine) Marks() []StepMark {
	out := make([]StepMark, len(m.marks))
	copy(out, m.marks)
	return out
}

// StoredMarks returns only non-pending marks, for compact persistence.
func (m *StepMachine) StoredMarks() []StepMark {
	var out []StepMark
	for _, mk := range m.marks {
		if mk.State != StatePending {
			out = append(out, mk)
		}
	}
	return out
}

func (m *StepMachine) Mark(step int) (StepMark, bool) {
	if step < 1 || step > len(m.marks) {
		return StepMark{}, false
	}
	return m.marks[step-1], true
}

// Complete records step as done on date. Completing a step ahead of the
// current index advances to it; completing an earlier step only records it.
func (m *StepMachine) Complete(step int, date, note string) (Transition, error) {
	if err := m.checkRange(step); err != nil {
		return Transition{}, err
	}
	from := m.current
	if step > m.current {
		if err := m.checkSkip(step); err != nil {
			return Transition{}, err
		}
		m.current = step
	}
	m.marks[step-1] = StepMark{Position: step, State: StateCompleted, Date: date, Note: note}
	return Transition{From: from, To: m.current}, nil
}

// Schedule attaches an appointment to a step that is not yet completed.
func (m *StepMachine) Schedule(step int, date, clock, note string) error {
	if err := m.checkRange(step); err != nil {
		return err
	}
	if m.marks[step-1].State == StateCompleted {
		return &TransitionError{Phase: m.policy.Phase, From: m.current, To: step, Err: ErrStepCompleted}
	}
	m.marks[step-1] = StepMark{Position: step, State: StateScheduled, Date: date, Time: clock, Note: note}
	return nil
}

// MoveTo sets the current index explicitly. Forward moves obey the skip
// policy; backward moves obey the backward policy unless the target is a
// revision step.
func (m *StepMachine) MoveTo(step int) (Transition, error) {
	if err := m.checkRange(step); err != nil {
		return Transition{}, err
	}
	from := m.current
	t := Transition{From: from, To: step}
	switch {
	case step == from:
		return t, nil
	case step > from:
		if err := m.checkSkip(step); err != nil {
			return Transition{}, err
		}
	case m.policy.revision(step):
	default:
		switch m.policy.Backward {
		case BackwardAllow:
		case BackwardWarn:
			t.Warnings = append(t.Warnings, warnf(WarnBackwardMove, "%s moved back from step %d to %d", m.policy.Phase, from, step))
		default:
			return Transition{}, &TransitionError{Phase: m.policy.Phase, From: from, To: step, Err: ErrBackwardMove}
		}
	}
	m.current = step
	return t, nil
}

func (m *StepMachine) checkRange(step int) error {
	if step < 1 || step > m.policy.TotalSteps {
		return &TransitionError{Phase: m.policy.Phase, From: m.current, To: step, Err: ErrStepOutOfRange}
	}
	return nil
}

func (m *StepMachine) checkSkip(step int) error {
	if !m.policy.AllowSkip && step > m.current+1 {
		return &TransitionError{Phase: m.policy.Phase, From: m.current, To: step, Err: ErrStepSkipped}
	}
	return nil
}
