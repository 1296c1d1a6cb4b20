package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitepulse/internal/config"
	"sitepulse/internal/domain"
	"sitepulse/internal/metrics"
	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
)

// ErrInvalidInput marks rejected caller input. Stored data is never rejected;
// it is clamped and reported as warnings instead.
var ErrInvalidInput = errors.New("invalid input")

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Config  *config.Config
	Metrics *metrics.Recorder
	Logger  *log.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Config:  cfg,
		Metrics: metrics.New(),
		Logger:  log.Default(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() string {
	return progress.Day(e.now()).Format(progress.DateLayout)
}

func (e Engine) aggregator() (progress.Aggregator, error) {
	if e.Config == nil {
		return progress.Aggregator{}, errors.New("config not loaded")
	}
	return e.Config.Aggregator()
}

func (e Engine) newID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+"|"+name+"|"+e.now().UTC().Format(time.RFC3339Nano))).String()
}

// logWarnings reports data-quality warnings once per computed record.
func (e Engine) logWarnings(phase, id string, warns []progress.Warning) {
	if len(warns) == 0 || e.Logger == nil {
		return
	}
	for _, w := range warns {
		e.Logger.Printf("%s %s: %s: %s", phase, id, w.Code, w.Message)
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// normalizeDate accepts every format progress.ParseDate does and stores YYYY-MM-DD.
func normalizeDate(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return "", nil
	}
	t, ok := progress.ParseDate(s)
	if !ok {
		return "", invalidf("%s date %q", field, s)
	}
	return t.Format(progress.DateLayout), nil
}

func normalizeDatePtr(field string, s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	v, err := normalizeDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func checkWindow(field, start, end string) error {
	if start == "" || end == "" {
		return nil
	}
	s, _ := progress.ParseDate(start)
	f, _ := progress.ParseDate(end)
	if !f.After(s) {
		return invalidf("%s plan end %s must be after plan start %s", field, end, start)
	}
	return nil
}

func checkMoney(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return invalidf("%s must be a non-negative number", field)
	}
	return nil
}

func parseLifecycle(s string) (progress.Lifecycle, error) {
	l, err := progress.ParseLifecycle(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return l, nil
}

func pipeline(steps []domain.DesignStep) []progress.PipelineStep {
	out := make([]progress.PipelineStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, progress.PipelineStep{Position: s.Position, Label: s.Label, Status: progress.StepStatus(s.Status)})
	}
	return out
}

// runMachine restores a step machine, applies fn and returns the new state.
// Restore warnings are merged into the transition.
func (e Engine) runMachine(policy progress.MachinePolicy, current int, marks []progress.StepMark, fn func(m *progress.StepMachine) (progress.Transition, error)) (int, []progress.StepMark, progress.Transition, error) {
	m, warns := progress.NewStepMachine(policy, current, marks)
	tr, err := fn(m)
	e.Metrics.ObserveTransition(policy.Phase, err)
	if err != nil {
		return 0, nil, progress.Transition{}, err
	}
	tr.Warnings = append(warns, tr.Warnings...)
	return m.Current(), m.StoredMarks(), tr, nil
}
