package engine

import (
	"context"
	"errors"
	"math"
	"strings"

	"sitepulse/internal/domain"
	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
)

// DefaultPackageWindowDays is the plan window of a package created from
// projects without explicit dates.
const DefaultPackageWindowDays = 60

type PackageCreateOptions struct {
	ID         string
	Name       string
	Owner      string
	Budget     *float64
	ProjectIDs []string
	PlanStart  string
	PlanEnd    string
}

// PackageView is a bidding package with every step mark and its derived record.
// Transition is set only on responses to a step mutation.
type PackageView struct {
	Package    domain.Package         `json:"package"`
	Labels     []string               `json:"labels"`
	Marks      []progress.StepMark    `json:"marks"`
	Progress   progress.BiddingResult `json:"progress"`
	Transition *progress.Transition   `json:"transition,omitempty"`
}

// CreatePackage opens a bidding package. When projects are linked, a missing
// budget defaults to the sum of their budgets and a missing plan window to
// today plus DefaultPackageWindowDays.
func (e Engine) CreatePackage(ctx context.Context, opts PackageCreateOptions) (PackageView, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return PackageView{}, invalidf("name is required")
	}
	if err := checkMoney("budget", opts.Budget); err != nil {
		return PackageView{}, err
	}
	p := domain.Package{
		ID:              opts.ID,
		Name:            name,
		Owner:           strings.TrimSpace(opts.Owner),
		Budget:          opts.Budget,
		LifecycleStatus: string(progress.LifecycleActive),
		ProjectIDs:      opts.ProjectIDs,
		CreatedAt:       e.stamp(),
	}
	p.UpdatedAt = p.CreatedAt
	if p.ID == "" {
		p.ID = e.newID("package", name)
	}
	var err error
	if p.PlanStart, err = normalizeDate("plan_start", opts.PlanStart); err != nil {
		return PackageView{}, err
	}
	if p.PlanEnd, err = normalizeDate("plan_end", opts.PlanEnd); err != nil {
		return PackageView{}, err
	}
	if len(p.ProjectIDs) > 0 && p.PlanStart == "" && p.PlanEnd == "" {
		today := progress.Day(e.now())
		p.PlanStart = today.Format(progress.DateLayout)
		p.PlanEnd = today.AddDate(0, 0, DefaultPackageWindowDays).Format(progress.DateLayout)
	}
	if err := checkWindow("bidding", p.PlanStart, p.PlanEnd); err != nil {
		return PackageView{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PackageView{}, err
	}
	defer tx.Rollback()
	var (
		sum   float64
		known bool
	)
	for _, pid := range p.ProjectIDs {
		proj, err := e.Repo.GetProjectTx(ctx, tx, pid)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return PackageView{}, invalidf("linked project %s does not exist", pid)
			}
			return PackageView{}, err
		}
		if proj.Budget != nil && !math.IsNaN(*proj.Budget) && !math.IsInf(*proj.Budget, 0) {
			sum += *proj.Budget
			known = true
		}
	}
	if p.Budget == nil && known {
		p.Budget = &sum
	}
	if err := e.Repo.InsertPackageTx(ctx, tx, p); err != nil {
		return PackageView{}, err
	}
	if err := tx.Commit(); err != nil {
		return PackageView{}, err
	}
	return e.Package(ctx, p.ID)
}

// mutatePackage runs fn inside a transaction against the stored package and
// persists whatever state fn leaves behind.
func (e Engine) mutatePackage(ctx context.Context, id string, fn func(p *domain.Package) (*progress.Transition, error)) (PackageView, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PackageView{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPackageTx(ctx, tx, id)
	if err != nil {
		return PackageView{}, err
	}
	tr, err := fn(&p)
	if err != nil {
		return PackageView{}, err
	}
	p.UpdatedAt = e.stamp()
	if err := e.Repo.SavePackageStateTx(ctx, tx, p); err != nil {
		return PackageView{}, err
	}
	if err := tx.Commit(); err != nil {
		return PackageView{}, err
	}
	v, err := e.Package(ctx, id)
	if err != nil {
		return PackageView{}, err
	}
	if tr != nil {
		e.logWarnings(progress.PhaseBidding, id, tr.Warnings)
	}
	v.Transition = tr
	return v, nil
}

// CompletePackageStep records a completed bidding step. Reaching the last step
// stamps the package actual finish with the completion date.
func (e Engine) CompletePackageStep(ctx context.Context, id string, step int, date, note string) (PackageView, error) {
	if e.Config == nil {
		return PackageView{}, errors.New("config not loaded")
	}
	d, err := normalizeDate("date", date)
	if err != nil {
		return PackageView{}, err
	}
	if d == "" {
		d = e.today()
	}
	policy := e.Config.BiddingPolicy()
	return e.mutatePackage(ctx, id, func(p *domain.Package) (*progress.Transition, error) {
		cur, marks, tr, err := e.runMachine(policy, p.CurrentStep, p.Steps, func(m *progress.StepMachine) (progress.Transition, error) {
			return m.Complete(step, d, note)
		})
		if err != nil {
			return nil, err
		}
		p.CurrentStep, p.Steps = cur, marks
		if cur >= policy.TotalSteps && p.ActualFinish == "" {
			p.ActualFinish = d
		}
		return &tr, nil
	})
}

// SchedulePackageStep attaches an appointment to a step that is not done yet.
func (e Engine) SchedulePackageStep(ctx context.Context, id string, step int, date, clock, note string) (PackageView, error) {
	if e.Config == nil {
		return PackageView{}, errors.New("config not loaded")
	}
	d, err := normalizeDate("date", date)
	if err != nil {
		return PackageView{}, err
	}
	if d == "" {
		return PackageView{}, invalidf("schedule date is required")
	}
	policy := e.Config.BiddingPolicy()
	return e.mutatePackage(ctx, id, func(p *domain.Package) (*progress.Transition, error) {
		cur, marks, tr, err := e.runMachine(policy, p.CurrentStep, p.Steps, func(m *progress.StepMachine) (progress.Transition, error) {
			err := m.Schedule(step, d, strings.TrimSpace(clock), note)
			return progress.Transition{From: m.Current(), To: m.Current()}, err
		})
		if err != nil {
			return nil, err
		}
		p.CurrentStep, p.Steps = cur, marks
		return &tr, nil
	})
}

// MovePackageStep sets the current step explicitly. Leaving the terminal step
// clears the actual finish so the package is tracked as open again.
func (e Engine) MovePackageStep(ctx context.Context, id string, step int) (PackageView, error) {
	if e.Config == nil {
		return PackageView{}, errors.New("config not loaded")
	}
	policy := e.Config.BiddingPolicy()
	return e.mutatePackage(ctx, id, func(p *domain.Package) (*progress.Transition, error) {
		cur, marks, tr, err := e.runMachine(policy, p.CurrentStep, p.Steps, func(m *progress.StepMachine) (progress.Transition, error) {
			return m.MoveTo(step)
		})
		if err != nil {
			return nil, err
		}
		p.CurrentStep, p.Steps = cur, marks
		switch {
		case cur >= policy.TotalSteps && p.ActualFinish == "":
			p.ActualFinish = e.today()
		case cur < policy.TotalSteps && p.LifecycleStatus != string(progress.LifecycleCompleted):
			p.ActualFinish = ""
		}
		return &tr, nil
	})
}

// RecordAward stores the bid outcome. Price fields left nil keep their
// previous value; Winner is replaced when non-empty.
func (e Engine) RecordAward(ctx context.Context, id string, award progress.Award) (PackageView, error) {
	for field, v := range map[string]*float64{
		"final_price":   award.FinalPrice,
		"median_price":  award.MedianPrice,
		"lowest_bid":    award.LowestBid,
		"average_price": award.AveragePrice,
	} {
		if err := checkMoney(field, v); err != nil {
			return PackageView{}, err
		}
	}
	return e.mutatePackage(ctx, id, func(p *domain.Package) (*progress.Transition, error) {
		merged := progress.Award{}
		if p.Award != nil {
			merged = *p.Award
		}
		if w := strings.TrimSpace(award.Winner); w != "" {
			merged.Winner = w
		}
		if award.FinalPrice != nil {
			merged.FinalPrice = award.FinalPrice
		}
		if award.MedianPrice != nil {
			merged.MedianPrice = award.MedianPrice
		}
		if award.LowestBid != nil {
			merged.LowestBid = award.LowestBid
		}
		if award.AveragePrice != nil {
			merged.AveragePrice = award.AveragePrice
		}
		p.Award = &merged
		return nil, nil
	})
}

func (e Engine) SetPackageLifecycle(ctx context.Context, id, status string) (PackageView, error) {
	l, err := parseLifecycle(status)
	if err != nil {
		return PackageView{}, err
	}
	return e.mutatePackage(ctx, id, func(p *domain.Package) (*progress.Transition, error) {
		p.LifecycleStatus = string(l)
		if l == progress.LifecycleCompleted && p.ActualFinish == "" {
			p.ActualFinish = e.today()
		}
		return nil, nil
	})
}

func (e Engine) Package(ctx context.Context, id string) (PackageView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return PackageView{}, err
	}
	p, err := e.Repo.GetPackage(ctx, id)
	if err != nil {
		return PackageView{}, err
	}
	v := e.packageView(agg, p)
	e.logWarnings(progress.PhaseBidding, p.ID, v.Progress.Warnings)
	return v, nil
}

func (e Engine) PackageProgress(ctx context.Context, id string) (progress.BiddingResult, error) {
	v, err := e.Package(ctx, id)
	return v.Progress, err
}

// ListPackages derives records for every package, optionally for one owner.
func (e Engine) ListPackages(ctx context.Context, owner string) ([]PackageView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return nil, err
	}
	pkgs, err := e.Repo.ListPackages(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]PackageView, 0, len(pkgs))
	recs := make([]progress.Record, 0, len(pkgs))
	for _, p := range pkgs {
		v := e.packageView(agg, p)
		e.logWarnings(progress.PhaseBidding, p.ID, v.Progress.Warnings)
		recs = append(recs, v.Progress.Record)
		out = append(out, v)
	}
	e.Metrics.ObserveRecords(progress.PhaseBidding, recs)
	return out, nil
}

// BiddingSummary aggregates all packages into the bidding dashboard metrics.
func (e Engine) BiddingSummary(ctx context.Context) (progress.BiddingSummary, error) {
	agg, err := e.aggregator()
	if err != nil {
		return progress.BiddingSummary{}, err
	}
	views, err := e.ListPackages(ctx, "")
	if err != nil {
		return progress.BiddingSummary{}, err
	}
	results := make([]progress.BiddingResult, len(views))
	for i, v := range views {
		results[i] = v.Progress
	}
	return agg.SummarizeBidding(results), nil
}

func (e Engine) packageView(agg progress.Aggregator, p domain.Package) PackageView {
	m, warns := progress.NewStepMachine(e.Config.BiddingPolicy(), p.CurrentStep, p.Steps)
	res := agg.Bidding(progress.BiddingInput{
		ID:          p.ID,
		Name:        p.Name,
		Owner:       p.Owner,
		Budget:      p.Budget,
		Lifecycle:   progress.Lifecycle(p.LifecycleStatus),
		CurrentStep: p.CurrentStep,
		Dates:       p.Dates(),
		Award:       p.Award,
	}, e.now())
	res.Warnings = mergeWarnings(res.Warnings, warns)
	return PackageView{
		Package:  p,
		Labels:   append([]string(nil), e.Config.Bidding.Steps...),
		Marks:    m.Marks(),
		Progress: res,
	}
}

// mergeWarnings appends extra warnings whose code is not already reported.
func mergeWarnings(base, extra []progress.Warning) []progress.Warning {
	seen := make(map[progress.WarningCode]bool, len(base))
	for _, w := range base {
		seen[w.Code] = true
	}
	for _, w := range extra {
		if !seen[w.Code] {
			base = append(base, w)
		}
	}
	return base
}
