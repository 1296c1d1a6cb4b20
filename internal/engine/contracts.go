package engine

import (
	"context"
	"errors"
	"strings"

	"sitepulse/internal/domain"
	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
)

type ContractCreateOptions struct {
	ID        string
	Name      string
	PackageID string
	Owner     string
	Value     *float64
	PlanStart string
	PlanEnd   string
}

type ContractView struct {
	Contract   domain.Contract         `json:"contract"`
	Labels     []string                `json:"labels"`
	Marks      []progress.StepMark     `json:"marks"`
	Progress   progress.ContractResult `json:"progress"`
	Transition *progress.Transition    `json:"transition,omitempty"`
}

// CreateContract opens a contract, by default for an awarded package. Without
// an explicit value the package's final price is used.
func (e Engine) CreateContract(ctx context.Context, opts ContractCreateOptions) (ContractView, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return ContractView{}, invalidf("name is required")
	}
	if err := checkMoney("value", opts.Value); err != nil {
		return ContractView{}, err
	}
	c := domain.Contract{
		ID:              opts.ID,
		Name:            name,
		PackageID:       strings.TrimSpace(opts.PackageID),
		Owner:           strings.TrimSpace(opts.Owner),
		Value:           opts.Value,
		LifecycleStatus: string(progress.LifecycleActive),
		CreatedAt:       e.stamp(),
	}
	c.UpdatedAt = c.CreatedAt
	if c.ID == "" {
		c.ID = e.newID("contract", name)
	}
	var err error
	if c.PlanStart, err = normalizeDate("plan_start", opts.PlanStart); err != nil {
		return ContractView{}, err
	}
	if c.PlanEnd, err = normalizeDate("plan_end", opts.PlanEnd); err != nil {
		return ContractView{}, err
	}
	if err := checkWindow("contract", c.PlanStart, c.PlanEnd); err != nil {
		return ContractView{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ContractView{}, err
	}
	defer tx.Rollback()
	if c.PackageID != "" {
		pkg, err := e.Repo.GetPackageTx(ctx, tx, c.PackageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ContractView{}, invalidf("package %s does not exist", c.PackageID)
			}
			return ContractView{}, err
		}
		if c.Value == nil && pkg.Award != nil && pkg.Award.FinalPrice != nil {
			v := *pkg.Award.FinalPrice
			c.Value = &v
		}
		if c.Owner == "" {
			c.Owner = pkg.Owner
		}
	}
	if err := e.Repo.InsertContractTx(ctx, tx, c); err != nil {
		return ContractView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ContractView{}, err
	}
	return e.Contract(ctx, c.ID)
}

func (e Engine) DeleteContract(ctx context.Context, id string) error {
	return e.Repo.DeleteContract(ctx, id)
}

func (e Engine) mutateContract(ctx context.Context, id string, fn func(c *domain.Contract) (*progress.Transition, error)) (ContractView, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ContractView{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, id)
	if err != nil {
		return ContractView{}, err
	}
	tr, err := fn(&c)
	if err != nil {
		return ContractView{}, err
	}
	c.UpdatedAt = e.stamp()
	if err := e.Repo.SaveContractStateTx(ctx, tx, c); err != nil {
		return ContractView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ContractView{}, err
	}
	v, err := e.Contract(ctx, id)
	if err != nil {
		return ContractView{}, err
	}
	if tr != nil {
		e.logWarnings(progress.PhaseContract, id, tr.Warnings)
	}
	v.Transition = tr
	return v, nil
}

func (e Engine) CompleteContractStep(ctx context.Context, id string, step int, date, note string) (ContractView, error) {
	if e.Config == nil {
		return ContractView{}, errors.New("config not loaded")
	}
	d, err := normalizeDate("date", date)
	if err != nil {
		return ContractView{}, err
	}
	if d == "" {
		d = e.today()
	}
	policy := e.Config.ContractPolicy()
	return e.mutateContract(ctx, id, func(c *domain.Contract) (*progress.Transition, error) {
		cur, marks, tr, err := e.runMachine(policy, c.CurrentStep, c.Steps, func(m *progress.StepMachine) (progress.Transition, error) {
			return m.Complete(step, d, note)
		})
		if err != nil {
			return nil, err
		}
		c.CurrentStep, c.Steps = cur, marks
		if cur >= policy.TotalSteps && c.ActualFinish == "" {
			c.ActualFinish = d
		}
		return &tr, nil
	})
}

func (e Engine) MoveContractStep(ctx context.Context, id string, step int) (ContractView, error) {
	if e.Config == nil {
		return ContractView{}, errors.New("config not loaded")
	}
	policy := e.Config.ContractPolicy()
	return e.mutateContract(ctx, id, func(c *domain.Contract) (*progress.Transition, error) {
		cur, marks, tr, err := e.runMachine(policy, c.CurrentStep, c.Steps, func(m *progress.StepMachine) (progress.Transition, error) {
			return m.MoveTo(step)
		})
		if err != nil {
			return nil, err
		}
		c.CurrentStep, c.Steps = cur, marks
		switch {
		case cur >= policy.TotalSteps && c.ActualFinish == "":
			c.ActualFinish = e.today()
		case cur < policy.TotalSteps && c.LifecycleStatus != string(progress.LifecycleCompleted):
			c.ActualFinish = ""
		}
		return &tr, nil
	})
}

func (e Engine) SetContractLifecycle(ctx context.Context, id, status string) (ContractView, error) {
	l, err := parseLifecycle(status)
	if err != nil {
		return ContractView{}, err
	}
	return e.mutateContract(ctx, id, func(c *domain.Contract) (*progress.Transition, error) {
		c.LifecycleStatus = string(l)
		if l == progress.LifecycleCompleted && c.ActualFinish == "" {
			c.ActualFinish = e.today()
		}
		return nil, nil
	})
}

func (e Engine) Contract(ctx context.Context, id string) (ContractView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return ContractView{}, err
	}
	c, err := e.Repo.GetContract(ctx, id)
	if err != nil {
		return ContractView{}, err
	}
	v := e.contractView(agg, c)
	e.logWarnings(progress.PhaseContract, c.ID, v.Progress.Warnings)
	return v, nil
}

func (e Engine) ContractProgress(ctx context.Context, id string) (progress.ContractResult, error) {
	v, err := e.Contract(ctx, id)
	return v.Progress, err
}

// ListContracts derives records for every contract, optionally for one package.
func (e Engine) ListContracts(ctx context.Context, packageID string) ([]ContractView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return nil, err
	}
	contracts, err := e.Repo.ListContracts(ctx, packageID)
	if err != nil {
		return nil, err
	}
	out := make([]ContractView, 0, len(contracts))
	recs := make([]progress.Record, 0, len(contracts))
	for _, c := range contracts {
		v := e.contractView(agg, c)
		e.logWarnings(progress.PhaseContract, c.ID, v.Progress.Warnings)
		recs = append(recs, v.Progress.Record)
		out = append(out, v)
	}
	e.Metrics.ObserveRecords(progress.PhaseContract, recs)
	return out, nil
}

func (e Engine) contractView(agg progress.Aggregator, c domain.Contract) ContractView {
	m, warns := progress.NewStepMachine(e.Config.ContractPolicy(), c.CurrentStep, c.Steps)
	res := agg.Contract(progress.ContractInput{
		ID:          c.ID,
		Name:        c.Name,
		PackageID:   c.PackageID,
		Owner:       c.Owner,
		Value:       c.Value,
		Lifecycle:   progress.Lifecycle(c.LifecycleStatus),
		CurrentStep: c.CurrentStep,
		Dates:       c.Dates(),
	}, e.now())
	res.Warnings = mergeWarnings(res.Warnings, warns)
	return ContractView{
		Contract: c,
		Labels:   append([]string(nil), e.Config.Contract.Steps...),
		Marks:    m.Marks(),
		Progress: res,
	}
}
