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

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID                    string
	Name                  string
	BusinessUnit          string
	Owner                 string
	Budget                *float64
	Lifecycle             string
	DesignPlanStart       string
	DesignPlanEnd         string
	ConstructionPlanStart string
	ConstructionPlanEnd   string
}

// ProjectView is a project with its design steps and freshly derived records.
type ProjectView struct {
	Project      domain.Project              `json:"project"`
	Steps        []domain.DesignStep         `json:"steps"`
	Design       progress.DesignResult       `json:"design"`
	Construction progress.ConstructionResult `json:"construction"`
}

// CreateProject inserts a project and instantiates the configured design template.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (ProjectView, error) {
	if e.Config == nil {
		return ProjectView{}, errors.New("config not loaded")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return ProjectView{}, invalidf("name is required")
	}
	if err := checkMoney("budget", opts.Budget); err != nil {
		return ProjectView{}, err
	}
	lifecycle, err := parseLifecycle(opts.Lifecycle)
	if err != nil {
		return ProjectView{}, err
	}
	p := domain.Project{
		ID:              opts.ID,
		Name:            name,
		BusinessUnit:    strings.ToUpper(strings.TrimSpace(opts.BusinessUnit)),
		Owner:           strings.TrimSpace(opts.Owner),
		Budget:          opts.Budget,
		LifecycleStatus: string(lifecycle),
		CreatedAt:       e.stamp(),
	}
	p.UpdatedAt = p.CreatedAt
	if p.ID == "" {
		p.ID = e.newID("project", name)
	}
	dates := []struct {
		field string
		in    string
		out   *string
	}{
		{"design_plan_start", opts.DesignPlanStart, &p.DesignPlanStart},
		{"design_plan_end", opts.DesignPlanEnd, &p.DesignPlanEnd},
		{"construction_plan_start", opts.ConstructionPlanStart, &p.ConstructionPlanStart},
		{"construction_plan_end", opts.ConstructionPlanEnd, &p.ConstructionPlanEnd},
	}
	for _, d := range dates {
		if *d.out, err = normalizeDate(d.field, d.in); err != nil {
			return ProjectView{}, err
		}
	}
	if err := checkWindow("design", p.DesignPlanStart, p.DesignPlanEnd); err != nil {
		return ProjectView{}, err
	}
	if err := checkWindow("construction", p.ConstructionPlanStart, p.ConstructionPlanEnd); err != nil {
		return ProjectView{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProjectView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return ProjectView{}, err
	}
	if err := e.Repo.ReplaceDesignStepsTx(ctx, tx, p.ID, e.Config.DesignTemplate()); err != nil {
		return ProjectView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, p.ID)
}

// ProjectUpdateOptions carries optional field changes. Nil leaves a field as is;
// an empty date string clears it.
type ProjectUpdateOptions struct {
	Name                  *string
	BusinessUnit          *string
	Owner                 *string
	Budget                *float64
	DesignPlanStart       *string
	DesignPlanEnd         *string
	DesignActualFinish    *string
	ConstructionPlanStart *string
	ConstructionPlanEnd   *string
}

func (e Engine) UpdateProject(ctx context.Context, id string, opts ProjectUpdateOptions) (ProjectView, error) {
	cur, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}
	if err := checkMoney("budget", opts.Budget); err != nil {
		return ProjectView{}, err
	}
	patch := repo.ProjectPatch{Owner: opts.Owner, Budget: opts.Budget}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return ProjectView{}, invalidf("name is required")
		}
		patch.Name = &name
	}
	if opts.BusinessUnit != nil {
		bu := strings.ToUpper(strings.TrimSpace(*opts.BusinessUnit))
		patch.BusinessUnit = &bu
	}
	if patch.DesignPlanStart, err = normalizeDatePtr("design_plan_start", opts.DesignPlanStart); err != nil {
		return ProjectView{}, err
	}
	if patch.DesignPlanEnd, err = normalizeDatePtr("design_plan_end", opts.DesignPlanEnd); err != nil {
		return ProjectView{}, err
	}
	if patch.DesignActualFinish, err = normalizeDatePtr("design_actual_finish", opts.DesignActualFinish); err != nil {
		return ProjectView{}, err
	}
	if patch.ConstructionPlanStart, err = normalizeDatePtr("construction_plan_start", opts.ConstructionPlanStart); err != nil {
		return ProjectView{}, err
	}
	if patch.ConstructionPlanEnd, err = normalizeDatePtr("construction_plan_end", opts.ConstructionPlanEnd); err != nil {
		return ProjectView{}, err
	}
	if err := checkWindow("design", pick(patch.DesignPlanStart, cur.DesignPlanStart), pick(patch.DesignPlanEnd, cur.DesignPlanEnd)); err != nil {
		return ProjectView{}, err
	}
	if err := checkWindow("construction", pick(patch.ConstructionPlanStart, cur.ConstructionPlanStart), pick(patch.ConstructionPlanEnd, cur.ConstructionPlanEnd)); err != nil {
		return ProjectView{}, err
	}
	if err := e.Repo.UpdateProjectTx(ctx, nil, id, patch); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, id)
}

func pick(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}

// SetProjectLifecycle sets the manual override flag. The cancel reason is kept
// only while the project is Cancelled.
func (e Engine) SetProjectLifecycle(ctx context.Context, id, status, reason string) (ProjectView, error) {
	l, err := parseLifecycle(status)
	if err != nil {
		return ProjectView{}, err
	}
	s := string(l)
	reason = strings.TrimSpace(reason)
	if l != progress.LifecycleCancelled {
		reason = ""
	}
	patch := repo.ProjectPatch{LifecycleStatus: &s, CancelReason: &reason}
	if err := e.Repo.UpdateProjectTx(ctx, nil, id, patch); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, id)
}

// DeleteProject removes a project with its design steps and package links.
// Packages keep their own budget.
func (e Engine) DeleteProject(ctx context.Context, id string) error {
	return e.Repo.DeleteProject(ctx, id)
}

// SetDesignStep changes one design step. Marking a step current demotes any
// other current step. Completing the last open step records the design actual
// finish as finishDate, or today when finishDate is empty, unless one is set.
func (e Engine) SetDesignStep(ctx context.Context, projectID string, position int, status, finishDate string) (ProjectView, error) {
	st := progress.StepStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return ProjectView{}, invalidf("step status %q", status)
	}
	finish, err := normalizeDate("finish", finishDate)
	if err != nil {
		return ProjectView{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProjectView{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return ProjectView{}, err
	}
	if st == progress.StepCurrent {
		if err := e.Repo.ClearCurrentStepTx(ctx, tx, projectID, position); err != nil {
			return ProjectView{}, err
		}
	}
	if err := e.Repo.SetDesignStepStatusTx(ctx, tx, projectID, position, st); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ProjectView{}, invalidf("project %s has no design step %d", projectID, position)
		}
		return ProjectView{}, err
	}
	steps, err := e.Repo.ListDesignStepsTx(ctx, tx, projectID)
	if err != nil {
		return ProjectView{}, err
	}
	allDone := len(steps) > 0
	for _, s := range steps {
		if s.Status != string(progress.StepCompleted) {
			allDone = false
			break
		}
	}
	if allDone && p.DesignActualFinish == "" {
		if finish == "" {
			finish = e.today()
		}
		if err := e.Repo.UpdateProjectTx(ctx, tx, projectID, repo.ProjectPatch{DesignActualFinish: &finish}); err != nil {
			return ProjectView{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, projectID)
}

// RetemplateDesign replaces a project's design steps with the configured template.
func (e Engine) RetemplateDesign(ctx context.Context, projectID string) (ProjectView, error) {
	if e.Config == nil {
		return ProjectView{}, errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProjectView{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return ProjectView{}, err
	}
	if err := e.Repo.ReplaceDesignStepsTx(ctx, tx, projectID, e.Config.DesignTemplate()); err != nil {
		return ProjectView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, projectID)
}

// SetConstructionProgress records the externally reported construction percent.
func (e Engine) SetConstructionProgress(ctx context.Context, projectID string, percent float64, actualFinish string) (ProjectView, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return ProjectView{}, invalidf("construction percent %v must be within 0..100", percent)
	}
	patch := repo.ProjectPatch{ConstructionPercent: &percent}
	if actualFinish != "" {
		finish, err := normalizeDate("construction_actual_finish", actualFinish)
		if err != nil {
			return ProjectView{}, err
		}
		patch.ConstructionActualFinish = &finish
	}
	if err := e.Repo.UpdateProjectTx(ctx, nil, projectID, patch); err != nil {
		return ProjectView{}, err
	}
	return e.Project(ctx, projectID)
}

// Project loads a project and derives both of its records.
func (e Engine) Project(ctx context.Context, id string) (ProjectView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return ProjectView{}, err
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}
	steps, err := e.Repo.ListDesignSteps(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}
	now := e.now()
	v := ProjectView{
		Project:      p,
		Steps:        steps,
		Design:       agg.Design(designInput(p, steps), now),
		Construction: agg.Construction(constructionInput(p), now),
	}
	e.logWarnings(progress.PhaseDesign, p.ID, v.Design.Warnings)
	e.logWarnings(progress.PhaseConstruction, p.ID, v.Construction.Warnings)
	return v, nil
}

func (e Engine) DesignProgress(ctx context.Context, id string) (progress.DesignResult, error) {
	v, err := e.Project(ctx, id)
	return v.Design, err
}

func (e Engine) ConstructionProgress(ctx context.Context, id string) (progress.ConstructionResult, error) {
	v, err := e.Project(ctx, id)
	return v.Construction, err
}

// ListProjects derives records for every project matching the filters.
func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]ProjectView, error) {
	agg, err := e.aggregator()
	if err != nil {
		return nil, err
	}
	projects, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return nil, err
	}
	steps, err := e.Repo.ListAllDesignSteps(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]ProjectView, 0, len(projects))
	design := make([]progress.Record, 0, len(projects))
	construction := make([]progress.Record, 0, len(projects))
	for _, p := range projects {
		v := ProjectView{
			Project:      p,
			Steps:        steps[p.ID],
			Design:       agg.Design(designInput(p, steps[p.ID]), now),
			Construction: agg.Construction(constructionInput(p), now),
		}
		e.logWarnings(progress.PhaseDesign, p.ID, v.Design.Warnings)
		e.logWarnings(progress.PhaseConstruction, p.ID, v.Construction.Warnings)
		design = append(design, v.Design.Record)
		construction = append(construction, v.Construction.Record)
		out = append(out, v)
	}
	e.Metrics.ObserveRecords(progress.PhaseDesign, design)
	e.Metrics.ObserveRecords(progress.PhaseConstruction, construction)
	return out, nil
}

func designInput(p domain.Project, steps []domain.DesignStep) progress.DesignInput {
	return progress.DesignInput{
		ID:           p.ID,
		Name:         p.Name,
		BusinessUnit: p.BusinessUnit,
		Owner:        p.Owner,
		Budget:       p.Budget,
		Lifecycle:    progress.Lifecycle(p.LifecycleStatus),
		Steps:        pipeline(steps),
		Dates:        p.DesignDates(),
	}
}

func constructionInput(p domain.Project) progress.ConstructionInput {
	return progress.ConstructionInput{
		ID:              p.ID,
		Name:            p.Name,
		BusinessUnit:    p.BusinessUnit,
		Owner:           p.Owner,
		Lifecycle:       progress.Lifecycle(p.LifecycleStatus),
		ReportedPercent: p.ConstructionPercent,
		Dates:           p.ConstructionDates(),
	}
}
