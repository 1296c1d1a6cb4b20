package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitepulse/internal/config"
	"sitepulse/internal/domain"
	"sitepulse/internal/progress"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Workspace config

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := cfg.YAML()
	if err != nil {
		return err
	}
	now := nowRFC3339()
	_, err = r.DB.ExecContext(ctx, `INSERT INTO workspace_config(workspace_id,config_yaml,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(workspace_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`,
		cfg.Workspace.ID, string(payload), now, now)
	return err
}

// GetWorkspaceConfig returns the single stored config.
func (r Repo) GetWorkspaceConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM workspace_config ORDER BY updated_at DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(payload))
}

// Projects

const projectColumns = `id,name,COALESCE(business_unit,''),COALESCE(owner,''),budget,lifecycle_status,
COALESCE(design_plan_start,''),COALESCE(design_plan_end,''),COALESCE(design_actual_finish,''),
construction_percent,COALESCE(construction_plan_start,''),COALESCE(construction_plan_end,''),COALESCE(construction_actual_finish,''),
COALESCE(cancel_reason,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p                 domain.Project
		budget, construct sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.Name, &p.BusinessUnit, &p.Owner, &budget, &p.LifecycleStatus,
		&p.DesignPlanStart, &p.DesignPlanEnd, &p.DesignActualFinish,
		&construct, &p.ConstructionPlanStart, &p.ConstructionPlanEnd, &p.ConstructionActualFinish,
		&p.CancelReason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Budget = floatPtr(budget)
	p.ConstructionPercent = floatPtr(construct)
	return p, err
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,business_unit,owner,budget,lifecycle_status,
design_plan_start,design_plan_end,design_actual_finish,construction_percent,construction_plan_start,construction_plan_end,construction_actual_finish,cancel_reason,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.BusinessUnit), nullable(p.Owner), nullableFloatPtr(p.Budget), p.LifecycleStatus,
		nullable(p.DesignPlanStart), nullable(p.DesignPlanEnd), nullable(p.DesignActualFinish),
		nullableFloatPtr(p.ConstructionPercent), nullable(p.ConstructionPlanStart), nullable(p.ConstructionPlanEnd), nullable(p.ConstructionActualFinish),
		nullable(p.CancelReason), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	BusinessUnit string
	Owner        string
	Lifecycle    string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var (
		clauses []string
		args    []any
	)
	if f.BusinessUnit != "" {
		clauses = append(clauses, "business_unit=?")
		args = append(args, f.BusinessUnit)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, f.Owner)
	}
	if f.Lifecycle != "" {
		clauses = append(clauses, "lifecycle_status=?")
		args = append(args, f.Lifecycle)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectPatch holds optional column updates. Nil fields are left unchanged.
type ProjectPatch struct {
	Name                     *string
	BusinessUnit             *string
	Owner                    *string
	Budget                   *float64
	LifecycleStatus          *string
	DesignPlanStart          *string
	DesignPlanEnd            *string
	DesignActualFinish       *string
	ConstructionPercent      *float64
	ConstructionPlanStart    *string
	ConstructionPlanEnd      *string
	ConstructionActualFinish *string
	CancelReason             *string
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, id string, patch ProjectPatch) error {
	var (
		fields []string
		args   []any
	)
	str := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	num := func(col string, v *float64) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, *v)
		}
	}
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *patch.Name)
	}
	str("business_unit", patch.BusinessUnit)
	str("owner", patch.Owner)
	num("budget", patch.Budget)
	if patch.LifecycleStatus != nil {
		fields = append(fields, "lifecycle_status=?")
		args = append(args, *patch.LifecycleStatus)
	}
	str("design_plan_start", patch.DesignPlanStart)
	str("design_plan_end", patch.DesignPlanEnd)
	str("design_actual_finish", patch.DesignActualFinish)
	num("construction_percent", patch.ConstructionPercent)
	str("construction_plan_start", patch.ConstructionPlanStart)
	str("construction_plan_end", patch.ConstructionPlanEnd)
	str("construction_actual_finish", patch.ConstructionActualFinish)
	str("cancel_reason", patch.CancelReason)
	if len(fields) == 0 {
		_, err := r.GetProjectTx(ctx, tx, id)
		return err
	}
	fields = append(fields, "updated_at=?")
	args = append(args, nowRFC3339(), id)
	return mustAffect(r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...))
}

// DeleteProject removes a project; its design steps and package links cascade.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	return mustAffect(r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id))
}

// Design steps

func (r Repo) ListDesignSteps(ctx context.Context, projectID string) ([]domain.DesignStep, error) {
	return r.ListDesignStepsTx(ctx, nil, projectID)
}

func (r Repo) ListDesignStepsTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.DesignStep, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT project_id,position,label,status,updated_at FROM design_steps WHERE project_id=? ORDER BY position`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DesignStep
	for rows.Next() {
		var s domain.DesignStep
		if err := rows.Scan(&s.ProjectID, &s.Position, &s.Label, &s.Status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListAllDesignSteps returns every project's steps keyed by project id.
func (r Repo) ListAllDesignSteps(ctx context.Context) (map[string][]domain.DesignStep, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,position,label,status,updated_at FROM design_steps ORDER BY project_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.DesignStep{}
	for rows.Next() {
		var s domain.DesignStep
		if err := rows.Scan(&s.ProjectID, &s.Position, &s.Label, &s.Status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res[s.ProjectID] = append(res[s.ProjectID], s)
	}
	return res, rows.Err()
}

// ReplaceDesignStepsTx drops a project's steps and inserts the given template.
func (r Repo) ReplaceDesignStepsTx(ctx context.Context, tx *sql.Tx, projectID string, steps []progress.PipelineStep) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM design_steps WHERE project_id=?`, projectID); err != nil {
		return err
	}
	now := nowRFC3339()
	for _, s := range steps {
		status := s.Status
		if status == "" {
			status = progress.StepPending
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO design_steps(project_id,position,label,status,updated_at) VALUES (?,?,?,?,?)`,
			projectID, s.Position, s.Label, string(status), now); err != nil {
			return fmt.Errorf("insert design step %d: %w", s.Position, err)
		}
	}
	return nil
}

func (r Repo) SetDesignStepStatusTx(ctx context.Context, tx *sql.Tx, projectID string, position int, status progress.StepStatus) error {
	return mustAffect(tx.ExecContext(ctx, `UPDATE design_steps SET status=?, updated_at=? WHERE project_id=? AND position=?`,
		string(status), nowRFC3339(), projectID, position))
}

// ClearCurrentStepTx demotes any other current step of the project to pending.
func (r Repo) ClearCurrentStepTx(ctx context.Context, tx *sql.Tx, projectID string, keep int) error {
	_, err := tx.ExecContext(ctx, `UPDATE design_steps SET status='pending', updated_at=? WHERE project_id=? AND status='current' AND position<>?`,
		nowRFC3339(), projectID, keep)
	return err
}

// Bidding packages

const packageColumns = `id,name,COALESCE(owner,''),budget,lifecycle_status,current_step,steps_json,award_json,
COALESCE(plan_start,''),COALESCE(plan_end,''),COALESCE(actual_finish,''),created_at,updated_at`

func scanPackage(row rowScanner) (domain.Package, error) {
	var (
		p         domain.Package
		budget    sql.NullFloat64
		stepsJSON string
		awardJSON sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Owner, &budget, &p.LifecycleStatus, &p.CurrentStep, &stepsJSON, &awardJSON,
		&p.PlanStart, &p.PlanEnd, &p.ActualFinish, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Budget = floatPtr(budget)
	if err := json.Unmarshal([]byte(stepsJSON), &p.Steps); err != nil {
		return p, fmt.Errorf("package %s steps: %w", p.ID, err)
	}
	if awardJSON.Valid && awardJSON.String != "" {
		var a progress.Award
		if err := json.Unmarshal([]byte(awardJSON.String), &a); err != nil {
			return p, fmt.Errorf("package %s award: %w", p.ID, err)
		}
		p.Award = &a
	}
	return p, nil
}

func marshalMarks(marks []progress.StepMark) (string, error) {
	if marks == nil {
		marks = []progress.StepMark{}
	}
	b, err := json.Marshal(marks)
	return string(b), err
}

func marshalAward(a *progress.Award) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r Repo) InsertPackageTx(ctx context.Context, tx *sql.Tx, p domain.Package) error {
	steps, err := marshalMarks(p.Steps)
	if err != nil {
		return err
	}
	award, err := marshalAward(p.Award)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO bidding_packages(id,name,owner,budget,lifecycle_status,current_step,steps_json,award_json,plan_start,plan_end,actual_finish,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Owner), nullableFloatPtr(p.Budget), p.LifecycleStatus, p.CurrentStep, steps, award,
		nullable(p.PlanStart), nullable(p.PlanEnd), nullable(p.ActualFinish), p.CreatedAt, p.UpdatedAt); err != nil {
		return err
	}
	for _, projectID := range p.ProjectIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO package_projects(package_id,project_id) VALUES (?,?)`, p.ID, projectID); err != nil {
			return fmt.Errorf("link project %s: %w", projectID, err)
		}
	}
	return nil
}

func (r Repo) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	return r.GetPackageTx(ctx, nil, id)
}

func (r Repo) GetPackageTx(ctx context.Context, tx *sql.Tx, id string) (domain.Package, error) {
	p, err := scanPackage(r.q(tx).QueryRowContext(ctx, `SELECT `+packageColumns+` FROM bidding_packages WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	p.ProjectIDs, err = r.packageProjects(ctx, r.q(tx), id)
	return p, err
}

func (r Repo) packageProjects(ctx context.Context, q querier, packageID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT project_id FROM package_projects WHERE package_id=? ORDER BY project_id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListPackages(ctx context.Context, owner string) ([]domain.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM bidding_packages`
	var args []any
	if owner != "" {
		query += ` WHERE owner=?`
		args = append(args, owner)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].ProjectIDs, err = r.packageProjects(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SavePackageStateTx persists the step machine state, award and lifecycle of a package.
func (r Repo) SavePackageStateTx(ctx context.Context, tx *sql.Tx, p domain.Package) error {
	steps, err := marshalMarks(p.Steps)
	if err != nil {
		return err
	}
	award, err := marshalAward(p.Award)
	if err != nil {
		return err
	}
	return mustAffect(tx.ExecContext(ctx, `UPDATE bidding_packages SET current_step=?, steps_json=?, award_json=?, lifecycle_status=?, actual_finish=?, updated_at=? WHERE id=?`,
		p.CurrentStep, steps, award, p.LifecycleStatus, nullable(p.ActualFinish), nowRFC3339(), p.ID))
}

// Contracts

const contractColumns = `id,name,COALESCE(package_id,''),COALESCE(owner,''),value,lifecycle_status,current_step,steps_json,
COALESCE(plan_start,''),COALESCE(plan_end,''),COALESCE(actual_finish,''),created_at,updated_at`

func scanContract(row rowScanner) (domain.Contract, error) {
	var (
		c         domain.Contract
		value     sql.NullFloat64
		stepsJSON string
	)
	err := row.Scan(&c.ID, &c.Name, &c.PackageID, &c.Owner, &value, &c.LifecycleStatus, &c.CurrentStep, &stepsJSON,
		&c.PlanStart, &c.PlanEnd, &c.ActualFinish, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Value = floatPtr(value)
	if err := json.Unmarshal([]byte(stepsJSON), &c.Steps); err != nil {
		return c, fmt.Errorf("contract %s steps: %w", c.ID, err)
	}
	return c, nil
}

func (r Repo) InsertContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	steps, err := marshalMarks(c.Steps)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO contracts(id,name,package_id,owner,value,lifecycle_status,current_step,steps_json,plan_start,plan_end,actual_finish,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.PackageID), nullable(c.Owner), nullableFloatPtr(c.Value), c.LifecycleStatus, c.CurrentStep, steps,
		nullable(c.PlanStart), nullable(c.PlanEnd), nullable(c.ActualFinish), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return r.GetContractTx(ctx, nil, id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(r.q(tx).QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

func (r Repo) ListContracts(ctx context.Context, packageID string) ([]domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	var args []any
	if packageID != "" {
		query += ` WHERE package_id=?`
		args = append(args, packageID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SaveContractStateTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	steps, err := marshalMarks(c.Steps)
	if err != nil {
		return err
	}
	return mustAffect(tx.ExecContext(ctx, `UPDATE contracts SET current_step=?, steps_json=?, lifecycle_status=?, actual_finish=?, updated_at=? WHERE id=?`,
		c.CurrentStep, steps, c.LifecycleStatus, nullable(c.ActualFinish), nowRFC3339(), c.ID))
}

func (r Repo) DeleteContract(ctx context.Context, id string) error {
	return mustAffect(r.DB.ExecContext(ctx, `DELETE FROM contracts WHERE id=?`, id))
}
