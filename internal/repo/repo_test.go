package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/config"
	"sitepulse/internal/db"
	"sitepulse/internal/domain"
	"sitepulse/internal/migrate"
	"sitepulse/internal/progress"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return Repo{DB: conn}
}

func TestWorkspaceConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.GetWorkspaceConfig(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	cfg := config.Default("ws")
	cfg.Variance.SlackPercent = 8
	require.NoError(t, r.UpsertWorkspaceConfig(ctx, cfg))
	cfg.Variance.SlackPercent = 9
	require.NoError(t, r.UpsertWorkspaceConfig(ctx, cfg))

	got, err := r.GetWorkspaceConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Variance.SlackPercent)

	bad := config.Default("ws")
	bad.Design.Steps = nil
	assert.Error(t, r.UpsertWorkspaceConfig(ctx, bad))
}

func TestProjectAndStepsLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	budget := 1200.5
	p := domain.Project{
		ID:              "p1",
		Name:            "Feed mill",
		BusinessUnit:    "FE",
		Budget:          &budget,
		LifecycleStatus: "Active",
		DesignPlanStart: "2024-01-01",
		CreatedAt:       "2024-01-01T00:00:00Z",
		UpdatedAt:       "2024-01-01T00:00:00Z",
	}
	require.NoError(t, r.InsertProjectTx(ctx, nil, p))

	got, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.Budget)
	assert.Equal(t, budget, *got.Budget)
	assert.Nil(t, got.ConstructionPercent)
	assert.Equal(t, "", got.DesignPlanEnd)

	hold := "Hold"
	end := "2024-06-01"
	require.NoError(t, r.UpdateProjectTx(ctx, nil, "p1", ProjectPatch{LifecycleStatus: &hold, DesignPlanEnd: &end}))
	got, err = r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Hold", got.LifecycleStatus)
	assert.Equal(t, "2024-06-01", got.DesignPlanEnd)

	err = r.UpdateProjectTx(ctx, nil, "missing", ProjectPatch{LifecycleStatus: &hold})
	assert.True(t, errors.Is(err, ErrNotFound))

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReplaceDesignStepsTx(ctx, tx, "p1", config.Default("ws").DesignTemplate()))
	require.NoError(t, r.SetDesignStepStatusTx(ctx, tx, "p1", 2, progress.StepCompleted))
	assert.True(t, errors.Is(r.SetDesignStepStatusTx(ctx, tx, "p1", 42, progress.StepCompleted), ErrNotFound))
	require.NoError(t, tx.Commit())

	steps, err := r.ListDesignSteps(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, steps, 7)
	assert.Equal(t, "completed", steps[1].Status)
	assert.Equal(t, "pending", steps[0].Status)

	all, err := r.ListAllDesignSteps(ctx)
	require.NoError(t, err)
	assert.Len(t, all["p1"], 7)

	list, err := r.ListProjects(ctx, ProjectFilters{BusinessUnit: "FE"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = r.ListProjects(ctx, ProjectFilters{BusinessUnit: "SW"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPackageAndContractState(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.InsertProjectTx(ctx, nil, domain.Project{ID: "p1", Name: "A", LifecycleStatus: "Active", CreatedAt: "t", UpdatedAt: "t"}))

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertPackageTx(ctx, tx, domain.Package{
		ID: "b1", Name: "Civil works", LifecycleStatus: "Active", ProjectIDs: []string{"p1"}, CreatedAt: "t", UpdatedAt: "t",
	}))
	require.NoError(t, tx.Commit())

	pkg, err := r.GetPackage(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, pkg.ProjectIDs)
	assert.Empty(t, pkg.Steps)
	assert.Nil(t, pkg.Award)

	final := 900.0
	pkg.CurrentStep = 3
	pkg.Steps = []progress.StepMark{{Position: 3, State: progress.StateCompleted, Date: "2024-02-01"}}
	pkg.Award = &progress.Award{Winner: "ACME", FinalPrice: &final}
	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.SavePackageStateTx(ctx, tx, pkg))
	require.NoError(t, tx.Commit())

	pkgs, err := r.ListPackages(ctx, "")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, 3, pkgs[0].CurrentStep)
	assert.Equal(t, pkg.Steps, pkgs[0].Steps)
	require.NotNil(t, pkgs[0].Award)
	assert.Equal(t, "ACME", pkgs[0].Award.Winner)

	require.NoError(t, r.InsertContractTx(ctx, nil, domain.Contract{ID: "c1", Name: "Civil", PackageID: "b1", LifecycleStatus: "Active", CreatedAt: "t", UpdatedAt: "t"}))
	c, err := r.GetContract(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "b1", c.PackageID)
	assert.Nil(t, c.Value)

	list, err := r.ListContracts(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = r.GetContract(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, r.DeleteContract(ctx, "c1"))
	_, err = r.GetContract(ctx, "c1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(r.DeleteContract(ctx, "c1"), ErrNotFound))

	require.NoError(t, r.DeleteProject(ctx, "p1"))
	pkg, err = r.GetPackage(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, pkg.ProjectIDs)
	assert.True(t, errors.Is(r.DeleteProject(ctx, "p1"), ErrNotFound))
}

func TestProjectCancelReason(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.InsertProjectTx(ctx, nil, domain.Project{ID: "p1", Name: "A", LifecycleStatus: "Active", CreatedAt: "t", UpdatedAt: "t"}))

	status, reason := "Cancelled", "land purchase fell through"
	require.NoError(t, r.UpdateProjectTx(ctx, nil, "p1", ProjectPatch{LifecycleStatus: &status, CancelReason: &reason}))
	got, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, reason, got.CancelReason)

	cleared := ""
	require.NoError(t, r.UpdateProjectTx(ctx, nil, "p1", ProjectPatch{CancelReason: &cleared}))
	got, err = r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, got.CancelReason)
}
