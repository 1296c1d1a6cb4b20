package engine

import (
	"context"
	"strings"
	"time"

	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
)

// Rollups computes design revenue recognition across all projects.
func (e Engine) Rollups(ctx context.Context) (progress.Rollups, error) {
	started := time.Now()
	views, err := e.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return progress.Rollups{}, err
	}
	results := make([]progress.DesignResult, len(views))
	for i, v := range views {
		results[i] = v.Design
	}
	ro := progress.ComputeRevenueRollups(results)
	ro.ApplyLabels(e.Config.BusinessUnits)
	e.Metrics.ObserveRollups(ro)
	e.Metrics.ObserveDuration("rollups", started)
	return ro, nil
}

// Timeline lays out one phase's records as Gantt bars. An empty phase means design.
func (e Engine) Timeline(ctx context.Context, phase string) (progress.Timeline, error) {
	started := time.Now()
	var items []progress.TimelineInput
	switch p := strings.ToLower(strings.TrimSpace(phase)); p {
	case "", progress.PhaseDesign, progress.PhaseConstruction:
		views, err := e.ListProjects(ctx, repo.ProjectFilters{})
		if err != nil {
			return progress.Timeline{}, err
		}
		for _, v := range views {
			if p == progress.PhaseConstruction {
				items = append(items, v.Construction.TimelineInput())
			} else {
				items = append(items, v.Design.TimelineInput())
			}
		}
	case progress.PhaseBidding:
		views, err := e.ListPackages(ctx, "")
		if err != nil {
			return progress.Timeline{}, err
		}
		for _, v := range views {
			items = append(items, v.Progress.TimelineInput())
		}
	case progress.PhaseContract:
		views, err := e.ListContracts(ctx, "")
		if err != nil {
			return progress.Timeline{}, err
		}
		for _, v := range views {
			items = append(items, v.Progress.TimelineInput())
		}
	default:
		return progress.Timeline{}, invalidf("unknown phase %q", phase)
	}
	tl := progress.ComputeTimeline(items, e.now(), e.Config.TimelineOptions())
	e.Metrics.ObserveDuration("timeline", started)
	return tl, nil
}

// Kanban places every non-cancelled project on the design step board.
func (e Engine) Kanban(ctx context.Context) ([]progress.KanbanLane, error) {
	started := time.Now()
	views, err := e.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return nil, err
	}
	items := make([]progress.KanbanItem, len(views))
	for i, v := range views {
		items[i] = progress.KanbanItem{Result: v.Design, Steps: pipeline(v.Steps)}
	}
	lanes := progress.GroupKanban(items, e.Config.DesignLabels())
	e.Metrics.ObserveDuration("kanban", started)
	return lanes, nil
}
