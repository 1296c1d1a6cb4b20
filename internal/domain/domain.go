package domain

import "sitepulse/internal/progress"

// Project is a construction project tracked through design and construction.
// Dates are stored as YYYY-MM-DD strings; empty means not set.
type Project struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	BusinessUnit             string   `json:"business_unit,omitempty"`
	Owner                    string   `json:"owner,omitempty"`
	Budget                   *float64 `json:"budget,omitempty"`
	LifecycleStatus          string   `json:"lifecycle_status" enum:"Active,Hold,Cancelled,Completed"`
	DesignPlanStart          string   `json:"design_plan_start,omitempty" format:"date"`
	DesignPlanEnd            string   `json:"design_plan_end,omitempty" format:"date"`
	DesignActualFinish       string   `json:"design_actual_finish,omitempty" format:"date"`
	ConstructionPercent      *float64 `json:"construction_percent,omitempty"`
	ConstructionPlanStart    string   `json:"construction_plan_start,omitempty" format:"date"`
	ConstructionPlanEnd      string   `json:"construction_plan_end,omitempty" format:"date"`
	ConstructionActualFinish string   `json:"construction_actual_finish,omitempty" format:"date"`
	CancelReason             string   `json:"cancel_reason,omitempty"`
	CreatedAt                string   `json:"created_at" format:"date-time"`
	UpdatedAt                string   `json:"updated_at" format:"date-time"`
}

func (p Project) DesignDates() progress.DateWindow {
	return window(p.DesignPlanStart, p.DesignPlanEnd, p.DesignActualFinish)
}

func (p Project) ConstructionDates() progress.DateWindow {
	return window(p.ConstructionPlanStart, p.ConstructionPlanEnd, p.ConstructionActualFinish)
}

type DesignStep struct {
	ProjectID string `json:"project_id"`
	Position  int    `json:"position"`
	Label     string `json:"label"`
	Status    string `json:"status" enum:"pending,current,completed"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Package is a bidding package covering one or more projects.
type Package struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Owner           string              `json:"owner,omitempty"`
	Budget          *float64            `json:"budget,omitempty"`
	LifecycleStatus string              `json:"lifecycle_status" enum:"Active,Hold,Cancelled,Completed"`
	CurrentStep     int                 `json:"current_step"`
	Steps           []progress.StepMark `json:"steps,omitempty"`
	Award           *progress.Award     `json:"award,omitempty"`
	ProjectIDs      []string            `json:"project_ids,omitempty"`
	PlanStart       string              `json:"plan_start,omitempty" format:"date"`
	PlanEnd         string              `json:"plan_end,omitempty" format:"date"`
	ActualFinish    string              `json:"actual_finish,omitempty" format:"date"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
	UpdatedAt       string              `json:"updated_at" format:"date-time"`
}

func (p Package) Dates() progress.DateWindow {
	return window(p.PlanStart, p.PlanEnd, p.ActualFinish)
}

// Contract follows an awarded package through signing.
type Contract struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	PackageID       string              `json:"package_id,omitempty"`
	Owner           string              `json:"owner,omitempty"`
	Value           *float64            `json:"value,omitempty"`
	LifecycleStatus string              `json:"lifecycle_status" enum:"Active,Hold,Cancelled,Completed"`
	CurrentStep     int                 `json:"current_step"`
	Steps           []progress.StepMark `json:"steps,omitempty"`
	PlanStart       string              `json:"plan_start,omitempty" format:"date"`
	PlanEnd         string              `json:"plan_end,omitempty" format:"date"`
	ActualFinish    string              `json:"actual_finish,omitempty" format:"date"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
	UpdatedAt       string              `json:"updated_at" format:"date-time"`
}

func (c Contract) Dates() progress.DateWindow {
	return window(c.PlanStart, c.PlanEnd, c.ActualFinish)
}

func window(start, end, finish string) progress.DateWindow {
	return progress.DateWindow{
		PlanStart:    progress.OptionalDate(start),
		PlanEnd:      progress.OptionalDate(end),
		ActualFinish: progress.OptionalDate(finish),
	}
}
