package server

import (
	"sitepulse/internal/engine"
	"sitepulse/internal/progress"
)

// Request payloads

type CreateProjectRequest struct {
	ID                    string   `json:"id,omitempty"`
	Name                  string   `json:"name"`
	BusinessUnit          string   `json:"business_unit,omitempty"`
	Owner                 string   `json:"owner,omitempty"`
	Budget                *float64 `json:"budget,omitempty" minimum:"0"`
	LifecycleStatus       string   `json:"lifecycle_status,omitempty" enum:"Active,Hold,Cancelled,Completed"`
	DesignPlanStart       string   `json:"design_plan_start,omitempty"`
	DesignPlanEnd         string   `json:"design_plan_end,omitempty"`
	ConstructionPlanStart string   `json:"construction_plan_start,omitempty"`
	ConstructionPlanEnd   string   `json:"construction_plan_end,omitempty"`
}

func (r CreateProjectRequest) options() engine.ProjectCreateOptions {
	return engine.ProjectCreateOptions{
		ID:                    r.ID,
		Name:                  r.Name,
		BusinessUnit:          r.BusinessUnit,
		Owner:                 r.Owner,
		Budget:                r.Budget,
		Lifecycle:             r.LifecycleStatus,
		DesignPlanStart:       r.DesignPlanStart,
		DesignPlanEnd:         r.DesignPlanEnd,
		ConstructionPlanStart: r.ConstructionPlanStart,
		ConstructionPlanEnd:   r.ConstructionPlanEnd,
	}
}

// UpdateProjectRequest leaves absent fields untouched; an empty date clears it.
type UpdateProjectRequest struct {
	Name                  *string  `json:"name,omitempty"`
	BusinessUnit          *string  `json:"business_unit,omitempty"`
	Owner                 *string  `json:"owner,omitempty"`
	Budget                *float64 `json:"budget,omitempty" minimum:"0"`
	DesignPlanStart       *string  `json:"design_plan_start,omitempty"`
	DesignPlanEnd         *string  `json:"design_plan_end,omitempty"`
	DesignActualFinish    *string  `json:"design_actual_finish,omitempty"`
	ConstructionPlanStart *string  `json:"construction_plan_start,omitempty"`
	ConstructionPlanEnd   *string  `json:"construction_plan_end,omitempty"`
}

func (r UpdateProjectRequest) options() engine.ProjectUpdateOptions {
	return engine.ProjectUpdateOptions{
		Name:                  r.Name,
		BusinessUnit:          r.BusinessUnit,
		Owner:                 r.Owner,
		Budget:                r.Budget,
		DesignPlanStart:       r.DesignPlanStart,
		DesignPlanEnd:         r.DesignPlanEnd,
		DesignActualFinish:    r.DesignActualFinish,
		ConstructionPlanStart: r.ConstructionPlanStart,
		ConstructionPlanEnd:   r.ConstructionPlanEnd,
	}
}

type LifecycleRequest struct {
	Status string `json:"status" enum:"Active,Hold,Cancelled,Completed"`
}

// ProjectLifecycleRequest also carries the reason recorded with a cancellation.
type ProjectLifecycleRequest struct {
	Status       string `json:"status" enum:"Active,Hold,Cancelled,Completed"`
	CancelReason string `json:"cancel_reason,omitempty" required:"false"`
}

type DesignStepRequest struct {
	Status     string `json:"status" enum:"pending,current,completed"`
	FinishDate string `json:"finish_date,omitempty"`
}

type ConstructionRequest struct {
	Percent      float64 `json:"percent" minimum:"0" maximum:"100"`
	ActualFinish string  `json:"actual_finish,omitempty"`
}

type CreatePackageRequest struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Owner      string   `json:"owner,omitempty"`
	Budget     *float64 `json:"budget,omitempty" minimum:"0"`
	ProjectIDs []string `json:"project_ids,omitempty"`
	PlanStart  string   `json:"plan_start,omitempty"`
	PlanEnd    string   `json:"plan_end,omitempty"`
}

type CompleteStepRequest struct {
	Date string `json:"date,omitempty"`
	Note string `json:"note,omitempty"`
}

type ScheduleStepRequest struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty" example:"09:30"`
	Note string `json:"note,omitempty"`
}

type MoveStepRequest struct {
	Step int `json:"step" minimum:"1"`
}

type AwardRequest struct {
	Winner       string   `json:"winner,omitempty"`
	FinalPrice   *float64 `json:"final_price,omitempty" minimum:"0"`
	MedianPrice  *float64 `json:"median_price,omitempty" minimum:"0"`
	LowestBid    *float64 `json:"lowest_bid,omitempty" minimum:"0"`
	AveragePrice *float64 `json:"average_price,omitempty" minimum:"0"`
}

func (r AwardRequest) award() progress.Award {
	return progress.Award{
		Winner:       r.Winner,
		FinalPrice:   r.FinalPrice,
		MedianPrice:  r.MedianPrice,
		LowestBid:    r.LowestBid,
		AveragePrice: r.AveragePrice,
	}
}

type CreateContractRequest struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	PackageID string   `json:"package_id,omitempty"`
	Owner     string   `json:"owner,omitempty"`
	Value     *float64 `json:"value,omitempty" minimum:"0"`
	PlanStart string   `json:"plan_start,omitempty"`
	PlanEnd   string   `json:"plan_end,omitempty"`
}

// Response payloads

type ProjectProgressResponse struct {
	Design       progress.DesignResult       `json:"design"`
	Construction progress.ConstructionResult `json:"construction"`
}

type projectOutput struct {
	Body engine.ProjectView `json:"body"`
}

type projectListOutput struct {
	Body []engine.ProjectView `json:"body"`
}

type packageOutput struct {
	Body engine.PackageView `json:"body"`
}

type packageListOutput struct {
	Body []engine.PackageView `json:"body"`
}

type contractOutput struct {
	Body engine.ContractView `json:"body"`
}

type contractListOutput struct {
	Body []engine.ContractView `json:"body"`
}
