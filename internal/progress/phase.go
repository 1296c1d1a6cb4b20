package progress

import (
	"time"
)

const (
	PhaseDesign       = "design"
	PhaseBidding      = "bidding"
	PhaseContract     = "contract"
	PhaseConstruction = "construction"
)

const (
	DefaultDesignRevenueFactor = 0.011
	DefaultBiddingFeeFactor    = 0.003
	DefaultBiddingSteps        = 10
	DefaultContractSteps       = 5
)

// Aggregator composes the calculators per phase and attaches phase metrics.
type Aggregator struct {
	Calc                Calculator
	Weights             WeightTable
	DesignRevenueFactor float64
	BiddingSteps        int
	ContractSteps       int
	BiddingFeeFactor    float64
	// BiddingGroups names sets of bidding steps counted by SummarizeBidding.
	BiddingGroups map[string][]int
}

// DefaultAggregator uses the canonical template and factors.
func DefaultAggregator() Aggregator {
	return Aggregator{
		Calc:                NewCalculator(DefaultSlackPercent),
		Weights:             DefaultDesignWeights(),
		DesignRevenueFactor: DefaultDesignRevenueFactor,
		BiddingSteps:        DefaultBiddingSteps,
		ContractSteps:       DefaultContractSteps,
		BiddingFeeFactor:    DefaultBiddingFeeFactor,
		BiddingGroups:       map[string][]int{"revision": {4, 5}, "bidding": {6, 7}},
	}
}

type DesignInput struct {
	ID           string
	Name         string
	BusinessUnit string
	Owner        string
	Budget       *float64
	Lifecycle    Lifecycle
	Steps        []PipelineStep
	Dates        DateWindow
}

type DesignResult struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	BusinessUnit    string    `json:"business_unit"`
	Owner           string    `json:"owner"`
	Lifecycle       Lifecycle `json:"lifecycle_status"`
	Budget          float64   `json:"budget"`
	ForecastRevenue float64   `json:"forecast_revenue"`
	EarnedRevenue   float64   `json:"earned_revenue"`
	Record
	Dates DateWindow `json:"-"`
}

// Design computes the weighted design record and its revenue recognition.
func (a Aggregator) Design(in DesignInput, now time.Time) DesignResult {
	rec := a.Calc.DesignProgress(in.Steps, a.Weights, in.Dates, in.Lifecycle, now)
	budget := 0.0
	if finite(in.Budget) {
		budget = *in.Budget
	} else {
		rec.IncompleteData = true
		rec.Warnings = append(rec.Warnings, warnf(WarnMissingBudget, "budget missing or not numeric"))
	}
	forecast := budget * a.DesignRevenueFactor
	return DesignResult{
		ID:              in.ID,
		Name:            in.Name,
		BusinessUnit:    in.BusinessUnit,
		Owner:           in.Owner,
		Lifecycle:       normalizeLifecycle(in.Lifecycle),
		Budget:          budget,
		ForecastRevenue: forecast,
		EarnedRevenue:   forecast * float64(rec.ActualPercent) / 100,
		Record:          rec,
		Dates:           in.Dates,
	}
}

// Award is the recorded bidding outcome. Nil prices were not entered.
type Award struct {
	Winner       string   `json:"winner,omitempty"`
	FinalPrice   *float64 `json:"final_price,omitempty"`
	MedianPrice  *float64 `json:"median_price,omitempty"`
	LowestBid    *float64 `json:"lowest_bid,omitempty"`
	AveragePrice *float64 `json:"average_price,omitempty"`
}

type BiddingInput struct {
	ID          string
	Name        string
	Owner       string
	Budget      *float64
	Lifecycle   Lifecycle
	CurrentStep int
	Dates       DateWindow
	Award       *Award
}

// BiddingResult carries nil metrics when the data to compute them is absent,
// which is distinct from a computed zero.
type BiddingResult struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name,omitempty"`
	Owner                 string    `json:"owner"`
	Lifecycle             Lifecycle `json:"lifecycle_status"`
	Budget                float64   `json:"budget"`
	CurrentStep           int       `json:"current_step"`
	TotalSteps            int       `json:"total_steps"`
	Terminal              bool      `json:"terminal"`
	Saving                *float64  `json:"saving,omitempty"`
	SavingFromMedian      *float64  `json:"saving_from_median,omitempty"`
	DiscountFromBudgetPct *float64  `json:"discount_from_budget_pct,omitempty"`
	DiscountFromMedianPct *float64  `json:"discount_from_median_pct,omitempty"`
	Record
	Dates DateWindow `json:"-"`
	// feeBase is the amount the bidding fee applies to once terminal.
	feeBase float64
}

// Bidding computes the linear bidding record and award metrics.
func (a Aggregator) Bidding(in BiddingInput, now time.Time) BiddingResult {
	total := a.BiddingSteps
	if total <= 0 {
		total = DefaultBiddingSteps
	}
	rec := a.Calc.LinearPhaseProgress(in.CurrentStep, total, in.Dates, in.Lifecycle, now)
	res := BiddingResult{
		ID:          in.ID,
		Name:        in.Name,
		Owner:       in.Owner,
		Lifecycle:   normalizeLifecycle(in.Lifecycle),
		CurrentStep: in.CurrentStep,
		TotalSteps:  total,
		Terminal:    terminal(in.CurrentStep, total, in.Lifecycle),
		Dates:       in.Dates,
	}
	budgetKnown := finite(in.Budget)
	if budgetKnown {
		res.Budget = *in.Budget
	} else {
		rec.IncompleteData = true
		rec.Warnings = append(rec.Warnings, warnf(WarnMissingBudget, "budget missing or not numeric"))
	}
	res.feeBase = res.Budget
	if in.Award != nil && finite(in.Award.FinalPrice) {
		final := *in.Award.FinalPrice
		res.feeBase = final
		if budgetKnown && res.Budget > 0 {
			res.DiscountFromBudgetPct = ptr((res.Budget - final) / res.Budget * 100)
		}
		median := in.Award.MedianPrice
		if finite(median) && *median > 0 {
			res.DiscountFromMedianPct = ptr((*median - final) / *median * 100)
		}
		if res.Terminal {
			if budgetKnown {
				res.Saving = ptr(res.Budget - final)
			}
			if finite(median) {
				res.SavingFromMedian = ptr(*median - final)
			}
		}
	}
	res.Record = rec
	return res
}

type ContractInput struct {
	ID          string
	Name        string
	PackageID   string
	Owner       string
	Value       *float64
	Lifecycle   Lifecycle
	CurrentStep int
	Dates       DateWindow
}

type ContractResult struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	PackageID   string    `json:"package_id,omitempty"`
	Owner       string    `json:"owner"`
	Lifecycle   Lifecycle `json:"lifecycle_status"`
	Value       *float64  `json:"value,omitempty"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Terminal    bool      `json:"terminal"`
	Record
	Dates DateWindow `json:"-"`
}

// Contract is step progress only; contract value carries no revenue.
func (a Aggregator) Contract(in ContractInput, now time.Time) ContractResult {
	total := a.ContractSteps
	if total <= 0 {
		total = DefaultContractSteps
	}
	return ContractResult{
		ID:          in.ID,
		Name:        in.Name,
		PackageID:   in.PackageID,
		Owner:       in.Owner,
		Lifecycle:   normalizeLifecycle(in.Lifecycle),
		Value:       in.Value,
		CurrentStep: in.CurrentStep,
		TotalSteps:  total,
		Terminal:    terminal(in.CurrentStep, total, in.Lifecycle),
		Record:      a.Calc.LinearPhaseProgress(in.CurrentStep, total, in.Dates, in.Lifecycle, now),
		Dates:       in.Dates,
	}
}

// terminal reports the last step reached, or a Completed override that closes
// the phase early.
func terminal(step, total int, l Lifecycle) bool {
	return step >= total || normalizeLifecycle(l) == LifecycleCompleted
}

type ConstructionInput struct {
	ID              string
	Name            string
	BusinessUnit    string
	Owner           string
	Lifecycle       Lifecycle
	ReportedPercent *float64
	Dates           DateWindow
}

type ConstructionResult struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	BusinessUnit string    `json:"business_unit"`
	Owner        string    `json:"owner"`
	Lifecycle    Lifecycle `json:"lifecycle_status"`
	Record
	Dates DateWindow `json:"-"`
}

func (a Aggregator) Construction(in ConstructionInput, now time.Time) ConstructionResult {
	return ConstructionResult{
		ID:           in.ID,
		Name:         in.Name,
		BusinessUnit: in.BusinessUnit,
		Owner:        in.Owner,
		Lifecycle:    normalizeLifecycle(in.Lifecycle),
		Record:       a.Calc.ReportedProgress(in.ReportedPercent, in.Dates, in.Lifecycle, now),
		Dates:        in.Dates,
	}
}

func normalizeLifecycle(l Lifecycle) Lifecycle {
	if l.Valid() {
		return l
	}
	return LifecycleActive
}

func ptr(v float64) *float64 { return &v }
