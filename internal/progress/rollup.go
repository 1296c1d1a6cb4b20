package progress

import (
	"sort"
	"strings"
)

const (
	DefaultBusinessUnit = "OT"
	DefaultOwner        = "Unassigned"
)

// Share is one slice of an earned-revenue rollup.
type Share struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Earned       float64 `json:"earned"`
	SharePercent float64 `json:"share_percent"`
	Projects     int     `json:"projects"`
}

// Rollups summarizes design revenue recognition across projects.
type Rollups struct {
	TotalBudget     float64        `json:"total_budget"`
	TotalForecast   float64        `json:"total_forecast"`
	TotalEarned     float64        `json:"total_earned"`
	ProjectCount    int            `json:"project_count"`
	IncompleteCount int            `json:"incomplete_count"`
	StatusCounts    map[Status]int `json:"status_counts"`
	ByBusinessUnit  []Share        `json:"by_business_unit"`
	ByOwner         []Share        `json:"by_owner"`
}

// ComputeRevenueRollups totals earned and forecast revenue. Cancelled projects
// count toward the total budget only and are left out of every other figure.
// Shares are sorted by earned revenue, largest first.
func ComputeRevenueRollups(results []DesignResult) Rollups {
	out := Rollups{StatusCounts: map[Status]int{}}
	byBU := map[string]*Share{}
	byOwner := map[string]*Share{}
	for _, r := range results {
		out.TotalBudget += r.Budget
		if r.Lifecycle == LifecycleCancelled || r.Status == StatusCancelled {
			continue
		}
		out.ProjectCount++
		if r.IncompleteData {
			out.IncompleteCount++
		}
		out.StatusCounts[r.Status]++
		out.TotalForecast += r.ForecastRevenue
		out.TotalEarned += r.EarnedRevenue
		accumulate(byBU, keyOr(r.BusinessUnit, DefaultBusinessUnit), r.EarnedRevenue)
		accumulate(byOwner, keyOr(r.Owner, DefaultOwner), r.EarnedRevenue)
	}
	out.ByBusinessUnit = sortedShares(byBU, out.TotalEarned)
	out.ByOwner = sortedShares(byOwner, out.TotalEarned)
	return out
}

// ApplyLabels replaces business-unit labels with configured display names.
func (r *Rollups) ApplyLabels(labels map[string]string) {
	for i, s := range r.ByBusinessUnit {
		if l, ok := labels[s.Key]; ok && l != "" {
			r.ByBusinessUnit[i].Label = l
		}
	}
}

func keyOr(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func accumulate(m map[string]*Share, key string, earned float64) {
	s, ok := m[key]
	if !ok {
		s = &Share{Key: key, Label: key}
		m[key] = s
	}
	s.Earned += earned
	s.Projects++
}

func sortedShares(m map[string]*Share, total float64) []Share {
	out := make([]Share, 0, len(m))
	for _, s := range m {
		if total > 0 {
			s.SharePercent = s.Earned / total * 100
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Earned != out[j].Earned {
			return out[i].Earned > out[j].Earned
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// OwnerLoad is one owner's share of the bidding workload.
type OwnerLoad struct {
	Owner              string  `json:"owner"`
	Packages           int     `json:"packages"`
	Completed          int     `json:"completed"`
	Budget             float64 `json:"budget"`
	BudgetSharePercent float64 `json:"budget_share_percent"`
}

// BiddingSummary is the dashboard view over all bidding packages.
type BiddingSummary struct {
	Packages      int            `json:"packages"`
	OnPlan        int            `json:"on_plan"`
	Delay         int            `json:"delay"`
	Done          int            `json:"done"`
	Hold          int            `json:"hold"`
	Cancelled     int            `json:"cancelled"`
	Groups        map[string]int `json:"groups"`
	TotalBudget   float64        `json:"total_budget"`
	TotalSaving   float64        `json:"total_saving"`
	SavingPercent float64        `json:"saving_percent"`
	TargetFee     float64        `json:"target_fee"`
	EarnedFee     float64        `json:"earned_fee"`
	FeePercent    float64        `json:"fee_percent"`
	ByOwner       []OwnerLoad    `json:"by_owner"`
}

// SummarizeBidding counts packages by status and step group and totals the
// fee revenue. Cancelled packages are counted but excluded from money totals.
func (a Aggregator) SummarizeBidding(results []BiddingResult) BiddingSummary {
	out := BiddingSummary{Groups: map[string]int{}}
	for name := range a.BiddingGroups {
		out.Groups[name] = 0
	}
	owners := map[string]*OwnerLoad{}
	for _, r := range results {
		out.Packages++
		switch r.Status {
		case StatusCancelled:
			out.Cancelled++
			continue
		case StatusCompleted:
			out.Done++
		case StatusDelay:
			out.Delay++
		case StatusHold:
			out.Hold++
		default:
			out.OnPlan++
		}
		for name, steps := range a.BiddingGroups {
			for _, s := range steps {
				if r.CurrentStep == s {
					out.Groups[name]++
					break
				}
			}
		}
		out.TotalBudget += r.Budget
		if r.Saving != nil {
			out.TotalSaving += *r.Saving
		}
		if r.Terminal {
			out.EarnedFee += r.feeBase * a.BiddingFeeFactor
		}
		key := keyOr(r.Owner, DefaultOwner)
		o, ok := owners[key]
		if !ok {
			o = &OwnerLoad{Owner: key}
			owners[key] = o
		}
		o.Packages++
		o.Budget += r.Budget
		if r.Terminal {
			o.Completed++
		}
	}
	out.TargetFee = out.TotalBudget * a.BiddingFeeFactor
	if out.TotalBudget > 0 {
		out.SavingPercent = out.TotalSaving / out.TotalBudget * 100
	}
	if out.TargetFee > 0 {
		out.FeePercent = out.EarnedFee / out.TargetFee * 100
	}
	out.ByOwner = make([]OwnerLoad, 0, len(owners))
	for _, o := range owners {
		if out.TotalBudget > 0 {
			o.BudgetSharePercent = o.Budget / out.TotalBudget * 100
		}
		out.ByOwner = append(out.ByOwner, *o)
	}
	sort.Slice(out.ByOwner, func(i, j int) bool {
		if out.ByOwner[i].Packages != out.ByOwner[j].Packages {
			return out.ByOwner[i].Packages > out.ByOwner[j].Packages
		}
		return out.ByOwner[i].Owner < out.ByOwner[j].Owner
	})
	return out
}

// FeeBase is the amount the bidding fee is charged on: the awarded price when
// known, else the budget.
func (r BiddingResult) FeeBase() float64 { return r.feeBase }
