package sitepulsesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SitePulse HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Warning is a recovered data-quality problem.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record is the derived progress of one phase.
type Record struct {
	ActualPercent  int       `json:"actual_percent"`
	PlanPercent    int       `json:"plan_percent"`
	Status         string    `json:"status"`
	DelayDays      int       `json:"delay_days"`
	PlanKnown      bool      `json:"plan_known"`
	IncompleteData bool      `json:"incomplete_data"`
	Warnings       []Warning `json:"warnings,omitempty"`
}

// DesignProgress is a design record with revenue recognition.
type DesignProgress struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BusinessUnit    string  `json:"business_unit"`
	Owner           string  `json:"owner"`
	Budget          float64 `json:"budget"`
	ForecastRevenue float64 `json:"forecast_revenue"`
	EarnedRevenue   float64 `json:"earned_revenue"`
	Record
}

// ProjectProgress is the response of the per-project progress endpoint.
type ProjectProgress struct {
	Design       DesignProgress `json:"design"`
	Construction Record         `json:"construction"`
}

// StepMark is the state of one bidding or contract step.
type StepMark struct {
	Position int    `json:"position"`
	State    string `json:"state"`
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Transition is returned on step mutations.
type Transition struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// StepProgress is a bidding or contract record.
type StepProgress struct {
	ID          string   `json:"id"`
	CurrentStep int      `json:"current_step"`
	TotalSteps  int      `json:"total_steps"`
	Terminal    bool     `json:"terminal"`
	Saving      *float64 `json:"saving,omitempty"`
	Record
}

// Package represents a bidding package view (partial).
type Package struct {
	Labels     []string     `json:"labels"`
	Marks      []StepMark   `json:"marks"`
	Progress   StepProgress `json:"progress"`
	Transition *Transition  `json:"transition,omitempty"`
}

// Contract represents a contract view (partial).
type Contract struct {
	Labels     []string     `json:"labels"`
	Marks      []StepMark   `json:"marks"`
	Progress   StepProgress `json:"progress"`
	Transition *Transition  `json:"transition,omitempty"`
}

// Share is one business unit or owner slice of earned revenue.
type Share struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Earned       float64 `json:"earned"`
	SharePercent float64 `json:"share_percent"`
	Projects     int     `json:"projects"`
}

// Rollups summarizes design revenue recognition.
type Rollups struct {
	TotalBudget    float64 `json:"total_budget"`
	TotalForecast  float64 `json:"total_forecast"`
	TotalEarned    float64 `json:"total_earned"`
	ProjectCount   int     `json:"project_count"`
	ByBusinessUnit []Share `json:"by_business_unit"`
	ByOwner        []Share `json:"by_owner"`
}

// BiddingSummary is the bidding dashboard (partial).
type BiddingSummary struct {
	Packages    int            `json:"packages"`
	OnPlan      int            `json:"on_plan"`
	Delay       int            `json:"delay"`
	Done        int            `json:"done"`
	Groups      map[string]int `json:"groups"`
	TotalBudget float64        `json:"total_budget"`
	TotalSaving float64        `json:"total_saving"`
	TargetFee   float64        `json:"target_fee"`
	EarnedFee   float64        `json:"earned_fee"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ProjectProgress returns the design and construction records of a project.
func (c *Client) ProjectProgress(ctx context.Context, projectID string) (ProjectProgress, error) {
	var resp ProjectProgress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%s/progress", url.PathEscape(projectID)), nil, &resp)
	return resp, err
}

// SetDesignStep sets the status of one design step.
func (c *Client) SetDesignStep(ctx context.Context, projectID string, position int, status string) error {
	body := map[string]any{"status": status}
	endpoint := fmt.Sprintf("projects/%s/design-steps/%d", url.PathEscape(projectID), position)
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

// Package fetches a bidding package.
func (c *Client) Package(ctx context.Context, packageID string) (Package, error) {
	var resp Package
	err := c.do(ctx, http.MethodGet, "packages/"+url.PathEscape(packageID), nil, &resp)
	return resp, err
}

// CompletePackageStep marks a bidding step done. An empty date means today.
func (c *Client) CompletePackageStep(ctx context.Context, packageID string, step int, date, note string) (Package, error) {
	body := map[string]any{"date": date, "note": note}
	var resp Package
	endpoint := fmt.Sprintf("packages/%s/steps/%d/complete", url.PathEscape(packageID), step)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SchedulePackageStep books an appointment on a bidding step.
func (c *Client) SchedulePackageStep(ctx context.Context, packageID string, step int, date, clock, note string) (Package, error) {
	body := map[string]any{"date": date, "time": clock, "note": note}
	var resp Package
	endpoint := fmt.Sprintf("packages/%s/steps/%d/schedule", url.PathEscape(packageID), step)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// MovePackageStep sets the current bidding step.
func (c *Client) MovePackageStep(ctx context.Context, packageID string, step int) (Package, error) {
	var resp Package
	endpoint := fmt.Sprintf("packages/%s/current-step", url.PathEscape(packageID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"step": step}, &resp)
	return resp, err
}

// BiddingSummary returns the bidding dashboard.
func (c *Client) BiddingSummary(ctx context.Context) (BiddingSummary, error) {
	var resp BiddingSummary
	err := c.do(ctx, http.MethodGet, "packages/summary", nil, &resp)
	return resp, err
}

// CompleteContractStep marks a contract step done.
func (c *Client) CompleteContractStep(ctx context.Context, contractID string, step int, date, note string) (Contract, error) {
	body := map[string]any{"date": date, "note": note}
	var resp Contract
	endpoint := fmt.Sprintf("contracts/%s/steps/%d/complete", url.PathEscape(contractID), step)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// MoveContractStep sets the current contract step.
func (c *Client) MoveContractStep(ctx context.Context, contractID string, step int) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("contracts/%s/current-step", url.PathEscape(contractID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"step": step}, &resp)
	return resp, err
}

// Rollups returns the design revenue rollups.
func (c *Client) Rollups(ctx context.Context) (Rollups, error) {
	var resp Rollups
	err := c.do(ctx, http.MethodGet, "rollups", nil, &resp)
	return resp, err
}

// Timeline returns raw Gantt geometry for a phase.
func (c *Client) Timeline(ctx context.Context, phase string) (map[string]any, error) {
	endpoint := "timeline"
	if phase != "" {
		endpoint += "?phase=" + url.QueryEscape(phase)
	}
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
