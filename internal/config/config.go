package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sitepulse/internal/progress"
)

// Config models sitepulse.yml.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Variance struct {
		SlackPercent int `yaml:"slack_percent"`
	} `yaml:"variance"`
	Design struct {
		RevenueFactor float64        `yaml:"revenue_factor"`
		Steps         []StepTemplate `yaml:"steps"`
	} `yaml:"design"`
	Bidding struct {
		Pipeline  `yaml:",inline"`
		FeeFactor float64          `yaml:"fee_factor"`
		Groups    map[string][]int `yaml:"groups"`
	} `yaml:"bidding"`
	Contract Pipeline `yaml:"contract"`
	Timeline struct {
		MarginBeforeMonths int     `yaml:"margin_before_months"`
		MarginAfterMonths  int     `yaml:"margin_after_months"`
		MinWidthPercent    float64 `yaml:"min_width_percent"`
	} `yaml:"timeline"`
	BusinessUnits map[string]string `yaml:"business_units"`
	Webhooks      []WebhookConfig   `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one notification target for API mutations.
// An empty Events list subscribes to every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// StepTemplate is one design pipeline step instantiated for new projects.
type StepTemplate struct {
	Position int     `yaml:"position"`
	Label    string  `yaml:"label"`
	Weight   float64 `yaml:"weight"`
}

// Pipeline describes an index-based phase. The step count is len(Steps).
type Pipeline struct {
	Steps         []string `yaml:"steps"`
	Backward      string   `yaml:"backward"`
	RevisionSteps []int    `yaml:"revision_steps"`
	AllowSkip     bool     `yaml:"allow_skip"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sp config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if c.Variance.SlackPercent < 0 || c.Variance.SlackPercent > 100 {
		return fmt.Errorf("config.variance.slack_percent must be within 0..100")
	}
	if c.Design.RevenueFactor < 0 {
		return fmt.Errorf("config.design.revenue_factor must not be negative")
	}
	if len(c.Design.Steps) == 0 {
		return fmt.Errorf("config.design.steps is required")
	}
	seen := map[int]bool{}
	for _, s := range c.Design.Steps {
		if s.Position < 1 {
			return fmt.Errorf("design step %q has position %d; positions start at 1", s.Label, s.Position)
		}
		if seen[s.Position] {
			return fmt.Errorf("design step position %d is duplicated", s.Position)
		}
		seen[s.Position] = true
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("design step %d has empty label", s.Position)
		}
	}
	// Board lanes and step lookups index by position.
	for pos := 1; pos <= len(c.Design.Steps); pos++ {
		if !seen[pos] {
			return fmt.Errorf("design step positions must run 1..%d without gaps; %d is missing", len(c.Design.Steps), pos)
		}
	}
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("config.design.steps: %w", err)
	}
	if err := c.Bidding.Pipeline.validate("bidding"); err != nil {
		return err
	}
	if c.Bidding.FeeFactor < 0 {
		return fmt.Errorf("config.bidding.fee_factor must not be negative")
	}
	for name, steps := range c.Bidding.Groups {
		if name == "" {
			return fmt.Errorf("config.bidding.groups has empty group name")
		}
		for _, s := range steps {
			if s < 1 || s > len(c.Bidding.Steps) {
				return fmt.Errorf("bidding group %s references unknown step %d", name, s)
			}
		}
	}
	if err := c.Contract.validate("contract"); err != nil {
		return err
	}
	if c.Timeline.MarginBeforeMonths < 0 || c.Timeline.MarginAfterMonths < 0 {
		return fmt.Errorf("config.timeline margins must not be negative")
	}
	if c.Timeline.MinWidthPercent < 0 || c.Timeline.MinWidthPercent > 100 {
		return fmt.Errorf("config.timeline.min_width_percent must be within 0..100")
	}
	for code := range c.BusinessUnits {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("config.business_units contains empty code")
		}
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (p Pipeline) validate(phase string) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("config.%s.steps is required", phase)
	}
	for i, label := range p.Steps {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%s step %d has empty label", phase, i+1)
		}
	}
	if _, err := progress.ParseBackwardPolicy(p.Backward); err != nil {
		return fmt.Errorf("config.%s.backward: %w", phase, err)
	}
	for _, s := range p.RevisionSteps {
		if s < 1 || s > len(p.Steps) {
			return fmt.Errorf("%s revision step %d out of range", phase, s)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sitepulse.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(workspaceID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Weights builds the design weight table from the step template.
func (c *Config) Weights() (progress.WeightTable, error) {
	m := make(map[int]float64, len(c.Design.Steps))
	for _, s := range c.Design.Steps {
		m[s.Position] = s.Weight
	}
	return progress.NewWeightTable(m)
}

// Aggregator wires the configured constants into the progress engine.
func (c *Config) Aggregator() (progress.Aggregator, error) {
	w, err := c.Weights()
	if err != nil {
		return progress.Aggregator{}, err
	}
	groups := make(map[string][]int, len(c.Bidding.Groups))
	for k, v := range c.Bidding.Groups {
		groups[k] = append([]int(nil), v...)
	}
	return progress.Aggregator{
		Calc:                progress.NewCalculator(c.Variance.SlackPercent),
		Weights:             w,
		DesignRevenueFactor: c.Design.RevenueFactor,
		BiddingSteps:        len(c.Bidding.Steps),
		ContractSteps:       len(c.Contract.Steps),
		BiddingFeeFactor:    c.Bidding.FeeFactor,
		BiddingGroups:       groups,
	}, nil
}

func (c *Config) BiddingPolicy() progress.MachinePolicy {
	return c.Bidding.Pipeline.policy(progress.PhaseBidding)
}

func (c *Config) ContractPolicy() progress.MachinePolicy {
	return c.Contract.policy(progress.PhaseContract)
}

func (p Pipeline) policy(phase string) progress.MachinePolicy {
	backward, _ := progress.ParseBackwardPolicy(p.Backward)
	return progress.MachinePolicy{
		Phase:         phase,
		TotalSteps:    len(p.Steps),
		Backward:      backward,
		RevisionSteps: append([]int(nil), p.RevisionSteps...),
		AllowSkip:     p.AllowSkip,
	}
}

func (c *Config) TimelineOptions() progress.TimelineOptions {
	return progress.TimelineOptions{
		MarginBeforeMonths: c.Timeline.MarginBeforeMonths,
		MarginAfterMonths:  c.Timeline.MarginAfterMonths,
		MinWidthPercent:    c.Timeline.MinWidthPercent,
	}
}

// DesignTemplate returns the pending pipeline for a newly created project.
func (c *Config) DesignTemplate() []progress.PipelineStep {
	out := make([]progress.PipelineStep, 0, len(c.Design.Steps))
	for _, s := range c.Design.Steps {
		out = append(out, progress.PipelineStep{Position: s.Position, Label: s.Label, Status: progress.StepPending})
	}
	return out
}

// DesignLabels lists design step labels in position order.
func (c *Config) DesignLabels() []string {
	steps := c.DesignTemplate()
	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })
	labels := make([]string, len(steps))
	for i, s := range steps {
		labels[i] = s.Label
	}
	return labels
}

const defaultTemplate = `workspace:
  id: %s

variance:
  slack_percent: 5

design:
  revenue_factor: 0.011
  steps:
    - {position: 1, label: "Project kickoff", weight: 0}
    - {position: 2, label: "Site layout", weight: 10}
    - {position: 3, label: "Schematic design", weight: 10}
    - {position: 4, label: "Permit drawings", weight: 40}
    - {position: 5, label: "Tender drawings", weight: 15}
    - {position: 6, label: "Bidding", weight: 15}
    - {position: 7, label: "Construction handoff", weight: 10}

bidding:
  fee_factor: 0.003
  backward: reject
  allow_skip: true
  revision_steps: [4]
  groups:
    revision: [4, 5]
    bidding: [6, 7]
  steps:
    - Receive drawings
    - Notify committee
    - Distribute drawings
    - Clarification
    - Receive revised drawings
    - Submit bids
    - Open bids
    - Negotiate
    - Approve award
    - Sign contract

contract:
  backward: reject
  allow_skip: true
  steps:
    - Receive bid documents
    - Committee drafts contract
    - Contractor signs
    - Committee signs
    - Contract complete

timeline:
  margin_before_months: 1
  margin_after_months: 2
  min_width_percent: 0.1

business_units:
  SW: Swine
  BR: Broiler
  LA: Layer
  FE: Feed
  FO: Food
  AQ: Aqua
  OT: Others
`
