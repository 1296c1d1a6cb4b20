package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/progress"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("ws-1")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws-1", cfg.Workspace.ID)
	assert.Equal(t, 5, cfg.Variance.SlackPercent)
	assert.Len(t, cfg.Bidding.Steps, 10)
	assert.Len(t, cfg.Contract.Steps, 5)
	assert.Equal(t, "Others", cfg.BusinessUnits["OT"])

	agg, err := cfg.Aggregator()
	require.NoError(t, err)
	assert.Equal(t, 10, agg.BiddingSteps)
	assert.Equal(t, 5, agg.ContractSteps)
	assert.InDelta(t, 0.011, agg.DesignRevenueFactor, 1e-12)
	assert.InDelta(t, 0.003, agg.BiddingFeeFactor, 1e-12)
	assert.InDelta(t, 100, agg.Weights.Sum(), 1e-9)
	assert.Equal(t, []int{4, 5}, agg.BiddingGroups["revision"])

	p := cfg.BiddingPolicy()
	assert.Equal(t, progress.BackwardReject, p.Backward)
	assert.Equal(t, []int{4}, p.RevisionSteps)
	assert.True(t, p.AllowSkip)

	assert.Equal(t, progress.DefaultTimelineOptions(), cfg.TimelineOptions())
	assert.Equal(t, "Project kickoff", cfg.DesignLabels()[0])
	assert.Len(t, cfg.DesignTemplate(), 7)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default("ws")
	cfg.Design.Steps[3].Weight = 10
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, progress.ErrWeightSum)
}

func TestValidateRejectsBadPipelines(t *testing.T) {
	cases := map[string]func(*Config){
		"duplicate position": func(c *Config) { c.Design.Steps[1].Position = 1 },
		"position gap":       func(c *Config) { c.Design.Steps[6].Position = 70 },
		"empty workspace":    func(c *Config) { c.Workspace.ID = "" },
		"bad policy":         func(c *Config) { c.Contract.Backward = "sometimes" },
		"revision range":     func(c *Config) { c.Bidding.RevisionSteps = []int{11} },
		"group range":        func(c *Config) { c.Bidding.Groups["x"] = []int{0} },
		"no contract steps":  func(c *Config) { c.Contract.Steps = nil },
		"negative slack":     func(c *Config) { c.Variance.SlackPercent = -1 },
		"negative fee":       func(c *Config) { c.Bidding.FeeFactor = -0.1 },
		"negative margin":    func(c *Config) { c.Timeline.MarginAfterMonths = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default("ws")
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromYAMLAndLoad(t *testing.T) {
	_, err := FromYAML([]byte("workspace: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config yaml")

	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(dir)
	require.Error(t, err)

	custom := strings.Replace(GenerateDefault("ws-2"), "slack_percent: 5", "slack_percent: 10", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitepulse.yml"), []byte(custom), 0o644))

	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Variance.SlackPercent)
	assert.Equal(t, "ws-2", cfg.Workspace.ID)

	data, err := cfg.YAML()
	require.NoError(t, err)
	again, err := FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Bidding.Steps, again.Bidding.Steps)
	assert.Equal(t, cfg.Design.Steps, again.Design.Steps)
	assert.Equal(t, cfg.Variance, again.Variance)
}

func TestWebhookValidation(t *testing.T) {
	cfg := Default("ws")
	off := false
	cfg.Webhooks = []WebhookConfig{
		{URL: "https://hooks.example.com/sitepulse", Events: []string{"step.completed"}},
		{URL: "http://10.0.0.1:9000/x", Enabled: &off},
	}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Webhooks[0].Active())
	assert.False(t, cfg.Webhooks[1].Active())

	data, err := cfg.YAML()
	require.NoError(t, err)
	again, err := FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Webhooks[0], again.Webhooks[0])

	cfg.Webhooks = []WebhookConfig{{URL: "ftp://example.com"}}
	assert.Error(t, cfg.Validate())
	cfg.Webhooks = []WebhookConfig{{URL: "https://example.com", TimeoutSeconds: -1}}
	assert.Error(t, cfg.Validate())
}
