package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Fusion: FusionConfig{
			RuleWeight:             0.5,
			AIWeight:               0.5,
			DistancePenalty:        0.1,
			MajorDiscordanceFactor: 0.7,
			ReviewDistance:         2,
		},
		Fairness: FairnessConfig{DisparityThreshold: 0.10, LookbackHours: 168, MinGroupSize: 10},
		Feedback: FeedbackConfig{BufferSize: 100, MinAccuracy: 0.85, MinSensitivity: 0.90, MinSpecificity: 0.80},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.5, cfg.Fusion.RuleWeight)
	assert.Equal(t, 0.5, cfg.Fusion.AIWeight)
	assert.Equal(t, 2, cfg.Fusion.ReviewDistance)
	assert.Equal(t, 0.10, cfg.Fairness.DisparityThreshold)
	assert.Equal(t, 100, cfg.Feedback.BufferSize)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORION_STORE_DRIVER", "postgres")
	t.Setenv("ORION_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	t.Setenv("ORION_FUSION_RULE_WEIGHT", "0.6")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidateWeights(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.Fusion.RuleWeight = 0.7
	err := cfg.Validate()
	require.Error(t, err, "weights must never be renormalized")
	assert.Contains(t, err.Error(), "sum to 1.0")

	cfg.Fusion.RuleWeight = -0.5
	cfg.Fusion.AIWeight = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"distance penalty too high", func(c *Config) { c.Fusion.DistancePenalty = 1.0 }},
		{"negative distance penalty", func(c *Config) { c.Fusion.DistancePenalty = -0.1 }},
		{"zero discordance factor", func(c *Config) { c.Fusion.MajorDiscordanceFactor = 0 }},
		{"review distance zero", func(c *Config) { c.Fusion.ReviewDistance = 0 }},
		{"disparity threshold zero", func(c *Config) { c.Fairness.DisparityThreshold = 0 }},
		{"disparity threshold one", func(c *Config) { c.Fairness.DisparityThreshold = 1.0 }},
		{"buffer size zero", func(c *Config) { c.Feedback.BufferSize = 0 }},
		{"accuracy above one", func(c *Config) { c.Feedback.MinAccuracy = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAITimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, AIConfig{}.Timeout())
	assert.Equal(t, 3*time.Second, AIConfig{TimeoutSecs: 3}.Timeout())
}
