package config

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Knowledge KnowledgeConfig `yaml:"knowledge" mapstructure:"knowledge"`
	AI        AIConfig        `yaml:"ai" mapstructure:"ai"`
	Fusion    FusionConfig    `yaml:"fusion" mapstructure:"fusion"`
	Vitals    VitalsConfig    `yaml:"vitals" mapstructure:"vitals"`
	VPP       VPPConfig       `yaml:"vpp" mapstructure:"vpp"`
	Fairness  FairnessConfig  `yaml:"fairness" mapstructure:"fairness"`
	Feedback  FeedbackConfig  `yaml:"feedback" mapstructure:"feedback"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the decision-record database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KnowledgeConfig locates the clinical-protocol knowledge base produced by
// the external ETL.
type KnowledgeConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AIConfig configures the external AI classifier.
type AIConfig struct {
	// Provider selects the backend: "medgemma" (HTTP contract) or
	// "anthropic". Empty disables the AI path entirely.
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// Timeout returns the bounded-time contract for one AI call.
func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FusionConfig holds the opinion-fusion weights and discordance penalties.
type FusionConfig struct {
	RuleWeight float64 `yaml:"rule_weight" mapstructure:"rule_weight"`
	AIWeight   float64 `yaml:"ai_weight" mapstructure:"ai_weight"`
	// DistancePenalty discounts the blended confidence per level of
	// discordance on minor disagreement.
	DistancePenalty float64 `yaml:"distance_penalty" mapstructure:"distance_penalty"`
	// MajorDiscordanceFactor scales the minimum confidence on major
	// disagreement (distance >= ReviewDistance).
	MajorDiscordanceFactor float64 `yaml:"major_discordance_factor" mapstructure:"major_discordance_factor"`
	// ReviewDistance is the ordinal distance at which human review
	// becomes mandatory.
	ReviewDistance int `yaml:"review_distance" mapstructure:"review_distance"`
}

// VitalsConfig holds the override thresholds. Readings beyond any critical
// threshold force escalation to the most urgent code.
type VitalsConfig struct {
	TachycardiaHR    int     `yaml:"tachycardia_hr" mapstructure:"tachycardia_hr"`
	BradycardiaHR    int     `yaml:"bradycardia_hr" mapstructure:"bradycardia_hr"`
	HypoxiaSpO2      float64 `yaml:"hypoxia_spo2" mapstructure:"hypoxia_spo2"`
	HypotensionSBP   int     `yaml:"hypotension_sbp" mapstructure:"hypotension_sbp"`
	HyperthermiaTemp float64 `yaml:"hyperthermia_temp" mapstructure:"hyperthermia_temp"`
}

// VPPConfig holds the diversion eligibility criteria and impact model.
type VPPConfig struct {
	MaxComorbidityFlags  int `yaml:"max_comorbidity_flags" mapstructure:"max_comorbidity_flags"`
	MinWaitToleranceMins int `yaml:"min_wait_tolerance_mins" mapstructure:"min_wait_tolerance_mins"`
	WaitMinutesMin       int `yaml:"wait_minutes_min" mapstructure:"wait_minutes_min"`
	WaitMinutesMax       int `yaml:"wait_minutes_max" mapstructure:"wait_minutes_max"`
	// AvgMinutesSaved is the fixed per-case model of critical-track time
	// freed by a diversion, used for daily capacity aggregation.
	AvgMinutesSaved float64 `yaml:"avg_minutes_saved" mapstructure:"avg_minutes_saved"`
}

// FairnessConfig configures the batch disparity audit.
type FairnessConfig struct {
	// DisparityThreshold is the max-min rate gap (as a fraction) for the
	// most-urgent code above which a disparity is flagged.
	DisparityThreshold float64 `yaml:"disparity_threshold" mapstructure:"disparity_threshold"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	MinGroupSize       int     `yaml:"min_group_size" mapstructure:"min_group_size"`
	// WebhookURL receives disparity alerts. Empty disables delivery;
	// disparities are still logged and reported.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// FeedbackConfig configures the continuous-feedback retraining trigger.
type FeedbackConfig struct {
	BufferSize        int     `yaml:"buffer_size" mapstructure:"buffer_size"`
	MinAccuracy       float64 `yaml:"min_accuracy" mapstructure:"min_accuracy"`
	MinSensitivity    float64 `yaml:"min_sensitivity" mapstructure:"min_sensitivity"`
	MinSpecificity    float64 `yaml:"min_specificity" mapstructure:"min_specificity"`
	RetrainTimeoutMin int     `yaml:"retrain_timeout_min" mapstructure:"retrain_timeout_min"`
}

// ServerConfig configures the REST facade.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment and validates it.
// Validation failures here are fatal by design: a misconfigured fusion
// policy must never classify a case.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "orion.db")
	v.SetDefault("knowledge.path", "data/knowledge")
	v.SetDefault("ai.provider", "medgemma")
	v.SetDefault("ai.timeout_secs", 10)
	v.SetDefault("ai.rate_per_sec", 5.0)
	v.SetDefault("ai.rate_burst", 10)
	v.SetDefault("fusion.rule_weight", 0.5)
	v.SetDefault("fusion.ai_weight", 0.5)
	v.SetDefault("fusion.distance_penalty", 0.1)
	v.SetDefault("fusion.major_discordance_factor", 0.7)
	v.SetDefault("fusion.review_distance", 2)
	v.SetDefault("vitals.tachycardia_hr", 120)
	v.SetDefault("vitals.bradycardia_hr", 40)
	v.SetDefault("vitals.hypoxia_spo2", 90.0)
	v.SetDefault("vitals.hypotension_sbp", 90)
	v.SetDefault("vitals.hyperthermia_temp", 40.0)
	v.SetDefault("vpp.max_comorbidity_flags", 0)
	v.SetDefault("vpp.min_wait_tolerance_mins", 60)
	v.SetDefault("vpp.wait_minutes_min", 30)
	v.SetDefault("vpp.wait_minutes_max", 120)
	v.SetDefault("vpp.avg_minutes_saved", 25.0)
	v.SetDefault("fairness.disparity_threshold", 0.10)
	v.SetDefault("fairness.lookback_hours", 168)
	v.SetDefault("fairness.min_group_size", 10)
	v.SetDefault("feedback.buffer_size", 100)
	v.SetDefault("feedback.min_accuracy", 0.85)
	v.SetDefault("feedback.min_sensitivity", 0.90)
	v.SetDefault("feedback.min_specificity", 0.80)
	v.SetDefault("feedback.retrain_timeout_min", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the configuration invariants. Weights that do not sum
// to exactly 1.0 are rejected, never renormalized.
func (c *Config) Validate() error {
	sum := c.Fusion.RuleWeight + c.Fusion.AIWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("config: fusion weights must sum to 1.0, got %.4f", sum)
	}
	if c.Fusion.RuleWeight < 0 || c.Fusion.AIWeight < 0 {
		return eris.New("config: fusion weights must be non-negative")
	}
	if c.Fusion.DistancePenalty < 0 || c.Fusion.DistancePenalty >= 1 {
		return eris.Errorf("config: distance penalty must be in [0,1), got %.2f", c.Fusion.DistancePenalty)
	}
	if c.Fusion.MajorDiscordanceFactor <= 0 || c.Fusion.MajorDiscordanceFactor > 1 {
		return eris.Errorf("config: major discordance factor must be in (0,1], got %.2f", c.Fusion.MajorDiscordanceFactor)
	}
	if c.Fusion.ReviewDistance < 1 {
		return eris.Errorf("config: review distance must be >= 1, got %d", c.Fusion.ReviewDistance)
	}
	if c.Fairness.DisparityThreshold <= 0 || c.Fairness.DisparityThreshold >= 1 {
		return eris.Errorf("config: fairness disparity threshold must be in (0,1), got %.2f", c.Fairness.DisparityThreshold)
	}
	if c.Feedback.BufferSize < 1 {
		return eris.Errorf("config: feedback buffer size must be >= 1, got %d", c.Feedback.BufferSize)
	}
	for name, target := range map[string]float64{
		"min_accuracy":    c.Feedback.MinAccuracy,
		"min_sensitivity": c.Feedback.MinSensitivity,
		"min_specificity": c.Feedback.MinSpecificity,
	} {
		if target < 0 || target > 1 {
			return eris.Errorf("config: feedback %s must be in [0,1], got %.2f", name, target)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
