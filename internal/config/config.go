package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

// Composite score weighting defaults. Pass rate dominates; errors are
// penalized through the non-error share.
const (
	DefaultPassRateWeight     = 0.5
	DefaultMeanScoreWeight    = 0.3
	DefaultErrorPenaltyWeight = 0.2
)

const (
	DefaultAlpha      = 0.05
	DefaultMinSamples = 5
)

type Config struct {
	Judge      JudgeConfig      `yaml:"judge"`
	Agent      AgentConfig      `yaml:"agent"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Comparison ComparisonConfig `yaml:"comparison"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
}

// JudgeConfig selects and configures the judge LLM providers.
type JudgeConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// Duration decodes YAML scalars like "30s" or "5m" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: invalid duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AgentConfig configures live-data mode: turn responses are fetched from a
// running agent endpoint before evaluation.
type AgentConfig struct {
	Enabled  bool     `yaml:"enabled"`
	APIBase  string   `yaml:"api_base,omitempty"`
	Provider string   `yaml:"provider,omitempty"`
	Model    string   `yaml:"model,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// MetricSetting is the system-level configuration for one metric.
type MetricSetting struct {
	Default   bool     `yaml:"default"`
	Threshold *float64 `yaml:"threshold,omitempty"`
}

type EvaluationConfig struct {
	SkipOnFailure bool     `yaml:"skip_on_failure"`
	Threads       int      `yaml:"threads,omitempty"` // intra-run evaluation budget
	Workers       int      `yaml:"workers,omitempty"` // cross-run sweep budget
	ScriptTimeout Duration `yaml:"script_timeout,omitempty"`

	// Per-scope system metric settings, keyed by "framework:name".
	TurnMetrics         map[string]MetricSetting `yaml:"turn_metrics,omitempty"`
	ConversationMetrics map[string]MetricSetting `yaml:"conversation_metrics,omitempty"`
}

type ComparisonConfig struct {
	Alpha      float64  `yaml:"alpha,omitempty"`
	MinSamples int      `yaml:"min_samples,omitempty"`
	Weights    *Weights `yaml:"weights,omitempty"`
}

// Weights configures the composite ranking score.
type Weights struct {
	PassRate     float64 `yaml:"pass_rate"`
	MeanScore    float64 `yaml:"mean_score"`
	ErrorPenalty float64 `yaml:"error_penalty"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir,omitempty"`
	Formats []string `yaml:"formats,omitempty"` // csv, json
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"`
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Judge.Providers == nil {
		c.Judge.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(c.Judge.DefaultProvider) == "" {
		c.Judge.DefaultProvider = "openai"
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := c.Judge.Providers["anthropic"]
		p.APIKey = v
		c.Judge.Providers["anthropic"] = p
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := c.Judge.Providers["openai"]
		p.APIKey = v
		c.Judge.Providers["openai"] = p
	}

	if c.Evaluation.Threads <= 0 {
		c.Evaluation.Threads = 1
	}
	if c.Evaluation.Workers <= 0 {
		c.Evaluation.Workers = 1
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = Duration(300 * time.Second)
	}
	if c.Comparison.Alpha <= 0 {
		c.Comparison.Alpha = DefaultAlpha
	}
	if c.Comparison.MinSamples <= 0 {
		c.Comparison.MinSamples = DefaultMinSamples
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = "./eval_output"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"csv", "json"}
	}
}

// Validate rejects configurations that would make a run undefined.
func (c *Config) Validate() error {
	if c.Comparison.Alpha >= 1 {
		return fmt.Errorf("config: alpha must be in (0, 1), got %v", c.Comparison.Alpha)
	}
	if w := c.Comparison.Weights; w != nil {
		sum := w.PassRate + w.MeanScore + w.ErrorPenalty
		if sum <= 0 {
			return fmt.Errorf("config: comparison weights must sum to a positive value")
		}
	}
	if c.Agent.Enabled && strings.TrimSpace(c.Agent.APIBase) == "" {
		return fmt.Errorf("config: agent.api_base required when agent.enabled")
	}
	for _, f := range c.Output.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "csv", "json":
		default:
			return fmt.Errorf("config: unsupported output format %q", f)
		}
	}
	return nil
}

// SystemThresholds flattens the per-scope metric settings into the
// threshold override map the resolution engine consumes.
func SystemThresholds(settings map[string]MetricSetting) map[string]float64 {
	if len(settings) == 0 {
		return nil
	}
	out := make(map[string]float64, len(settings))
	for id, s := range settings {
		if s.Threshold != nil {
			out[id] = *s.Threshold
		}
	}
	return out
}
