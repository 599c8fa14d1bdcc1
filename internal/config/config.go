package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the pipeline. Loaded from YAML with
// environment overrides for credentials.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Paths      PathsConfig      `yaml:"paths"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Rules      RulesConfig      `yaml:"rules"`
	Publish    PublishConfig    `yaml:"publish"`
	Track      TrackConfig      `yaml:"track"`
}

// LogConfig controls the slog setup.
type LogConfig struct {
	Level string `yaml:"level"`
}

// PathsConfig locates inputs, outputs and prompt templates.
type PathsConfig struct {
	InputRoot     string `yaml:"input_root"`
	OutputRoot    string `yaml:"output_root"`
	PromptDir     string `yaml:"prompt_dir"`
	TranscriptDir string `yaml:"transcript_dir"`
}

// ProvidersConfig selects and parameterizes the generation service.
type ProvidersConfig struct {
	Default string                    `yaml:"default"`
	Table   map[string]ProviderConfig `yaml:"table"`
}

// ProviderConfig describes one generation-service endpoint. For the "vertex"
// provider Project/Region/Model apply; for OpenAI-compatible providers
// BaseURL/Model/APIKeyEnv apply.
type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Project           string  `yaml:"project"`
	Region            string  `yaml:"region"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	TransportAttempts int     `yaml:"transport_attempts"`
}

// Timeout returns the per-call gateway timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// APIKey resolves the provider credential from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// GenerationConfig tunes the validated generation loop.
type GenerationConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	OnExhausted    string `yaml:"on_exhausted"` // "return-last" or "fail"
	PacingMs       int    `yaml:"pacing_ms"`
	HistoryCeiling int    `yaml:"history_ceiling"`
	SessionCache   int    `yaml:"session_cache"`
}

// Pacing returns the fixed delay applied between semantic attempts.
func (g GenerationConfig) Pacing() time.Duration {
	return time.Duration(g.PacingMs) * time.Millisecond
}

// PipelineConfig tunes the two worker pools and the fan-out partitioner.
type PipelineConfig struct {
	Workers        int `yaml:"workers"`
	SubtaskWorkers int `yaml:"subtask_workers"`
	SubtaskPacing  int `yaml:"subtask_pacing_ms"`
	BatchThreshold int `yaml:"batch_threshold"`
}

// SubtaskDelay returns the pacing delay between sub-task submissions.
func (p PipelineConfig) SubtaskDelay() time.Duration {
	return time.Duration(p.SubtaskPacing) * time.Millisecond
}

// RulesConfig is the validator rule table. The business vocabulary lives here
// rather than in code.
type RulesConfig struct {
	SimilarityThreshold  float64             `yaml:"similarity_threshold"`
	ProcessWorkloadRatio float64             `yaml:"process_workload_ratio"`
	GroupWorkloadDivisor int                 `yaml:"group_workload_divisor"`
	DescLenMin           int                 `yaml:"desc_len_min"`
	DescLenMax           int                 `yaml:"desc_len_max"`
	AttrCountMin         int                 `yaml:"attr_count_min"`
	AttrCountMax         int                 `yaml:"attr_count_max"`
	RowTolerance         float64             `yaml:"row_tolerance"`
	Initiators           []string            `yaml:"initiators"`
	Receivers            []string            `yaml:"receivers"`
	ForbiddenWords       []string            `yaml:"forbidden_process_words"`
	ForbiddenPatterns    []string            `yaml:"forbidden_process_patterns"`
	Columns              []string            `yaml:"columns"`
	FixedColumns         map[string]string   `yaml:"fixed_columns"`
	QueryKeywords        []string            `yaml:"query_keywords"`
	TemplateVerbs        map[string][]string `yaml:"template_verbs"`
}

// PublishConfig enables mirroring of final deliverables to a GCS bucket.
type PublishConfig struct {
	Bucket string `yaml:"bucket"`
}

// TrackConfig enables the Firestore run-status tracker.
type TrackConfig struct {
	Project    string `yaml:"project"`
	Collection string `yaml:"collection"`
}

// ConfigurationError marks a setup problem that must be fixed before any
// network call is made.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return e.msg }

func confErrf(format string, args ...any) error {
	return &ConfigurationError{msg: "config: " + fmt.Sprintf(format, args...)}
}

// Load reads the YAML file at path and fills the gaps with defaults. An
// empty path yields the defaults. Callers validate after applying their own
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate fails fast on setups that would only surface mid-run.
func (c *Config) Validate() error {
	if c.Paths.InputRoot == "" || c.Paths.OutputRoot == "" {
		return confErrf("paths.input_root and paths.output_root must be set")
	}
	name := c.Providers.Default
	p, ok := c.Providers.Table[name]
	if !ok {
		return confErrf("unknown default provider %q", name)
	}
	if name == "vertex" {
		if p.Project == "" || p.Region == "" {
			return confErrf("vertex provider requires project and region")
		}
	} else if p.BaseURL == "" {
		return confErrf("provider %q requires base_url", name)
	}
	if p.Model == "" {
		return confErrf("provider %q requires a model name", name)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return confErrf("provider %q temperature must be in [0,2]", name)
	}
	switch c.Generation.OnExhausted {
	case "return-last", "fail":
	default:
		return confErrf("generation.on_exhausted must be return-last or fail, got %q", c.Generation.OnExhausted)
	}
	if c.Rules.SimilarityThreshold <= 0 || c.Rules.SimilarityThreshold > 1 {
		return confErrf("rules.similarity_threshold must be in (0,1]")
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Providers.Default == "" {
		c.Providers.Default = d.Providers.Default
	}
	if len(c.Providers.Table) == 0 {
		c.Providers.Table = d.Providers.Table
	}
	if c.Generation.MaxAttempts <= 0 {
		c.Generation.MaxAttempts = d.Generation.MaxAttempts
	}
	if c.Generation.OnExhausted == "" {
		c.Generation.OnExhausted = d.Generation.OnExhausted
	}
	if c.Generation.HistoryCeiling <= 0 {
		c.Generation.HistoryCeiling = d.Generation.HistoryCeiling
	}
	if c.Generation.SessionCache <= 0 {
		c.Generation.SessionCache = d.Generation.SessionCache
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = d.Pipeline.Workers
	}
	if c.Pipeline.SubtaskWorkers <= 0 {
		c.Pipeline.SubtaskWorkers = d.Pipeline.SubtaskWorkers
	}
	if c.Pipeline.BatchThreshold <= 0 {
		c.Pipeline.BatchThreshold = d.Pipeline.BatchThreshold
	}
	r := &c.Rules
	dr := d.Rules
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = dr.SimilarityThreshold
	}
	if r.ProcessWorkloadRatio == 0 {
		r.ProcessWorkloadRatio = dr.ProcessWorkloadRatio
	}
	if r.GroupWorkloadDivisor == 0 {
		r.GroupWorkloadDivisor = dr.GroupWorkloadDivisor
	}
	if r.DescLenMin == 0 {
		r.DescLenMin = dr.DescLenMin
	}
	if r.DescLenMax == 0 {
		r.DescLenMax = dr.DescLenMax
	}
	if r.AttrCountMin == 0 {
		r.AttrCountMin = dr.AttrCountMin
	}
	if r.AttrCountMax == 0 {
		r.AttrCountMax = dr.AttrCountMax
	}
	if r.RowTolerance == 0 {
		r.RowTolerance = dr.RowTolerance
	}
	if len(r.Initiators) == 0 {
		r.Initiators = dr.Initiators
	}
	if len(r.Receivers) == 0 {
		r.Receivers = dr.Receivers
	}
	if len(r.ForbiddenWords) == 0 {
		r.ForbiddenWords = dr.ForbiddenWords
	}
	if len(r.ForbiddenPatterns) == 0 {
		r.ForbiddenPatterns = dr.ForbiddenPatterns
	}
	if len(r.Columns) == 0 {
		r.Columns = dr.Columns
	}
	if len(r.FixedColumns) == 0 {
		r.FixedColumns = dr.FixedColumns
	}
	if len(r.QueryKeywords) == 0 {
		r.QueryKeywords = dr.QueryKeywords
	}
	if len(r.TemplateVerbs) == 0 {
		r.TemplateVerbs = dr.TemplateVerbs
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Providers: ProvidersConfig{
			Default: "aliyun",
			Table: map[string]ProviderConfig{
				"aliyun": {
					BaseURL:           "https://dashscope.aliyuncs.com/compatible-mode/v1",
					Model:             "qwen-plus",
					APIKeyEnv:         "DASHSCOPE_API_KEY",
					Temperature:       1.0,
					MaxTokens:         8192,
					TimeoutSeconds:    60,
					TransportAttempts: 3,
				},
				"vertex": {
					Project:           "",
					Region:            "us-central1",
					Model:             "gemini-1.5-pro",
					Temperature:       1.0,
					MaxTokens:         8192,
					TimeoutSeconds:    120,
					TransportAttempts: 3,
				},
			},
		},
		Generation: GenerationConfig{
			MaxAttempts:    5,
			OnExhausted:    "return-last",
			PacingMs:       500,
			HistoryCeiling: 8,
			SessionCache:   64,
		},
		Pipeline: PipelineConfig{
			Workers:        24,
			SubtaskWorkers: 8,
			SubtaskPacing:  3000,
			BatchThreshold: 20,
		},
		Rules: RulesConfig{
			SimilarityThreshold:  0.8,
			ProcessWorkloadRatio: 0.4,
			GroupWorkloadDivisor: 30,
			DescLenMin:           10,
			DescLenMax:           40,
			AttrCountMin:         3,
			AttrCountMax:         10,
			RowTolerance:         0.1,
			Initiators: []string{
				"Operator", "Customer Portal", "Order Center", "Billing Center",
				"Catalog Center", "Background Process", "Platform Core", "Mobile Client",
			},
			Receivers: []string{
				"Customer Portal", "Order Center", "Billing Center",
				"Catalog Center", "Background Process", "Platform Core",
			},
			ForbiddenWords: []string{
				"load", "parse", "initialize", "click", "page", "render",
				"switch", "calculate", "reset", "paginate", "sort", "adapt",
				"deploy", "migrate", "install", "cache", "validate", "verify",
				"check whether", "determine whether", "assemble message",
				"build message", "temp table", "in-memory", "database read",
				"interface call", "interface return",
			},
			ForbiddenPatterns: []string{
				`(?i)\blog(?:s|ging)? the\b`,
				`(?i)\brecord .* log\b`,
				`(?i)\bwrite .* log\b`,
			},
			Columns: []string{
				"Customer Requirement", "Functional User", "Functional User Requirement",
				"Triggering Event", "Functional Process", "Subprocess Description",
				"Data Movement Type", "Data Group", "Data Attributes",
				"Reuse", "CFP", "Sum CFP",
			},
			FixedColumns: map[string]string{
				"Reuse":   "New",
				"CFP":     "1",
				"Sum CFP": "1",
			},
			QueryKeywords: []string{"query", "view", "fetch", "display"},
			TemplateVerbs: map[string][]string{
				"E": {"receive"},
				"R": {"read"},
				"W": {"save", "update", "delete"},
				"X": {"return", "output", "send"},
			},
		},
	}
}
