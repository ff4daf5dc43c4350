// Package config provides the Config struct and loader for .mockview.yaml
// project-level configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".mockview.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultOutputDir   = "reports/"
	DefaultSessionsDir = ".mockview/sessions"
	DefaultCacheDir    = ".mockview-cache"

	DefaultDebounce              = 700 * time.Millisecond
	DefaultConfirmation          = 600 * time.Millisecond
	DefaultFillerExtension       = 400 * time.Millisecond
	DefaultCeiling               = 45 * time.Second
	DefaultMinFragmentConfidence = 0.3

	DefaultVaguenessThreshold     = 0.5
	DefaultGapThreshold           = 0.4
	DefaultOffTopicThreshold      = 0.2
	DefaultMaxDepth               = 2
	DefaultTurnBudget             = 12
	DefaultTimeBudget             = 30 * time.Minute
	DefaultMaxConsecutiveFailures = 3

	DefaultMinMentionConfidence = 0.35
	DefaultMinTopics            = 3
	DefaultMaxTopics            = 12

	DefaultGeneratorProvider = "template"
	DefaultScorerProvider    = "heuristic"
	DefaultGeneratorTimeout  = 8 * time.Second
	DefaultScorerTimeout     = 10 * time.Second
	DefaultRetryBackoff      = 250 * time.Millisecond
	DefaultFallbackCacheSize = 64

	DefaultStoreKind = "file"
	DefaultStoreTTL  = 7 * 24 * time.Hour
)

// Duration is a time.Duration that reads Go duration strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PathsConfig holds output directories.
type PathsConfig struct {
	Output   string `yaml:"output,omitempty"`
	Sessions string `yaml:"sessions,omitempty"`
}

// TimingConfig holds turn-taking windows.
type TimingConfig struct {
	Debounce              Duration `yaml:"debounce,omitempty"`
	Confirmation          Duration `yaml:"confirmation,omitempty"`
	FillerExtension       Duration `yaml:"filler_extension,omitempty"`
	Ceiling               Duration `yaml:"ceiling,omitempty"`
	MinFragmentConfidence float64  `yaml:"min_fragment_confidence,omitempty"`
}

// PolicyConfig holds dialogue policy and scoring thresholds.
type PolicyConfig struct {
	VaguenessThreshold     float64  `yaml:"vagueness_threshold,omitempty"`
	GapThreshold           float64  `yaml:"gap_threshold,omitempty"`
	OffTopicThreshold      float64  `yaml:"off_topic_threshold,omitempty"`
	MaxDepth               *int     `yaml:"max_depth,omitempty"`
	TurnBudget             int      `yaml:"turn_budget,omitempty"`
	TimeBudget             Duration `yaml:"time_budget,omitempty"`
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures,omitempty"`
}

// SynthesisConfig holds context synthesis settings.
type SynthesisConfig struct {
	MinConfidence float64           `yaml:"min_confidence,omitempty"`
	MinTopics     int               `yaml:"min_topics,omitempty"`
	MaxTopics     int               `yaml:"max_topics,omitempty"`
	Aliases       map[string]string `yaml:"aliases,omitempty"`
}

// BackendConfig selects and configures a capability provider. Params are
// provider specific and decoded by the provider.
type BackendConfig struct {
	Provider string         `yaml:"provider,omitempty"`
	Model    string         `yaml:"model,omitempty"`
	Timeout  Duration       `yaml:"timeout,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// BackendsConfig holds generation and scoring backends.
type BackendsConfig struct {
	Generator         BackendConfig `yaml:"generator,omitempty"`
	Scorer            BackendConfig `yaml:"scorer,omitempty"`
	RetryBackoff      Duration      `yaml:"retry_backoff,omitempty"`
	FallbackCacheSize int           `yaml:"fallback_cache_size,omitempty"`
}

// CacheConfig holds context profile cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// StoreConfig selects where sessions and reports are archived.
type StoreConfig struct {
	Kind     string   `yaml:"kind,omitempty"`
	RedisURL string   `yaml:"redis_url,omitempty"`
	TTL      Duration `yaml:"ttl,omitempty"`
}

// ExportConfig holds optional remote report export settings.
type ExportConfig struct {
	AzureAccountURL string `yaml:"azure_account_url,omitempty"`
	AzureContainer  string `yaml:"azure_container,omitempty"`
}

// Config is the top-level configuration loaded from .mockview.yaml.
type Config struct {
	Paths      PathsConfig     `yaml:"paths,omitempty"`
	Timing     TimingConfig    `yaml:"timing,omitempty"`
	Policy     PolicyConfig    `yaml:"policy,omitempty"`
	Synthesis  SynthesisConfig `yaml:"synthesis,omitempty"`
	Backends   BackendsConfig  `yaml:"backends,omitempty"`
	Cache      CacheConfig     `yaml:"cache,omitempty"`
	Store      StoreConfig     `yaml:"store,omitempty"`
	Export     ExportConfig    `yaml:"export,omitempty"`
	SessionLog *bool           `yaml:"session_log,omitempty"`
}

// New returns a Config with all hard-coded defaults populated.
func New() *Config {
	return &Config{
		Paths: PathsConfig{
			Output:   DefaultOutputDir,
			Sessions: DefaultSessionsDir,
		},
		Timing: TimingConfig{
			Debounce:              Duration(DefaultDebounce),
			Confirmation:          Duration(DefaultConfirmation),
			FillerExtension:       Duration(DefaultFillerExtension),
			Ceiling:               Duration(DefaultCeiling),
			MinFragmentConfidence: DefaultMinFragmentConfidence,
		},
		Policy: PolicyConfig{
			VaguenessThreshold:     DefaultVaguenessThreshold,
			GapThreshold:           DefaultGapThreshold,
			OffTopicThreshold:      DefaultOffTopicThreshold,
			MaxDepth:               intPtr(DefaultMaxDepth),
			TurnBudget:             DefaultTurnBudget,
			TimeBudget:             Duration(DefaultTimeBudget),
			MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		},
		Synthesis: SynthesisConfig{
			MinConfidence: DefaultMinMentionConfidence,
			MinTopics:     DefaultMinTopics,
			MaxTopics:     DefaultMaxTopics,
		},
		Backends: BackendsConfig{
			Generator: BackendConfig{
				Provider: DefaultGeneratorProvider,
				Timeout:  Duration(DefaultGeneratorTimeout),
			},
			Scorer: BackendConfig{
				Provider: DefaultScorerProvider,
				Timeout:  Duration(DefaultScorerTimeout),
			},
			RetryBackoff:      Duration(DefaultRetryBackoff),
			FallbackCacheSize: DefaultFallbackCacheSize,
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
		Store: StoreConfig{
			Kind: DefaultStoreKind,
			TTL:  Duration(DefaultStoreTTL),
		},
		SessionLog: boolPtr(false),
	}
}

// Load finds .mockview.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*Config, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"policy.vagueness_threshold":     c.Policy.VaguenessThreshold,
		"policy.gap_threshold":           c.Policy.GapThreshold,
		"policy.off_topic_threshold":     c.Policy.OffTopicThreshold,
		"synthesis.min_confidence":       c.Synthesis.MinConfidence,
		"timing.min_fragment_confidence": c.Timing.MinFragmentConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Policy.MaxDepth != nil && *c.Policy.MaxDepth < 0 {
		return fmt.Errorf("policy.max_depth must not be negative")
	}
	if c.Synthesis.MaxTopics < c.Synthesis.MinTopics {
		return fmt.Errorf("synthesis.max_topics (%d) is below synthesis.min_topics (%d)", c.Synthesis.MaxTopics, c.Synthesis.MinTopics)
	}
	if c.Timing.Ceiling.Std() <= c.Timing.Debounce.Std()+c.Timing.Confirmation.Std() {
		return fmt.Errorf("timing.ceiling must exceed debounce plus confirmation")
	}
	switch c.Store.Kind {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	return nil
}

// findConfigFile walks up from dir looking for .mockview.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *Config) {
	// Paths
	setString(&dst.Paths.Output, src.Paths.Output)
	setString(&dst.Paths.Sessions, src.Paths.Sessions)

	// Timing
	setDuration(&dst.Timing.Debounce, src.Timing.Debounce)
	setDuration(&dst.Timing.Confirmation, src.Timing.Confirmation)
	setDuration(&dst.Timing.FillerExtension, src.Timing.FillerExtension)
	setDuration(&dst.Timing.Ceiling, src.Timing.Ceiling)
	setFloat(&dst.Timing.MinFragmentConfidence, src.Timing.MinFragmentConfidence)

	// Policy
	setFloat(&dst.Policy.VaguenessThreshold, src.Policy.VaguenessThreshold)
	setFloat(&dst.Policy.GapThreshold, src.Policy.GapThreshold)
	setFloat(&dst.Policy.OffTopicThreshold, src.Policy.OffTopicThreshold)
	if src.Policy.MaxDepth != nil {
		dst.Policy.MaxDepth = src.Policy.MaxDepth
	}
	setInt(&dst.Policy.TurnBudget, src.Policy.TurnBudget)
	setDuration(&dst.Policy.TimeBudget, src.Policy.TimeBudget)
	setInt(&dst.Policy.MaxConsecutiveFailures, src.Policy.MaxConsecutiveFailures)

	// Synthesis
	setFloat(&dst.Synthesis.MinConfidence, src.Synthesis.MinConfidence)
	setInt(&dst.Synthesis.MinTopics, src.Synthesis.MinTopics)
	setInt(&dst.Synthesis.MaxTopics, src.Synthesis.MaxTopics)
	if len(src.Synthesis.Aliases) > 0 {
		dst.Synthesis.Aliases = src.Synthesis.Aliases
	}

	// Backends
	mergeBackend(&dst.Backends.Generator, src.Backends.Generator)
	mergeBackend(&dst.Backends.Scorer, src.Backends.Scorer)
	setDuration(&dst.Backends.RetryBackoff, src.Backends.RetryBackoff)
	setInt(&dst.Backends.FallbackCacheSize, src.Backends.FallbackCacheSize)

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	setString(&dst.Cache.Dir, src.Cache.Dir)

	// Store
	setString(&dst.Store.Kind, src.Store.Kind)
	setString(&dst.Store.RedisURL, src.Store.RedisURL)
	setDuration(&dst.Store.TTL, src.Store.TTL)

	// Export
	setString(&dst.Export.AzureAccountURL, src.Export.AzureAccountURL)
	setString(&dst.Export.AzureContainer, src.Export.AzureContainer)

	if src.SessionLog != nil {
		dst.SessionLog = src.SessionLog
	}
}

func mergeBackend(dst *BackendConfig, src BackendConfig) {
	if src.Provider != "" && src.Provider != dst.Provider {
		// params of the default provider do not carry over
		dst.Params = nil
	}
	setString(&dst.Provider, src.Provider)
	setString(&dst.Model, src.Model)
	setDuration(&dst.Timeout, src.Timeout)
	if len(src.Params) > 0 {
		dst.Params = src.Params
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *Duration, v Duration) {
	if v != 0 {
		*dst = v
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}
