// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Storage() StorageConfig
	Loop() LoopConfig
	Learner() LearnerConfig
	Mutation() MutationConfig
	History() HistoryConfig

	SetLoopMaxGenerations(int)
	SetLoopDelay(time.Duration)
	SetStorageDataDir(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	StorageCfg  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	LoopCfg     LoopConfig     `mapstructure:"loop" yaml:"loop"`
	LearnerCfg  LearnerConfig  `mapstructure:"learner" yaml:"learner"`
	MutationCfg MutationConfig `mapstructure:"mutation" yaml:"mutation"`
	HistoryCfg  HistoryConfig  `mapstructure:"history" yaml:"history"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Storage() StorageConfig   { return c.StorageCfg }
func (c *Config) Loop() LoopConfig         { return c.LoopCfg }
func (c *Config) Learner() LearnerConfig   { return c.LearnerCfg }
func (c *Config) Mutation() MutationConfig { return c.MutationCfg }
func (c *Config) History() HistoryConfig   { return c.HistoryCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetLoopMaxGenerations(n int)  { c.LoopCfg.MaxGenerations = n }
func (c *Config) SetLoopDelay(d time.Duration) { c.LoopCfg.Delay = d }
func (c *Config) SetStorageDataDir(dir string) { c.StorageCfg.DataDir = dir }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// StorageConfig locates the files shared between generations. Relative file names are
// resolved against DataDir.
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`
	StateFile      string `mapstructure:"state_file" yaml:"state_file"`
	JournalFile    string `mapstructure:"journal_file" yaml:"journal_file"`
	DefinitionFile string `mapstructure:"definition_file" yaml:"definition_file"`
	ArchiveDir     string `mapstructure:"archive_dir" yaml:"archive_dir"`
}

// LoopConfig tunes the generation orchestrator.
type LoopConfig struct {
	Threshold      float64       `mapstructure:"threshold" yaml:"threshold"`
	Delay          time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxGenerations int           `mapstructure:"max_generations" yaml:"max_generations"`
}

// LearnerConfig holds the knobs of the online learner and its synthetic target.
type LearnerConfig struct {
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size"`
	Steps           int     `mapstructure:"steps" yaml:"steps"`
	TargetA         float64 `mapstructure:"target_a" yaml:"target_a"`
	TargetB         float64 `mapstructure:"target_b" yaml:"target_b"`
	Noise           float64 `mapstructure:"noise" yaml:"noise"`
	InputRange      float64 `mapstructure:"input_range" yaml:"input_range"`
	WarmupSteps     int     `mapstructure:"warmup_steps" yaml:"warmup_steps"`
	WarmupBoost     float64 `mapstructure:"warmup_boost" yaml:"warmup_boost"`
	DecayHorizon    int     `mapstructure:"decay_horizon" yaml:"decay_horizon"`
	BaseLR          float64 `mapstructure:"base_lr" yaml:"base_lr"`
	ClipNorm        float64 `mapstructure:"clip_norm" yaml:"clip_norm"`
	ScoreSmooth     float64 `mapstructure:"score_smooth" yaml:"score_smooth"`
	InitWeightRange float64 `mapstructure:"init_weight_range" yaml:"init_weight_range"`
	InitBiasRange   float64 `mapstructure:"init_bias_range" yaml:"init_bias_range"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed"`
}

// MutationConfig controls which template the mutator installs and how it draws parameters.
type MutationConfig struct {
	Template     string `mapstructure:"template" yaml:"template"`
	StrategyName string `mapstructure:"strategy_name" yaml:"strategy_name"`
	LowMin       int    `mapstructure:"low_min" yaml:"low_min"`
	LowMax       int    `mapstructure:"low_max" yaml:"low_max"`
	HighMin      int    `mapstructure:"high_min" yaml:"high_min"`
	HighMax      int    `mapstructure:"high_max" yaml:"high_max"`
	Seed         uint64 `mapstructure:"seed" yaml:"seed"`
}

// HistoryConfig configures the journal viewer.
type HistoryConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aevum")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Storage --
	v.SetDefault("storage.data_dir", "memory")
	v.SetDefault("storage.state_file", "state.json")
	v.SetDefault("storage.journal_file", "memory.json")
	v.SetDefault("storage.definition_file", "brain.json")
	v.SetDefault("storage.archive_dir", "generations")

	// -- Loop --
	v.SetDefault("loop.threshold", 30.0)
	v.SetDefault("loop.delay", "2500ms")
	v.SetDefault("loop.max_generations", 0)

	// -- Learner --
	v.SetDefault("learner.batch_size", 32768)
	v.SetDefault("learner.steps", 3)
	v.SetDefault("learner.target_a", 3.0)
	v.SetDefault("learner.target_b", 7.0)
	v.SetDefault("learner.noise", 0.1)
	v.SetDefault("learner.input_range", 10.0)
	v.SetDefault("learner.warmup_steps", 100)
	v.SetDefault("learner.warmup_boost", 5.0)
	v.SetDefault("learner.decay_horizon", 1000)
	v.SetDefault("learner.base_lr", 0.01)
	v.SetDefault("learner.clip_norm", 5.0)
	v.SetDefault("learner.score_smooth", 0.5)
	v.SetDefault("learner.init_weight_range", 2.0)
	v.SetDefault("learner.init_bias_range", 1.0)
	v.SetDefault("learner.seed", 0)

	// -- Mutation --
	v.SetDefault("mutation.template", "random_curve")
	v.SetDefault("mutation.strategy_name", "random_curve")
	v.SetDefault("mutation.low_min", 20)
	v.SetDefault("mutation.low_max", 40)
	v.SetDefault("mutation.high_min", 60)
	v.SetDefault("mutation.high_max", 80)
	v.SetDefault("mutation.seed", 0)

	// -- History --
	v.SetDefault("history.limit", 25)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.StorageCfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand storage.data_dir: %w", err)
	}
	cfg.StorageCfg.DataDir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.StorageCfg.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if err := c.LoopCfg.Validate(); err != nil {
		return fmt.Errorf("loop configuration invalid: %w", err)
	}
	if err := c.LearnerCfg.Validate(); err != nil {
		return fmt.Errorf("learner configuration invalid: %w", err)
	}
	if err := c.MutationCfg.Validate(); err != nil {
		return fmt.Errorf("mutation configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the LoopConfig settings.
func (l *LoopConfig) Validate() error {
	if l.Threshold < 0 || l.Threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100")
	}
	if l.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	if l.MaxGenerations < 0 {
		return fmt.Errorf("max_generations must not be negative")
	}
	return nil
}

// Validate checks the LearnerConfig settings.
func (l *LearnerConfig) Validate() error {
	if l.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be a positive integer")
	}
	if l.Steps <= 0 {
		return fmt.Errorf("steps must be a positive integer")
	}
	if l.BaseLR <= 0 {
		return fmt.Errorf("base_lr must be positive")
	}
	if l.ClipNorm <= 0 {
		return fmt.Errorf("clip_norm must be positive")
	}
	if l.ScoreSmooth < 0 || l.ScoreSmooth > 1 {
		return fmt.Errorf("score_smooth must be between 0.0 and 1.0")
	}
	if l.Noise < 0 || l.InputRange <= 0 {
		return fmt.Errorf("noise must not be negative and input_range must be positive")
	}
	if l.WarmupSteps < 0 || l.DecayHorizon <= 0 {
		return fmt.Errorf("warmup_steps must not be negative and decay_horizon must be positive")
	}
	return nil
}

// Validate checks the MutationConfig settings.
func (m *MutationConfig) Validate() error {
	switch m.Template {
	case "random_curve", "affine_sgd":
	default:
		return fmt.Errorf("unknown template %q", m.Template)
	}
	if m.LowMin < 0 || m.HighMax > 100 {
		return fmt.Errorf("threshold ranges must lie within 0..100")
	}
	if m.LowMin > m.LowMax || m.HighMin > m.HighMax {
		return fmt.Errorf("threshold ranges must satisfy min <= max")
	}
	if m.LowMax > m.HighMin {
		return fmt.Errorf("low thresholds must not overlap high thresholds")
	}
	return nil
}

// Path resolves a storage file name against the data directory.
func (s StorageConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.DataDir, name)
}
