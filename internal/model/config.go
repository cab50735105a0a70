package model

import (
	"runtime"
	"time"
)

// Config holds all runtime settings
type Config struct {
	Rulespec   RulespecConfig   `yaml:"rulespec" mapstructure:"rulespec"`
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Token      TokenConfig      `yaml:"token" mapstructure:"token"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// RulespecConfig controls where rulespecs are read from
type RulespecConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`                 // Relative to the working directory
	SchemaCheck bool   `yaml:"schema_check" mapstructure:"schema_check"` // Validate document shape before compiling
}

// EvaluationConfig controls predicate evaluation
type EvaluationConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"` // 1 evaluates sequentially
}

// OutputConfig controls generated artifacts
type OutputConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	ProgramFile string `yaml:"program_file" mapstructure:"program_file"`
	TraceFile   string `yaml:"trace_file" mapstructure:"trace_file"`
	JSON        string `yaml:"json" mapstructure:"json"`
	Markdown    string `yaml:"markdown" mapstructure:"markdown"`
	Verbose     bool   `yaml:"verbose" mapstructure:"verbose"`
}

// TokenConfig controls envelope stamping
type TokenConfig struct {
	KeyPath string `yaml:"key_path" mapstructure:"key_path"` // Empty means ~/.invariant/verification.key
	Stamp   bool   `yaml:"stamp" mapstructure:"stamp"`
}

// CacheConfig controls the parsed selector and pattern caches
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// WatchConfig throttles re-verification in watch mode
type WatchConfig struct {
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	Burst       int           `yaml:"burst" mapstructure:"burst"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Rulespec: RulespecConfig{
			Path:        "analysis/rulespec.yaml",
			SchemaCheck: true,
		},
		Evaluation: EvaluationConfig{
			Workers: runtime.NumCPU(),
		},
		Output: OutputConfig{
			Dir:         ".",
			ProgramFile: "rulespec.compiled.dl",
			TraceFile:   "datalog_evaluation.txt",
		},
		Token: TokenConfig{
			Stamp: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Watch: WatchConfig{
			MinInterval: 500 * time.Millisecond,
			Burst:       1,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}
