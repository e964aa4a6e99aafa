// Package config loads nanorule settings from file, environment and flags.
package config

import "time"

// Config is the complete nanorule configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Data     DataConfig     `mapstructure:"data" json:"data"`
	Rules    RulesConfig    `mapstructure:"rules" json:"rules"`
	Analysis AnalysisConfig `mapstructure:"analysis" json:"analysis"`
	Cache    CacheConfig    `mapstructure:"cache" json:"cache"`
	Results  ResultsConfig  `mapstructure:"results" json:"results"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// DataConfig configures where results and totals are kept.
type DataConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// RulesConfig selects the rule file. An empty file means the built-in rules.
type RulesConfig struct {
	File  string `mapstructure:"file" json:"file"`
	Watch bool   `mapstructure:"watch" json:"watch"`
}

// AnalysisConfig bounds the work done per file.
type AnalysisConfig struct {
	MaxContentBytes      int `mapstructure:"max_content_bytes" json:"max_content_bytes"`
	ChunkSize            int `mapstructure:"chunk_size" json:"chunk_size"`
	ContextLines         int `mapstructure:"context_lines" json:"context_lines"`
	MaxMatchesPerPattern int `mapstructure:"max_matches_per_pattern" json:"max_matches_per_pattern"`
	Workers              int `mapstructure:"workers" json:"workers"`
	RuleParallelism      int `mapstructure:"rule_parallelism" json:"rule_parallelism"`
}

// CacheConfig bounds the compiled rule cache.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries" json:"max_entries"`
}

// ResultsConfig controls stored report retention.
type ResultsConfig struct {
	Retention       time.Duration `mapstructure:"retention" json:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8088"},
		Data:   DataConfig{Dir: "./data"},
		Rules:  RulesConfig{Watch: true},
		Analysis: AnalysisConfig{
			MaxContentBytes:      5 << 20,
			ChunkSize:            64 << 10,
			ContextLines:         2,
			MaxMatchesPerPattern: 10000,
			Workers:              4,
			RuleParallelism:      8,
		},
		Cache: CacheConfig{MaxEntries: 4096},
		Results: ResultsConfig{
			Retention:       7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}
