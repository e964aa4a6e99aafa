package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigFileName is looked up in the search paths when no explicit file is
// given.
const ConfigFileName = "nanorule"

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a loader reading NANORULE_* environment variables.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("NANORULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// BindFlag makes a command line flag override key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: no such flag", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load merges defaults, the config file, the environment and bound flags,
// in increasing order of precedence.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("server.addr", defaults.Server.Addr)
	l.v.SetDefault("data.dir", defaults.Data.Dir)
	l.v.SetDefault("rules.file", defaults.Rules.File)
	l.v.SetDefault("rules.watch", defaults.Rules.Watch)

	l.v.SetDefault("analysis.max_content_bytes", defaults.Analysis.MaxContentBytes)
	l.v.SetDefault("analysis.chunk_size", defaults.Analysis.ChunkSize)
	l.v.SetDefault("analysis.context_lines", defaults.Analysis.ContextLines)
	l.v.SetDefault("analysis.max_matches_per_pattern", defaults.Analysis.MaxMatchesPerPattern)
	l.v.SetDefault("analysis.workers", defaults.Analysis.Workers)
	l.v.SetDefault("analysis.rule_parallelism", defaults.Analysis.RuleParallelism)

	l.v.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	l.v.SetDefault("results.retention", defaults.Results.Retention.String())
	l.v.SetDefault("results.cleanup_interval", defaults.Results.CleanupInterval.String())

	l.v.SetDefault("log.level", defaults.Log.Level)
	l.v.SetDefault("log.format", defaults.Log.Format)
}

func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		return l.v.ReadInConfig()
	}

	l.v.SetConfigName(ConfigFileName)
	for _, p := range l.searchPaths {
		l.v.AddConfigPath(p)
	}
	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// Validate checks the values Load cannot default on its own.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if cfg.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir must not be empty"))
	}
	if cfg.Analysis.MaxContentBytes <= 0 {
		errs = append(errs, errors.New("analysis.max_content_bytes must be positive"))
	}
	if cfg.Analysis.Workers <= 0 {
		errs = append(errs, errors.New("analysis.workers must be positive"))
	}
	if cfg.Analysis.ContextLines < 0 {
		errs = append(errs, errors.New("analysis.context_lines must not be negative"))
	}
	if cfg.Results.Retention < 0 {
		errs = append(errs, errors.New("results.retention must not be negative"))
	}
	if cfg.Results.CleanupInterval <= 0 {
		errs = append(errs, errors.New("results.cleanup_interval must be positive"))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", cfg.Log.Format))
	}
	if cfg.Rules.File != "" {
		if _, err := os.Stat(cfg.Rules.File); err != nil {
			errs = append(errs, fmt.Errorf("rules.file: %w", err))
		}
	}
	return errors.Join(errs...)
}
