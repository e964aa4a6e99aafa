package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithSearchPaths(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("[]"), 0644))

	path := filepath.Join(dir, "nanorule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
rules:
  file: `+rules+`
  watch: false
analysis:
  context_lines: 5
results:
  retention: 24h
`), 0644))

	t.Setenv("NANORULE_ANALYSIS_WORKERS", "16")
	t.Setenv("NANORULE_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, rules, cfg.Rules.File)
	assert.False(t, cfg.Rules.Watch)
	assert.Equal(t, 5, cfg.Analysis.ContextLines)
	assert.Equal(t, 16, cfg.Analysis.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Results.Retention)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Analysis.RuleParallelism)
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nanorule.yaml"), []byte("cache:\n  max_entries: 10\n"), 0644))

	l := NewLoader().WithSearchPaths(dir)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.Equal(t, filepath.Join(dir, "nanorule.yaml"), l.ConfigFileUsed())
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("NANORULE_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "error"}))

	l := NewLoader().WithSearchPaths(t.TempDir())
	require.NoError(t, l.BindFlag("log.level", flags.Lookup("log-level")))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, false},
		{"zero workers", func(c *Config) { c.Analysis.Workers = 0 }, false},
		{"negative context", func(c *Config) { c.Analysis.ContextLines = -1 }, false},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, false},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"missing rules file", func(c *Config) { c.Rules.File = "/nonexistent/rules.yaml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
