package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/jgipush/internal/locator"
	"github.com/kbase/jgipush/internal/organism"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "jgipush", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, organism.DefaultPortalURL, cfg.Portal.URL)
	assert.Equal(t, 60*time.Second, cfg.Session.GroupOpenTimeout)
	assert.Equal(t, 5, cfg.Session.OpenRetryBudget)
	assert.Equal(t, time.Second, cfg.Session.PollInterval)
	assert.Equal(t, []string{"QC Filtered Raw Data", "Raw Data"}, cfg.Runner.Groups)
	require.NoError(t, cfg.Validate())
}

func TestSessionOptionsMatchDefaults(t *testing.T) {
	opts, err := NewDefaultConfig().SessionOptions()
	require.NoError(t, err)
	assert.Equal(t, organism.DefaultOptions(), opts)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jgipush.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  settle_time: 1500ms
  open_retry_budget: 3
credentials:
  jgi_user: jgi@example.org
  jgi_password: from-the-file
runner:
  workers: 8
  seed: BlaspoFA
locators:
  submit_button:
    selector: input.pushToKbase
`), 0o600))

	t.Setenv("JGIPUSH_CREDENTIALS_JGI_PASSWORD", "secret")
	t.Setenv("JGIPUSH_RUNNER_MAX_PER_WORKER", "25")
	t.Setenv("JGIPUSH_ORACLE_TOKEN", "token")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Session.SettleTime)
	assert.Equal(t, 3, cfg.Session.OpenRetryBudget)
	assert.Equal(t, 8, cfg.Runner.Workers)
	assert.Equal(t, 25, cfg.Runner.MaxPerWorker)
	assert.Equal(t, "BlaspoFA", cfg.Runner.Seed)
	assert.Equal(t, "token", cfg.Oracle.Token)
	assert.Equal(t, &organism.Credentials{User: "jgi@example.org", Password: "secret"}, cfg.JGICredentials())
	assert.Nil(t, cfg.KBaseCredentials())

	opts, err := cfg.SessionOptions()
	require.NoError(t, err)
	assert.Equal(t, "input.pushToKbase", opts.Locators.SubmitButton.Selector)
	assert.Equal(t, "PtKB button", opts.Locators.SubmitButton.Name, "overrides keep the default name")
	assert.Equal(t, locator.Defaults().FileTree, opts.Locators.FileTree)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Runner.Workers)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero group open timeout", func(c *Config) { c.Session.GroupOpenTimeout = 0 }, "session.group_open_timeout must be a positive duration"},
		{"zero poll interval", func(c *Config) { c.Session.PollInterval = 0 }, "session.poll_interval must be a positive duration"},
		{"zero retry budget", func(c *Config) { c.Session.OpenRetryBudget = 0 }, "session.open_retry_budget must be a positive integer"},
		{"negative settle time", func(c *Config) { c.Session.SettleTime = -time.Second }, "session waits must not be negative"},
		{"no workers", func(c *Config) { c.Runner.Workers = 0 }, "runner.workers must be a positive integer"},
		{"negative rate", func(c *Config) { c.Runner.RatePerSecond = -1 }, "must not be negative"},
		{"unknown locator", func(c *Config) { c.Locators = map[string]locator.Locator{"globus": {Selector: "a"}} }, "locators.globus: unknown locator"},
		{"empty locator", func(c *Config) { c.Locators = map[string]locator.Locator{"file_tree": {}} }, "selector or id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCDPOptions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Browser.RemoteURL = "ws://127.0.0.1:9222/devtools/browser/abc"
	cfg.Browser.Args = []string{"--window-size=1280,1024"}
	opts := cfg.CDPOptions()
	assert.True(t, opts.Headless)
	assert.Equal(t, cfg.Browser.RemoteURL, opts.RemoteURL)
	assert.Equal(t, 90*time.Second, opts.NavigationTimeout)
	assert.Equal(t, cfg.Browser.Args, opts.Args)
}
