// internal/config/config.go

// Package config loads jgipush settings from a YAML file, JGIPUSH_ environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/locator"
	"github.com/kbase/jgipush/internal/organism"
)

// EnvPrefix prefixes every environment variable read into the configuration.
const EnvPrefix = "JGIPUSH"

// ConfigName is the file looked up in the working directory, then as a dot
// file in the home directory.
const ConfigName = "jgipush"

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig               `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig              `mapstructure:"browser" yaml:"browser"`
	Portal      PortalConfig               `mapstructure:"portal" yaml:"portal"`
	Session     SessionConfig              `mapstructure:"session" yaml:"session"`
	Locators    map[string]locator.Locator `mapstructure:"locators" yaml:"locators"`
	Credentials CredentialsConfig          `mapstructure:"credentials" yaml:"credentials"`
	Oracle      OracleConfig               `mapstructure:"oracle" yaml:"oracle"`
	Inbox       InboxConfig                `mapstructure:"inbox" yaml:"inbox"`
	Database    DatabaseConfig             `mapstructure:"database" yaml:"database"`
	Runner      RunnerConfig               `mapstructure:"runner" yaml:"runner"`
}

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

// ColorConfig names the terminal color of each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath   string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// RemoteURL attaches to a running browser's DevTools websocket.
	RemoteURL               string        `mapstructure:"remote_url" yaml:"remote_url"`
	UserAgent               string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout       time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	BackgroundScriptTimeout time.Duration `mapstructure:"background_script_timeout" yaml:"background_script_timeout"`
	BenignScriptErrors      []string      `mapstructure:"benign_script_errors" yaml:"benign_script_errors"`
}

// PortalConfig locates the genome portal.
type PortalConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	SignonURL string `mapstructure:"signon_url" yaml:"signon_url"`
}

// SessionConfig holds the waits and budgets of an organism page session.
type SessionConfig struct {
	ReadyTimeout           time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	SignonTimeout          time.Duration `mapstructure:"signon_timeout" yaml:"signon_timeout"`
	GroupOpenTimeout       time.Duration `mapstructure:"group_open_timeout" yaml:"group_open_timeout"`
	OpenRetryBudget        int           `mapstructure:"open_retry_budget" yaml:"open_retry_budget"`
	SettleTime             time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
	PostLoadWait           time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	PushFormTimeout        time.Duration `mapstructure:"push_form_timeout" yaml:"push_form_timeout"`
	ResultTimeout          time.Duration `mapstructure:"result_timeout" yaml:"result_timeout"`
	DialogCloseWait        time.Duration `mapstructure:"dialog_close_wait" yaml:"dialog_close_wait"`
	PollInterval           time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxBackgroundDrains    int           `mapstructure:"max_background_drains" yaml:"max_background_drains"`
	MaxBenignScriptRetries int           `mapstructure:"max_benign_script_retries" yaml:"max_benign_script_retries"`
}

// CredentialsConfig holds the JGI sign-on and KBase login. Passwords are only
// read from the environment.
type CredentialsConfig struct {
	JGIUser       string `mapstructure:"jgi_user" yaml:"jgi_user"`
	JGIPassword   string `mapstructure:"jgi_password" yaml:"-"`
	KBaseUser     string `mapstructure:"kbase_user" yaml:"kbase_user"`
	KBasePassword string `mapstructure:"kbase_password" yaml:"-"`
}

// OracleConfig locates the KBase services used to verify pushes.
type OracleConfig struct {
	WorkspaceURL string        `mapstructure:"workspace_url" yaml:"workspace_url"`
	HandleURL    string        `mapstructure:"handle_url" yaml:"handle_url"`
	ShockURL     string        `mapstructure:"shock_url" yaml:"shock_url"`
	Token        string        `mapstructure:"token" yaml:"-"`
	RetryMax     int           `mapstructure:"retry_max" yaml:"retry_max"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// InboxConfig locates the mailbox that receives push notifications.
type InboxConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RunnerConfig controls discovery and mass pushes.
type RunnerConfig struct {
	Workers       int      `mapstructure:"workers" yaml:"workers"`
	MaxPerWorker  int      `mapstructure:"max_per_worker" yaml:"max_per_worker"`
	RatePerSecond float64  `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Seed          string   `mapstructure:"seed" yaml:"seed"`
	Groups        []string `mapstructure:"groups" yaml:"groups"`
	ListRetries   int      `mapstructure:"list_retries" yaml:"list_retries"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "jgipush")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.background_script_timeout", "5m")
	v.SetDefault("browser.benign_script_errors", []string{organism.DefaultBenignScriptError})

	// -- Portal --
	v.SetDefault("portal.url", organism.DefaultPortalURL)
	v.SetDefault("portal.signon_url", organism.DefaultSignonURL)

	// -- Session --
	v.SetDefault("session.ready_timeout", "60s")
	v.SetDefault("session.signon_timeout", "30s")
	v.SetDefault("session.group_open_timeout", "60s")
	v.SetDefault("session.open_retry_budget", 5)
	v.SetDefault("session.settle_time", "1s")
	v.SetDefault("session.post_load_wait", "5s")
	v.SetDefault("session.push_form_timeout", "10s")
	v.SetDefault("session.result_timeout", "60s")
	v.SetDefault("session.dialog_close_wait", "2s")
	v.SetDefault("session.poll_interval", "1s")
	v.SetDefault("session.max_background_drains", 20)
	v.SetDefault("session.max_benign_script_retries", 10)

	// -- Oracle --
	v.SetDefault("oracle.workspace_url", "https://ci.kbase.us/services/ws")
	v.SetDefault("oracle.handle_url", "https://ci.kbase.us/services/handle_service")
	v.SetDefault("oracle.shock_url", "https://ci.kbase.us/services/shock-api")
	v.SetDefault("oracle.retry_max", 3)
	v.SetDefault("oracle.timeout", "30s")

	// -- Inbox --
	v.SetDefault("inbox.timeout", "5m")

	// -- Runner --
	v.SetDefault("runner.workers", 4)
	v.SetDefault("runner.max_per_worker", 0)
	v.SetDefault("runner.rate_per_second", 0.0)
	v.SetDefault("runner.groups", []string{"QC Filtered Raw Data", "Raw Data"})
	v.SetDefault("runner.list_retries", 2)
}

// Load reads the configuration. path names the file explicitly; when empty,
// ./jgipush.yaml and then ~/.jgipush.yaml are tried, and no file at all is
// fine. Environment variables override the file, e.g. JGIPUSH_SESSION_SETTLE_TIME.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{"credentials.jgi_user", "credentials.jgi_password", "credentials.kbase_user", "credentials.kbase_password", "oracle.token", "database.url", "inbox.url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	file, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	}
	return NewConfigFromViper(v)
}

func findConfigFile(path string) (string, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return "", fmt.Errorf("failed to expand config path %s: %w", path, err)
		}
		return expanded, nil
	}
	candidates := []string{ConfigName + ".yaml"}
	if home, err := homedir.Dir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "."+ConfigName+".yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"session.ready_timeout":      c.Session.ReadyTimeout,
		"session.signon_timeout":     c.Session.SignonTimeout,
		"session.group_open_timeout": c.Session.GroupOpenTimeout,
		"session.push_form_timeout":  c.Session.PushFormTimeout,
		"session.result_timeout":     c.Session.ResultTimeout,
		"session.poll_interval":      c.Session.PollInterval,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", key))
		}
	}
	if c.Session.OpenRetryBudget <= 0 {
		errs = append(errs, errors.New("session.open_retry_budget must be a positive integer"))
	}
	if c.Session.SettleTime < 0 || c.Session.PostLoadWait < 0 || c.Session.DialogCloseWait < 0 {
		errs = append(errs, errors.New("session waits must not be negative"))
	}
	if c.Runner.Workers <= 0 {
		errs = append(errs, errors.New("runner.workers must be a positive integer"))
	}
	if c.Runner.MaxPerWorker < 0 || c.Runner.RatePerSecond < 0 {
		errs = append(errs, errors.New("runner.max_per_worker and runner.rate_per_second must not be negative"))
	}
	if _, err := c.LocatorSet(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LocatorSet returns the default locators with the configured overrides
// applied. Overrides are keyed by the locator's configuration name, e.g.
// "submit_button".
func (c *Config) LocatorSet() (locator.Set, error) {
	set := locator.Defaults()
	if len(c.Locators) == 0 {
		return set, nil
	}
	v := reflect.ValueOf(&set).Elem()
	t := v.Type()
	byKey := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		byKey[t.Field(i).Tag.Get("mapstructure")] = i
	}
	var errs []error
	for key, l := range c.Locators {
		i, ok := byKey[key]
		if !ok {
			errs = append(errs, fmt.Errorf("locators.%s: unknown locator", key))
			continue
		}
		if l.Name == "" {
			l.Name = v.Field(i).Interface().(locator.Locator).Name
		}
		v.Field(i).Set(reflect.ValueOf(l))
	}
	if err := errors.Join(errs...); err != nil {
		return set, err
	}
	return set, set.Validate()
}

// SessionOptions translates the portal, browser and session sections.
func (c *Config) SessionOptions() (organism.Options, error) {
	set, err := c.LocatorSet()
	if err != nil {
		return organism.Options{}, err
	}
	return organism.Options{
		PortalURL:               c.Portal.URL,
		SignonURL:               c.Portal.SignonURL,
		ReadyTimeout:            c.Session.ReadyTimeout,
		SignonTimeout:           c.Session.SignonTimeout,
		GroupOpenTimeout:        c.Session.GroupOpenTimeout,
		OpenRetryBudget:         c.Session.OpenRetryBudget,
		SettleTime:              c.Session.SettleTime,
		PostLoadWait:            c.Session.PostLoadWait,
		PushFormTimeout:         c.Session.PushFormTimeout,
		ResultTimeout:           c.Session.ResultTimeout,
		DialogCloseWait:         c.Session.DialogCloseWait,
		BackgroundScriptTimeout: c.Browser.BackgroundScriptTimeout,
		MaxBackgroundDrains:     c.Session.MaxBackgroundDrains,
		BenignScriptErrors:      c.Browser.BenignScriptErrors,
		MaxBenignScriptRetries:  c.Session.MaxBenignScriptRetries,
		Locators:                set,
	}, nil
}

// CDPOptions translates the browser section.
func (c *Config) CDPOptions() browser.CDPOptions {
	return browser.CDPOptions{
		Headless:          c.Browser.Headless,
		DisableGPU:        c.Browser.DisableGPU,
		ExecPath:          c.Browser.ExecPath,
		Args:              c.Browser.Args,
		RemoteURL:         c.Browser.RemoteURL,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: c.Browser.NavigationTimeout,
	}
}

// JGICredentials returns the sign-on credentials, or nil when no user is set.
func (c *Config) JGICredentials() *organism.Credentials {
	if c.Credentials.JGIUser == "" {
		return nil
	}
	return &organism.Credentials{User: c.Credentials.JGIUser, Password: c.Credentials.JGIPassword}
}

// KBaseCredentials returns the KBase login, or nil when no user is set.
func (c *Config) KBaseCredentials() *organism.Credentials {
	if c.Credentials.KBaseUser == "" {
		return nil
	}
	return &organism.Credentials{User: c.Credentials.KBaseUser, Password: c.Credentials.KBasePassword}
}
