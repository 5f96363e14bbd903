// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level resilience configuration: which provider is
// primary, the ordered fallback chain, and every threshold the health
// monitor, circuit breakers, retry engine, and selector consult.
type Config struct {
	Primary     string                    `mapstructure:"primary" yaml:"primary"`
	Fallbacks   []string                  `mapstructure:"fallbacks" yaml:"fallbacks"`
	Providers   map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Health      HealthConfig              `mapstructure:"health" yaml:"health"`
	Breaker     BreakerConfig             `mapstructure:"breaker" yaml:"breaker"`
	Retry       RetryConfig               `mapstructure:"retry" yaml:"retry"`
	Performance PerformanceConfig         `mapstructure:"performance" yaml:"performance"`
	Selection   SelectionConfig           `mapstructure:"selection" yaml:"selection"`
	Server      ServerConfig              `mapstructure:"server" yaml:"server"`
	Storage     StorageConfig             `mapstructure:"storage" yaml:"storage"`
}

// ProviderConfig describes one backend provider.
type ProviderConfig struct {
	DisplayName string `mapstructure:"display_name" yaml:"display_name,omitempty"`
	Category    string `mapstructure:"category" yaml:"category"`
	Priority    int    `mapstructure:"priority" yaml:"priority"`
	Credential  string `mapstructure:"credential" yaml:"credential,omitempty"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Model       string `mapstructure:"model" yaml:"model,omitempty"`
	TimeoutMS   int64  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	MaxTokens   int    `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	RatePerMin  int    `mapstructure:"rate_per_min" yaml:"rate_per_min,omitempty"`
}

// Timeout returns the per-call timeout for this provider.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// HealthConfig controls background probing and availability scoring.
type HealthConfig struct {
	IntervalS        int     `mapstructure:"interval_s" yaml:"interval_s"`
	ProbeTimeoutMS   int64   `mapstructure:"probe_timeout_ms" yaml:"probe_timeout_ms"`
	MinScore         float64 `mapstructure:"min_score" yaml:"min_score"`
	WindowSize       int     `mapstructure:"window_size" yaml:"window_size"`
	ProbeParallelism int     `mapstructure:"probe_parallelism" yaml:"probe_parallelism"`
}

// Interval returns the background probe interval.
func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalS) * time.Second
}

// ProbeTimeout returns the per-probe timeout.
func (h HealthConfig) ProbeTimeout() time.Duration {
	return time.Duration(h.ProbeTimeoutMS) * time.Millisecond
}

// BreakerConfig controls the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int   `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeoutMS   int64 `mapstructure:"reset_timeout_ms" yaml:"reset_timeout_ms"`
	HalfOpenMaxCalls int   `mapstructure:"half_open_max_calls" yaml:"half_open_max_calls"`
}

// ResetTimeout returns the open-state cooldown before a trial call.
func (b BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(b.ResetTimeoutMS) * time.Millisecond
}

// RetryConfig controls retry-in-place behavior for transient failures.
type RetryConfig struct {
	MaxRetries   int     `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelayMS  int64   `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS   int64   `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	Multiplier   float64 `mapstructure:"multiplier" yaml:"multiplier"`
	MaxElapsedMS int64   `mapstructure:"max_elapsed_ms" yaml:"max_elapsed_ms,omitempty"`
}

// BaseDelay returns the first-retry delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// MaxElapsed returns the cumulative retry-time cap per provider.
// Zero disables the cap: only the attempt count bounds retries.
func (r RetryConfig) MaxElapsed() time.Duration {
	return time.Duration(r.MaxElapsedMS) * time.Millisecond
}

// PerformanceConfig sets the thresholds health scoring normalizes against.
type PerformanceConfig struct {
	MaxResponseTimeMS int64   `mapstructure:"max_response_time_ms" yaml:"max_response_time_ms"`
	MinSuccessRate    float64 `mapstructure:"min_success_rate" yaml:"min_success_rate"`
	MaxErrorRate      float64 `mapstructure:"max_error_rate" yaml:"max_error_rate"`
}

// MaxResponseTime returns the response-time threshold.
func (p PerformanceConfig) MaxResponseTime() time.Duration {
	return time.Duration(p.MaxResponseTimeMS) * time.Millisecond
}

// SelectionConfig weights the failover selector's scoring criteria.
type SelectionConfig struct {
	PriorityWeight float64 `mapstructure:"priority_weight" yaml:"priority_weight"`
	HealthWeight   float64 `mapstructure:"health_weight" yaml:"health_weight"`
	RecencyWeight  float64 `mapstructure:"recency_weight" yaml:"recency_weight"`
}

// ServerConfig controls the observability HTTP surface.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins,omitempty"`
}

// StorageConfig selects the event/metrics persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
}

// validCategories are the accepted provider categories.
var validCategories = map[string]bool{
	"cloud": true, "local": true, "enterprise": true, "free": true,
}

// SetDefaults installs the built-in defaults onto a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("health.interval_s", 60)
	v.SetDefault("health.probe_timeout_ms", 5000)
	v.SetDefault("health.min_score", 0.5)
	v.SetDefault("health.window_size", 50)
	v.SetDefault("health.probe_parallelism", 4)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_ms", 30000)
	v.SetDefault("breaker.half_open_max_calls", 1)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_elapsed_ms", 0)

	v.SetDefault("performance.max_response_time_ms", 15000)
	v.SetDefault("performance.min_success_rate", 0.8)
	v.SetDefault("performance.max_error_rate", 0.2)

	v.SetDefault("selection.priority_weight", 0.3)
	v.SetDefault("selection.health_weight", 0.5)
	v.SetDefault("selection.recency_weight", 0.2)

	v.SetDefault("server.listen", "127.0.0.1:18990")
	v.SetDefault("storage.backend", "sqlite")
}

// SetupEnv binds environment variable overrides with the AEGIS_ prefix.
// Keys map dots to underscores, e.g. retry.max_retries is overridden by
// AEGIS_RETRY_MAX_RETRIES.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only when path
// is empty) with environment overrides applied on top of file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and structurally validates a populated Viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}

	if issues := cfg.Validate(nil); HasErrors(issues) {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "validating config: %s", JoinIssues(issues))
	}

	return cfg, nil
}

// Unmarshal decodes a populated Viper without validating. Callers that
// want to report every issue themselves (the validate command) use this
// instead of FromViper, whose fail-closed check stops at the first
// error summary.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Errors block startup; warnings mark a
// provider unavailable without being fatal.
type Issue struct {
	Severity Severity
	Provider string
	Message  string
}

func (i Issue) String() string {
	if i.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", i.Severity, i.Provider, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// JoinIssues renders issues as a single semicolon-separated string.
func JoinIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		parts = append(parts, i.String())
	}
	return strings.Join(parts, "; ")
}

// CredentialLookup reports whether the named credential can be resolved.
// A nil lookup skips credential checks entirely (structural validation only).
type CredentialLookup func(ref string) bool

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one. Validation fails closed:
// a missing credential for the primary provider is an error, while a
// missing credential for a fallback is a warning (the provider is simply
// unavailable).
func (c *Config) Validate(hasCredential CredentialLookup) []Issue {
	var issues []Issue

	issues = append(issues, c.validateTopology()...)
	issues = append(issues, c.validateProviders()...)
	issues = append(issues, c.validateThresholds()...)
	issues = append(issues, c.validateServer()...)

	if hasCredential != nil {
		issues = append(issues, c.validateCredentials(hasCredential)...)
	}

	return issues
}

func (c *Config) validateTopology() []Issue {
	var issues []Issue

	if c.Primary == "" {
		issues = append(issues, errIssue("", "primary provider must be set"))
	} else if _, ok := c.Providers[c.Primary]; !ok {
		issues = append(issues, errIssue("", fmt.Sprintf("primary %q is not a configured provider", c.Primary)))
	}

	seen := map[string]bool{}
	for i, id := range c.Fallbacks {
		if _, ok := c.Providers[id]; !ok {
			issues = append(issues, errIssue("", fmt.Sprintf("fallbacks[%d] %q is not a configured provider", i, id)))
		}
		if seen[id] {
			issues = append(issues, errIssue("", fmt.Sprintf("fallbacks[%d] %q is listed more than once", i, id)))
		}
		seen[id] = true
		if id == c.Primary {
			issues = append(issues, warnIssue(id, "fallback repeats the primary provider"))
		}
	}

	return issues
}

func (c *Config) validateProviders() []Issue {
	var issues []Issue

	for _, id := range sortedProviderIDs(c.Providers) {
		p := c.Providers[id]
		if !validCategories[p.Category] {
			issues = append(issues, errIssue(id, fmt.Sprintf("category must be one of [cloud, local, enterprise, free], got %q", p.Category)))
		}
		if p.TimeoutMS <= 0 {
			issues = append(issues, errIssue(id, fmt.Sprintf("timeout_ms must be greater than 0, got %d", p.TimeoutMS)))
		}
		if p.Priority < 0 {
			issues = append(issues, errIssue(id, fmt.Sprintf("priority must be non-negative, got %d", p.Priority)))
		}
	}

	return issues
}

func (c *Config) validateThresholds() []Issue {
	var issues []Issue

	if c.Breaker.FailureThreshold <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("breaker.failure_threshold must be greater than 0, got %d", c.Breaker.FailureThreshold)))
	}
	if c.Breaker.ResetTimeoutMS <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("breaker.reset_timeout_ms must be greater than 0, got %d", c.Breaker.ResetTimeoutMS)))
	}
	if c.Breaker.HalfOpenMaxCalls <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("breaker.half_open_max_calls must be greater than 0, got %d", c.Breaker.HalfOpenMaxCalls)))
	}

	if c.Retry.MaxRetries < 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("retry.max_retries must be non-negative, got %d", c.Retry.MaxRetries)))
	}
	if c.Retry.BaseDelayMS <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("retry.base_delay_ms must be greater than 0, got %d", c.Retry.BaseDelayMS)))
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		issues = append(issues, errIssue("", fmt.Sprintf("retry.max_delay_ms (%d) must be at least base_delay_ms (%d)", c.Retry.MaxDelayMS, c.Retry.BaseDelayMS)))
	}
	if c.Retry.Multiplier < 1 {
		issues = append(issues, errIssue("", fmt.Sprintf("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)))
	}
	if c.Retry.MaxElapsedMS < 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("retry.max_elapsed_ms must be non-negative, got %d", c.Retry.MaxElapsedMS)))
	}

	if c.Health.IntervalS <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("health.interval_s must be greater than 0, got %d", c.Health.IntervalS)))
	}
	if c.Health.ProbeTimeoutMS <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("health.probe_timeout_ms must be greater than 0, got %d", c.Health.ProbeTimeoutMS)))
	}
	if c.Health.MinScore < 0 || c.Health.MinScore > 1 {
		issues = append(issues, errIssue("", fmt.Sprintf("health.min_score must be in [0, 1], got %g", c.Health.MinScore)))
	}
	if c.Health.WindowSize <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("health.window_size must be greater than 0, got %d", c.Health.WindowSize)))
	}

	if c.Performance.MinSuccessRate < 0 || c.Performance.MinSuccessRate > 1 {
		issues = append(issues, errIssue("", fmt.Sprintf("performance.min_success_rate must be in [0, 1], got %g", c.Performance.MinSuccessRate)))
	}
	if c.Performance.MaxErrorRate < 0 || c.Performance.MaxErrorRate > 1 {
		issues = append(issues, errIssue("", fmt.Sprintf("performance.max_error_rate must be in [0, 1], got %g", c.Performance.MaxErrorRate)))
	}
	if c.Performance.MaxResponseTimeMS <= 0 {
		issues = append(issues, errIssue("", fmt.Sprintf("performance.max_response_time_ms must be greater than 0, got %d", c.Performance.MaxResponseTimeMS)))
	}

	return issues
}

func (c *Config) validateServer() []Issue {
	var issues []Issue

	if c.Server.Listen == "" {
		return append(issues, errIssue("", "server.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(issues, errIssue("", fmt.Sprintf("server.listen must be a valid host:port address, got %q", c.Server.Listen)))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		issues = append(issues, errIssue("", fmt.Sprintf("server.listen port must be between 1 and 65535, got %q", portStr)))
	}

	return issues
}

func (c *Config) validateCredentials(hasCredential CredentialLookup) []Issue {
	var issues []Issue

	for _, id := range sortedProviderIDs(c.Providers) {
		p := c.Providers[id]
		if p.Credential == "" || hasCredential(p.Credential) {
			continue
		}
		if id == c.Primary {
			issues = append(issues, errIssue(id, fmt.Sprintf("credential %q for primary provider cannot be resolved", p.Credential)))
		} else {
			issues = append(issues, warnIssue(id, fmt.Sprintf("credential %q cannot be resolved; provider will be unavailable", p.Credential)))
		}
	}

	return issues
}

// FallbackOrder returns the primary followed by the configured fallbacks.
func (c *Config) FallbackOrder() []string {
	order := make([]string, 0, 1+len(c.Fallbacks))
	if c.Primary != "" {
		order = append(order, c.Primary)
	}
	for _, id := range c.Fallbacks {
		if id != c.Primary {
			order = append(order, id)
		}
	}
	return order
}

func errIssue(provider, msg string) Issue {
	return Issue{Severity: SeverityError, Provider: provider, Message: msg}
}

func warnIssue(provider, msg string) Issue {
	return Issue{Severity: SeverityWarning, Provider: provider, Message: msg}
}

func sortedProviderIDs(m map[string]ProviderConfig) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
