// Package config loads and merges orchestration configuration: global
// defaults plus per-agent overrides, read from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h2team/h2team/internal/restart"
)

const markerFile = ".h2team-dir.txt"

// AgentConfig holds every tunable recognized for a single agent.
type AgentConfig struct {
	Executable     string   `yaml:"executable"`
	ExecutableArgs []string `yaml:"executable_args,omitempty"`
	WorkingDir     string   `yaml:"working_dir,omitempty"`

	StartupTimeout      time.Duration `yaml:"startup_timeout"`
	ResponseTimeout     time.Duration `yaml:"response_timeout"`
	ReadyCheckInterval  time.Duration `yaml:"ready_check_interval"`
	ReadyStableChecks   int           `yaml:"ready_stable_checks"`

	ReadyIndicators            []string `yaml:"ready_indicators,omitempty"`
	LoadingIndicators          []string `yaml:"loading_indicators,omitempty"`
	LoadingIndicatorSettleTime time.Duration `yaml:"loading_indicator_settle_time"`
	ResponseCompleteMarkers    []string `yaml:"response_complete_markers,omitempty"`

	SubmitKey          string        `yaml:"submit_key"`
	SubmitFallbackKeys []string      `yaml:"submit_fallback_keys,omitempty"`
	SubmitRetryDelay   time.Duration `yaml:"submit_retry_delay"`
	TextEnterDelay     time.Duration `yaml:"text_enter_delay"`
	PostTextDelay      time.Duration `yaml:"post_text_delay"`

	ReadyStabilizationDelay time.Duration `yaml:"ready_stabilization_delay"`
	StripAnsiForIndicators  bool          `yaml:"strip_ansi_for_indicators"`
	InitWait                time.Duration `yaml:"init_wait"`
	PauseOnManualClients    bool          `yaml:"pause_on_manual_clients"`
	DrainOnResume           *bool         `yaml:"drain_on_resume,omitempty"`

	PaneWidth  int `yaml:"pane_width"`
	PaneHeight int `yaml:"pane_height"`

	HealthCheckInterval    time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout     time.Duration `yaml:"health_check_timeout"`
	MaxFailedHealthChecks  int           `yaml:"max_failed_health_checks"`

	RestartPolicy         string        `yaml:"restart_policy"`
	MaxRestartAttempts    int           `yaml:"max_restart_attempts"`
	RestartWindow         time.Duration `yaml:"restart_window"`
	RestartInitialBackoff time.Duration `yaml:"restart_initial_backoff"`
	RestartMaxBackoff     time.Duration `yaml:"restart_max_backoff"`

	HeartbeatIdleTimeout time.Duration `yaml:"heartbeat_idle_timeout,omitempty"`
	HeartbeatMessage     string        `yaml:"heartbeat_message,omitempty"`
	HeartbeatCondition   string        `yaml:"heartbeat_condition,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// LoggingConfig mirrors the logger options named in the requirements.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	Console    bool   `yaml:"console,omitempty"`
	MaxBytes   int    `yaml:"max_bytes,omitempty"`
	BackupCount int   `yaml:"backup_count,omitempty"`
	Format     string `yaml:"format,omitempty"`
}

// Config is the top-level document: a global default section plus
// named per-agent overrides that merge on top of it.
type Config struct {
	Global LoggingConfig           `yaml:"-"`
	Defaults AgentConfig           `yaml:"defaults"`
	Agents   map[string]AgentConfig `yaml:"agents"`
}

// defaultAgentConfig returns the built-in floor values applied before
// the file's own "defaults" section and any per-agent override.
func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		SubmitKey:               "Enter",
		StartupTimeout:          30 * time.Second,
		ResponseTimeout:         60 * time.Second,
		ReadyCheckInterval:      500 * time.Millisecond,
		ReadyStableChecks:       2,
		LoadingIndicatorSettleTime: time.Second,
		SubmitRetryDelay:        2 * time.Second,
		TextEnterDelay:          100 * time.Millisecond,
		PostTextDelay:           100 * time.Millisecond,
		ReadyStabilizationDelay: time.Second,
		PauseOnManualClients:    true,
		PaneWidth:               120,
		PaneHeight:              40,
		HealthCheckInterval:     30 * time.Second,
		HealthCheckTimeout:      5 * time.Second,
		MaxFailedHealthChecks:   3,
		RestartPolicy:           "on_failure",
		MaxRestartAttempts:      3,
		RestartWindow:           5 * time.Minute,
		RestartInitialBackoff:   5 * time.Second,
		RestartMaxBackoff:       time.Minute,
	}
}

// ForAgent returns the effective configuration for name: built-in
// floor values, overridden by the file's defaults section, overridden
// by that agent's own section. Unset duration/int/string fields at
// each layer fall through to the layer beneath.
func (c *Config) ForAgent(name string) AgentConfig {
	merged := defaultAgentConfig()
	merged = mergeAgentConfig(merged, c.Defaults)
	if c.Agents != nil {
		if override, ok := c.Agents[name]; ok {
			merged = mergeAgentConfig(merged, override)
		}
	}
	if merged.ReadyStabilizationDelay < time.Second {
		merged.ReadyStabilizationDelay = time.Second
	}
	return merged
}

// mergeAgentConfig overlays override's explicitly-set fields onto base.
// Zero-valued fields in override are treated as "not set" and left as
// base's value. For the plain bool StripAnsiForIndicators this means an
// override can switch it on but not off; PauseOnManualClients is not
// merged at all and keeps base's value. DrainOnResume is a pointer, so
// an explicit false in override is honoured.
func mergeAgentConfig(base, override AgentConfig) AgentConfig {
	out := base
	if override.Executable != "" {
		out.Executable = override.Executable
	}
	if len(override.ExecutableArgs) > 0 {
		out.ExecutableArgs = override.ExecutableArgs
	}
	if override.WorkingDir != "" {
		out.WorkingDir = override.WorkingDir
	}
	if override.StartupTimeout > 0 {
		out.StartupTimeout = override.StartupTimeout
	}
	if override.ResponseTimeout > 0 {
		out.ResponseTimeout = override.ResponseTimeout
	}
	if override.ReadyCheckInterval > 0 {
		out.ReadyCheckInterval = override.ReadyCheckInterval
	}
	if override.ReadyStableChecks > 0 {
		out.ReadyStableChecks = override.ReadyStableChecks
	}
	if len(override.ReadyIndicators) > 0 {
		out.ReadyIndicators = override.ReadyIndicators
	}
	if len(override.LoadingIndicators) > 0 {
		out.LoadingIndicators = override.LoadingIndicators
	}
	if override.LoadingIndicatorSettleTime > 0 {
		out.LoadingIndicatorSettleTime = override.LoadingIndicatorSettleTime
	}
	if len(override.ResponseCompleteMarkers) > 0 {
		out.ResponseCompleteMarkers = override.ResponseCompleteMarkers
	}
	if override.SubmitKey != "" {
		out.SubmitKey = override.SubmitKey
	}
	if len(override.SubmitFallbackKeys) > 0 {
		out.SubmitFallbackKeys = override.SubmitFallbackKeys
	}
	if override.SubmitRetryDelay > 0 {
		out.SubmitRetryDelay = override.SubmitRetryDelay
	}
	if override.TextEnterDelay > 0 {
		out.TextEnterDelay = override.TextEnterDelay
	}
	if override.PostTextDelay > 0 {
		out.PostTextDelay = override.PostTextDelay
	}
	if override.ReadyStabilizationDelay > 0 {
		out.ReadyStabilizationDelay = override.ReadyStabilizationDelay
	}
	if override.StripAnsiForIndicators {
		out.StripAnsiForIndicators = override.StripAnsiForIndicators
	}
	if override.InitWait > 0 {
		out.InitWait = override.InitWait
	}
	if override.DrainOnResume != nil {
		out.DrainOnResume = override.DrainOnResume
	}
	if override.PaneWidth > 0 {
		out.PaneWidth = override.PaneWidth
	}
	if override.PaneHeight > 0 {
		out.PaneHeight = override.PaneHeight
	}
	if override.HealthCheckInterval > 0 {
		out.HealthCheckInterval = override.HealthCheckInterval
	}
	if override.HealthCheckTimeout > 0 {
		out.HealthCheckTimeout = override.HealthCheckTimeout
	}
	if override.MaxFailedHealthChecks > 0 {
		out.MaxFailedHealthChecks = override.MaxFailedHealthChecks
	}
	if override.RestartPolicy != "" {
		out.RestartPolicy = override.RestartPolicy
	}
	if override.MaxRestartAttempts > 0 {
		out.MaxRestartAttempts = override.MaxRestartAttempts
	}
	if override.RestartWindow > 0 {
		out.RestartWindow = override.RestartWindow
	}
	if override.RestartInitialBackoff > 0 {
		out.RestartInitialBackoff = override.RestartInitialBackoff
	}
	if override.RestartMaxBackoff > 0 {
		out.RestartMaxBackoff = override.RestartMaxBackoff
	}
	if override.Logging.Level != "" {
		out.Logging = override.Logging
	}
	if override.HeartbeatIdleTimeout > 0 {
		out.HeartbeatIdleTimeout = override.HeartbeatIdleTimeout
	}
	if override.HeartbeatMessage != "" {
		out.HeartbeatMessage = override.HeartbeatMessage
	}
	if override.HeartbeatCondition != "" {
		out.HeartbeatCondition = override.HeartbeatCondition
	}
	return out
}

// ShouldDrainOnResume reports whether queued commands should replay
// automatically after a manual-takeover pause ends. Unset defaults to
// true.
func (a AgentConfig) ShouldDrainOnResume() bool {
	if a.DrainOnResume == nil {
		return true
	}
	return *a.DrainOnResume
}

// RestartPolicyValue parses the agent's restart_policy string.
func (a AgentConfig) RestartPolicyValue() (restart.Policy, error) {
	return restart.ParsePolicy(a.RestartPolicy)
}

// Load reads configuration from <root>/config.yaml. A missing file is
// not an error; it returns a Config with only built-in defaults.
func Load(root string) (*Config, error) {
	return LoadFrom(filepath.Join(root, "config.yaml"))
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

var (
	resolvedDir string
	resolvedErr error
	resolveOnce sync.Once
)

// ResolveDir finds the orchestration root directory: H2TEAM_DIR env var,
// then walking up from the working directory looking for the marker
// file, then ~/.h2team as a fallback. The result is cached for the
// process lifetime.
func ResolveDir() (string, error) {
	resolveOnce.Do(func() {
		resolvedDir, resolvedErr = resolveDir()
	})
	return resolvedDir, resolvedErr
}

// ResetResolveCache clears the cached ResolveDir result. For tests only.
func ResetResolveCache() {
	resolveOnce = sync.Once{}
	resolvedDir = ""
	resolvedErr = nil
}

func isMarkedDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, markerFile))
	return err == nil && !info.IsDir()
}

func resolveDir() (string, error) {
	if dir := os.Getenv("H2TEAM_DIR"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("H2TEAM_DIR: %w", err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := cwd
	for {
		if isMarkedDir(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".h2team"), nil
}
