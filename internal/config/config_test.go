package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg == nil {
		t.Fatalf("expected a non-nil empty Config")
	}
}

func TestForAgent_BuiltinDefaultsApplyWithNoFile(t *testing.T) {
	cfg := &Config{}
	agent := cfg.ForAgent("claude")
	if agent.SubmitKey != "Enter" {
		t.Errorf("SubmitKey = %q, want Enter", agent.SubmitKey)
	}
	if agent.MaxFailedHealthChecks != 3 {
		t.Errorf("MaxFailedHealthChecks = %d, want 3", agent.MaxFailedHealthChecks)
	}
	if agent.ReadyStabilizationDelay != time.Second {
		t.Errorf("ReadyStabilizationDelay = %v, want 1s floor", agent.ReadyStabilizationDelay)
	}
}

func TestForAgent_DefaultsSectionOverridesBuiltin(t *testing.T) {
	cfg := &Config{
		Defaults: AgentConfig{SubmitKey: "C-m", MaxFailedHealthChecks: 5},
	}
	agent := cfg.ForAgent("claude")
	if agent.SubmitKey != "C-m" {
		t.Errorf("SubmitKey = %q, want C-m", agent.SubmitKey)
	}
	if agent.MaxFailedHealthChecks != 5 {
		t.Errorf("MaxFailedHealthChecks = %d, want 5", agent.MaxFailedHealthChecks)
	}
	// Fields untouched by defaults still fall through to the built-in floor.
	if agent.StartupTimeout != 30*time.Second {
		t.Errorf("StartupTimeout = %v, want built-in 30s", agent.StartupTimeout)
	}
}

func TestForAgent_PerAgentOverridesDefaultsSection(t *testing.T) {
	cfg := &Config{
		Defaults: AgentConfig{SubmitKey: "C-m"},
		Agents: map[string]AgentConfig{
			"claude": {SubmitKey: "Enter", Executable: "claude"},
		},
	}
	agent := cfg.ForAgent("claude")
	if agent.SubmitKey != "Enter" {
		t.Errorf("SubmitKey = %q, want Enter (per-agent override)", agent.SubmitKey)
	}
	if agent.Executable != "claude" {
		t.Errorf("Executable = %q, want claude", agent.Executable)
	}

	other := cfg.ForAgent("codex")
	if other.SubmitKey != "C-m" {
		t.Errorf("unconfigured agent SubmitKey = %q, want defaults-section value C-m", other.SubmitKey)
	}
}

func TestForAgent_ReadyStabilizationDelayFloor(t *testing.T) {
	cfg := &Config{
		Defaults: AgentConfig{ReadyStabilizationDelay: 100 * time.Millisecond},
	}
	agent := cfg.ForAgent("claude")
	if agent.ReadyStabilizationDelay != time.Second {
		t.Errorf("ReadyStabilizationDelay = %v, want floor of 1s even when configured lower", agent.ReadyStabilizationDelay)
	}
}

func TestShouldDrainOnResume_DefaultsTrue(t *testing.T) {
	var a AgentConfig
	if !a.ShouldDrainOnResume() {
		t.Fatalf("expected ShouldDrainOnResume to default to true")
	}
	no := false
	a.DrainOnResume = &no
	if a.ShouldDrainOnResume() {
		t.Fatalf("expected ShouldDrainOnResume to honor explicit false")
	}
}

func TestLoadFrom_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
defaults:
  executable: claude
  submit_key: Enter
  ready_indicators:
    - "Ready >"
agents:
  codex:
    executable: codex
    submit_key: C-m
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	claude := cfg.ForAgent("claude")
	if claude.Executable != "claude" || len(claude.ReadyIndicators) != 1 {
		t.Errorf("unexpected claude config: %+v", claude)
	}

	codex := cfg.ForAgent("codex")
	if codex.Executable != "codex" || codex.SubmitKey != "C-m" {
		t.Errorf("unexpected codex config: %+v", codex)
	}
}

func TestResolveDir_EnvVarOverride(t *testing.T) {
	ResetResolveCache()
	t.Cleanup(ResetResolveCache)

	dir := t.TempDir()
	t.Setenv("H2TEAM_DIR", dir)

	resolved, err := ResolveDir()
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if resolved != dir {
		t.Errorf("ResolveDir = %q, want %q", resolved, dir)
	}
}

func TestResolveDir_CachesResult(t *testing.T) {
	ResetResolveCache()
	t.Cleanup(ResetResolveCache)

	first := t.TempDir()
	t.Setenv("H2TEAM_DIR", first)
	got1, _ := ResolveDir()

	// Changing the env var after the first resolution should not affect
	// the cached result, since ResolveDir caches for the process lifetime.
	t.Setenv("H2TEAM_DIR", t.TempDir())
	got2, _ := ResolveDir()

	if got1 != got2 {
		t.Errorf("expected cached ResolveDir result, got %q then %q", got1, got2)
	}
}
