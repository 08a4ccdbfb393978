// Package config resolves the filesystem layout, environment overrides, and
// policy knobs for a recall process. A single Config is built at startup and
// passed through the API; nothing here is global.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Debug level environment variables, in priority order.
const (
	DebugEnvVar         = "CLAUDE_RECALL_DEBUG" // primary
	DebugEnvVarFallback = "RECALL_DEBUG"
	DebugEnvVarLegacy   = "LESSONS_DEBUG"
)

// ConfigFileName is the optional policy-knob file under the base directory.
const ConfigFileName = "config.toml"

// Policy holds the tunable lifecycle thresholds. The handoff thresholds were
// only ever constants in early versions; they are configuration now because
// reasonable values differ between solo and multi-agent projects.
type Policy struct {
	HandoffStaleDays            int `toml:"handoff_stale_days"`
	HandoffCompletedArchiveDays int `toml:"handoff_completed_archive_days"`
	HandoffMaxCompleted         int `toml:"handoff_max_completed"`
	HandoffMaxAgeDays           int `toml:"handoff_max_age_days"`
	// DuplicateLengthGate is the normalized-title length that the contained
	// title must exceed before substring containment counts as a duplicate
	// match.
	DuplicateLengthGate int `toml:"duplicate_length_gate"`
}

// Scorer holds relevance-scorer invocation settings.
type Scorer struct {
	Command        []string `toml:"command"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxQueryLen    int      `toml:"max_query_len"`
}

// Config is the resolved per-process configuration.
type Config struct {
	// BaseDir holds system-scope lessons and process-wide state markers.
	BaseDir string
	// StateDir holds the debug log.
	StateDir string
	// ProjectRoot is the repository the project-scope files belong to.
	ProjectRoot string

	Policy Policy `toml:"policy"`
	Scorer Scorer `toml:"scorer"`

	debugLevel       int
	debugLevelLoaded bool
}

// Default returns a Config with resolved directories and default knobs.
func Default() *Config {
	return &Config{
		BaseDir:     resolveBaseDir(),
		StateDir:    ResolveStateDir(),
		ProjectRoot: resolveProjectRoot(),
		Policy: Policy{
			HandoffStaleDays:            14,
			HandoffCompletedArchiveDays: 7,
			HandoffMaxCompleted:         5,
			HandoffMaxAgeDays:           7,
			DuplicateLengthGate:         10,
		},
		Scorer: Scorer{
			Command:        []string{"claude", "-p", "--model", "haiku"},
			TimeoutSeconds: 30,
			MaxQueryLen:    2000,
		},
	}
}

// Load returns the default configuration overlaid with <base>/config.toml
// when that file exists. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()
	path := filepath.Join(cfg.BaseDir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SystemLessonsFile is the system-scope lessons store.
func (c *Config) SystemLessonsFile() string {
	return filepath.Join(c.BaseDir, "LESSONS.md")
}

// DecayStateFile is the mtime marker of the last decay run.
func (c *Config) DecayStateFile() string {
	return filepath.Join(c.BaseDir, ".decay-last-run")
}

// SessionStateDir holds one empty marker file per coding session; the decay
// vacation check counts markers newer than the decay marker.
func (c *Config) SessionStateDir() string {
	return filepath.Join(c.BaseDir, ".citation-state")
}

// LogFile is the JSONL debug log.
func (c *Config) LogFile() string {
	return filepath.Join(c.StateDir, "debug.log")
}

// ProjectName is the short project identifier attached to log events.
func (c *Config) ProjectName() string {
	if c.ProjectRoot == "" {
		return ""
	}
	return filepath.Base(c.ProjectRoot)
}

// DebugLevel resolves the log level once per process: env chain first, then
// the shared agent settings file, then the default of 1.
func (c *Config) DebugLevel() int {
	if c.debugLevelLoaded {
		return c.debugLevel
	}
	c.debugLevel = resolveDebugLevel()
	c.debugLevelLoaded = true
	return c.debugLevel
}

func resolveDebugLevel() int {
	raw := os.Getenv(DebugEnvVar)
	if raw == "" {
		raw = os.Getenv(DebugEnvVarFallback)
	}
	if raw == "" {
		raw = os.Getenv(DebugEnvVarLegacy)
	}
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
		// Non-numeric truthy strings mean level 1.
		switch strings.ToLower(raw) {
		case "true", "yes", "on":
			return 1
		}
		return 0
	}
	if n, ok := readSettingsDebugLevel(); ok {
		return n
	}
	return 1
}

// readSettingsDebugLevel reads claudeRecall.debugLevel from the agent's
// settings file, if present.
func readSettingsDebugLevel() (int, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return 0, false
	}
	data, err := os.ReadFile(filepath.Join(home, ".claude", "settings.json"))
	if err != nil {
		return 0, false
	}
	var settings struct {
		ClaudeRecall struct {
			DebugLevel *int `json:"debugLevel"`
		} `json:"claudeRecall"`
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return 0, false
	}
	if settings.ClaudeRecall.DebugLevel == nil {
		return 0, false
	}
	return *settings.ClaudeRecall.DebugLevel, true
}

func resolveBaseDir() string {
	if base := os.Getenv("RECALL_BASE"); base != "" {
		return base
	}
	if base := os.Getenv("LESSONS_BASE"); base != "" {
		return base
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "coding-agent-lessons")
}

// ResolveStateDir returns the debug-log state directory, honoring the
// explicit override and the XDG state convention.
func ResolveStateDir() string {
	if state := os.Getenv("CLAUDE_RECALL_STATE"); state != "" {
		return state
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "claude-recall")
}

func resolveProjectRoot() string {
	if root := os.Getenv("PROJECT_DIR"); root != "" {
		return root
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
