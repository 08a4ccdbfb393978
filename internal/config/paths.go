package config

import (
	"os"
	"path/filepath"
)

// Per-project data directory names. The modern name is preferred on read and
// always used when creating fresh; the legacy name remains readable so
// existing checkouts keep working.
const (
	RecallDirName = ".recall"
	LegacyDirName = ".coding-agent-lessons"
)

// ProjectDataDir resolves the per-project data directory, preferring the
// modern directory when it exists, then the legacy one, defaulting to the
// modern name for new projects.
func (c *Config) ProjectDataDir() string {
	modern := filepath.Join(c.ProjectRoot, RecallDirName)
	if _, err := os.Stat(modern); err == nil {
		return modern
	}
	legacy := filepath.Join(c.ProjectRoot, LegacyDirName)
	if _, err := os.Stat(legacy); err == nil {
		return legacy
	}
	return modern
}

// ProjectLessonsFile is the project-scope lessons store.
func (c *Config) ProjectLessonsFile() string {
	return filepath.Join(c.ProjectDataDir(), "LESSONS.md")
}

// resolveDualName returns the path to use for a file that exists under two
// generations of names: the modern path when present, else the legacy path
// when present, else the modern path rooted in the modern directory.
func (c *Config) resolveDualName(modern, legacy string) string {
	dir := c.ProjectDataDir()
	modernPath := filepath.Join(dir, modern)
	if _, err := os.Stat(modernPath); err == nil {
		return modernPath
	}
	legacyPath := filepath.Join(dir, legacy)
	if _, err := os.Stat(legacyPath); err == nil {
		return legacyPath
	}
	return filepath.Join(c.ProjectRoot, RecallDirName, modern)
}

// ProjectHandoffsFile is the active handoffs store, honoring both filename
// generations.
func (c *Config) ProjectHandoffsFile() string {
	return c.resolveDualName("HANDOFFS.md", "APPROACHES.md")
}

// ProjectHandoffsArchive is the handoffs archive, honoring both filename
// generations.
func (c *Config) ProjectHandoffsArchive() string {
	return c.resolveDualName("HANDOFFS_ARCHIVE.md", "APPROACHES_ARCHIVE.md")
}
