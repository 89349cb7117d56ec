// Package noir holds the shared configuration and error taxonomy for the
// noir image catalog. The catalog itself lives in the store package; the
// query language in expression and expander; ingestion in loader.
package noir

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName names the application directories ("noir" by "anekos").
	AppName = "noir"

	// DefaultDatabaseName is used when neither --path nor --name is given.
	DefaultDatabaseName = "default"

	// DefaultMaxRetry bounds the busy-retry loop around catalog calls.
	DefaultMaxRetry = 10
)

// Config carries the database and alias-file locations shared by every
// subcommand.
type Config struct {
	// DatabaseName selects <name>.sqlite inside the data directory.
	DatabaseName string

	// DatabasePath, when set, overrides DatabaseName entirely.
	DatabasePath string

	// AliasPath, when set, overrides the default global alias file.
	AliasPath string

	// MaxRetry bounds the busy-retry loop (0 means DefaultMaxRetry).
	MaxRetry int
}

// DatabaseFile resolves the catalog database path.
func (c *Config) DatabaseFile() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	name := c.DatabaseName
	if name == "" {
		name = DefaultDatabaseName
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "db", name+".sqlite"), nil
}

// AliasFile resolves the global alias YAML path.
func (c *Config) AliasFile() (string, error) {
	if c.AliasPath != "" {
		return c.AliasPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, "aliases.yaml"), nil
}

// dataDir resolves the per-user application data directory for noir.
func dataDir() (string, error) {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "linux" {
		return filepath.Join(home, ".local", "share", AppName), nil
	}
	// Fall back to the config dir layout on other platforms.
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// Canonical resolves path to its canonical absolute form, following
// symlinks. The file must exist. Catalog comparisons are byte-exact on
// canonical strings.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
