// Package config loads pswine's TOML configuration.
//
// Every field has a default, so a missing config file is not an error. The
// file only needs to name what differs from the defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/paths"
)

const (
	// AppName names the XDG subdirectories.
	AppName = "pswine"

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "PSWINE_CONFIG"

	// FileName is the config file inside the config directory.
	FileName = "config.toml"
)

// Config is the complete pswine configuration.
type Config struct {
	Paths     PathsConfig       `toml:"paths"`
	Wine      WineConfig        `toml:"wine"`
	Env       map[string]string `toml:"env"`
	Retry     RetryConfig       `toml:"retry"`
	Wait      WaitConfig        `toml:"wait"`
	Update    UpdateConfig      `toml:"update"`
	Uninstall UninstallConfig   `toml:"uninstall"`
}

// PathsConfig controls where pswine reads and writes.
type PathsConfig struct {
	RecordFile        string   `toml:"record_file"`
	DefaultInstallDir string   `toml:"default_install_dir"`
	DefaultCacheDir   string   `toml:"default_cache_dir"`
	BinDir            string   `toml:"bin_dir"`
	AllowedRoots      []string `toml:"allowed_roots"`
}

// WineConfig describes how Wine is invoked.
type WineConfig struct {
	Variant        string                   `toml:"variant"`
	Variants       map[string]VariantConfig `toml:"variants"`
	Winetricks     string                   `toml:"winetricks"`
	Components     []string                 `toml:"components"`
	WindowsVersion string                   `toml:"windows_version"`
	Debug          string                   `toml:"debug"`
	DLLOverrides   string                   `toml:"dll_overrides"`
	Esync          bool                     `toml:"esync"`
	Fsync          bool                     `toml:"fsync"`
	Lang           string                   `toml:"lang"`
	PhotoshopExe   string                   `toml:"photoshop_exe"`
	Icon           string                   `toml:"icon"`
}

// VariantConfig locates one Wine build. An empty BinDir means the tools
// are looked up on PATH.
type VariantConfig struct {
	BinDir string `toml:"bin_dir"`
}

// RetryConfig is the policy for flaky external tools such as winetricks.
type RetryConfig struct {
	Attempts    int    `toml:"attempts"`
	Delay       string `toml:"delay"`
	MaxDelay    string `toml:"max_delay"`
	Exponential bool   `toml:"exponential"`
}

// WaitConfig controls the stable-file wait on Wine's registry files.
type WaitConfig struct {
	Interval string `toml:"interval"`
	Timeout  string `toml:"timeout"`
}

// UpdateConfig controls the background release check.
type UpdateConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Timeout string `toml:"timeout"`
}

// UninstallConfig holds the optional command that removes Wine itself.
type UninstallConfig struct {
	PurgeCommand []string `toml:"purge_command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Paths: PathsConfig{
			RecordFile:        filepath.Join(home, ".psdata.txt"),
			DefaultInstallDir: filepath.Join(home, ".photoshopCCV19"),
			DefaultCacheDir:   filepath.Join(xdg.CacheHome, "photoshopCCV19"),
			BinDir:            filepath.Join(home, ".local", "bin"),
		},
		Wine: WineConfig{
			Variant: "system",
			Variants: map[string]VariantConfig{
				"system": {},
			},
			Winetricks: "winetricks",
			Components: []string{
				"fontsmooth=rgb", "gdiplus", "msxml3", "msxml6", "atmlib",
				"corefonts", "vcrun2010", "vcrun2012", "vcrun2013", "vcrun2015",
			},
			WindowsVersion: "win10",
			Debug:          "-all",
			DLLOverrides:   "winemenubuilder.exe=d",
			Esync:          true,
			PhotoshopExe:   "Program Files/Adobe/Adobe Photoshop CC 2019/Photoshop.exe",
		},
		Env: map[string]string{},
		Retry: RetryConfig{
			Attempts:    3,
			Delay:       "2s",
			MaxDelay:    "30s",
			Exponential: true,
		},
		Wait: WaitConfig{
			Interval: "2s",
			Timeout:  "5m",
		},
		Update: UpdateConfig{
			Enabled: true,
			URL:     "https://api.github.com/repos/blackwell-systems/pswine/releases/latest",
			Timeout: "5s",
		},
	}
}

// Dir returns the pswine config directory, respecting XDG_CONFIG_HOME.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir holds the checkpoint files and the journal database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir holds the log file.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Path resolves the config file: an explicit path wins, then
// $PSWINE_CONFIG, then the XDG location.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return filepath.Join(Dir(), FileName)
}

// Load reads the config file at path over the defaults. A missing file
// yields the defaults.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// expand resolves ~ in every user-supplied path.
func (c *Config) expand() {
	c.Paths.RecordFile = paths.ExpandHome(c.Paths.RecordFile)
	c.Paths.DefaultInstallDir = paths.ExpandHome(c.Paths.DefaultInstallDir)
	c.Paths.DefaultCacheDir = paths.ExpandHome(c.Paths.DefaultCacheDir)
	c.Paths.BinDir = paths.ExpandHome(c.Paths.BinDir)
	for i, root := range c.Paths.AllowedRoots {
		c.Paths.AllowedRoots[i] = paths.ExpandHome(root)
	}
	for name, v := range c.Wine.Variants {
		v.BinDir = paths.ExpandHome(v.BinDir)
		c.Wine.Variants[name] = v
	}
	c.Wine.Icon = paths.ExpandHome(c.Wine.Icon)
}

// Validate checks that durations parse and the selected variant exists.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}

	for name, value := range map[string]string{
		"retry.delay":     c.Retry.Delay,
		"retry.max_delay": c.Retry.MaxDelay,
		"wait.interval":   c.Wait.Interval,
		"wait.timeout":    c.Wait.Timeout,
		"update.timeout":  c.Update.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if _, err := c.Variant(c.Wine.Variant); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Variant looks up a Wine variant by tag. An empty tag selects the
// configured default.
func (c *Config) Variant(tag string) (VariantConfig, error) {
	if tag == "" {
		tag = c.Wine.Variant
	}
	v, ok := c.Wine.Variants[tag]
	if !ok {
		return VariantConfig{}, fmt.Errorf("unknown wine variant %q", tag)
	}
	return v, nil
}

// RetryDelay returns the initial retry delay.
func (c *Config) RetryDelay() time.Duration {
	return mustDuration(c.Retry.Delay)
}

// RetryMaxDelay caps exponential retry delays.
func (c *Config) RetryMaxDelay() time.Duration {
	return mustDuration(c.Retry.MaxDelay)
}

// WaitInterval is the polling interval of the stable-file wait.
func (c *Config) WaitInterval() time.Duration {
	return mustDuration(c.Wait.Interval)
}

// WaitTimeout bounds the stable-file wait.
func (c *Config) WaitTimeout() time.Duration {
	return mustDuration(c.Wait.Timeout)
}

// UpdateTimeout bounds the release check request.
func (c *Config) UpdateTimeout() time.Duration {
	return mustDuration(c.Update.Timeout)
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
