// Package wine invokes Wine, winetricks and the Wine helper programs
// against one prefix with a consistent environment.
package wine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/logging"
)

// Wine runs programs inside one Wine prefix.
type Wine struct {
	runner     command.Runner
	prefix     string
	binDir     string
	winetricks string
	cfg        config.WineConfig
	extra      map[string]string
}

// New binds a Wine build (selected by variant, or the configured default)
// to prefix.
func New(runner command.Runner, cfg *config.Config, prefix, variant string) (*Wine, error) {
	v, err := cfg.Variant(variant)
	if err != nil {
		return nil, err
	}
	return &Wine{
		runner:     runner,
		prefix:     prefix,
		binDir:     v.BinDir,
		winetricks: cfg.Wine.Winetricks,
		cfg:        cfg.Wine,
		extra:      cfg.Env,
	}, nil
}

// Prefix returns the WINEPREFIX.
func (w *Wine) Prefix() string {
	return w.prefix
}

// Bin returns the path of a Wine program for the selected variant.
func (w *Wine) Bin(name string) string {
	if w.binDir == "" {
		return name
	}
	return filepath.Join(w.binDir, name)
}

// Env returns the variables set for every Wine invocation, sorted by name.
// Passthrough entries from the [env] table are not interpreted.
func (w *Wine) Env() []string {
	vars := map[string]string{
		"WINEPREFIX":       w.prefix,
		"WINEDEBUG":        w.cfg.Debug,
		"WINEDLLOVERRIDES": w.cfg.DLLOverrides,
		"WINEESYNC":        boolFlag(w.cfg.Esync),
		"WINEFSYNC":        boolFlag(w.cfg.Fsync),
	}
	if w.cfg.Lang != "" {
		vars["LANG"] = w.cfg.Lang
		vars["LC_ALL"] = w.cfg.Lang
	}
	if w.binDir != "" {
		// winetricks and wineserver must come from the same build.
		vars["WINE"] = w.Bin("wine")
		vars["WINESERVER"] = w.Bin("wineserver")
		vars["PATH"] = w.binDir + string(os.PathListSeparator) + os.Getenv("PATH")
	}
	for k, v := range w.extra {
		vars[k] = v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Command builds a command for a Wine program with the prefix environment.
func (w *Wine) Command(name string, args ...string) command.Command {
	return command.Command{Name: w.Bin(name), Args: args, Env: w.Env()}
}

func (w *Wine) run(ctx context.Context, c command.Command) (string, error) {
	logging.LogCommand(logging.Get("wine"), c.Name, c.Args)
	out, err := w.runner.Run(ctx, c)
	return strings.TrimSpace(string(out)), err
}

// Boot creates or updates the prefix.
func (w *Wine) Boot(ctx context.Context) error {
	if _, err := w.run(ctx, w.Command("wineboot", "--init")); err != nil {
		return fmt.Errorf("wineboot failed: %w", err)
	}
	return nil
}

// WinetricksCommand builds an unattended winetricks run. The installer
// starts it in the background while it watches the registry files.
func (w *Wine) WinetricksCommand(verbs ...string) command.Command {
	args := append([]string{"-q"}, verbs...)
	return command.Command{Name: w.winetricks, Args: args, Env: w.Env()}
}

// Winetricks installs verbs and waits for winetricks to finish.
func (w *Wine) Winetricks(ctx context.Context, verbs ...string) error {
	if _, err := w.run(ctx, w.WinetricksCommand(verbs...)); err != nil {
		return fmt.Errorf("winetricks %s failed: %w", strings.Join(verbs, " "), err)
	}
	return nil
}

// SetWindowsVersion sets the Windows version the prefix reports.
func (w *Wine) SetWindowsVersion(ctx context.Context, version string) error {
	return w.Winetricks(ctx, version)
}

// Winecfg opens the Wine configuration dialog and waits for it to close.
func (w *Wine) Winecfg(ctx context.Context) error {
	if _, err := w.run(ctx, w.Command("winecfg")); err != nil {
		return fmt.Errorf("winecfg failed: %w", err)
	}
	return nil
}

// KillServer stops every process in the prefix.
func (w *Wine) KillServer(ctx context.Context) error {
	if _, err := w.run(ctx, w.Command("wineserver", "-k")); err != nil {
		return fmt.Errorf("wineserver -k failed: %w", err)
	}
	return nil
}

// WindowsPath converts a Unix path to the Windows form used inside the
// prefix.
func (w *Wine) WindowsPath(ctx context.Context, unixPath string) (string, error) {
	out, err := w.run(ctx, w.Command("winepath", "-w", unixPath))
	if err != nil {
		return "", fmt.Errorf("winepath %s failed: %w", unixPath, err)
	}
	if out == "" {
		return "", fmt.Errorf("winepath returned nothing for %s", unixPath)
	}
	// winepath prints one line per argument.
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

// Version reports the wine version string, e.g. "wine-8.0".
func (w *Wine) Version(ctx context.Context) (string, error) {
	out, err := w.run(ctx, w.Command("wine", "--version"))
	if err != nil {
		return "", fmt.Errorf("wine --version failed: %w", err)
	}
	return out, nil
}

// RunExe runs a Windows program and waits for it.
func (w *Wine) RunExe(ctx context.Context, exe string, args ...string) error {
	c := w.Command("wine", append([]string{exe}, args...)...)
	if _, err := w.run(ctx, c); err != nil {
		return fmt.Errorf("wine %s failed: %w", filepath.Base(exe), err)
	}
	return nil
}

// StartExe launches a Windows program without waiting. Output goes to out.
func (w *Wine) StartExe(ctx context.Context, out io.Writer, exe string, args ...string) (command.Process, error) {
	c := w.Command("wine", append([]string{exe}, args...)...)
	c.Stdout = out
	c.Stderr = out
	logging.LogCommand(logging.Get("wine"), c.Name, c.Args)
	return w.runner.Start(ctx, c)
}
