// Package desktop registers Photoshop with the desktop: a menu entry, the
// PSD MIME type and an icon. The refresh tools are called best-effort.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
)

const (
	// EntryName is the desktop file name.
	EntryName = "photoshop.desktop"

	// MimeType is the type registered for PSD and PSB files.
	MimeType = "image/vnd.adobe.photoshop"

	// IconName is the themed icon name used by the entry.
	IconName = "photoshop"
)

// Journal records how to undo each write. checkpoint.Manager implements it.
type Journal interface {
	Modifying(path string) error
	Compensate(target string, argv ...string) error
}

// Integrator writes desktop files under an XDG data home.
type Integrator struct {
	fs       afero.Fs
	runner   command.Runner
	journal  Journal
	dataHome string
}

// New returns an Integrator writing below dataHome (usually
// $XDG_DATA_HOME). journal may be nil when nothing needs undoing.
func New(fsys afero.Fs, runner command.Runner, journal Journal, dataHome string) *Integrator {
	return &Integrator{fs: fsys, runner: runner, journal: journal, dataHome: dataHome}
}

// EntryPath is where the desktop entry is written.
func (i *Integrator) EntryPath() string {
	return filepath.Join(i.dataHome, "applications", EntryName)
}

// MimePath is the shared-mime-info package file.
func (i *Integrator) MimePath() string {
	return filepath.Join(i.dataHome, "mime", "packages", "photoshop.xml")
}

// IconPath is the 256x256 hicolor icon.
func (i *Integrator) IconPath() string {
	return filepath.Join(i.dataHome, "icons", "hicolor", "256x256", "apps", IconName+".png")
}

// Install writes the entry, the MIME package and, when iconSrc exists, the
// icon. exe is the program the entry launches.
func (i *Integrator) Install(ctx context.Context, exe, iconSrc string) error {
	logger := logging.Get("desktop")

	// Refresh commands are journaled before the files they refresh, so a
	// rollback removes the file first and refreshes after.
	mimeDir := filepath.Join(i.dataHome, "mime")
	if err := i.compensate("mime", "update-mime-database", mimeDir); err != nil {
		return err
	}
	if err := i.write(i.MimePath(), []byte(mimePackage)); err != nil {
		return err
	}
	i.refresh(ctx, "update-mime-database", mimeDir)

	appsDir := filepath.Dir(i.EntryPath())
	if err := i.compensate("applications", "update-desktop-database", appsDir); err != nil {
		return err
	}
	if err := i.write(i.EntryPath(), []byte(Entry(exe))); err != nil {
		return err
	}
	i.refresh(ctx, "update-desktop-database", appsDir)

	if iconSrc == "" {
		return nil
	}
	icon, err := afero.ReadFile(i.fs, iconSrc)
	if err != nil {
		logger.Warn().Err(err).Str("icon", iconSrc).Msg("icon not installed")
		return nil
	}
	iconTheme := filepath.Join(i.dataHome, "icons", "hicolor")
	if err := i.compensate("icons", "gtk-update-icon-cache", "-f", "-t", iconTheme); err != nil {
		return err
	}
	if err := i.write(i.IconPath(), icon); err != nil {
		return err
	}
	i.refresh(ctx, "gtk-update-icon-cache", "-f", "-t", iconTheme)

	return nil
}

// Remove deletes every file Install writes and refreshes the databases.
// Missing files are ignored.
func (i *Integrator) Remove(ctx context.Context) error {
	var errs []error
	for _, path := range []string{i.EntryPath(), i.MimePath(), i.IconPath()} {
		if err := i.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
		}
	}
	i.refresh(ctx, "update-mime-database", filepath.Join(i.dataHome, "mime"))
	i.refresh(ctx, "update-desktop-database", filepath.Join(i.dataHome, "applications"))
	return errors.Join(errs...)
}

// Installed reports whether the desktop entry exists.
func (i *Integrator) Installed() bool {
	ok, err := afero.Exists(i.fs, i.EntryPath())
	return err == nil && ok
}

func (i *Integrator) write(path string, data []byte) error {
	if err := i.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if i.journal != nil {
		if err := i.journal.Modifying(path); err != nil {
			return err
		}
	}
	if err := afero.WriteFile(i.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (i *Integrator) compensate(target string, argv ...string) error {
	if i.journal == nil {
		return nil
	}
	return i.journal.Compensate(target, argv...)
}

// refresh runs a database update tool. A missing tool or a failure is
// logged and otherwise ignored.
func (i *Integrator) refresh(ctx context.Context, name string, args ...string) {
	logger := logging.Get("desktop")
	if _, err := i.runner.LookPath(name); err != nil {
		logger.Debug().Str("tool", name).Msg("refresh tool not installed, skipping")
		return
	}
	if _, err := i.runner.Run(ctx, command.Command{Name: name, Args: args}); err != nil {
		logger.Warn().Err(err).Str("tool", name).Msg("refresh failed")
	}
}

// Entry renders the desktop entry launching exe.
func Entry(exe string) string {
	execLine := exe
	if strings.ContainsAny(exe, " \t\"") {
		execLine = `"` + strings.ReplaceAll(exe, `"`, `\"`) + `"`
	}

	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=Photoshop CC\n")
	b.WriteString("Comment=Adobe Photoshop CC running under Wine\n")
	fmt.Fprintf(&b, "Exec=%s launch %%F\n", execLine)
	fmt.Fprintf(&b, "Icon=%s\n", IconName)
	b.WriteString("Terminal=false\n")
	b.WriteString("StartupNotify=true\n")
	b.WriteString("StartupWMClass=photoshop.exe\n")
	b.WriteString("Categories=Graphics;2DGraphics;RasterGraphics;\n")
	fmt.Fprintf(&b, "MimeType=%s;\n", MimeType)
	return b.String()
}

const mimePackage = `<?xml version="1.0" encoding="UTF-8"?>
<mime-info xmlns="http://www.freedesktop.org/standards/shared-mime-info">
  <mime-type type="image/vnd.adobe.photoshop">
    <comment>Photoshop image</comment>
    <glob pattern="*.psd"/>
    <glob pattern="*.psb"/>
  </mime-type>
</mime-info>
`
