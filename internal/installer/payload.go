package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/wine"
)

var (
	// ErrUnsupportedPayload is returned for an installer that is neither an
	// .exe, a tar archive nor a directory.
	ErrUnsupportedPayload = errors.New("unsupported installer payload")

	// ErrPayloadIncomplete is returned when Photoshop.exe is still missing
	// after the payload step.
	ErrPayloadIncomplete = errors.New("photoshop executable not found after install")
)

var archiveSuffixes = []string{".tar", ".tgz", ".tar.gz", ".tar.xz", ".tar.bz2"}

// ExePath is Photoshop.exe inside the prefix of rec.
func ExePath(rec *record.InstallationRecord, exeRel string) string {
	return filepath.Join(rec.PrefixPath(), "drive_c", filepath.FromSlash(exeRel))
}

// installPayload puts Photoshop into the prefix from payload.
func (in *Installer) installPayload(ctx context.Context, w *wine.Wine, rec *record.InstallationRecord, payload string) error {
	logger := logging.Get("installer")
	exe := ExePath(rec, in.Config.Wine.PhotoshopExe)

	if payload == "" {
		if ok, _ := afero.Exists(in.FS, exe); !ok {
			fmt.Fprintf(in.Out, "\nNo installer given. Run 'pswine setup --installer <path>' with the Adobe installer to finish.\n")
		}
		return nil
	}

	info, err := in.FS.Stat(payload)
	if err != nil {
		return fmt.Errorf("installer %s: %w", payload, err)
	}

	dest := filepath.Dir(exe)
	lower := strings.ToLower(payload)
	switch {
	case info.IsDir():
		if err := in.mkdir(dest); err != nil {
			return err
		}
		if err := copyTree(in.FS, payload, dest); err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".exe"):
		if err := w.RunExe(ctx, payload); err != nil {
			return err
		}
	case hasArchiveSuffix(lower):
		if err := in.mkdir(dest); err != nil {
			return err
		}
		c := command.Command{Name: "tar", Args: []string{"-xf", payload, "-C", dest}}
		logging.LogCommand(logger, c.Name, c.Args)
		if _, err := in.Runner.Run(ctx, c); err != nil {
			return fmt.Errorf("failed to extract %s: %w", filepath.Base(payload), err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPayload, payload)
	}

	if ok, _ := afero.Exists(in.FS, exe); !ok {
		return fmt.Errorf("%w: %s", ErrPayloadIncomplete, exe)
	}
	logger.Info().Str("exe", exe).Msg("photoshop installed")
	return nil
}

func hasArchiveSuffix(name string) bool {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// copyTree copies the contents of src into dst, keeping file modes.
func copyTree(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return fsys.MkdirAll(target, info.Mode().Perm()|0700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(fsys, path, target, info.Mode().Perm())
	})
}

func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
