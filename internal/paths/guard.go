package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Guard accepts a path only when its canonical form lies strictly inside
// one of a fixed set of permitted roots.
type Guard struct {
	roots []string
}

// NewGuard builds a Guard over the given roots. Empty roots are ignored and
// each root is canonicalized once up front.
func NewGuard(roots ...string) *Guard {
	g := &Guard{}
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		canonical, err := Canonicalize(ExpandHome(root))
		if err != nil {
			continue
		}
		g.roots = append(g.roots, canonical)
	}
	return g
}

// Roots returns the canonical roots the guard permits.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Check validates path and returns its canonical form. A root itself is
// rejected: removing $HOME is never a valid operation.
func (g *Guard) Check(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	canonical, err := Canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %v", ErrUnsafePath, path, err)
	}

	// The canonical form may land somewhere the literal path did not.
	if err := ValidatePath(canonical); err != nil {
		return "", err
	}

	for _, root := range g.roots {
		if canonical == root {
			return "", fmt.Errorf("%w: %s is a protected root", ErrUnsafePath, canonical)
		}
		if strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return canonical, nil
		}
	}

	return "", fmt.Errorf("%w: %s is outside the permitted roots %v", ErrUnsafePath, canonical, g.roots)
}

// Canonicalize makes path absolute and clean, then resolves symlinks on the
// longest prefix that exists. Components that do not exist yet are joined
// back unchanged, so a path can be checked before it is created.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var rest []string
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// CheckLink is Check for a symlink that is about to be created or removed.
// Only the parent directory is resolved; the link itself is not followed.
func (g *Guard) CheckLink(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	parent, err := g.checkDir(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

// checkDir is Check without the protected-root rule, for parents of targets.
func (g *Guard) checkDir(dir string) (string, error) {
	if err := ValidatePath(dir); err != nil {
		return "", err
	}
	canonical, err := Canonicalize(dir)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %v", ErrUnsafePath, dir, err)
	}
	for _, root := range g.roots {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("%w: %s is outside the permitted roots %v", ErrUnsafePath, canonical, g.roots)
}
