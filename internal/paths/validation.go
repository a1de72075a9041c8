// Package paths validates and guards filesystem paths before pswine
// touches them.
//
// ValidatePath is the compatibility check carried over from the original
// scripts: a fixed denylist of system prefixes. Guard is the stricter
// allow-list check used before anything destructive (directory removal,
// symlink creation, rollback).
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is wrapped by every rejection from ValidatePath and Guard.
var ErrUnsafePath = errors.New("unsafe path")

// systemPrefixes are never valid install, cache or removal targets.
var systemPrefixes = []string{
	"/etc",
	"/usr/bin",
	"/usr/sbin",
	"/bin",
	"/sbin",
	"/lib",
	"/var/log",
	"/root",
	"/sys",
	"/proc",
	"/dev",
}

// ValidatePath rejects empty paths, paths with a ".." element and paths
// equal to or below one of the system prefixes. The path is checked as
// given: no normalization and no symlink resolution.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is empty", ErrUnsafePath)
	}

	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: path contains null bytes", ErrUnsafePath)
	}

	// The record file stores one path per line.
	if strings.ContainsAny(path, "\n\r") {
		return fmt.Errorf("%w: path contains a line break", ErrUnsafePath)
	}

	for _, elem := range strings.Split(path, "/") {
		if elem == ".." {
			return fmt.Errorf("%w: %s traverses a parent directory", ErrUnsafePath, path)
		}
	}

	for _, prefix := range systemPrefixes {
		if underPrefix(path, prefix) {
			return fmt.Errorf("%w: %s is inside system directory %s", ErrUnsafePath, path, prefix)
		}
	}

	return nil
}

// underPrefix matches whole path components, so /library is not under /lib.
func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// shellMeta lists the sequences stripped by SanitizeInput. "$(" must come
// before the single-character entries.
var shellMeta = []string{"$(", "`", ";", "|", "<", ">", "&", "\n", "\r"}

// SanitizeInput strips shell metacharacters from user-supplied text such
// as checkpoint names. Alphanumerics and other punctuation are kept.
func SanitizeInput(input string) string {
	out := input
	for {
		prev := out
		for _, meta := range shellMeta {
			out = strings.ReplaceAll(out, meta, "")
		}
		// Removing one sequence can join the halves of another ("$`(").
		if out == prev {
			return out
		}
	}
}
