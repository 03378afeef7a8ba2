package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/iksnae/tempo/internal"
)

const (
	gitDirName = ".git"
	markerName = ".tempo"

	descGit    = "Git repository"
	descMarker = "Tempo tracked project"
)

// ErrRelativePath is returned for a path that is not absolute. Clients must
// resolve paths against their own working directory; the daemon's is
// unrelated.
var ErrRelativePath = errors.New("path must be absolute")

// Canonicalize returns the symlink-free form of an absolute path. The path
// must exist.
func Canonicalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &internal.ResolveError{Path: path, Err: errors.New("empty path")}
	}
	if !filepath.IsAbs(path) {
		return "", &internal.ResolveError{Path: path, Err: ErrRelativePath}
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", &internal.ResolveError{Path: path, Err: err}
	}
	return filepath.Clean(resolved), nil
}

// NameFor derives a display name from the last path segment
func NameFor(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "unknown"
	}
	return base
}

// gitDir locates the repository metadata for dir. A .git file holding a
// "gitdir: <path>" pointer (worktrees, submodules) is followed.
func gitDir(dir string) (string, bool) {
	p := filepath.Join(dir, gitDirName)
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		return p, true
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(data))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", false
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		return "", false
	}
	return target, true
}

// Fingerprint hashes the repository HEAD and config of dir. It returns ""
// when dir is not a git checkout or either file is unreadable.
func Fingerprint(dir string) string {
	gd, ok := gitDir(dir)
	if !ok {
		return ""
	}
	head, err := os.ReadFile(filepath.Join(gd, "HEAD"))
	if err != nil {
		internal.LogDebug("fingerprint: no HEAD in %s: %v", gd, err)
		return ""
	}
	config, err := os.ReadFile(filepath.Join(gd, "config"))
	if err != nil {
		// Worktrees keep config in the common dir.
		common, cerr := os.ReadFile(filepath.Join(gd, "commondir"))
		if cerr != nil {
			internal.LogDebug("fingerprint: no config in %s: %v", gd, err)
			return ""
		}
		cd := strings.TrimSpace(string(common))
		if !filepath.IsAbs(cd) {
			cd = filepath.Join(gd, cd)
		}
		if config, err = os.ReadFile(filepath.Join(cd, "config")); err != nil {
			internal.LogDebug("fingerprint: no config in %s: %v", cd, err)
			return ""
		}
	}

	h := xxh3.New()
	_, _ = h.Write(bytes.TrimSpace(head))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(config)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Describe returns the default description for a new project at dir
func Describe(dir string) string {
	if _, ok := gitDir(dir); ok {
		return descGit
	}
	if _, err := os.Stat(filepath.Join(dir, markerName)); err == nil {
		return descMarker
	}
	return ""
}
