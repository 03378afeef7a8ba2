package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// CreateProjectDir creates an empty project directory under base
func CreateProjectDir(t *testing.T, base, name string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create project directory: %v", err)
	}
	return dir
}

// CreateGitRepo creates a project directory with a minimal .git layout
// (HEAD and config). Nothing shells out to git.
func CreateGitRepo(t *testing.T, base, name, head, config string) string {
	t.Helper()
	dir := CreateProjectDir(t, base, name)
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(gitDir, 0755); err != nil {
		t.Fatalf("Failed to create .git directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte(head), 0644); err != nil {
		t.Fatalf("Failed to write HEAD: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "config"), []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return dir
}

// CreateWorktree creates a project directory whose .git is a "gitdir:" pointer
// file to gitDir, the way linked worktrees are laid out.
func CreateWorktree(t *testing.T, base, name, gitDir string) string {
	t.Helper()
	dir := CreateProjectDir(t, base, name)
	pointer := []byte("gitdir: " + gitDir + "\n")
	if err := os.WriteFile(filepath.Join(dir, ".git"), pointer, 0644); err != nil {
		t.Fatalf("Failed to write .git pointer: %v", err)
	}
	return dir
}

// CreateMarker drops a .tempo marker file into dir
func CreateMarker(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".tempo"), nil, 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
}
