package testutil

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// SkipIfNoGit skips the test if git is not available.
func SkipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping")
	}
}

// ResolvePath resolves Windows 8.3 short paths (e.g., WTVIEW~1 -> wtview)
// so that paths match git's output which always uses long path names.
// Note: filepath.EvalSymlinks on Windows also resolves 8.3 short names as a
// side effect, which is the primary purpose here (not symlink resolution).
// Returns the original path if resolution fails.
func ResolvePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		slog.Debug("[DEBUG-TEST] EvalSymlinks failed, using original path",
			"path", path, "error", err)
		return path
	}
	return resolved
}

// RunGit runs a git command in dir, failing the test on error. Returns
// combined output for assertions.
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

// CreateTempGitRepo creates a temporary git repository with one commit on
// branch "main". The returned path has Windows 8.3 short paths resolved.
func CreateTempGitRepo(t *testing.T) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := ResolvePath(t.TempDir())
	RunGit(t, dir, "init", "-b", "main")
	RunGit(t, dir, "config", "user.email", "test@test.com")
	RunGit(t, dir, "config", "user.name", "Test")

	// Create an initial commit so HEAD exists.
	WriteAndCommit(t, dir, "README.md", "# test", "initial")
	return dir
}

// CreateEmptyGitRepo creates a temporary git repository with no commits, so
// HEAD points at an unborn "main" branch.
func CreateEmptyGitRepo(t *testing.T) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := ResolvePath(t.TempDir())
	RunGit(t, dir, "init", "-b", "main")
	RunGit(t, dir, "config", "user.email", "test@test.com")
	RunGit(t, dir, "config", "user.name", "Test")
	return dir
}

// WriteAndCommit writes content to a repository-relative file and commits it.
func WriteAndCommit(t *testing.T, dir string, relPath string, content string, message string) {
	t.Helper()
	fullPath := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	RunGit(t, dir, "add", relPath)
	RunGit(t, dir, "commit", "-m", message)
}

// CreateBranch creates a branch at the current HEAD without checking it out.
func CreateBranch(t *testing.T, dir string, name string) {
	t.Helper()
	RunGit(t, dir, "branch", name)
}

// AddWorktree creates a linked worktree for an existing branch and returns
// its resolved path.
func AddWorktree(t *testing.T, dir string, branch string) string {
	t.Helper()
	wtPath := ResolvePath(t.TempDir())
	// git refuses to add a worktree into an existing dir's root; use a
	// subdirectory.
	wtPath = filepath.Join(wtPath, branch)
	RunGit(t, dir, "worktree", "add", wtPath, branch)
	return ResolvePath(wtPath)
}
