package git

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManMan88/wtview/internal/testutil"
)

func TestOpen(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)

	repo, err := Open(repoDir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if repo.Path() != repoDir {
		t.Errorf("Path() = %q, want %q", repo.Path(), repoDir)
	}
}

func TestOpenNonRepo(t *testing.T) {
	testutil.SkipIfNoGit(t)

	if _, err := Open(t.TempDir()); err == nil {
		t.Error("Open() on a non-repository directory should fail")
	}
}

func TestIsGitRepository(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)

	if !IsGitRepository(repoDir) {
		t.Error("IsGitRepository() = false for a valid repository")
	}
	if IsGitRepository(t.TempDir()) {
		t.Error("IsGitRepository() = true for an empty directory")
	}
}

func TestFindRepoRoot(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	subDir := filepath.Join(repoDir, "sub", "deeper")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}

	root, err := FindRepoRoot(subDir)
	if err != nil {
		t.Fatalf("FindRepoRoot() error = %v", err)
	}
	if testutil.ResolvePath(root) != repoDir {
		t.Errorf("FindRepoRoot() = %q, want %q", root, repoDir)
	}
}

func TestIsBare(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	bare, err := repo.IsBare()
	if err != nil {
		t.Fatalf("IsBare() error = %v", err)
	}
	if bare {
		t.Error("IsBare() = true for a normal repository")
	}
}

func TestCurrentBranch(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want %q", branch, "main")
	}
}

func TestCurrentBranchDetached(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	testutil.RunGit(t, repoDir, "checkout", "--detach")
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if branch != "" {
		t.Errorf("CurrentBranch() = %q on detached HEAD, want empty", branch)
	}
}

func TestCurrentBranchUnborn(t *testing.T) {
	repoDir := testutil.CreateEmptyGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if branch != "" {
		t.Errorf("CurrentBranch() = %q before the first commit, want empty", branch)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	dirty, err := repo.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges() error = %v", err)
	}
	if dirty {
		t.Error("fresh repository reported as dirty")
	}

	if err := os.WriteFile(filepath.Join(repoDir, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirty, err = repo.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges() error = %v", err)
	}
	if !dirty {
		t.Error("untracked file not reported as dirty")
	}
}

func TestStageUnstageCommit(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(repoDir, "feature.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := repo.Stage("feature.go"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	out := testutil.RunGit(t, repoDir, "status", "--porcelain")
	if !strings.HasPrefix(out, "A ") {
		t.Fatalf("expected staged file, status: %q", out)
	}

	if err := repo.Unstage("feature.go"); err != nil {
		t.Fatalf("Unstage() error = %v", err)
	}
	out = testutil.RunGit(t, repoDir, "status", "--porcelain")
	if !strings.HasPrefix(out, "??") {
		t.Fatalf("expected untracked file after unstage, status: %q", out)
	}

	if err := repo.Stage("feature.go"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Commit("add feature"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	out = testutil.RunGit(t, repoDir, "log", "-1", "--format=%s")
	if strings.TrimSpace(out) != "add feature" {
		t.Errorf("commit subject = %q, want %q", strings.TrimSpace(out), "add feature")
	}
}

func TestCommitEmptyMessage(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Commit("  "); err == nil {
		t.Error("Commit() with blank message should fail")
	}
}

func TestStageRejectsInvalidPath(t *testing.T) {
	repoDir := testutil.CreateTempGitRepo(t)
	repo, err := Open(repoDir)
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"", "../outside.txt", "-rf"} {
		if err := repo.Stage(path); err == nil {
			t.Errorf("Stage(%q) should fail", path)
		}
	}
}

func TestIsNoUpstreamError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   bool
	}{
		{"no upstream configured", "fatal: no upstream configured for branch 'main'", true},
		{"detached head", "fatal: HEAD does not point to a branch", true},
		{"no such ref", "fatal: no such ref: 'main@{u}'", true},
		{"not a valid ref", "fatal: '@{upstream}' is not a valid ref", true},
		{"unrelated failure", "fatal: not a git repository", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNoUpstreamError(tt.errMsg); got != tt.want {
				t.Errorf("isNoUpstreamError(%q) = %v, want %v", tt.errMsg, got, tt.want)
			}
		})
	}
}

func TestIsUnbornHeadError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   bool
	}{
		{"ambiguous head", "fatal: ambiguous argument 'HEAD': unknown revision or path not in the working tree.", true},
		{"no such branch", "fatal: no such branch: 'main'", true},
		{"unknown revision", "fatal: bad revision: unknown revision or path not in the working tree", true},
		{"unrelated failure", "fatal: not a git repository", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUnbornHeadError(tt.errMsg); got != tt.want {
				t.Errorf("isUnbornHeadError(%q) = %v, want %v", tt.errMsg, got, tt.want)
			}
		})
	}
}
