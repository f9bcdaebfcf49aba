package gitx

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setupTestRepo creates a temporary git repository with one commit.
func setupTestRepo(t *testing.T) *Repo {
	t.Helper()

	if !Installed() {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	run("config", "commit.gpgsign", "false")
	run("config", "tag.gpgsign", "false")

	if err := os.WriteFile(filepath.Join(tmpDir, "package.json"), []byte(`{"version":"1.0.0"}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run("add", "package.json")
	run("commit", "-m", "feat: initial release tooling")

	repo, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return repo
}

func commitFile(t *testing.T, repo *Repo, name, message string) {
	t.Helper()
	path := filepath.Join(repo.Root(), name)
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	ctx := context.Background()
	if err := repo.Add(ctx, name); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := repo.Commit(ctx, message, false); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func TestOpenOutsideRepo(t *testing.T) {
	if !Installed() {
		t.Skip("git not installed")
	}
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNotARepo) {
		t.Errorf("Open() error = %v, want ErrNotARepo", err)
	}
}

func TestIsClean(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	clean, err := repo.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean() failed: %v", err)
	}
	if !clean {
		t.Error("IsClean() = false on fresh commit")
	}

	if err := os.WriteFile(filepath.Join(repo.Root(), "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	clean, err = repo.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean() failed: %v", err)
	}
	if clean {
		t.Error("IsClean() = true with untracked file")
	}
}

func TestTagLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateTag(ctx, TagOptions{Name: "v1.0.0", Message: "Release v1.0.0"}); err != nil {
		t.Fatalf("CreateTag() failed: %v", err)
	}
	if !repo.TagExists(ctx, "v1.0.0") {
		t.Fatal("TagExists() = false after CreateTag")
	}

	// Duplicate create must fail.
	err := repo.CreateTag(ctx, TagOptions{Name: "v1.0.0"})
	if !errors.Is(err, ErrTagExists) {
		t.Errorf("duplicate CreateTag() error = %v, want ErrTagExists", err)
	}

	if err := repo.DeleteTag(ctx, "v1.0.0"); err != nil {
		t.Fatalf("DeleteTag() failed: %v", err)
	}
	if repo.TagExists(ctx, "v1.0.0") {
		t.Error("TagExists() = true after DeleteTag")
	}
	if err := repo.DeleteTag(ctx, "v1.0.0"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("DeleteTag() on missing tag = %v, want ErrTagNotFound", err)
	}
}

func TestListReleaseTags(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"v1.0.0", "v1.2.0", "v1.10.0", "v2.0.0-rc.1", "not-a-release", "v1.0"} {
		cmd := exec.Command("git", "tag", "-a", "-m", name, name)
		cmd.Dir = repo.Root()
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git tag %s: %v\n%s", name, err, out)
		}
	}

	tags, err := repo.ListReleaseTags(ctx)
	if err != nil {
		t.Fatalf("ListReleaseTags() failed: %v", err)
	}
	if len(tags) != 4 {
		t.Fatalf("got %d release tags, want 4: %+v", len(tags), tags)
	}
	// Descending by semver, prerelease below its release.
	if tags[0].Version != "2.0.0-rc.1" || tags[1].Version != "1.10.0" {
		t.Errorf("tag order wrong: %+v", tags)
	}

	latest, err := repo.LatestReleaseTag(ctx)
	if err != nil {
		t.Fatalf("LatestReleaseTag() failed: %v", err)
	}
	if latest.Version != "2.0.0-rc.1" {
		t.Errorf("LatestReleaseTag() = %s", latest.Version)
	}

	prev, err := repo.PreviousReleaseTag(ctx, "1.10.0")
	if err != nil {
		t.Fatalf("PreviousReleaseTag() failed: %v", err)
	}
	if prev.Version != "1.2.0" {
		t.Errorf("PreviousReleaseTag(1.10.0) = %s, want 1.2.0", prev.Version)
	}

	if _, err := repo.PreviousReleaseTag(ctx, "1.0.0"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("PreviousReleaseTag(1.0.0) error = %v, want ErrTagNotFound", err)
	}
}

func TestCommitsSinceLastRelease(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateTag(ctx, TagOptions{Name: "v1.0.0"}); err != nil {
		t.Fatalf("CreateTag() failed: %v", err)
	}
	commitFile(t, repo, "a.txt", "feat: add feature a")
	commitFile(t, repo, "b.txt", "fix(core): fix bug b")

	commits, last, err := repo.CommitsSinceLastRelease(ctx)
	if err != nil {
		t.Fatalf("CommitsSinceLastRelease() failed: %v", err)
	}
	if last.Name != "v1.0.0" {
		t.Errorf("last tag = %q, want v1.0.0", last.Name)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	if commits[0].Subject != "add feature a" {
		t.Errorf("commits[0].Subject = %q", commits[0].Subject)
	}
	if commits[1].Scope != "core" {
		t.Errorf("commits[1].Scope = %q", commits[1].Scope)
	}
}

func TestResolveRef(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	head, err := repo.Head(ctx)
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("Head() = %q, want 40-char hash", head)
	}

	if _, err := repo.ResolveRef(ctx, "no-such-ref"); !errors.Is(err, ErrRefNotFound) {
		t.Errorf("ResolveRef() error = %v, want ErrRefNotFound", err)
	}
}
