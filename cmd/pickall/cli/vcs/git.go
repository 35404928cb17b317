package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ExecGateway is the production Gateway. Read-side inspection goes through
// go-git; porcelain mutations (checkout, cherry-pick, add) shell out to the
// git executable so conflict markers, hooks, and messages behave exactly as
// they would on the command line.
type ExecGateway struct {
	root string
	repo *git.Repository
}

var _ Gateway = (*ExecGateway)(nil)

// NewExecGateway opens the repository rooted at root. Returns ErrGitNotFound
// if the git executable is unavailable; there is no fallback for that.
func NewExecGateway(root string) (*ExecGateway, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotFound
	}

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", root, err)
	}

	return &ExecGateway{root: root, repo: repo}, nil
}

// git runs a git command in the repository root and captures its output.
func (g *ExecGateway) git(ctx context.Context, args ...string) Result {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
		Ok:     err == nil,
	}
}

func (g *ExecGateway) CurrentBranch() (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash().String()[:8])
	}
	return head.Name().Short(), nil
}

func (g *ExecGateway) Head() (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g *ExecGateway) Branches() ([]string, error) {
	iter, err := g.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating branches: %w", err)
	}

	// go-git iteration order depends on storage; sort for the stable order
	// `git branch` would print.
	sort.Strings(names)
	return names, nil
}

func (g *ExecGateway) LastCommits(_ context.Context, n int) ([]Commit, error) {
	if n < 1 {
		return nil, fmt.Errorf("commit count must be at least 1, got %d", n)
	}

	iter, err := g.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer iter.Close()

	// Newest-first from the iterator; collect n then reverse to oldest-first.
	var commits []Commit
	for len(commits) < n {
		c, err := iter.Next()
		if err != nil {
			break // end of history: proceed with what exists
		}
		subject, body := splitMessage(c.Message)
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Subject: subject,
			Body:    body,
		})
	}

	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

func (g *ExecGateway) BranchContains(hash, branch string) (bool, error) {
	ref, err := g.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return false, fmt.Errorf("resolving branch %s: %w", branch, err)
	}

	target, err := g.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return false, fmt.Errorf("resolving commit %s: %w", hash, err)
	}

	if target.Hash == ref.Hash() {
		return true, nil
	}

	tip, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return false, fmt.Errorf("resolving tip of %s: %w", branch, err)
	}

	reachable, err := target.IsAncestor(tip)
	if err != nil {
		return false, fmt.Errorf("checking ancestry of %s on %s: %w", hash, branch, err)
	}
	return reachable, nil
}

func (g *ExecGateway) HasUncommittedChanges() (bool, error) {
	ctx := context.Background()
	workingClean := g.git(ctx, "diff", "--quiet").Ok
	stagedClean := g.git(ctx, "diff", "--cached", "--quiet").Ok
	return !workingClean || !stagedClean, nil
}

// gitDir resolves the .git directory, which may be relative to the repo root.
func (g *ExecGateway) gitDir() (string, error) {
	res := g.git(context.Background(), "rev-parse", "--git-dir")
	if !res.Ok {
		return "", fmt.Errorf("resolving git dir: %s", res.Output())
	}
	dir := res.Stdout
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.root, dir)
	}
	return dir, nil
}

func (g *ExecGateway) ReplayInProgress() (bool, error) {
	dir, err := g.gitDir()
	if err != nil {
		return false, err
	}

	// Several sentinel files can legitimately coexist; check them all.
	for _, marker := range []string{"rebase-merge", "rebase-apply", "CHERRY_PICK_HEAD", "MERGE_HEAD"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (g *ExecGateway) CherryPickHeadExists() (bool, error) {
	dir, err := g.gitDir()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, "CHERRY_PICK_HEAD"))
	return err == nil, nil
}

func (g *ExecGateway) HasConflicts() (bool, error) {
	// diff --check fails on conflict markers; the unresolved-path list catches
	// binary conflicts that carry no markers. Either alone can under-report.
	if !g.git(context.Background(), "diff", "--check").Ok {
		return true, nil
	}

	paths, err := g.ConflictedPaths()
	if err != nil {
		return false, err
	}
	return len(paths) > 0, nil
}

func (g *ExecGateway) ConflictedPaths() ([]string, error) {
	return g.pathList("diff", "--name-only", "--diff-filter=U")
}

func (g *ExecGateway) StagedPaths() ([]string, error) {
	return g.pathList("diff", "--cached", "--name-only")
}

func (g *ExecGateway) ModifiedPaths() ([]string, error) {
	return g.pathList("diff", "--name-only")
}

func (g *ExecGateway) pathList(args ...string) ([]string, error) {
	res := g.git(context.Background(), args...)
	if !res.Ok {
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), res.Output())
	}

	var paths []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

func (g *ExecGateway) CherryPick(ctx context.Context, commits []Commit) Result {
	if len(commits) == 1 {
		return g.git(ctx, "cherry-pick", commits[0].Hash)
	}
	// Inclusive range: parent-of-oldest .. newest.
	rangeSpec := commits[0].Hash + "^.." + commits[len(commits)-1].Hash
	return g.git(ctx, "cherry-pick", rangeSpec)
}

func (g *ExecGateway) CherryPickContinue(ctx context.Context) Result {
	return g.git(ctx, "cherry-pick", "--continue")
}

func (g *ExecGateway) CherryPickAbort(ctx context.Context) Result {
	return g.git(ctx, "cherry-pick", "--abort")
}

func (g *ExecGateway) Checkout(ctx context.Context, branch string) Result {
	return g.git(ctx, "checkout", branch)
}

func (g *ExecGateway) StageFile(ctx context.Context, path string) Result {
	return g.git(ctx, "add", "--", path)
}

// ShowFileAtHead returns the file's HEAD blob verbatim. The output is not
// trimmed: the trailing newline has to survive so a diff against the working
// tree does not flag the last line of every file.
func (g *ExecGateway) ShowFileAtHead(path string) (string, error) {
	cmd := exec.CommandContext(context.Background(), "git", "show", "HEAD:"+path)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("reading %s at HEAD: %s", path, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (g *ExecGateway) ChangeSetPatch(ctx context.Context, commits []Commit) (string, error) {
	args := []string{"show", "--patch"}
	for _, c := range commits {
		args = append(args, c.Hash)
	}
	res := g.git(ctx, args...)
	if !res.Ok {
		return "", fmt.Errorf("reading change-set patch: %s", res.Output())
	}
	return res.Stdout, nil
}

// splitMessage splits a raw commit message into subject and body.
func splitMessage(message string) (subject, body string) {
	parts := strings.SplitN(message, "\n", 2)
	subject = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		body = strings.TrimSpace(parts[1])
	}
	return subject, body
}
