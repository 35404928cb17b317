// Package vcs provides the version-control gateway for pickall.
//
// The Gateway interface abstracts every git operation the run controller
// needs, enabling a fake in-memory implementation for tests (see vcstest).
// The real implementation combines go-git for repository inspection with the
// git executable for porcelain mutations, so behavior matches what a user
// would see running the same commands by hand.
package vcs

import (
	"context"
	"errors"
)

// ErrGitNotFound indicates the git executable is not installed or not in PATH.
// This is the one environment error with no fallback: callers should exit.
var ErrGitNotFound = errors.New("git executable not found in PATH")

// Commit is one unit of replication. Immutable once created; ordered
// oldest-first wherever a sequence of them appears.
type Commit struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject"`
	Body    string `json:"body,omitempty"`
}

// ShortHash returns an abbreviated hash for display.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 8 {
		return c.Hash[:8]
	}
	return c.Hash
}

// Result carries the outcome of a porcelain git invocation.
type Result struct {
	Stdout string
	Stderr string
	Ok     bool
}

// Output returns the most useful diagnostic text: stderr if present,
// otherwise stdout.
func (r Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Gateway issues primitive operations against the repository.
// No method panics; a missing git binary is reported by the constructor of the
// real implementation, not by individual calls.
type Gateway interface {
	// CurrentBranch returns the short name of the checked-out branch,
	// or an error in detached-HEAD state.
	CurrentBranch() (string, error)

	// Head returns the full hash of the commit HEAD points at.
	Head() (string, error)

	// Branches enumerates local branches by short name, sorted.
	Branches() ([]string, error)

	// LastCommits returns up to n commits reachable from HEAD, oldest-first,
	// with subject and body populated.
	LastCommits(ctx context.Context, n int) ([]Commit, error)

	// BranchContains reports whether the commit is reachable from the branch tip.
	BranchContains(hash, branch string) (bool, error)

	// HasUncommittedChanges reports edits to tracked files, checking the
	// working tree and the staged index separately. Untracked files are ignored.
	HasUncommittedChanges() (bool, error)

	// ReplayInProgress reports whether a cherry-pick, rebase, or merge is
	// mid-flight. Checks all sentinel markers, since several can coexist.
	ReplayInProgress() (bool, error)

	// CherryPickHeadExists reports whether a cherry-pick specifically is
	// mid-flight.
	CherryPickHeadExists() (bool, error)

	// HasConflicts reports unresolved overlaps. Both the structural check
	// (diff --check) and the unresolved-path list are consulted, since either
	// alone can under-report.
	HasConflicts() (bool, error)

	// ConflictedPaths lists paths with unresolved overlaps, repo-root relative.
	ConflictedPaths() ([]string, error)

	// StagedPaths lists paths with staged changes.
	StagedPaths() ([]string, error)

	// ModifiedPaths lists tracked paths modified in the working tree.
	ModifiedPaths() ([]string, error)

	// CherryPick replays the change set onto the current branch. A single
	// commit is replayed by hash; a longer set as the inclusive range
	// oldest^..newest.
	CherryPick(ctx context.Context, commits []Commit) Result

	// CherryPickContinue resumes a conflicted replay after resolution.
	CherryPickContinue(ctx context.Context) Result

	// CherryPickAbort abandons the in-flight replay.
	CherryPickAbort(ctx context.Context) Result

	// Checkout changes the working tree to the named branch.
	Checkout(ctx context.Context, branch string) Result

	// StageFile adds a path to the index.
	StageFile(ctx context.Context, path string) Result

	// ShowFileAtHead returns the HEAD blob content of a repo-relative path.
	ShowFileAtHead(path string) (string, error)

	// ChangeSetPatch returns the combined patch text of the change set,
	// used for pre-flight secret scanning.
	ChangeSetPatch(ctx context.Context, commits []Commit) (string, error)
}
