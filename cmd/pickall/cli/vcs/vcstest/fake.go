// Package vcstest provides a scripted in-memory Gateway for tests.
//
// Each branch gets a Behavior describing how checkout and cherry-pick react;
// the fake then tracks conflicted, staged, and modified paths the way a real
// working tree would, so the run controller can be exercised end to end
// without a git repository.
package vcstest

import (
	"context"
	"fmt"
	"sort"

	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
)

// Behavior scripts how a branch reacts to the run.
type Behavior struct {
	// CheckoutFails, when non-empty, makes Checkout fail with this diagnostic.
	CheckoutFails string

	// AlreadyContains lists commit hashes reachable from the branch tip.
	AlreadyContains []string

	// PickConflictPaths, when non-empty, makes CherryPick fail leaving these
	// paths conflicted and a replay in progress.
	PickConflictPaths []string

	// PickFails, when non-empty, makes CherryPick fail with this diagnostic
	// and no conflict markers.
	PickFails string

	// PostPickModified lists worktree paths left modified by a successful
	// cherry-pick (stale derived artifacts and their sources).
	PostPickModified []string

	// ContinueFailsOnce makes the first CherryPickContinue fail with this
	// diagnostic even though no conflicts remain.
	ContinueFailsOnce string
}

// Fake is a scripted in-memory vcs.Gateway.
type Fake struct {
	// Branch and history setup.
	Current   string
	AllNames  []string
	History   []vcs.Commit // oldest-first, newest last
	Behaviors map[string]*Behavior

	// Working-tree state.
	Conflicted  map[string]bool
	Staged      map[string]bool
	Modified    map[string]bool
	Replaying   bool
	Uncommitted bool

	// Content served by ShowFileAtHead.
	Files map[string]string

	// Patch text served by ChangeSetPatch.
	Patch string

	// Recorded calls for assertions.
	Checkouts []string
	Picks     []string
	Aborts    int
	Continues int

	// EverStaged records every path ever staged, surviving checkouts and
	// continues for end-of-run assertions.
	EverStaged map[string]bool

	continueFailed map[string]bool
}

var _ vcs.Gateway = (*Fake)(nil)

// New returns a Fake positioned on current with the given branches.
func New(current string, branches ...string) *Fake {
	return &Fake{
		Current:        current,
		AllNames:       append([]string{current}, branches...),
		Behaviors:      make(map[string]*Behavior),
		Conflicted:     make(map[string]bool),
		Staged:         make(map[string]bool),
		Modified:       make(map[string]bool),
		Files:          make(map[string]string),
		EverStaged:     make(map[string]bool),
		continueFailed: make(map[string]bool),
	}
}

// Script assigns a behavior to a branch.
func (f *Fake) Script(branch string, b Behavior) *Fake {
	f.Behaviors[branch] = &b
	return f
}

func (f *Fake) behavior() *Behavior {
	if b, ok := f.Behaviors[f.Current]; ok {
		return b
	}
	return &Behavior{}
}

func (f *Fake) CurrentBranch() (string, error) {
	return f.Current, nil
}

func (f *Fake) Head() (string, error) {
	if len(f.History) == 0 {
		return "", fmt.Errorf("empty history")
	}
	return f.History[len(f.History)-1].Hash, nil
}

func (f *Fake) Branches() ([]string, error) {
	names := append([]string(nil), f.AllNames...)
	sort.Strings(names)
	return names, nil
}

func (f *Fake) LastCommits(_ context.Context, n int) ([]vcs.Commit, error) {
	if n < 1 {
		return nil, fmt.Errorf("commit count must be at least 1, got %d", n)
	}
	if n > len(f.History) {
		n = len(f.History)
	}
	return append([]vcs.Commit(nil), f.History[len(f.History)-n:]...), nil
}

func (f *Fake) BranchContains(hash, branch string) (bool, error) {
	b, ok := f.Behaviors[branch]
	if !ok {
		return false, nil
	}
	for _, h := range b.AlreadyContains {
		if h == hash {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) HasUncommittedChanges() (bool, error) {
	return f.Uncommitted, nil
}

func (f *Fake) ReplayInProgress() (bool, error) {
	return f.Replaying, nil
}

func (f *Fake) CherryPickHeadExists() (bool, error) {
	return f.Replaying, nil
}

func (f *Fake) HasConflicts() (bool, error) {
	return len(f.Conflicted) > 0, nil
}

func (f *Fake) ConflictedPaths() ([]string, error) {
	return sortedKeys(f.Conflicted), nil
}

func (f *Fake) StagedPaths() ([]string, error) {
	return sortedKeys(f.Staged), nil
}

func (f *Fake) ModifiedPaths() ([]string, error) {
	return sortedKeys(f.Modified), nil
}

func (f *Fake) CherryPick(_ context.Context, commits []vcs.Commit) vcs.Result {
	for _, c := range commits {
		f.Picks = append(f.Picks, f.Current+":"+c.Hash)
	}

	b := f.behavior()
	if b.PickFails != "" {
		return vcs.Result{Stderr: b.PickFails, Ok: false}
	}
	if len(b.PickConflictPaths) > 0 {
		for _, p := range b.PickConflictPaths {
			f.Conflicted[p] = true
		}
		f.Replaying = true
		return vcs.Result{Stderr: "error: could not apply " + commits[0].Hash, Ok: false}
	}

	for _, p := range b.PostPickModified {
		f.Modified[p] = true
	}
	return vcs.Result{Stdout: "picked", Ok: true}
}

func (f *Fake) CherryPickContinue(_ context.Context) vcs.Result {
	f.Continues++
	if len(f.Conflicted) > 0 {
		return vcs.Result{Stderr: "error: unresolved conflicts", Ok: false}
	}
	b := f.behavior()
	if b.ContinueFailsOnce != "" && !f.continueFailed[f.Current] {
		f.continueFailed[f.Current] = true
		return vcs.Result{Stderr: b.ContinueFailsOnce, Ok: false}
	}
	f.Replaying = false
	f.Staged = make(map[string]bool)
	return vcs.Result{Stdout: "continued", Ok: true}
}

func (f *Fake) CherryPickAbort(_ context.Context) vcs.Result {
	f.Aborts++
	f.Conflicted = make(map[string]bool)
	f.Staged = make(map[string]bool)
	f.Replaying = false
	return vcs.Result{Ok: true}
}

func (f *Fake) Checkout(_ context.Context, branch string) vcs.Result {
	f.Checkouts = append(f.Checkouts, branch)

	if b, ok := f.Behaviors[branch]; ok && b.CheckoutFails != "" {
		return vcs.Result{Stderr: b.CheckoutFails, Ok: false}
	}

	f.Current = branch
	f.Conflicted = make(map[string]bool)
	f.Staged = make(map[string]bool)
	f.Modified = make(map[string]bool)
	f.Replaying = false
	return vcs.Result{Ok: true}
}

// StageFile marks the path staged. Staging a conflicted path resolves it,
// matching `git add` on a conflict.
func (f *Fake) StageFile(_ context.Context, path string) vcs.Result {
	delete(f.Conflicted, path)
	delete(f.Modified, path)
	f.Staged[path] = true
	f.EverStaged[path] = true
	return vcs.Result{Ok: true}
}

func (f *Fake) ShowFileAtHead(path string) (string, error) {
	content, ok := f.Files[path]
	if !ok {
		return "", fmt.Errorf("path %s not found at HEAD", path)
	}
	return content, nil
}

func (f *Fake) ChangeSetPatch(_ context.Context, _ []vcs.Commit) (string, error) {
	return f.Patch, nil
}

// Resolve removes a path from the conflicted set, simulating a human fixing
// the file in the working tree.
func (f *Fake) Resolve(path string) {
	delete(f.Conflicted, path)
	f.Modified[path] = true
}

func sortedKeys(m map[string]bool) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
