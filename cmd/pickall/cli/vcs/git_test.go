package vcs_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fdondi/pickall/cmd/pickall/cli/testutil"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
)

// newRepo builds a repository with one commit on master and returns its
// gateway.
func newRepo(t *testing.T) (string, *vcs.ExecGateway) {
	t.Helper()

	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.WriteFile(t, dir, "readme.md", "hello\n")
	testutil.GitAdd(t, dir, "readme.md")
	testutil.GitCommit(t, dir, "initial commit")

	gw, err := vcs.NewExecGateway(dir)
	require.NoError(t, err)
	return dir, gw
}

func TestCurrentBranchAndBranches(t *testing.T) {
	dir, gw := newRepo(t)

	testutil.GitCheckoutNewBranch(t, dir, "feature")
	testutil.GitCheckout(t, dir, "master")

	current, err := gw.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", current)

	all, err := gw.Branches()
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "master"}, all)

	head, err := gw.Head()
	require.NoError(t, err)
	assert.Equal(t, testutil.GetHeadHash(t, dir), head)
}

func TestLastCommitsOldestFirstWithSubjectAndBody(t *testing.T) {
	dir, gw := newRepo(t)

	testutil.WriteFile(t, dir, "a.txt", "a\n")
	testutil.GitAdd(t, dir, "a.txt")
	testutil.GitCommit(t, dir, "add a\n\nexplains why a exists")

	testutil.WriteFile(t, dir, "b.txt", "b\n")
	testutil.GitAdd(t, dir, "b.txt")
	testutil.GitCommit(t, dir, "add b")

	commits, err := gw.LastCommits(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "add a", commits[0].Subject)
	assert.Equal(t, "explains why a exists", commits[0].Body)
	assert.Equal(t, "add b", commits[1].Subject)
	assert.Empty(t, commits[1].Body)
}

func TestBranchContains(t *testing.T) {
	dir, gw := newRepo(t)

	base := testutil.GetHeadHash(t, dir)
	testutil.GitCheckoutNewBranch(t, dir, "feature")
	testutil.WriteFile(t, dir, "f.txt", "f\n")
	testutil.GitAdd(t, dir, "f.txt")
	tip := testutil.GitCommit(t, dir, "feature work")

	onFeature, err := gw.BranchContains(tip, "feature")
	require.NoError(t, err)
	assert.True(t, onFeature)

	onMaster, err := gw.BranchContains(tip, "master")
	require.NoError(t, err)
	assert.False(t, onMaster)

	baseOnFeature, err := gw.BranchContains(base, "feature")
	require.NoError(t, err)
	assert.True(t, baseOnFeature, "ancestor commits count as contained")
}

func TestHasUncommittedChanges(t *testing.T) {
	dir, gw := newRepo(t)

	dirty, err := gw.HasUncommittedChanges()
	require.NoError(t, err)
	assert.False(t, dirty)

	testutil.WriteFile(t, dir, "readme.md", "edited\n")

	dirty, err = gw.HasUncommittedChanges()
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCherryPickClean(t *testing.T) {
	dir, gw := newRepo(t)
	ctx := context.Background()

	testutil.GitCheckoutNewBranch(t, dir, "feature")
	testutil.WriteFile(t, dir, "new.txt", "new\n")
	testutil.GitAdd(t, dir, "new.txt")
	hash := testutil.GitCommit(t, dir, "add new file")

	res := gw.Checkout(ctx, "master")
	require.True(t, res.Ok, res.Output())

	res = gw.CherryPick(ctx, []vcs.Commit{{Hash: hash}})
	require.True(t, res.Ok, res.Output())

	assert.True(t, testutil.FileExists(dir, "new.txt"))

	replaying, err := gw.ReplayInProgress()
	require.NoError(t, err)
	assert.False(t, replaying)
}

func TestCherryPickConflictAndAbort(t *testing.T) {
	dir, gw := newRepo(t)
	ctx := context.Background()

	// Both branches rewrite the same line.
	testutil.GitCheckoutNewBranch(t, dir, "feature")
	testutil.WriteFile(t, dir, "readme.md", "feature version\n")
	testutil.GitAdd(t, dir, "readme.md")
	hash := testutil.GitCommit(t, dir, "feature edit")

	testutil.GitCheckout(t, dir, "master")
	testutil.WriteFile(t, dir, "readme.md", "master version\n")
	testutil.GitAdd(t, dir, "readme.md")
	testutil.GitCommit(t, dir, "master edit")

	res := gw.CherryPick(ctx, []vcs.Commit{{Hash: hash}})
	require.False(t, res.Ok, "conflicting cherry-pick should fail")

	conflicted, err := gw.HasConflicts()
	require.NoError(t, err)
	assert.True(t, conflicted)

	paths, err := gw.ConflictedPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.md"}, paths)

	replaying, err := gw.ReplayInProgress()
	require.NoError(t, err)
	assert.True(t, replaying)

	headExists, err := gw.CherryPickHeadExists()
	require.NoError(t, err)
	assert.True(t, headExists)

	res = gw.CherryPickAbort(ctx)
	require.True(t, res.Ok, res.Output())

	replaying, err = gw.ReplayInProgress()
	require.NoError(t, err)
	assert.False(t, replaying)
}

func TestShowFileAtHead(t *testing.T) {
	dir, gw := newRepo(t)

	// Working tree edits must not leak into HEAD content.
	testutil.WriteFile(t, dir, "readme.md", "working tree edit\n")

	content, err := gw.ShowFileAtHead("readme.md")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", content)
}

func TestChangeSetPatch(t *testing.T) {
	dir, gw := newRepo(t)

	testutil.WriteFile(t, dir, "a.txt", "added line\n")
	testutil.GitAdd(t, dir, "a.txt")
	hash := testutil.GitCommit(t, dir, "add a")

	patch, err := gw.ChangeSetPatch(context.Background(), []vcs.Commit{{Hash: hash}})
	require.NoError(t, err)
	assert.True(t, strings.Contains(patch, "+added line"), "patch should show the added line:\n%s", patch)
}

func TestNewExecGatewayRejectsNonRepo(t *testing.T) {
	_, err := vcs.NewExecGateway(t.TempDir())
	assert.Error(t, err)
}
