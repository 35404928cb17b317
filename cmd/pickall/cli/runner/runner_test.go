package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Fdondi/pickall/cmd/pickall/cli/artifact"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runstate"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs/vcstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter replays canned answers for the controller and reconciler.
type scriptedPrompter struct {
	resolutions []Resolution
	confirms    []bool
	reviews     []artifact.ReviewDecision
	compiles    []artifact.CompileDecision
}

func (p *scriptedPrompter) ResolutionStatus(string) (Resolution, error) {
	if len(p.resolutions) == 0 {
		return ResolutionAbort, nil
	}
	r := p.resolutions[0]
	p.resolutions = p.resolutions[1:]
	return r, nil
}

func (p *scriptedPrompter) Confirm(string) (bool, error) {
	if len(p.confirms) == 0 {
		return true, nil
	}
	c := p.confirms[0]
	p.confirms = p.confirms[1:]
	return c, nil
}

func (p *scriptedPrompter) ReviewArtifact(string) (artifact.ReviewDecision, error) {
	if len(p.reviews) == 0 {
		return artifact.ReviewSkip, nil
	}
	d := p.reviews[0]
	p.reviews = p.reviews[1:]
	return d, nil
}

func (p *scriptedPrompter) CompileFailed(string, error) (artifact.CompileDecision, error) {
	if len(p.compiles) == 0 {
		return artifact.CompileSkip, nil
	}
	d := p.compiles[0]
	p.compiles = p.compiles[1:]
	return d, nil
}

// tmpdirCompiler produces the mapped artifact on disk.
type tmpdirCompiler struct{ calls int }

func (c *tmpdirCompiler) Compile(_ context.Context, sourcePath string) (string, error) {
	c.calls++
	pdf := artifact.DefaultMapping.ArtifactFor(sourcePath)
	if err := os.WriteFile(pdf, []byte("%PDF"), 0o600); err != nil {
		return "", err
	}
	return pdf, nil
}

type nopViewer struct{}

func (nopViewer) Open(string) error { return nil }

func newController(t *testing.T, gw *vcstest.Fake, p *scriptedPrompter) (*Controller, string) {
	t.Helper()
	root := t.TempDir()
	statePath := filepath.Join(root, "state.json")
	rec := &artifact.Reconciler{
		GW:       gw,
		Mapping:  artifact.DefaultMapping,
		Compiler: &tmpdirCompiler{},
		Viewer:   nopViewer{},
		Prompter: p,
		Root:     root,
		Out:      &bytes.Buffer{},
	}
	return &Controller{
		GW:         gw,
		Reconciler: rec,
		Prompter:   p,
		StatePath:  statePath,
		Out:        &bytes.Buffer{},
	}, statePath
}

func oneCommit() []vcs.Commit {
	return []vcs.Commit{{Hash: "abc123", Subject: "fix typo"}}
}

func newState(commits []vcs.Commit, original string, queue ...string) *runstate.State {
	return &runstate.State{
		Commits:           commits,
		OriginalBranch:    original,
		RemainingBranches: queue,
		FailedBranches:    []string{},
	}
}

// Scenario A: two clean branches both succeed, exit 0, state file deleted.
func TestRunCleanBranches(t *testing.T) {
	gw := vcstest.New("main", "dev", "exp")
	gw.History = oneCommit()

	ctl, statePath := newController(t, gw, &scriptedPrompter{})

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev", "exp"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 0, summary.ExitCode())
	assert.False(t, runstate.Exists(statePath), "state file must be deleted on completion")

	// Both branches attempted, then back to the original.
	assert.Equal(t, []string{"dev", "exp", "main"}, gw.Checkouts)
}

// Scenario B: a conflict only in the derived artifact is resolved by
// rebuild-and-accept, with no manual text resolution.
func TestRunBinaryArtifactConflictAutoResolved(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PickConflictPaths: []string{"cv.pdf"}})

	prompter := &scriptedPrompter{reviews: []artifact.ReviewDecision{artifact.ReviewAccept}}
	ctl, _ := newController(t, gw, prompter)
	require.NoError(t, os.WriteFile(filepath.Join(ctl.Reconciler.Root, "cv.tex"), []byte("x"), 0o600))

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, prompter.resolutions, "no manual resolution prompt expected")
	assert.Equal(t, 1, gw.Continues)
}

// Scenario C: checkout failure records the branch failed immediately, no
// replay attempted, remaining branches still processed, exit 1.
func TestRunCheckoutFailure(t *testing.T) {
	gw := vcstest.New("main", "broken", "dev")
	gw.History = oneCommit()
	gw.Script("broken", vcstest.Behavior{CheckoutFails: "pathspec 'broken' did not match"})

	ctl, _ := newController(t, gw, &scriptedPrompter{})

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "broken", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"broken"}, summary.FailedBranches)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.ExitCode())

	require.Len(t, summary.Results, 2)
	assert.Equal(t, FailCheckout, summary.Results[0].Failure)
	// No pick was attempted on the broken branch.
	for _, pick := range gw.Picks {
		assert.NotContains(t, pick, "broken:")
	}
}

// Scenario D: abort during manual resolution aborts the replay, records the
// branch failed, and still processes the rest of the queue.
func TestRunAbortDuringManualResolution(t *testing.T) {
	gw := vcstest.New("main", "conflicted", "dev")
	gw.History = oneCommit()
	gw.Script("conflicted", vcstest.Behavior{PickConflictPaths: []string{"notes.txt"}})

	prompter := &scriptedPrompter{resolutions: []Resolution{ResolutionAbort}}
	ctl, _ := newController(t, gw, prompter)

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "conflicted", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, FailAfterAbort, summary.Results[0].Failure)
	assert.Equal(t, 1, gw.Aborts, "the in-flight replay must be aborted")
	assert.Equal(t, 1, summary.Processed, "subsequent branches still processed")
	assert.Equal(t, 1, summary.ExitCode())
}

// Idempotence: a branch already containing every commit is skipped without a
// replay.
func TestRunAlreadyApplied(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{AlreadyContains: []string{"abc123"}})

	ctl, _ := newController(t, gw, &scriptedPrompter{})

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, 0, summary.ExitCode())
	assert.Empty(t, gw.Picks)
}

// Manual resolution: human resolves the text conflict, replay continues.
func TestRunManualResolutionSucceeds(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PickConflictPaths: []string{"notes.txt"}})

	prompter := &scriptedPrompter{resolutions: []Resolution{ResolutionNotYet, ResolutionDone}}
	ctl, _ := newController(t, gw, prompter)
	ctl.Prompter = &resolvingPrompter{inner: prompter, gw: gw, path: "notes.txt"}

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, gw.Continues)
}

// resolvingPrompter resolves a conflicted path the first time it is asked,
// mimicking a human editing the file before answering.
type resolvingPrompter struct {
	inner *scriptedPrompter
	gw    *vcstest.Fake
	path  string
}

func (p *resolvingPrompter) ResolutionStatus(branch string) (Resolution, error) {
	p.gw.Resolve(p.path)
	return p.inner.ResolutionStatus(branch)
}

func (p *resolvingPrompter) Confirm(prompt string) (bool, error) { return p.inner.Confirm(prompt) }

// A replay failure with no conflict markers is a plain branch failure with
// the diagnostic captured.
func TestRunReplayFailureWithoutConflict(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PickFails: "fatal: bad object abc123"})

	ctl, _ := newController(t, gw, &scriptedPrompter{})

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeFailed, summary.Results[0].Outcome)
	assert.Equal(t, FailReplay, summary.Results[0].Failure)
	assert.Contains(t, summary.Results[0].Detail, "bad object")
	assert.Zero(t, gw.Aborts)
}

// Reconciliation abort escalates to a branch failure and aborts the replay.
func TestRunReconcileAbortEscalates(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PickConflictPaths: []string{"cv.pdf"}})

	prompter := &scriptedPrompter{reviews: []artifact.ReviewDecision{artifact.ReviewAbort}}
	ctl, _ := newController(t, gw, prompter)
	require.NoError(t, os.WriteFile(filepath.Join(ctl.Reconciler.Root, "cv.tex"), []byte("x"), 0o600))

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, FailReconcileAbort, summary.Results[0].Failure)
	assert.Equal(t, 1, gw.Aborts)
}

// Post-success pass: a clean replay that modified sources forces the
// compile/review loop before the branch counts as done.
func TestRunPostSuccessArtifactPass(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PostPickModified: []string{"cv.tex"}})

	prompter := &scriptedPrompter{reviews: []artifact.ReviewDecision{artifact.ReviewAccept}}
	ctl, _ := newController(t, gw, prompter)
	require.NoError(t, os.WriteFile(filepath.Join(ctl.Reconciler.Root, "cv.tex"), []byte("x"), 0o600))

	summary, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.True(t, gw.EverStaged["cv.pdf"], "rebuilt artifact staged after acceptance")
}

// Resume fidelity: a state file whose queue omits already-processed branches
// is honored as-is; popped branches are not re-attempted.
func TestRunResumeDoesNotReprocess(t *testing.T) {
	gw := vcstest.New("main", "a", "b")
	gw.History = oneCommit()

	ctl, statePath := newController(t, gw, &scriptedPrompter{})

	st := newState(oneCommit(), "main", "b")
	st.FailedBranches = []string{"a"}

	summary, err := ctl.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.NotContains(t, gw.Checkouts, "a")
	assert.False(t, runstate.Exists(statePath))
}

// The state file on disk always reflects the queue as of the latest attempt.
func TestRunPersistsBeforeEachAttempt(t *testing.T) {
	gw := vcstest.New("main", "a", "b")
	gw.History = oneCommit()

	var snapshots [][]string
	ctl, statePath := newController(t, gw, &scriptedPrompter{})

	// Wrap the gateway's checkout to observe the persisted queue at the
	// moment each branch attempt begins.
	obs := &observingGateway{Fake: gw, onCheckout: func() {
		if st, err := runstate.Load(statePath); err == nil {
			snapshots = append(snapshots, append([]string(nil), st.RemainingBranches...))
		}
	}}
	ctl.GW = obs
	ctl.Reconciler.GW = obs

	_, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "a", "b"))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(snapshots), 2)
	assert.Equal(t, []string{"a", "b"}, snapshots[0])
	assert.Equal(t, []string{"b"}, snapshots[1])
}

type observingGateway struct {
	*vcstest.Fake
	onCheckout func()
}

func (o *observingGateway) Checkout(ctx context.Context, branch string) vcs.Result {
	o.onCheckout()
	return o.Fake.Checkout(ctx, branch)
}

// Best-effort return to the original branch happens even when a branch failed.
func TestRunReturnsToOriginalBranch(t *testing.T) {
	gw := vcstest.New("main", "dev")
	gw.History = oneCommit()
	gw.Script("dev", vcstest.Behavior{PickFails: "boom"})

	ctl, _ := newController(t, gw, &scriptedPrompter{})

	_, err := ctl.Run(context.Background(), newState(oneCommit(), "main", "dev"))
	require.NoError(t, err)

	assert.Equal(t, "main", gw.Current)
}
