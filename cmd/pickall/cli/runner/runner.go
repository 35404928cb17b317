// Package runner drives the per-branch replication loop as an explicit
// finite-state machine.
//
// One branch at a time: the working tree is a singleton mutable resource, so
// replaying onto the next branch while the previous one has unresolved
// overlaps would corrupt state. Human input arrives only through the Prompter
// capability, which makes the whole machine testable with scripted responses.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Fdondi/pickall/cmd/pickall/cli/artifact"
	"github.com/Fdondi/pickall/cmd/pickall/cli/logging"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runstate"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
)

// Resolution is the human's answer while waiting on manual conflict resolution.
type Resolution int

const (
	// ResolutionDone means the human declares the conflicts resolved.
	ResolutionDone Resolution = iota
	// ResolutionNotYet keeps waiting.
	ResolutionNotYet
	// ResolutionAbort abandons the replay on this branch.
	ResolutionAbort
)

// Prompter supplies the run controller's human decisions.
type Prompter interface {
	// ResolutionStatus asks whether the conflicts on branch are resolved.
	ResolutionStatus(branch string) (Resolution, error)

	// Confirm asks a yes/no question.
	Confirm(prompt string) (bool, error)
}

// Outcome is the terminal status of one branch.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeFailed         Outcome = "failed"
)

// FailureKind refines a failed outcome.
type FailureKind string

const (
	FailCheckout       FailureKind = "checkout_failed"
	FailReplay         FailureKind = "replay_failed"
	FailAfterAbort     FailureKind = "after_abort"
	FailManual         FailureKind = "manual_unrecoverable"
	FailReconcileAbort FailureKind = "reconcile_aborted"
)

// BranchResult records how one branch ended.
type BranchResult struct {
	Branch  string
	Outcome Outcome
	Failure FailureKind
	Detail  string
}

// Summary aggregates a whole run.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int

	Results        []BranchResult
	FailedBranches []string
}

// ExitCode is 0 for a run with zero failures, 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// state enumerates the per-branch machine states.
type state int

const (
	stateAttempting state = iota
	stateConflictPending
	stateArtifactReconciling
	stateAwaitingManual
)

// Controller owns the run state and drives the gateway.
type Controller struct {
	GW         vcs.Gateway
	Reconciler *artifact.Reconciler
	Prompter   Prompter

	// StatePath is where run state is persisted before every branch attempt.
	StatePath string

	// Out receives human-facing progress output.
	Out io.Writer
}

func (c *Controller) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stderr
}

// Run processes every branch in the queue. Branch-level failures never stop
// the run; they are accumulated and reported at the end. The persisted state
// is deleted only on completion of the whole queue.
func (c *Controller) Run(ctx context.Context, st *runstate.State) (*Summary, error) {
	summary := &Summary{}

	for len(st.RemainingBranches) > 0 {
		branch := st.RemainingBranches[0]

		// Persist before the attempt so an interruption loses at most this
		// branch's progress.
		c.persist(st)

		bctx := logging.WithBranch(ctx, branch)
		result := c.processBranch(bctx, branch, st.Commits)
		summary.Results = append(summary.Results, result)

		switch result.Outcome {
		case OutcomeSuccess:
			summary.Processed++
		case OutcomeAlreadyApplied:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
			summary.FailedBranches = append(summary.FailedBranches, branch)
			st.FailedBranches = append(st.FailedBranches, branch)
			fmt.Fprintf(c.out(), "\nBranch '%s' failed (%s). Moving on.\n", branch, result.Failure)
		}

		st.RemainingBranches = st.RemainingBranches[1:]
	}

	// RunComplete: drop the state file, restore the original position.
	if err := runstate.Delete(c.StatePath); err != nil {
		logging.Warn(ctx, "failed to delete state file", "error", err.Error())
	}
	if st.OriginalBranch != "" {
		fmt.Fprintf(c.out(), "\nReturning to original branch: %s\n", st.OriginalBranch)
		if res := c.GW.Checkout(ctx, st.OriginalBranch); !res.Ok {
			// Reported but does not change the exit status.
			fmt.Fprintf(c.out(), "Warning: could not return to '%s': %s\n", st.OriginalBranch, res.Output())
		}
	}

	c.printSummary(summary)
	return summary, nil
}

// persist writes the run state wholesale, annotating the branch currently
// checked out (nil while detached).
func (c *Controller) persist(st *runstate.State) {
	st.CurrentBranch = nil
	if cur, err := c.GW.CurrentBranch(); err == nil {
		st.CurrentBranch = &cur
	}
	if err := runstate.Save(c.StatePath, st); err != nil {
		logging.Warn(context.Background(), "failed to persist run state", "error", err.Error())
	}
}

// processBranch runs the state machine for a single branch to its terminal
// outcome.
func (c *Controller) processBranch(ctx context.Context, branch string, commits []vcs.Commit) BranchResult {
	fail := func(kind FailureKind, detail string) BranchResult {
		logging.Warn(ctx, "branch failed", "failure", string(kind), "detail", detail)
		return BranchResult{Branch: branch, Outcome: OutcomeFailed, Failure: kind, Detail: detail}
	}
	succeed := func() BranchResult {
		logging.Info(ctx, "branch done", "outcome", string(OutcomeSuccess))
		return BranchResult{Branch: branch, Outcome: OutcomeSuccess}
	}

	st := stateAttempting

	// Resuming an interrupted run: if the replay is already mid-flight on
	// this branch, classify instead of starting fresh.
	if cur, err := c.GW.CurrentBranch(); err == nil && cur == branch {
		if replaying, err := c.GW.ReplayInProgress(); err == nil && replaying {
			fmt.Fprintf(c.out(), "Replay already in progress on '%s', resuming conflict handling.\n", branch)
			st = stateConflictPending
		}
	}

	for {
		switch st {
		case stateAttempting:
			fmt.Fprintf(c.out(), "\nSwitching to branch: %s\n", branch)
			if res := c.GW.Checkout(ctx, branch); !res.Ok {
				return fail(FailCheckout, res.Output())
			}

			applied, err := c.allApplied(branch, commits)
			if err != nil {
				return fail(FailReplay, err.Error())
			}
			if applied {
				fmt.Fprintf(c.out(), "All commits already in branch '%s'. Skipping.\n", branch)
				logging.Info(ctx, "branch done", "outcome", string(OutcomeAlreadyApplied))
				return BranchResult{Branch: branch, Outcome: OutcomeAlreadyApplied}
			}

			c.printPickPlan(branch, commits)
			res := c.GW.CherryPick(ctx, commits)
			if res.Ok {
				// A clean replay can still leave stale artifacts behind.
				if outcome, err := c.Reconciler.ReviewModifiedSources(ctx); err != nil || outcome == artifact.OutcomeAborted {
					fmt.Fprintln(c.out(), "Warning: artifact review was abandoned, but the cherry-pick succeeded.")
					fmt.Fprintln(c.out(), "You may need to rebuild and commit the artifacts manually.")
				}
				fmt.Fprintf(c.out(), "Successfully cherry-picked to '%s'\n", branch)
				return succeed()
			}

			conflicted, replaying := c.conflictSignals()
			if conflicted || replaying {
				fmt.Fprintf(c.out(), "\nConflict detected on branch '%s'. Manual resolution needed.\n", branch)
				st = stateConflictPending
				continue
			}
			return fail(FailReplay, res.Output())

		case stateConflictPending:
			// Artifact reconciliation always runs first: it can silently
			// resolve a purely-binary conflict.
			st = stateArtifactReconciling

		case stateArtifactReconciling:
			outcome, err := c.Reconciler.ReconcileConflicts(ctx)
			if err != nil {
				logging.Warn(ctx, "artifact reconciliation error", "error", err.Error())
			}
			if outcome == artifact.OutcomeAborted {
				c.GW.CherryPickAbort(ctx)
				return fail(FailReconcileAbort, "aborted during artifact reconciliation")
			}

			remaining, err := c.GW.HasConflicts()
			if err != nil {
				return fail(FailReplay, err.Error())
			}
			if remaining {
				st = stateAwaitingManual
				continue
			}

			// Reconciliation cleared everything: continue the replay directly.
			res := c.GW.CherryPickContinue(ctx)
			if res.Ok {
				fmt.Fprintf(c.out(), "Cherry-pick continued successfully on '%s'\n", branch)
				return succeed()
			}
			if fresh, _ := c.GW.HasConflicts(); fresh {
				st = stateConflictPending
				continue
			}
			// Nothing left to reconcile and the replay still won't continue:
			// hand the decision to the human.
			fmt.Fprintf(c.out(), "Could not continue cherry-pick: %s\n", res.Output())
			st = stateAwaitingManual

		case stateAwaitingManual:
			resolution, err := c.Prompter.ResolutionStatus(branch)
			if err != nil {
				c.GW.CherryPickAbort(ctx)
				return fail(FailAfterAbort, fmt.Sprintf("prompt failed: %v", err))
			}

			switch resolution {
			case ResolutionNotYet:
				continue

			case ResolutionAbort:
				fmt.Fprintln(c.out(), "Aborting cherry-pick...")
				c.GW.CherryPickAbort(ctx)
				return fail(FailAfterAbort, "aborted by user during manual resolution")

			case ResolutionDone:
				if remaining, _ := c.GW.HasConflicts(); remaining {
					fmt.Fprintln(c.out(), "Warning: conflicts still detected. Please resolve them before continuing.")
					continue
				}

				if picking, err := c.GW.CherryPickHeadExists(); err == nil && !picking {
					fmt.Fprintln(c.out(), "Warning: not in cherry-pick state. Was the cherry-pick aborted?")
					ok, perr := c.Prompter.Confirm("Continue anyway?")
					if perr != nil || !ok {
						return fail(FailManual, "not in cherry-pick state")
					}
				}

				// Sources edited during manual resolution need their
				// artifacts rebuilt before the replay continues.
				outcome, err := c.Reconciler.ReviewModifiedSources(ctx)
				if err != nil || outcome == artifact.OutcomeAborted {
					ok, perr := c.Prompter.Confirm("Artifact review was abandoned. Continue with cherry-pick anyway?")
					if perr != nil || !ok {
						c.GW.CherryPickAbort(ctx)
						return fail(FailAfterAbort, "aborted after artifact review")
					}
				}

				res := c.GW.CherryPickContinue(ctx)
				if res.Ok {
					fmt.Fprintf(c.out(), "Cherry-pick continued successfully on '%s'\n", branch)
					return succeed()
				}
				if fresh, _ := c.GW.HasConflicts(); fresh {
					fmt.Fprintln(c.out(), "Conflicts still exist. Please resolve them.")
					st = stateConflictPending
					continue
				}
				return fail(FailManual, res.Output())
			}
		}
	}
}

// allApplied reports whether every commit in the set is already reachable
// from the branch.
func (c *Controller) allApplied(branch string, commits []vcs.Commit) (bool, error) {
	for _, commit := range commits {
		contained, err := c.GW.BranchContains(commit.Hash, branch)
		if err != nil {
			return false, fmt.Errorf("checking %s on %s: %w", commit.ShortHash(), branch, err)
		}
		if !contained {
			return false, nil
		}
	}
	return true, nil
}

func (c *Controller) printPickPlan(branch string, commits []vcs.Commit) {
	if len(commits) == 1 {
		fmt.Fprintf(c.out(), "Cherry-picking commit %s onto branch '%s'...\n", commits[0].ShortHash(), branch)
		fmt.Fprintf(c.out(), "  %s\n", commits[0].Subject)
		return
	}
	fmt.Fprintf(c.out(), "Cherry-picking %d commits onto branch '%s'...\n", len(commits), branch)
	for i, commit := range commits {
		fmt.Fprintf(c.out(), "  %d. %s: %s\n", i+1, commit.ShortHash(), commit.Subject)
	}
}

// conflictSignals classifies a failed replay. Either signal alone can
// under-report, so both are consulted.
func (c *Controller) conflictSignals() (conflicted, replaying bool) {
	conflicted, _ = c.GW.HasConflicts()
	replaying, _ = c.GW.ReplayInProgress()
	return conflicted, replaying
}

func (c *Controller) printSummary(summary *Summary) {
	w := c.out()
	fmt.Fprintln(w, "\nSummary:")
	fmt.Fprintf(w, "  Processed: %d\n", summary.Processed)
	fmt.Fprintf(w, "  Skipped (already applied): %d\n", summary.Skipped)
	fmt.Fprintf(w, "  Failed: %d\n", summary.Failed)
	if len(summary.FailedBranches) > 0 {
		fmt.Fprintf(w, "  Failed branches: %v\n", summary.FailedBranches)
	}
}
