package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fdondi/pickall/cmd/pickall/cli/artifact"
	"github.com/Fdondi/pickall/cmd/pickall/cli/branches"
	"github.com/Fdondi/pickall/cmd/pickall/cli/changeset"
	"github.com/Fdondi/pickall/cmd/pickall/cli/logging"
	"github.com/Fdondi/pickall/cmd/pickall/cli/paths"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runner"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runstate"
	"github.com/Fdondi/pickall/cmd/pickall/cli/settings"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
	"github.com/Fdondi/pickall/scan"
)

// maxPlanBranches caps how many target branches the plan display lists.
const maxPlanBranches = 15

func newRunCmd() *cobra.Command {
	var (
		excludePatterns []string
		stateFile       string
		resumeFlag      bool
		commitCount     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cherry-pick the last commits onto all local branches",
		Long: `Replicate the last N commits from the current branch onto every other
local branch, one branch at a time.

Branches that already contain the newest commit are skipped. When a
cherry-pick conflicts, binary documents built from a textual source
(PDF from .tex by default) are recompiled and offered for review; other
conflicts pause the run until you resolve them in another terminal.

Progress is saved before each branch, so an interrupted run resumes
where it left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, excludePatterns, stateFile, resumeFlag, commitCount)
		},
	}

	cmd.Flags().StringArrayVar(&excludePatterns, "exclude-branch", nil, "Branch to skip, exact name or glob (repeatable)")
	cmd.Flags().StringVar(&stateFile, "state-file", paths.DefaultStateFile, "Where run progress is saved")
	cmd.Flags().BoolVar(&resumeFlag, "resume", false, "Resume a saved run without asking")
	cmd.Flags().IntVarP(&commitCount, "number", "n", 1, "How many of the latest commits to replicate")

	return cmd
}

func runRun(cmd *cobra.Command, excludePatterns []string, stateFile string, resumeFlag bool, commitCount int) error {
	// Rejected before any repository or state work happens.
	if commitCount < 1 {
		return fmt.Errorf("%w, got %d", changeset.ErrInvalidCount, commitCount)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	root, err := paths.RepoRoot()
	if err != nil {
		return fmt.Errorf("not a git repository: %w", err)
	}

	cfg, err := settings.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	logging.SetLogLevelGetter(func() string { return cfg.LogLevel })
	runID := "run-" + time.Now().Format("20060102-150405")
	if err := logging.Init(runID); err != nil {
		fmt.Fprintf(out, "Warning: logging unavailable: %v\n", err)
	}
	defer logging.Close()

	gw, err := vcs.NewExecGateway(root)
	if err != nil {
		if errors.Is(err, vcs.ErrGitNotFound) {
			return errors.New("git is not installed or not in PATH")
		}
		return err
	}

	statePath := stateFile
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(root, statePath)
	}

	prompter := consolePrompter{}

	st, err := prepareState(ctx, gw, out, prompter, prepareOptions{
		statePath:       statePath,
		resumeFlag:      resumeFlag,
		commitCount:     commitCount,
		excludePatterns: excludePatterns,
	})
	if err != nil || st == nil {
		return err
	}

	mapping := artifact.Mapping{ArtifactExt: cfg.ArtifactExt, SourceExt: cfg.SourceExt}
	reconciler := &artifact.Reconciler{
		GW:       gw,
		Mapping:  mapping,
		Compiler: &artifact.LatexCompiler{Mapping: mapping, Command: cfg.Compiler},
		Viewer:   &artifact.SystemViewer{Command: cfg.Viewer},
		Prompter: prompter,
		Root:     root,
		Out:      out,
	}

	controller := &runner.Controller{
		GW:         gw,
		Reconciler: reconciler,
		Prompter:   prompter,
		StatePath:  statePath,
		Out:        out,
	}

	summary, err := controller.Run(ctx, st)
	if err != nil {
		return err
	}
	if summary.ExitCode() != 0 {
		// The controller already printed the per-branch summary.
		return NewSilentError(fmt.Errorf("%d branch(es) failed", summary.Failed))
	}
	return nil
}

type prepareOptions struct {
	statePath       string
	resumeFlag      bool
	commitCount     int
	excludePatterns []string
}

// prepareState either loads a saved run or assembles a fresh one, including
// all pre-flight checks and the plan confirmation. A nil state with nil error
// means the user declined to proceed.
func prepareState(ctx context.Context, gw vcs.Gateway, out io.Writer, prompter consolePrompter, opts prepareOptions) (*runstate.State, error) {
	if opts.commitCount < 1 {
		return nil, fmt.Errorf("%w, got %d", changeset.ErrInvalidCount, opts.commitCount)
	}

	if runstate.Exists(opts.statePath) {
		if !opts.resumeFlag {
			fmt.Fprintf(out, "Found saved progress at %s.\n", opts.statePath)
			resume, err := prompter.Confirm("Resume the interrupted run?")
			if err != nil {
				return nil, err
			}
			if !resume {
				fmt.Fprintln(out, "Not resuming. Run 'pickall clean --force' to discard the saved progress.")
				return nil, nil
			}
		}
		st, err := runstate.Load(opts.statePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load saved progress: %w", err)
		}
		fmt.Fprintf(out, "Resuming: %d branch(es) remaining.\n", len(st.RemainingBranches))
		return st, nil
	}

	replaying, err := gw.ReplayInProgress()
	if err != nil {
		return nil, err
	}
	if replaying {
		return nil, errors.New("a cherry-pick, rebase or merge is already in progress; finish or abort it first")
	}

	dirty, err := gw.HasUncommittedChanges()
	if err != nil {
		return nil, err
	}
	if dirty {
		fmt.Fprintln(out, "Warning: you have uncommitted changes. They may interfere with checkouts and cherry-picks.")
		proceed, err := prompter.Confirm("Continue anyway?")
		if err != nil {
			return nil, err
		}
		if !proceed {
			return nil, nil
		}
	}

	commits, err := changeset.LastN(ctx, gw, opts.commitCount)
	if err != nil {
		return nil, err
	}

	current, err := gw.CurrentBranch()
	if err != nil {
		return nil, err
	}
	if head, err := gw.Head(); err == nil {
		logging.Debug(ctx, "resolved change set", "branch", current, "head", head, "commits", len(commits))
	}

	all, err := gw.Branches()
	if err != nil {
		return nil, err
	}

	targets := branches.Select(all, current, true, opts.excludePatterns)
	if len(targets) == 0 {
		fmt.Fprintln(out, "No target branches. Nothing to do.")
		return nil, nil
	}

	printPlan(out, commits, targets)

	if findings := scanChangeSet(ctx, gw, commits); len(findings) > 0 {
		fmt.Fprintf(out, "\nSuspected secrets in the commits to replicate:\n")
		for _, f := range findings {
			fmt.Fprintf(out, "  line %d: %s (%s)\n", f.Line, f.Secret, f.Rule)
		}
		fmt.Fprintln(out, "Replicating will copy them onto every target branch.")
		proceed, err := prompter.Confirm("Continue anyway?")
		if err != nil {
			return nil, err
		}
		if !proceed {
			return nil, nil
		}
	}

	proceed, err := prompter.Confirm(fmt.Sprintf("Replicate %d commit(s) onto %d branch(es)?", len(commits), len(targets)))
	if err != nil {
		return nil, err
	}
	if !proceed {
		return nil, nil
	}

	return &runstate.State{
		Commits:           commits,
		OriginalBranch:    current,
		RemainingBranches: targets,
	}, nil
}

func printPlan(out io.Writer, commits []vcs.Commit, targets []string) {
	fmt.Fprintf(out, "Commits to replicate (oldest first):\n")
	for _, c := range commits {
		fmt.Fprintf(out, "  %s %s\n", c.ShortHash(), c.Subject)
		if first, _, _ := strings.Cut(c.Body, "\n"); first != "" {
			fmt.Fprintf(out, "           %s\n", first)
		}
	}

	fmt.Fprintf(out, "Target branches:\n")
	shown := targets
	if len(shown) > maxPlanBranches {
		shown = shown[:maxPlanBranches]
	}
	for _, b := range shown {
		fmt.Fprintf(out, "  %s\n", b)
	}
	if extra := len(targets) - len(shown); extra > 0 {
		fmt.Fprintf(out, "  ... and %d more\n", extra)
	}
}

// scanChangeSet is best-effort: a patch that cannot be produced is not worth
// blocking the run over.
func scanChangeSet(ctx context.Context, gw vcs.Gateway, commits []vcs.Commit) []scan.Finding {
	patch, err := gw.ChangeSetPatch(ctx, commits)
	if err != nil {
		logging.Debug(ctx, "secret scan skipped", "error", err.Error())
		return nil
	}
	return scan.Patch(patch)
}
