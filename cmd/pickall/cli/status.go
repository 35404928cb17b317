package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Fdondi/pickall/cmd/pickall/cli/paths"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runstate"
)

func newStatusCmd() *cobra.Command {
	var stateFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show saved run progress",
		Long:  "Show the commits and branch queue of an interrupted run, if one is saved.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout(), stateFile)
		},
	}

	cmd.Flags().StringVar(&stateFile, "state-file", paths.DefaultStateFile, "Where run progress is saved")

	return cmd
}

func runStatus(w io.Writer, stateFile string) error {
	root, err := paths.RepoRoot()
	if err != nil {
		fmt.Fprintln(w, "✕ not a git repository")
		return nil //nolint:nilerr // Not being in a git repo is a valid status, not an error
	}

	statePath := stateFile
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(root, statePath)
	}

	if !runstate.Exists(statePath) {
		fmt.Fprintln(w, "○ no saved run (start one with `pickall run`)")
		return nil
	}

	st, err := runstate.Load(statePath)
	if err != nil {
		return fmt.Errorf("cannot read saved progress: %w", err)
	}

	fmt.Fprintf(w, "● interrupted run saved at %s\n\n", statePath)

	fmt.Fprintf(w, "Commits (oldest first):\n")
	for _, c := range st.Commits {
		fmt.Fprintf(w, "  %s %s\n", c.ShortHash(), c.Subject)
	}

	fmt.Fprintf(w, "Original branch: %s\n", st.OriginalBranch)
	if st.CurrentBranch != nil {
		fmt.Fprintf(w, "Was processing:  %s\n", *st.CurrentBranch)
	}

	fmt.Fprintf(w, "Remaining branches (%d):\n", len(st.RemainingBranches))
	for _, b := range st.RemainingBranches {
		fmt.Fprintf(w, "  %s\n", b)
	}

	if len(st.FailedBranches) > 0 {
		fmt.Fprintf(w, "Failed branches (%d):\n", len(st.FailedBranches))
		for _, b := range st.FailedBranches {
			fmt.Fprintf(w, "  %s\n", b)
		}
	}

	fmt.Fprintln(w, "\nRun `pickall run` to resume, or `pickall clean --force` to discard.")
	return nil
}
