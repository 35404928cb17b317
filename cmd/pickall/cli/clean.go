package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Fdondi/pickall/cmd/pickall/cli/paths"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runstate"
)

func newCleanCmd() *cobra.Command {
	var (
		forceFlag bool
		stateFile string
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Discard saved run progress",
		Long: `Remove the saved progress of an interrupted run.

Default: shows what would be deleted.
With --force, actually deletes the saved progress.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClean(cmd.OutOrStdout(), stateFile, forceFlag)
		},
	}

	cmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Actually delete the saved progress (default: dry run)")
	cmd.Flags().StringVar(&stateFile, "state-file", paths.DefaultStateFile, "Where run progress is saved")

	return cmd
}

func runClean(w io.Writer, stateFile string, force bool) error {
	root, err := paths.RepoRoot()
	if err != nil {
		return fmt.Errorf("not a git repository: %w", err)
	}

	statePath := stateFile
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(root, statePath)
	}

	if !runstate.Exists(statePath) {
		fmt.Fprintln(w, "Nothing to clean.")
		return nil
	}

	st, err := runstate.Load(statePath)
	if err != nil {
		// A corrupt file is still worth deleting; show the path and proceed.
		fmt.Fprintf(w, "Saved progress at %s is unreadable: %v\n", statePath, err)
	} else {
		fmt.Fprintf(w, "Saved progress at %s: %d commit(s), %d branch(es) remaining.\n",
			statePath, len(st.Commits), len(st.RemainingBranches))
	}

	if !force {
		fmt.Fprintln(w, "Dry run. Use --force to delete.")
		return nil
	}

	if err := runstate.Delete(statePath); err != nil {
		return fmt.Errorf("failed to delete saved progress: %w", err)
	}
	fmt.Fprintln(w, "Deleted.")
	return nil
}
