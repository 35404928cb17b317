// Package runstate persists a run's progress so that an interrupted run can
// be resumed from the same branch queue.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Fdondi/pickall/cmd/pickall/cli/jsonutil"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
)

// State captures everything needed to resume a run. It is rewritten wholesale
// before each branch attempt, so a crash loses at most the in-flight branch.
type State struct {
	Commits           []vcs.Commit `json:"commits"`
	OriginalBranch    string       `json:"original_branch"`
	RemainingBranches []string     `json:"remaining_branches"`
	FailedBranches    []string     `json:"failed_branches"`
	CurrentBranch     *string      `json:"current_branch"`
}

// diskState adds the legacy single-hash field for backward-compatible reads.
type diskState struct {
	State
	LegacyCommitHash string `json:"commit_hash,omitempty"`
}

// Exists reports whether a state file is present at path. A stale file is the
// sole trigger for offering to resume.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads a saved state. A legacy file carrying only commit_hash is
// upgraded in-memory to a one-element commit list. Callers should treat any
// error as "no resumable state" (warn, never fatal).
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var disk diskState
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}

	state := disk.State
	if len(state.Commits) == 0 && disk.LegacyCommitHash != "" {
		state.Commits = []vcs.Commit{{Hash: disk.LegacyCommitHash}}
	}
	if state.FailedBranches == nil {
		state.FailedBranches = []string{}
	}

	return &state, nil
}

// Save writes the state wholesale to path.
func Save(path string, state *State) error {
	if state.FailedBranches == nil {
		state.FailedBranches = []string{}
	}
	if err := jsonutil.WriteFile(path, state); err != nil {
		return fmt.Errorf("saving run state: %w", err)
	}
	return nil
}

// Delete removes the state file. Missing files are not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting state file: %w", err)
	}
	return nil
}
