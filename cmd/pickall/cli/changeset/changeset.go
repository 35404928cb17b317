// Package changeset resolves the ordered list of commits to replicate.
package changeset

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fdondi/pickall/cmd/pickall/cli/logging"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
)

// ErrInvalidCount indicates a requested commit count below 1. Callers must
// reject this before any gateway work happens.
var ErrInvalidCount = errors.New("commit count must be at least 1")

// LastN resolves the last n commits from HEAD, oldest-first. When fewer than
// n commits exist the shorter set is returned with a warning logged; an empty
// history is an error.
func LastN(ctx context.Context, gw vcs.Gateway, n int) ([]vcs.Commit, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCount, n)
	}

	commits, err := gw.LastCommits(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("reading commit history: %w", err)
	}
	if len(commits) == 0 {
		return nil, errors.New("no commits found in history")
	}
	if len(commits) < n {
		logging.Warn(ctx, "fewer commits available than requested",
			"requested", n, "available", len(commits))
	}

	return commits, nil
}
