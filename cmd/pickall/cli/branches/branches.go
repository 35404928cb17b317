// Package branches selects the target branches for a run.
package branches

import (
	"path"
	"strings"
)

// Select filters the branch list down to replication targets, preserving input
// order. The current branch is removed first (when excludeCurrent is set),
// then each exclusion pattern is applied in sequence: a pattern containing a
// glob metacharacter is matched with shell-style wildcard semantics against
// the full branch name, a plain pattern by exact equality. Patterns compose by
// intersection; a pattern matching nothing is not an error.
func Select(all []string, current string, excludeCurrent bool, patterns []string) []string {
	selected := make([]string, 0, len(all))
	for _, b := range all {
		if excludeCurrent && b == current {
			continue
		}
		selected = append(selected, b)
	}

	for _, pattern := range patterns {
		kept := selected[:0]
		for _, b := range selected {
			if !matches(pattern, b) {
				kept = append(kept, b)
			}
		}
		selected = kept
	}

	return selected
}

// matches reports whether branch is excluded by pattern.
//
// Wildcards cross slashes: a branch name is one opaque string, not a path,
// so */de/* also excludes branches nested more than one segment deep. The
// slashes are mapped to a byte path.Match does not treat as a separator.
func matches(pattern, branch string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return branch == pattern
	}
	const sep = "\x00"
	ok, err := path.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(branch, "/", sep))
	if err != nil {
		// Malformed pattern: fall back to exact match rather than failing
		// the whole run.
		return branch == pattern
	}
	return ok
}
