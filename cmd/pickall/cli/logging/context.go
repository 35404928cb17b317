package logging

import "context"

// contextKey is a private type to avoid collisions with other packages.
type contextKey int

const branchKey contextKey = iota

// WithBranch returns a context carrying the branch currently being processed.
// Log records emitted with this context include a "branch" attribute.
func WithBranch(ctx context.Context, branch string) context.Context {
	return context.WithValue(ctx, branchKey, branch)
}

// BranchFromContext extracts the active branch from the context, or "" if unset.
func BranchFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(branchKey).(string); ok {
		return v
	}
	return ""
}
