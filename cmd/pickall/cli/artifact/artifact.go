// Package artifact reconciles derived binary artifacts with their textual
// sources during a replication run.
//
// A conflicted compiled document can often be resolved without touching the
// binary at all: rebuild it from its source and let a human approve the
// result. The reconciler never resolves anything the human did not explicitly
// accept or skip, and never touches conflicts in the sources themselves.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Fdondi/pickall/cmd/pickall/cli/logging"
	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ReviewDecision is the human verdict on a rebuilt artifact.
type ReviewDecision int

const (
	// ReviewAccept stages the rebuilt artifact and moves on.
	ReviewAccept ReviewDecision = iota
	// ReviewReject loops back to recompilation after the human edits the source.
	ReviewReject
	// ReviewSkip leaves the artifact unresolved for manual handling later.
	ReviewSkip
	// ReviewAbort abandons the whole run for this branch.
	ReviewAbort
)

// CompileDecision is the human verdict after a failed compilation.
type CompileDecision int

const (
	// CompileRetry attempts the build again.
	CompileRetry CompileDecision = iota
	// CompileSkip leaves this artifact for manual handling.
	CompileSkip
	// CompileAbort abandons the whole run for this branch.
	CompileAbort
)

// Prompter supplies the human decisions the reconciler needs. The console
// implementation lives in the cli package; tests feed scripted responses.
type Prompter interface {
	// ReviewArtifact asks whether the rebuilt artifact looks correct.
	ReviewArtifact(artifactPath string) (ReviewDecision, error)

	// CompileFailed asks how to proceed after a failed build.
	CompileFailed(sourcePath string, buildErr error) (CompileDecision, error)
}

// Compiler builds an artifact from its source. Implementations must be
// non-interactive and bounded.
type Compiler interface {
	Compile(ctx context.Context, sourcePath string) (artifactPath string, err error)
}

// Viewer opens an artifact for human review. Best-effort: failures are
// warnings, never fatal.
type Viewer interface {
	Open(path string) error
}

// Outcome summarizes a reconciliation pass.
type Outcome int

const (
	// OutcomeDone means every matching artifact was accepted or explicitly
	// skipped.
	OutcomeDone Outcome = iota
	// OutcomeAborted means the human aborted; the caller should abort the
	// in-flight replay and record the branch as failed.
	OutcomeAborted
)

// Reconciler rebuilds derived artifacts and drives their review loop.
type Reconciler struct {
	GW       vcs.Gateway
	Mapping  Mapping
	Compiler Compiler
	Viewer   Viewer
	Prompter Prompter

	// Root is the repository root; gateway paths are relative to it.
	Root string

	// Out receives human-facing progress output.
	Out io.Writer
}

func (r *Reconciler) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stderr
}

// ReconcileConflicts handles every currently conflicted derived artifact.
// Artifacts whose source is missing or itself conflicted are skipped with an
// explicit message; those must be resolved by a human.
func (r *Reconciler) ReconcileConflicts(ctx context.Context) (Outcome, error) {
	conflicted, err := r.GW.ConflictedPaths()
	if err != nil {
		return OutcomeDone, fmt.Errorf("listing conflicted paths: %w", err)
	}

	conflictedSet := make(map[string]bool, len(conflicted))
	for _, p := range conflicted {
		conflictedSet[p] = true
	}

	var artifacts []string
	for _, p := range conflicted {
		if r.Mapping.IsArtifact(p) {
			artifacts = append(artifacts, p)
		}
	}
	if len(artifacts) == 0 {
		return OutcomeDone, nil
	}

	fmt.Fprintf(r.out(), "\nConflicted artifacts detected: %d file(s)\n", len(artifacts))

	for _, artifactPath := range artifacts {
		source := r.Mapping.SourceFor(artifactPath)

		if conflictedSet[source] {
			fmt.Fprintf(r.out(), "Skipping %s: its source %s is itself conflicted and must be resolved by hand first.\n",
				artifactPath, source)
			continue
		}
		if _, err := os.Stat(filepath.Join(r.Root, source)); err != nil {
			fmt.Fprintf(r.out(), "Skipping %s: no source %s found; resolve the artifact manually.\n",
				artifactPath, source)
			continue
		}

		outcome, err := r.rebuildAndReview(ctx, source, artifactPath)
		if err != nil {
			return OutcomeDone, err
		}
		if outcome == OutcomeAborted {
			return OutcomeAborted, nil
		}
	}

	return OutcomeDone, nil
}

// ReviewModifiedSources runs after a successful, conflict-free replay: a
// replay can succeed at the version-control level while leaving a stale
// derived artifact behind. Every modified or staged source gets the same
// compile/review/accept loop before the branch counts as done.
func (r *Reconciler) ReviewModifiedSources(ctx context.Context) (Outcome, error) {
	modified, err := r.GW.ModifiedPaths()
	if err != nil {
		return OutcomeDone, fmt.Errorf("listing modified paths: %w", err)
	}
	staged, err := r.GW.StagedPaths()
	if err != nil {
		return OutcomeDone, fmt.Errorf("listing staged paths: %w", err)
	}
	conflicted, err := r.GW.ConflictedPaths()
	if err != nil {
		return OutcomeDone, fmt.Errorf("listing conflicted paths: %w", err)
	}

	conflictedSet := make(map[string]bool, len(conflicted))
	for _, p := range conflicted {
		conflictedSet[p] = true
	}

	seen := make(map[string]bool)
	var sources []string
	for _, p := range append(append([]string{}, modified...), staged...) {
		if !r.Mapping.IsSource(p) || seen[p] || conflictedSet[p] {
			continue
		}
		seen[p] = true
		sources = append(sources, p)
	}
	if len(sources) == 0 {
		return OutcomeDone, nil
	}
	sort.Strings(sources)

	fmt.Fprintf(r.out(), "\nModified sources need their artifacts rebuilt: %d file(s)\n", len(sources))

	for _, source := range sources {
		outcome, err := r.rebuildAndReview(ctx, source, r.Mapping.ArtifactFor(source))
		if err != nil {
			return OutcomeDone, err
		}
		if outcome == OutcomeAborted {
			return OutcomeAborted, nil
		}
	}

	return OutcomeDone, nil
}

// rebuildAndReview runs the compile/view/accept loop for one source.
func (r *Reconciler) rebuildAndReview(ctx context.Context, source, artifactPath string) (Outcome, error) {
	fmt.Fprintf(r.out(), "\nProcessing: %s\n", source)
	r.printSourceDiff(source)

	for {
		fmt.Fprintf(r.out(), "Compiling %s...\n", source)
		built, err := r.Compiler.Compile(ctx, filepath.Join(r.Root, source))
		if err != nil {
			logging.Warn(ctx, "artifact compilation failed", "source", source, "error", err.Error())
			decision, perr := r.Prompter.CompileFailed(source, err)
			if perr != nil {
				return OutcomeDone, fmt.Errorf("reading compile decision: %w", perr)
			}
			switch decision {
			case CompileRetry:
				continue
			case CompileSkip:
				fmt.Fprintf(r.out(), "Leaving %s for manual handling.\n", artifactPath)
				return OutcomeDone, nil
			case CompileAbort:
				return OutcomeAborted, nil
			}
			continue
		}

		fmt.Fprintf(r.out(), "Compiled to: %s\n", built)
		if r.Viewer != nil {
			if err := r.Viewer.Open(built); err != nil {
				fmt.Fprintf(r.out(), "Warning: could not open %s automatically: %v\n", built, err)
			}
		}

		decision, err := r.Prompter.ReviewArtifact(artifactPath)
		if err != nil {
			return OutcomeDone, fmt.Errorf("reading review decision: %w", err)
		}
		switch decision {
		case ReviewAccept:
			if res := r.GW.StageFile(ctx, artifactPath); !res.Ok {
				fmt.Fprintf(r.out(), "Warning: failed to stage %s: %s\n", artifactPath, res.Output())
			} else {
				fmt.Fprintf(r.out(), "Staged %s\n", artifactPath)
			}
			return OutcomeDone, nil
		case ReviewReject:
			// Human edits the source, then we recompile.
			continue
		case ReviewSkip:
			fmt.Fprintf(r.out(), "Leaving %s unresolved for manual handling.\n", artifactPath)
			return OutcomeDone, nil
		case ReviewAbort:
			return OutcomeAborted, nil
		}
	}
}

// printSourceDiff shows what changed in the source relative to HEAD, so the
// reviewer knows what to look for in the rebuilt document. Best-effort.
func (r *Reconciler) printSourceDiff(source string) {
	head, err := r.GW.ShowFileAtHead(source)
	if err != nil {
		return // new file or unreadable; nothing to show
	}
	current, err := os.ReadFile(filepath.Join(r.Root, source)) //nolint:gosec // repo-relative path from git
	if err != nil {
		return
	}
	if head == string(current) {
		return
	}

	dmp := diffmatchpatch.New()
	text1, text2, lineArray := dmp.DiffLinesToChars(head, string(current))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(text1, text2, false), lineArray)

	fmt.Fprintf(r.out(), "Changes in %s since HEAD:\n", source)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffEqual:
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			fmt.Fprintf(r.out(), "  %s %s\n", prefix, line)
		}
	}
}

// ErrNoArtifact is returned by compilers when the build reported success but
// produced no artifact file.
var ErrNoArtifact = errors.New("compiler produced no artifact")
