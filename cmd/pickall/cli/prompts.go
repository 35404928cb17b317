package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/Fdondi/pickall/cmd/pickall/cli/artifact"
	"github.com/Fdondi/pickall/cmd/pickall/cli/runner"
)

// consolePrompter answers both the run controller's and the artifact
// reconciler's questions through huh forms. Ctrl-C inside a form is treated
// as an abort answer rather than an error so the controller can clean up the
// in-flight replay.
type consolePrompter struct{}

var (
	_ runner.Prompter   = (*consolePrompter)(nil)
	_ artifact.Prompter = (*consolePrompter)(nil)
)

func (consolePrompter) ResolutionStatus(branch string) (runner.Resolution, error) {
	var answer string
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Conflicts on branch '%s'. Resolved?", branch)).
				Description("Resolve the conflicts in another terminal, then answer here.").
				Options(
					huh.NewOption("Yes, conflicts are resolved", "done"),
					huh.NewOption("Not yet, keep waiting", "wait"),
					huh.NewOption("Abort this branch", "abort"),
				).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return runner.ResolutionAbort, nil
		}
		return runner.ResolutionAbort, fmt.Errorf("resolution prompt failed: %w", err)
	}

	switch answer {
	case "done":
		return runner.ResolutionDone, nil
	case "wait":
		return runner.ResolutionNotYet, nil
	default:
		return runner.ResolutionAbort, nil
	}
}

func (consolePrompter) Confirm(prompt string) (bool, error) {
	var confirmed bool
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirmed, nil
}

func (consolePrompter) ReviewArtifact(artifactPath string) (artifact.ReviewDecision, error) {
	var answer string
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Does the rebuilt %s look correct?", artifactPath)).
				Options(
					huh.NewOption("Yes, stage it", "accept"),
					huh.NewOption("No, I edited the source; rebuild", "reject"),
					huh.NewOption("Skip, I'll handle this file myself", "skip"),
					huh.NewOption("Abort this branch", "abort"),
				).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return artifact.ReviewAbort, nil
		}
		return artifact.ReviewAbort, fmt.Errorf("artifact review prompt failed: %w", err)
	}

	switch answer {
	case "accept":
		return artifact.ReviewAccept, nil
	case "reject":
		return artifact.ReviewReject, nil
	case "skip":
		return artifact.ReviewSkip, nil
	default:
		return artifact.ReviewAbort, nil
	}
}

func (consolePrompter) CompileFailed(sourcePath string, buildErr error) (artifact.CompileDecision, error) {
	var answer string
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Compiling %s failed", sourcePath)).
				Description(buildErr.Error()).
				Options(
					huh.NewOption("Retry after fixing the source", "retry"),
					huh.NewOption("Skip, I'll rebuild this file myself", "skip"),
					huh.NewOption("Abort this branch", "abort"),
				).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return artifact.CompileAbort, nil
		}
		return artifact.CompileAbort, fmt.Errorf("compile failure prompt failed: %w", err)
	}

	switch answer {
	case "retry":
		return artifact.CompileRetry, nil
	case "skip":
		return artifact.CompileSkip, nil
	default:
		return artifact.CompileAbort, nil
	}
}
