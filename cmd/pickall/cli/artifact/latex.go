package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// compileTimeout bounds a single non-interactive build attempt.
const compileTimeout = 2 * time.Minute

// LatexCompiler builds a PDF from a .tex source. It prefers latexmk and
// falls back to running pdflatex twice (the second pass fixes references).
// A Command override from settings replaces both.
type LatexCompiler struct {
	Mapping Mapping

	// Command, when non-empty, is the compiler invocation; the source path is
	// appended as the final argument.
	Command []string
}

var _ Compiler = (*LatexCompiler)(nil)

func (c *LatexCompiler) Compile(ctx context.Context, sourcePath string) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", fmt.Errorf("source %s does not exist: %w", sourcePath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, compileTimeout)
	defer cancel()

	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)

	if len(c.Command) > 0 {
		args := append(append([]string(nil), c.Command[1:]...), base)
		if err := runInDir(ctx, dir, c.Command[0], args...); err != nil {
			return "", err
		}
	} else if err := runInDir(ctx, dir, "latexmk", "-pdf", "-interaction=nonstopmode", base); err != nil {
		// latexmk missing or failed: try plain pdflatex, twice for references.
		if err := runInDir(ctx, dir, "pdflatex", "-interaction=nonstopmode", base); err != nil {
			return "", err
		}
		_ = runInDir(ctx, dir, "pdflatex", "-interaction=nonstopmode", base)
	}

	artifact := c.Mapping.ArtifactFor(sourcePath)
	if _, err := os.Stat(artifact); err != nil {
		return "", ErrNoArtifact
	}
	return artifact, nil
}

// runInDir executes a build command, folding its output into the error so
// the prompt after a failure can show what went wrong.
func runInDir(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(msg, 20))
	}
	return nil
}

// tail returns the last n lines of s; build logs are long and only the end
// carries the error.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// SystemViewer opens an artifact with the platform's default document viewer.
type SystemViewer struct {
	// Command, when non-empty, overrides the platform opener; the artifact
	// path is appended as the final argument.
	Command []string
}

var _ Viewer = (*SystemViewer)(nil)

func (v *SystemViewer) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("artifact %s does not exist: %w", path, err)
	}

	name, args := v.openerCommand()
	args = append(args, path)

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching viewer: %w", err)
	}
	// The viewer keeps running; don't wait for it.
	go func() { _ = cmd.Wait() }()
	return nil
}

func (v *SystemViewer) openerCommand() (string, []string) {
	if len(v.Command) > 0 {
		return v.Command[0], append([]string(nil), v.Command[1:]...)
	}
	switch runtime.GOOS {
	case "windows":
		return "cmd", []string{"/c", "start", ""}
	case "darwin":
		return "open", nil
	default:
		return "xdg-open", nil
	}
}
