package cli

import (
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// NewAccessibleForm builds a huh form that falls back to plain text prompts
// when the ACCESSIBLE environment variable is set or stdin is not a terminal
// (piped input, CI). The TUI renderer requires a real terminal.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	accessible := os.Getenv("ACCESSIBLE") != "" || !term.IsTerminal(int(os.Stdin.Fd()))
	return huh.NewForm(groups...).WithAccessible(accessible)
}
