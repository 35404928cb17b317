// Package settings provides configuration loading for pickall.
// This package is separate from cli so that leaf packages (artifact, runner)
// can import it without creating an import cycle.
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Fdondi/pickall/cmd/pickall/cli/paths"
)

const (
	// SettingsFile is the path to the pickall settings file
	SettingsFile = ".pickall/settings.json"
	// SettingsLocalFile is the path to the local settings override file (not committed)
	SettingsLocalFile = ".pickall/settings.local.json"
)

// Defaults for the derived-artifact naming convention.
const (
	DefaultArtifactExt = ".pdf"
	DefaultSourceExt   = ".tex"
)

// Settings represents the .pickall/settings.json configuration
type Settings struct {
	// ArtifactExt is the extension of derived binary artifacts (default ".pdf").
	ArtifactExt string `json:"artifact_ext,omitempty"`

	// SourceExt is the extension of the textual source an artifact is built
	// from (default ".tex").
	SourceExt string `json:"source_ext,omitempty"`

	// Compiler overrides the document compiler command. The source path is
	// appended as the final argument. Empty means latexmk with a pdflatex
	// fallback.
	Compiler []string `json:"compiler,omitempty"`

	// Viewer overrides the document viewer command. Empty means the platform
	// default opener.
	Viewer []string `json:"viewer,omitempty"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the PICKALL_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not configured, true = opted in, false = opted out
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Load loads settings from .pickall/settings.json, then applies any overrides
// from .pickall/settings.local.json if it exists.
// Returns default settings if neither file exists.
// Works correctly from any subdirectory within the repository.
func Load() (*Settings, error) {
	settingsFileAbs, err := paths.AbsPath(SettingsFile)
	if err != nil {
		settingsFileAbs = SettingsFile // Fallback to relative
	}
	localSettingsFileAbs, err := paths.AbsPath(SettingsLocalFile)
	if err != nil {
		localSettingsFileAbs = SettingsLocalFile // Fallback to relative
	}

	settings, err := loadFromFile(settingsFileAbs)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(localSettingsFileAbs) //nolint:gosec // path is from AbsPath or constant
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
		// Local file doesn't exist, continue without overrides
	} else {
		if err := mergeJSON(settings, localData); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
	}

	applyDefaults(settings)

	return settings, nil
}

// loadFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadFromFile(filePath string) (*Settings, error) {
	settings := &Settings{}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(settings)
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(settings)

	return settings, nil
}

// mergeJSON merges JSON data into existing settings.
// Only non-zero values from the JSON override existing settings.
func mergeJSON(settings *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if extRaw, ok := raw["artifact_ext"]; ok {
		var s string
		if err := json.Unmarshal(extRaw, &s); err != nil {
			return fmt.Errorf("parsing artifact_ext field: %w", err)
		}
		if s != "" {
			settings.ArtifactExt = s
		}
	}

	if extRaw, ok := raw["source_ext"]; ok {
		var s string
		if err := json.Unmarshal(extRaw, &s); err != nil {
			return fmt.Errorf("parsing source_ext field: %w", err)
		}
		if s != "" {
			settings.SourceExt = s
		}
	}

	if cmdRaw, ok := raw["compiler"]; ok {
		var cmd []string
		if err := json.Unmarshal(cmdRaw, &cmd); err != nil {
			return fmt.Errorf("parsing compiler field: %w", err)
		}
		if len(cmd) > 0 {
			settings.Compiler = cmd
		}
	}

	if cmdRaw, ok := raw["viewer"]; ok {
		var cmd []string
		if err := json.Unmarshal(cmdRaw, &cmd); err != nil {
			return fmt.Errorf("parsing viewer field: %w", err)
		}
		if len(cmd) > 0 {
			settings.Viewer = cmd
		}
	}

	if logLevelRaw, ok := raw["log_level"]; ok {
		var ll string
		if err := json.Unmarshal(logLevelRaw, &ll); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if ll != "" {
			settings.LogLevel = ll
		}
	}

	if telemetryRaw, ok := raw["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(telemetryRaw, &t); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		settings.Telemetry = &t
	}

	return nil
}

func applyDefaults(settings *Settings) {
	if settings.ArtifactExt == "" {
		settings.ArtifactExt = DefaultArtifactExt
	}
	if settings.SourceExt == "" {
		settings.SourceExt = DefaultSourceExt
	}
}
