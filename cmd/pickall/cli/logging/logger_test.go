package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Fdondi/pickall/cmd/pickall/cli/paths"
)

const testRunID = "run-20250115-120000"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     slog.Level
	}{
		{"empty defaults to INFO", "", slog.LevelInfo},
		{"DEBUG lowercase", "debug", slog.LevelDebug},
		{"DEBUG uppercase", "DEBUG", slog.LevelDebug},
		{"INFO lowercase", "info", slog.LevelInfo},
		{"WARN lowercase", "warn", slog.LevelWarn},
		{"ERROR lowercase", "error", slog.LevelError},
		{"invalid defaults to INFO", "invalid", slog.LevelInfo},
		{"warning alias", "warning", slog.LevelWarn},
		{"whitespace trimmed", "  debug  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.envValue)
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

// initGitRepo makes RepoRoot resolve to tmpDir.
func initGitRepo(t *testing.T, tmpDir string) {
	t.Helper()

	//nolint:noctx // test setup
	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init failed: %v\n%s", err, out)
	}
	paths.ClearRepoRootCache()
	t.Cleanup(paths.ClearRepoRootCache)
}

func TestInit_CreatesLogFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	logFilePath := filepath.Join(tmpDir, paths.LogsDir, testRunID+".log")
	if _, err := os.Stat(logFilePath); os.IsNotExist(err) {
		t.Errorf("Init() did not create log file at %s", logFilePath)
	}
}

func TestInit_WritesJSONLogs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Info(context.Background(), "test message", slog.String("key", "value"))
	Close()

	logFilePath := filepath.Join(tmpDir, paths.LogsDir, testRunID+".log")
	data, err := os.ReadFile(logFilePath) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var record map[string]any
	line := strings.TrimSpace(string(data))
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\nline: %s", err, line)
	}
	if record["msg"] != "test message" {
		t.Errorf("msg = %v, want 'test message'", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("key = %v, want 'value'", record["key"])
	}
}

func TestInit_BranchFromContextIncluded(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := WithBranch(context.Background(), "feature/x")
	Info(ctx, "branch message")
	Close()

	logFilePath := filepath.Join(tmpDir, paths.LogsDir, testRunID+".log")
	data, err := os.ReadFile(logFilePath) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["branch"] != "feature/x" {
		t.Errorf("branch = %v, want 'feature/x'", record["branch"])
	}
}

func TestInit_DebugFilteredAtDefaultLevel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	t.Setenv(LogLevelEnvVar, "")
	SetLogLevelGetter(nil)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Debug(context.Background(), "should be filtered")
	Close()

	logFilePath := filepath.Join(tmpDir, paths.LogsDir, testRunID+".log")
	data, err := os.ReadFile(logFilePath) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "should be filtered") {
		t.Error("DEBUG record written at default INFO level")
	}
}

func TestInit_EnvVarOverridesGetter(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	t.Setenv(LogLevelEnvVar, "debug")
	SetLogLevelGetter(func() string { return "error" })
	defer SetLogLevelGetter(nil)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Debug(context.Background(), "env wins")
	Close()

	logFilePath := filepath.Join(tmpDir, paths.LogsDir, testRunID+".log")
	data, err := os.ReadFile(logFilePath) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "env wins") {
		t.Error("PICKALL_LOG_LEVEL=debug should enable DEBUG records")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	initGitRepo(t, tmpDir)

	if err := Init(testRunID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Close()
	Close() // must not panic
}

func TestCreateLoggerRespectsLevel(t *testing.T) {
	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	l := createLogger(w, slog.LevelWarn)

	l.Info("hidden")
	l.Warn("visible")
	_ = w.Flush()

	out := sb.String()
	if strings.Contains(out, "hidden") {
		t.Error("INFO record written at WARN level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("WARN record missing at WARN level")
	}
}
