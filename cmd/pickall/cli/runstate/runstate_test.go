package runstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fdondi/pickall/cmd/pickall/cli/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	branch := "feature/x"

	saved := &State{
		Commits: []vcs.Commit{
			{Hash: "abc123", Subject: "first", Body: "details"},
			{Hash: "def456", Subject: "second"},
		},
		OriginalBranch:    "main",
		RemainingBranches: []string{"feature/x", "feature/y"},
		FailedBranches:    []string{"broken"},
		CurrentBranch:     &branch,
	}
	require.NoError(t, Save(path, saved))
	assert.True(t, Exists(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestLoadLegacyCommitHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "commit_hash": "abc123",
  "original_branch": "main",
  "remaining_branches": ["dev"],
  "current_branch": null
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Commits, 1)
	assert.Equal(t, "abc123", loaded.Commits[0].Hash)
	assert.Equal(t, "main", loaded.OriginalBranch)
	assert.Equal(t, []string{"dev"}, loaded.RemainingBranches)
	assert.Empty(t, loaded.FailedBranches)
	assert.Nil(t, loaded.CurrentBranch)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	assert.False(t, Exists(path))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, &State{OriginalBranch: "main"}))
	require.NoError(t, Delete(path))
	assert.False(t, Exists(path))

	// Deleting again is not an error.
	assert.NoError(t, Delete(path))
}
