package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

// execute runs the root command in a scratch save directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("TILDEATH_SAVE_DIR", filepath.Join(t.TempDir(), "saves"))
	t.Setenv("TILDEATH_GHOST_DB", "")
	t.Setenv("TILDEATH_CATALOG_DIR", "")
	t.Setenv("TILDEATH_TUNING", "")
	catalogDir, tuningFile, resetMemory = "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	// A nil slice would make cobra read the test binary's flags.
	rootCmd.SetArgs(append([]string{}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "mutations: 20")
	assert.Contains(t, out, "concepts:  25")
	assert.Contains(t, out, "ok")
}

func TestValidateRejectsBrokenCatalog(t *testing.T) {
	_, err := execute(t, "validate", "--catalog", t.TempDir())
	assert.ErrorIs(t, err, catalog.ErrMisconfigured)
}

func TestMemoryCommand(t *testing.T) {
	out, err := execute(t, "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "session_count: 0")

	require.NoError(t, models.NewFileGhostStore().SaveGhost(context.Background(), &models.GhostMemory{SessionCount: 4}))
	require.NoError(t, models.NewSessionState(3).Save("current"))
	rootCmd.SetArgs([]string{"memory"})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "session_count: 4")
	assert.Contains(t, buf.String(), "# saved sessions: current")

	rootCmd.SetArgs([]string{"memory", "--reset"})
	require.NoError(t, rootCmd.Execute())
	g, err := models.NewFileGhostStore().LoadGhost(context.Background())
	require.NoError(t, err)
	assert.Zero(t, g.SessionCount)
	resetMemory = false
}

func TestMemoryCommandSQLite(t *testing.T) {
	t.Setenv("TILDEATH_GHOST_DB", filepath.Join(t.TempDir(), "ghost.db"))
	t.Setenv("TILDEATH_SAVE_DIR", t.TempDir())
	t.Chdir(t.TempDir())
	catalogDir, tuningFile, resetMemory = "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"memory"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "session_count: 0")
}

func TestRunRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := execute(t)
	assert.EqualError(t, err, "GEMINI_API_KEY environment variable is not set")
}
