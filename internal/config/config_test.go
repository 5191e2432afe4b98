package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/tildeath/internal/catalog"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, "GEMINI_API_KEY", "TILDEATH_MODEL", "TILDEATH_SAVE_DIR", "TILDEATH_LOG_FILE",
		"TILDEATH_GEN_TIMEOUT", "TILDEATH_GEN_ATTEMPTS")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, ".saves", cfg.SaveDir)
	assert.Equal(t, filepath.Join(".saves", "tildeath.log"), cfg.LogFile)
	assert.Equal(t, 45*time.Second, cfg.GenTimeout)
	assert.Equal(t, uint(3), cfg.GenAttempts)
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrNoAPIKey)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetEnv(t, "GEMINI_API_KEY")
	t.Setenv("TILDEATH_SEED", "42")
	t.Setenv("TILDEATH_GEN_TIMEOUT", "5s")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-file\nTILDEATH_SEED=7\n"), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.GeminiAPIKey)
	// godotenv never overrides variables that are already set.
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 5*time.Second, cfg.GenTimeout)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoadConfigBadValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TILDEATH_GEN_ATTEMPTS", "many")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "parse env")
}

func TestLoadTuning(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tuning, err := LoadTuning("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTuning(), tuning)
		assert.Equal(t, []int{7, 15, 23}, tuning.Mutation.Checkpoints)
		assert.Equal(t, 30, tuning.Ending.ExhaustionTurn)
	})

	t.Run("overrides layer on defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
mutation:
  checkpoints: [5, 10]
ending:
  cosmic_chance: 0.5
`), 0644))
		tuning, err := LoadTuning(path)
		require.NoError(t, err)
		assert.Equal(t, []int{5, 10}, tuning.Mutation.Checkpoints)
		assert.Equal(t, 3, tuning.Mutation.CooldownMin)
		assert.InDelta(t, 0.5, tuning.Ending.CosmicChance, 1e-9)
		assert.Equal(t, 25, tuning.Ending.CosmicTurn)
		assert.Equal(t, 3, tuning.Scenario.Memory)
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mutation:\n  cooldown_min: 9\n"), 0644))
		_, err := LoadTuning(path)
		assert.ErrorIs(t, err, catalog.ErrMisconfigured)
	})

	t.Run("unbounded scenario memory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scenario:\n  memory: 0\n"), 0644))
		_, err := LoadTuning(path)
		assert.ErrorIs(t, err, catalog.ErrMisconfigured)
		assert.ErrorContains(t, err, "scenario memory must be at least 1")
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mutation: [\n"), 0644))
		_, err := LoadTuning(path)
		assert.ErrorIs(t, err, catalog.ErrMisconfigured)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTuning(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
