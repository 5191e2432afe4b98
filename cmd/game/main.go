package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/config"
	"github.com/tatianab/tildeath/internal/engine"
	"github.com/tatianab/tildeath/internal/models"
	"github.com/tatianab/tildeath/internal/store"
	"github.com/tatianab/tildeath/internal/tui"
)

var (
	verbose    bool
	resume     bool
	seed       uint64
	catalogDir string
	tuningFile string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tildeath",
	Short: "A horror text adventure that remembers you",
	Long: `tildeath is a horror text adventure narrated by a language model.

Each session opens somewhere new, drifts as reality mutates under you, and
ends in one of many ways. The story remembers what it already showed you.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = seed
		}
		if catalogDir != "" {
			cfg.CatalogDir = catalogDir
		}
		if tuningFile != "" {
			cfg.TuningFile = tuningFile
		}
		models.SaveDir = cfg.SaveDir

		logger, err = newLogger(cfg.LogFile, verbose || cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runGame,
}

// newLogger writes JSON logs to path; the terminal belongs to the game.
func newLogger(path string, debug bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	if debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zapConfig.OutputPaths = []string{path}
	zapConfig.ErrorOutputPaths = []string{path}
	return zapConfig.Build()
}

func runGame(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cat, tuning, err := loadTables()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	gen, err := engine.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return err
	}
	defer gen.Close()

	s := cfg.Seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	logger.Info("starting", zap.Uint64("seed", s), zap.String("model", cfg.Model))

	eng, err := engine.New(gen, cat, tuning, engine.Options{
		Seed: s,
		Retry: engine.RetryPolicy{
			Attempts: cfg.GenAttempts,
			Timeout:  cfg.GenTimeout,
			Backoff:  cfg.GenBackoff,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ghosts, closeStore, err := openGhostStore()
	if err != nil {
		return err
	}
	defer closeStore()

	var state *models.SessionState
	if resume {
		state, err = models.LoadSession(tui.SaveName)
		switch {
		case errors.Is(err, models.ErrNoSession):
			logger.Info("nothing to resume, starting a new session")
		case err != nil:
			return err
		case state.Ended():
			logger.Info("saved session already ended, starting a new one", zap.String("ending", state.EndingID))
			state = nil
		}
	}

	return tui.Run(ctx, eng, ghosts, state, logger)
}

// loadTables loads the catalogs and tuning. Any failure here is a
// misconfiguration and stops the program before the game starts.
func loadTables() (*catalog.Catalog, config.Tuning, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if cfg.CatalogDir != "" {
		cat, err = catalog.LoadDir(cfg.CatalogDir)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, config.Tuning{}, err
	}

	tuning := config.DefaultTuning()
	if cfg.TuningFile != "" {
		if tuning, err = config.LoadTuning(cfg.TuningFile); err != nil {
			return nil, config.Tuning{}, err
		}
	}
	return cat, tuning, nil
}

func openGhostStore() (models.GhostStore, func() error, error) {
	if cfg.GhostDB == "" {
		return models.NewFileGhostStore(), func() error { return nil }, nil
	}
	s, err := store.OpenSQLite(cfg.GhostDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open ghost database: %w", err)
	}
	return s, s.Close, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", "", "Directory with catalog YAML files (or set TILDEATH_CATALOG_DIR)")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML file with tuning overrides (or set TILDEATH_TUNING)")

	rootCmd.Flags().BoolVar(&resume, "resume", false, "Continue the last saved session")
	rootCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(memoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
