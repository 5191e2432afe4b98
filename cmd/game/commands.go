package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/tildeath/internal/engine"
	"github.com/tatianab/tildeath/internal/models"
)

var resetMemory bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the catalogs and tuning without starting a game",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, tuning, err := loadTables()
		if err != nil {
			return err
		}
		// Building the engine runs the checks that need the tuning too.
		if _, err := engine.New(nil, cat, tuning, engine.Options{Logger: logger}); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "scenarios: %d\n", len(cat.Scenarios))
		fmt.Fprintf(out, "themes:    %d\n", len(cat.Themes))
		fmt.Fprintf(out, "mutations: %d\n", len(cat.Mutations))
		fmt.Fprintf(out, "endings:   %d\n", len(cat.Endings))
		fmt.Fprintf(out, "concepts:  %d\n", len(cat.Concepts))
		fmt.Fprintln(out, "ok")
		return nil
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Print what the game remembers between sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ghosts, closeStore, err := openGhostStore()
		if err != nil {
			return err
		}
		defer closeStore()

		if resetMemory {
			if err := ghosts.SaveGhost(ctx, &models.GhostMemory{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "forgotten")
			return nil
		}

		g, err := ghosts.LoadGhost(ctx)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(g)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := out.Write(data); err != nil {
			return err
		}
		saved, err := models.ListSessions()
		if err != nil {
			return err
		}
		if len(saved) > 0 {
			fmt.Fprintf(out, "# saved sessions: %s\n", strings.Join(saved, ", "))
		}
		return nil
	},
}

func init() {
	memoryCmd.Flags().BoolVar(&resetMemory, "reset", false, "Forget every previous session")
}
