package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/config"
	"github.com/tatianab/tildeath/internal/engine"
	"github.com/tatianab/tildeath/internal/models"
)

var (
	maxTurns   int
	randomPick bool
	simSeed    uint64
)

var simCmd = &cobra.Command{
	Use:          "simulate",
	Short:        "Play a session on autopilot and print every turn",
	SilenceUsage: true,
	RunE:         simulate,
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cat, err := catalog.Default()
	if err != nil {
		return err
	}

	// The narrator.
	gen, err := engine.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return err
	}
	defer gen.Close()

	if simSeed == 0 {
		simSeed = uint64(time.Now().UnixNano())
	}
	eng, err := engine.New(gen, cat, config.DefaultTuning(), engine.Options{Seed: simSeed, Logger: logger})
	if err != nil {
		return err
	}

	// The player.
	var player *genai.GenerativeModel
	if !randomPick {
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return fmt.Errorf("create player client: %w", err)
		}
		defer client.Close()
		player = client.GenerativeModel(cfg.Model)
	}
	rng := rand.New(rand.NewPCG(simSeed, 99))

	state, res, err := eng.StartSession(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Printf("--- %s / %s (seed %d) ---\n%s\n\n", state.ScenarioID, state.ThemeID, simSeed, res.Narrative)

	for state.TurnCount < maxTurns {
		choice := res.AutoChoice
		if choice == "" {
			choice = pickChoice(ctx, player, rng, state, res.Choices)
		}
		fmt.Printf("--- Turn %d ---\nChoices: %s\nPlayer: %s\n", state.TurnCount+1, strings.Join(res.Choices, " | "), choice)

		res, err = eng.ProcessTurn(ctx, state, choice)
		if err != nil {
			return err
		}
		if res.Activated != nil {
			fmt.Println(res.Activated.Mutation.Announcement)
		}
		fmt.Printf("%s\n", res.Narrative)
		fmt.Printf("health=%d sanity=%d instability=%.2f (%s) concepts=%d\n\n",
			state.Stat(models.StatHealth), state.Stat(models.StatSanity),
			res.Instability, res.Intensity, len(state.UsedConcepts))

		if res.Ending != nil {
			fmt.Println(res.Ending.Text)
			fmt.Printf("rule=%s ending=%s\n", res.Ending.Outcome.Rule, res.Ending.Outcome.Ending.ID)
			return nil
		}
	}
	fmt.Println("Turn limit reached without an ending.")
	return nil
}

func pickChoice(ctx context.Context, player *genai.GenerativeModel, rng *rand.Rand, state *models.SessionState, choices []string) string {
	random := choices[rng.IntN(len(choices))]
	if player == nil {
		return random
	}

	var list strings.Builder
	for i, c := range choices {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c)
	}
	prompt := fmt.Sprintf(`You are playing a horror text adventure.

%s

Your options:
%s
Reply with ONLY the number of your choice.`, state.Narrative, list.String())

	resp, err := player.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return random
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return random
	}
	n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(string(text)), "."))
	if err != nil || n < 1 || n > len(choices) {
		return random
	}
	return choices[n-1]
}

func main() {
	simCmd.Flags().IntVar(&maxTurns, "turns", 40, "Stop after this many turns")
	simCmd.Flags().BoolVar(&randomPick, "random", false, "Pick choices at random instead of asking a player model")
	simCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Engine seed (0 picks one from the clock)")

	if err := simCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
