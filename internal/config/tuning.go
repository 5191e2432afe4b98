package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/concept"
	"github.com/tatianab/tildeath/internal/ending"
	"github.com/tatianab/tildeath/internal/mutation"
	"github.com/tatianab/tildeath/internal/scenario"
)

// Tuning collects every design parameter of the narrative engine.
type Tuning struct {
	Scenario  scenario.Config       `yaml:"scenario"`
	Diversity concept.AdvisorConfig `yaml:"diversity"`
	Mutation  mutation.Config       `yaml:"mutation"`
	Ending    ending.Config         `yaml:"ending"`
	Session   SessionTuning         `yaml:"session"`
}

// SessionTuning holds turn-pipeline parameters.
type SessionTuning struct {
	// InstabilityHorizon is the turn at which turn progress alone adds its
	// full share of instability.
	InstabilityHorizon int `yaml:"instability_horizon"`
	// HistoryLimit is the number of history entries that triggers a summary;
	// HistoryKeep entries survive it verbatim.
	HistoryLimit int `yaml:"history_limit"`
	HistoryKeep  int `yaml:"history_keep"`
	// GhostConcepts caps the concept history carried between sessions.
	GhostConcepts int `yaml:"ghost_concepts"`
	LowHealth     int `yaml:"low_health"`
	// EarlyTurns halve choice effects.
	EarlyTurns         int     `yaml:"early_turns"`
	InstantDeathChance float64 `yaml:"instant_death_chance"`
}

// DefaultTuning returns the stock parameters.
func DefaultTuning() Tuning {
	return Tuning{
		Scenario:  scenario.DefaultConfig(),
		Diversity: concept.DefaultAdvisorConfig(),
		Mutation:  mutation.DefaultConfig(),
		Ending:    ending.DefaultConfig(),
		Session: SessionTuning{
			InstabilityHorizon: 30,
			HistoryLimit:       8,
			HistoryKeep:        3,
			GhostConcepts:      50,
			LowHealth:          20,
			EarlyTurns:         8,
			InstantDeathChance: 0.015,
		},
	}
}

// LoadTuning layers the YAML file at path over the defaults. An empty path
// returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("%w: tuning %s: %w", catalog.ErrMisconfigured, path, err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Validate checks the parameters the component constructors do not.
func (t Tuning) Validate() error {
	var errs []error
	if err := t.Mutation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if t.Scenario.Memory < 1 {
		errs = append(errs, fmt.Errorf("scenario memory must be at least 1, got %d", t.Scenario.Memory))
	}
	if t.Diversity.Suggestions < 1 {
		errs = append(errs, fmt.Errorf("diversity suggestions must be at least 1"))
	}
	s := t.Session
	if s.HistoryKeep < 0 || s.HistoryLimit <= s.HistoryKeep {
		errs = append(errs, fmt.Errorf("history limit %d must exceed history keep %d", s.HistoryLimit, s.HistoryKeep))
	}
	if s.InstantDeathChance < 0 || s.InstantDeathChance > 1 {
		errs = append(errs, fmt.Errorf("instant death chance %.3f outside [0,1]", s.InstantDeathChance))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: tuning: %w", catalog.ErrMisconfigured, errors.Join(errs...))
	}
	return nil
}
