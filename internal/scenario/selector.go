// Package scenario picks the opening scenario and thematic seed of a session
// while steering clear of recently played scenarios.
package scenario

import (
	"fmt"
	"math/rand/v2"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

// Config tunes opening selection.
type Config struct {
	// Memory is how many recent picks are remembered.
	Memory int `yaml:"memory"`
	// MaxRetries bounds the number of redraws before giving up on variety.
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig returns the stock selection parameters.
func DefaultConfig() Config {
	return Config{Memory: 3, MaxRetries: 10}
}

// Selector draws scenario/theme pairs.
type Selector struct {
	scenarios []catalog.Scenario
	themes    []catalog.Theme
	cfg       Config
	rng       *rand.Rand
}

// NewSelector returns an error when either catalog is empty or the memory
// is not bounded.
func NewSelector(cat *catalog.Catalog, cfg Config, rng *rand.Rand) (*Selector, error) {
	if len(cat.Scenarios) == 0 || len(cat.Themes) == 0 {
		return nil, fmt.Errorf("%w: scenario selection needs scenarios and themes", catalog.ErrMisconfigured)
	}
	if cfg.Memory < 1 {
		return nil, fmt.Errorf("%w: scenario memory must be at least 1", catalog.ErrMisconfigured)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Selector{
		scenarios: cat.Scenarios,
		themes:    cat.Themes,
		cfg:       cfg,
		rng:       rng,
	}, nil
}

// SelectOpening draws uniformly from scenarios x themes, redrawing while the
// scenario is in recent memory. Once retries run out it falls back to the
// scenarios not in memory, and accepts a repeat only when every scenario is
// remembered. The pick is pushed into history.
func (s *Selector) SelectOpening(history *models.ScenarioHistory) (catalog.Scenario, catalog.Theme) {
	if history.Limit == 0 {
		history.Limit = s.cfg.Memory
	}

	sc, th := s.draw()
	for attempt := 0; attempt < s.cfg.MaxRetries && history.ContainsScenario(sc.ID); attempt++ {
		sc, th = s.draw()
	}
	if history.ContainsScenario(sc.ID) {
		var fresh []catalog.Scenario
		for _, candidate := range s.scenarios {
			if !history.ContainsScenario(candidate.ID) {
				fresh = append(fresh, candidate)
			}
		}
		if len(fresh) > 0 {
			sc = fresh[s.rng.IntN(len(fresh))]
		}
	}

	history.Push(models.ScenarioPick{ScenarioID: sc.ID, ThemeID: th.ID})
	return sc, th
}

func (s *Selector) draw() (catalog.Scenario, catalog.Theme) {
	return s.scenarios[s.rng.IntN(len(s.scenarios))], s.themes[s.rng.IntN(len(s.themes))]
}
