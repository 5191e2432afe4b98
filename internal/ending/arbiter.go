// Package ending decides when a session ends and which ending it gets.
//
// Rules are evaluated in a fixed priority order and the first match wins. A
// matched rule names the ending categories to search; within them the first
// catalog variant whose conditions hold against the session is chosen, so the
// same state always yields the same ending.
package ending

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

// Config holds the thresholds of the ending rules.
type Config struct {
	ExhaustionTurn int     `yaml:"exhaustion_turn"`
	CosmicTurn     int     `yaml:"cosmic_turn"`
	CosmicChance   float64 `yaml:"cosmic_chance"`
	// VictoryObjectives is the objective progress that wins the story.
	VictoryObjectives int `yaml:"victory_objectives"`
	// DiscoveryMilestones is the number of discoveries that end the story.
	DiscoveryMilestones int `yaml:"discovery_milestones"`
	// DiscoveryRevelation ends the story once revelation reaches it, but not
	// before DiscoveryMinTurn.
	DiscoveryRevelation int `yaml:"discovery_revelation"`
	DiscoveryMinTurn    int `yaml:"discovery_min_turn"`
	TransformationMax   int `yaml:"transformation_max"`
}

// DefaultConfig returns the stock ending thresholds.
func DefaultConfig() Config {
	return Config{
		ExhaustionTurn:      30,
		CosmicTurn:          25,
		CosmicChance:        0.15,
		VictoryObjectives:   5,
		DiscoveryMilestones: 3,
		DiscoveryRevelation: 5,
		DiscoveryMinTurn:    20,
		TransformationMax:   3,
	}
}

// Rule is one step of the priority cascade.
type Rule struct {
	Name       string
	Categories []catalog.Category
	Match      func(*models.SessionState) bool
}

// Outcome is a matched ending.
type Outcome struct {
	Rule   string
	Ending catalog.Ending
}

// Arbiter evaluates the ending cascade.
type Arbiter struct {
	cfg   Config
	seed  uint64
	rules []Rule
	byCat map[catalog.Category][]catalog.Ending
}

// NewArbiter builds the cascade and checks that every rule can always
// produce an ending. seed drives the cosmic draw.
func NewArbiter(cat *catalog.Catalog, cfg Config, seed uint64) (*Arbiter, error) {
	a := &Arbiter{
		cfg:   cfg,
		seed:  seed,
		byCat: make(map[catalog.Category][]catalog.Ending),
	}
	for _, e := range cat.Endings {
		a.byCat[e.Category] = append(a.byCat[e.Category], e)
	}
	a.rules = a.defaultRules()

	var errs []error
	if cfg.CosmicChance < 0 || cfg.CosmicChance > 1 {
		errs = append(errs, fmt.Errorf("cosmic chance %.2f outside [0,1]", cfg.CosmicChance))
	}
	for _, r := range a.rules {
		if !a.reachesDefault(r) {
			errs = append(errs, fmt.Errorf("rule %s: no unconditional ending in %v", r.Name, r.Categories))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", catalog.ErrMisconfigured, errors.Join(errs...))
	}
	return a, nil
}

func (a *Arbiter) defaultRules() []Rule {
	cfg := a.cfg
	return []Rule{
		{"instant-death", []catalog.Category{catalog.CategoryDeath}, func(s *models.SessionState) bool {
			return s.InstantDeath
		}},
		{"health", []catalog.Category{catalog.CategoryDeath}, func(s *models.SessionState) bool {
			return s.Stat(models.StatHealth) <= 0
		}},
		{"sanity", []catalog.Category{catalog.CategorySanity}, func(s *models.SessionState) bool {
			return s.Stat(models.StatSanity) <= 0
		}},
		{"victory", []catalog.Category{catalog.CategoryVictory}, func(s *models.SessionState) bool {
			return cfg.VictoryObjectives > 0 && s.ObjectiveProgress >= cfg.VictoryObjectives
		}},
		{"discovery", []catalog.Category{catalog.CategoryMeta, catalog.CategoryDiscovery}, func(s *models.SessionState) bool {
			if cfg.DiscoveryMilestones > 0 && len(s.Discoveries) >= cfg.DiscoveryMilestones {
				return true
			}
			return cfg.DiscoveryRevelation > 0 && s.RevelationLevel >= cfg.DiscoveryRevelation &&
				s.TurnCount >= cfg.DiscoveryMinTurn
		}},
		{"transformation", []catalog.Category{catalog.CategoryIntegration, catalog.CategoryTransformation}, func(s *models.SessionState) bool {
			return cfg.TransformationMax > 0 && s.TransformationProgress >= cfg.TransformationMax
		}},
		{"exhaustion", []catalog.Category{catalog.CategoryMeta, catalog.CategoryContinuation}, func(s *models.SessionState) bool {
			return s.TurnCount >= cfg.ExhaustionTurn
		}},
		{"cosmic", []catalog.Category{catalog.CategoryCosmic}, func(s *models.SessionState) bool {
			return s.TurnCount >= cfg.CosmicTurn && a.CosmicRoll(s.TurnCount)
		}},
	}
}

// Rules returns the cascade in priority order.
func (a *Arbiter) Rules() []Rule {
	return slices.Clone(a.rules)
}

// Evaluate returns the ending for state, or nil if the story continues. It
// does not modify state.
func (a *Arbiter) Evaluate(state *models.SessionState) *Outcome {
	for _, r := range a.rules {
		if !r.Match(state) {
			continue
		}
		for _, c := range r.Categories {
			for _, e := range a.byCat[c] {
				if Matches(e.When, state) {
					return &Outcome{Rule: r.Name, Ending: e}
				}
			}
		}
	}
	return nil
}

// CosmicRoll reports whether the cosmic draw succeeds on a turn. The draw is
// derived from the arbiter seed and the turn alone.
func (a *Arbiter) CosmicRoll(turn int) bool {
	r := rand.New(rand.NewPCG(a.seed, uint64(turn)))
	return r.Float64() < a.cfg.CosmicChance
}

func (a *Arbiter) reachesDefault(r Rule) bool {
	for _, c := range r.Categories {
		for _, e := range a.byCat[c] {
			if e.When.Unconditional() {
				return true
			}
		}
	}
	return false
}

// Matches reports whether every condition holds for state.
func Matches(c catalog.Conditions, state *models.SessionState) bool {
	for name, v := range c.MinStats {
		if state.Stat(name) < v {
			return false
		}
	}
	for name, v := range c.MaxStats {
		if state.Stat(name) > v {
			return false
		}
	}
	switch {
	case state.RevelationLevel < c.MinRevelation:
		return false
	case state.SessionCount < c.MinSessions:
		return false
	case c.DeathCause != "" && state.DeathCause != c.DeathCause:
		return false
	case state.LastDamage < c.MinLastDamage:
		return false
	}
	return true
}
