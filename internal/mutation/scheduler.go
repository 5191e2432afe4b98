// Package mutation schedules reality-breaking rule changes. Each turn the
// scheduler ages the active mutations, then decides whether a new one starts,
// which one, and for how long.
package mutation

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

// Config tunes the scheduler.
type Config struct {
	// Checkpoints are turns that force an activation when nothing is active.
	Checkpoints []int `yaml:"checkpoints"`
	// CooldownMin and CooldownMax bound the turns that must pass after an
	// activation before a probabilistic one may happen.
	CooldownMin int `yaml:"cooldown_min"`
	CooldownMax int `yaml:"cooldown_max"`
	// BaseRate is the activation chance at instability 0, MaxRate at 1.
	BaseRate float64 `yaml:"base_rate"`
	MaxRate  float64 `yaml:"max_rate"`
	// WildWeightMin and WildWeightMax are the odds of drawing from the wild
	// tier at instability 0 and 1.
	WildWeightMin float64 `yaml:"wild_weight_min"`
	WildWeightMax float64 `yaml:"wild_weight_max"`
	// RepeatWindow is how many recent activations are excluded from a draw.
	RepeatWindow int `yaml:"repeat_window"`
}

// DefaultConfig returns the stock scheduling parameters.
func DefaultConfig() Config {
	return Config{
		Checkpoints:   []int{7, 15, 23},
		CooldownMin:   3,
		CooldownMax:   6,
		BaseRate:      0.05,
		MaxRate:       0.35,
		WildWeightMin: 0.1,
		WildWeightMax: 0.6,
		RepeatWindow:  5,
	}
}

// Validate reports parameters the scheduler cannot work with.
func (c Config) Validate() error {
	switch {
	case c.CooldownMin < 0 || c.CooldownMax < c.CooldownMin:
		return fmt.Errorf("cooldown range [%d,%d] is invalid", c.CooldownMin, c.CooldownMax)
	case c.BaseRate < 0 || c.MaxRate > 1 || c.MaxRate < c.BaseRate:
		return fmt.Errorf("activation rates %.2f..%.2f are invalid", c.BaseRate, c.MaxRate)
	case c.WildWeightMin < 0 || c.WildWeightMax > 1 || c.WildWeightMax < c.WildWeightMin:
		return fmt.Errorf("wild weights %.2f..%.2f are invalid", c.WildWeightMin, c.WildWeightMax)
	case c.RepeatWindow < 0:
		return fmt.Errorf("repeat window %d is negative", c.RepeatWindow)
	}
	return nil
}

// Activation describes a mutation that started this turn.
type Activation struct {
	Mutation catalog.Mutation
	Duration int
	Forced   bool // started by a checkpoint
}

// Result is the outcome of one scheduling step.
type Result struct {
	Expired   []string
	Activated *Activation
}

// Scheduler decides mutation activations.
type Scheduler struct {
	moderate []catalog.Mutation
	wild     []catalog.Mutation
	cfg      Config
	rng      *rand.Rand
}

// NewScheduler returns an error when the mutation catalog or cfg cannot
// support activation.
func NewScheduler(cat *catalog.Catalog, cfg Config, rng *rand.Rand) (*Scheduler, error) {
	s := &Scheduler{
		moderate: cat.MutationsByTier(catalog.TierModerate),
		wild:     cat.MutationsByTier(catalog.TierWild),
		cfg:      cfg,
		rng:      rng,
	}
	if len(s.moderate)+len(s.wild) == 0 {
		return nil, fmt.Errorf("%w: no mutations", catalog.ErrMisconfigured)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: mutation scheduler: %w", catalog.ErrMisconfigured, err)
	}
	return s, nil
}

// Step runs once per resolved turn, after state.TurnCount has advanced.
// Active mutations lose one turn of duration and are removed at zero. A new
// mutation then starts if the turn is a checkpoint with nothing active, or if
// the cooldown has passed and an instability-weighted draw succeeds.
func (s *Scheduler) Step(state *models.SessionState) Result {
	var res Result
	res.Expired = s.age(state)

	turn := state.TurnCount
	forced := slices.Contains(s.cfg.Checkpoints, turn) && len(state.ActiveMutations) == 0
	if !forced {
		if turn < state.NextMutationTurn {
			return res
		}
		if s.rng.Float64() >= s.ActivationChance(state.Instability) {
			return res
		}
	}

	m := s.choose(state)
	duration := m.MinDuration
	if m.MaxDuration > m.MinDuration {
		duration += s.rng.IntN(m.MaxDuration - m.MinDuration + 1)
	}
	duration = max(1, duration)

	state.ActiveMutations = append(state.ActiveMutations, models.ActiveMutation{
		ID:        m.ID,
		Remaining: duration,
		Since:     turn,
	})
	state.MutationHistory = append(state.MutationHistory, m.ID)
	state.LastMutationTurn = turn
	state.NextMutationTurn = turn + s.cooldown()

	res.Activated = &Activation{Mutation: m, Duration: duration, Forced: forced}
	return res
}

// ActivationChance interpolates linearly between BaseRate and MaxRate.
func (s *Scheduler) ActivationChance(instability float64) float64 {
	instability = max(0, min(1, instability))
	return s.cfg.BaseRate + (s.cfg.MaxRate-s.cfg.BaseRate)*instability
}

// WildWeight is the probability of drawing from the wild tier.
func (s *Scheduler) WildWeight(instability float64) float64 {
	instability = max(0, min(1, instability))
	return s.cfg.WildWeightMin + (s.cfg.WildWeightMax-s.cfg.WildWeightMin)*instability
}

func (s *Scheduler) age(state *models.SessionState) []string {
	var expired []string
	kept := state.ActiveMutations[:0]
	for _, am := range state.ActiveMutations {
		am.Remaining--
		if am.Remaining <= 0 {
			expired = append(expired, am.ID)
			continue
		}
		kept = append(kept, am)
	}
	state.ActiveMutations = kept
	return expired
}

func (s *Scheduler) cooldown() int {
	return s.cfg.CooldownMin + s.rng.IntN(s.cfg.CooldownMax-s.cfg.CooldownMin+1)
}

// choose picks a tier by instability, then a mutation uniformly within it.
// Mutations that are active, seen in the last RepeatWindow activations, or
// gated behind a later turn are skipped. When the chosen tier has nothing
// left, the other tier is tried, and then repeats are allowed so that an
// activation never silently fails.
func (s *Scheduler) choose(state *models.SessionState) catalog.Mutation {
	first, second := s.moderate, s.wild
	if s.rng.Float64() < s.WildWeight(state.Instability) {
		first, second = s.wild, s.moderate
	}
	if len(first) == 0 {
		first, second = second, first
	}

	recent := state.MutationHistory
	if len(recent) > s.cfg.RepeatWindow {
		recent = recent[len(recent)-s.cfg.RepeatWindow:]
	}
	fresh := func(m catalog.Mutation) bool {
		return !slices.Contains(recent, m.ID) && !state.IsMutationActive(m.ID)
	}
	eligible := func(m catalog.Mutation) bool {
		return m.MinTurn <= state.TurnCount
	}

	for _, pool := range [][]catalog.Mutation{
		filter(first, fresh, eligible),
		filter(second, fresh, eligible),
		filter(first, eligible),
		filter(second, eligible),
		first,
	} {
		if len(pool) > 0 {
			return pool[s.rng.IntN(len(pool))]
		}
	}
	return first[0]
}

func filter(ms []catalog.Mutation, keep ...func(catalog.Mutation) bool) []catalog.Mutation {
	var out []catalog.Mutation
outer:
	for _, m := range ms {
		for _, k := range keep {
			if !k(m) {
				continue outer
			}
		}
		out = append(out, m)
	}
	return out
}
