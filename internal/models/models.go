package models

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// Stat names. Health is visible to the player; the rest are hidden.
const (
	StatHealth    = "health"
	StatSanity    = "sanity"
	StatCourage   = "courage"
	StatCuriosity = "curiosity"
	StatTrust     = "trust"
)

// Death causes recorded by choice resolution.
const (
	DeathCauseInstant   = "instant"
	DeathCauseSacrifice = "sacrifice"
)

// FlagTrapTriggered is set when the player walks into an obvious trap.
const FlagTrapTriggered = "TRAP_TRIGGERED"

// StatRange is a closed range a stat is clamped to.
type StatRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Clamp returns v limited to the range.
func (r StatRange) Clamp(v int) int {
	return max(r.Min, min(r.Max, v))
}

// StatRanges declares the range of every stat.
var StatRanges = map[string]StatRange{
	StatHealth:    {Min: 0, Max: 100},
	StatSanity:    {Min: 0, Max: 10},
	StatCourage:   {Min: 0, Max: 10},
	StatCuriosity: {Min: 0, Max: 10},
	StatTrust:     {Min: 0, Max: 10},
}

// HiddenStats lists the stats the player never sees directly.
var HiddenStats = []string{StatSanity, StatCourage, StatCuriosity, StatTrust}

// DefaultStats are the values a new session starts with.
func DefaultStats() map[string]int {
	return map[string]int{
		StatHealth:    100,
		StatSanity:    10,
		StatCourage:   5,
		StatCuriosity: 5,
		StatTrust:     5,
	}
}

// ScenarioPick is one ghost-memory entry.
type ScenarioPick struct {
	ScenarioID string `yaml:"scenario"`
	ThemeID    string `yaml:"theme"`
}

// ScenarioHistory is a bounded queue of recent opening picks, oldest first.
type ScenarioHistory struct {
	Limit   int            `yaml:"limit"`
	Entries []ScenarioPick `yaml:"entries"`
}

// ContainsScenario reports whether a scenario id is in recent memory.
func (h *ScenarioHistory) ContainsScenario(id string) bool {
	return slices.ContainsFunc(h.Entries, func(p ScenarioPick) bool { return p.ScenarioID == id })
}

// Push appends a pick and evicts the oldest entries beyond Limit.
func (h *ScenarioHistory) Push(p ScenarioPick) {
	h.Entries = append(h.Entries, p)
	if h.Limit > 0 && len(h.Entries) > h.Limit {
		h.Entries = slices.Clone(h.Entries[len(h.Entries)-h.Limit:])
	}
}

// ActiveMutation is a mutation currently in force.
type ActiveMutation struct {
	ID        string `yaml:"id"`
	Remaining int    `yaml:"remaining"`
	Since     int    `yaml:"since"` // turn it activated on
}

// HistoryEntry represents a single resolved turn.
type HistoryEntry struct {
	Turn      int      `yaml:"turn"`
	Choice    string   `yaml:"choice"`
	Narrative string   `yaml:"narrative"`
	Mutations []string `yaml:"mutations,omitempty"`
	Concepts  []string `yaml:"concepts,omitempty"`
}

// GameHistory contains the abbreviated history of the session.
type GameHistory struct {
	Summary string         `yaml:"summary"`
	Entries []HistoryEntry `yaml:"entries"`
}

// SessionState is the mutable record of one game run. It is owned by the
// turn pipeline and never shared between goroutines.
type SessionState struct {
	ID          string         `yaml:"id"`
	TurnCount   int            `yaml:"turn_count"`
	Stats       map[string]int `yaml:"stats"`
	Instability float64        `yaml:"instability"`

	ActiveMutations  []ActiveMutation `yaml:"active_mutations"`
	MutationHistory  []string         `yaml:"mutation_history"`
	LastMutationTurn int              `yaml:"last_mutation_turn"`
	NextMutationTurn int              `yaml:"next_mutation_turn"` // cooldown gate

	UsedConcepts    []string        `yaml:"used_concepts"` // set, in order of first appearance
	ScenarioHistory ScenarioHistory `yaml:"scenario_history"`
	ScenarioID      string          `yaml:"scenario"`
	ThemeID         string          `yaml:"theme"`

	RevelationLevel int `yaml:"revelation_level"`
	SessionCount    int `yaml:"session_count"`

	// Flags set by choice resolution and generator replies.
	InstantDeath           bool     `yaml:"instant_death"`
	DeathCause             string   `yaml:"death_cause,omitempty"`
	LastDamage             int      `yaml:"last_damage"`
	ObjectiveProgress      int      `yaml:"objective_progress"`
	Discoveries            []string `yaml:"discoveries,omitempty"`
	TransformationProgress int      `yaml:"transformation_progress"`
	EventFlags             []string `yaml:"event_flags,omitempty"`
	HealthWarned           bool     `yaml:"health_warned"`

	Narrative string      `yaml:"narrative"`
	Choices   []string    `yaml:"choices"`
	Steering  string      `yaml:"steering,omitempty"`
	History   GameHistory `yaml:"history"`
	EndingID  string      `yaml:"ending,omitempty"`
}

// NewSessionState returns a session with default stats and the given ghost
// memory size.
func NewSessionState(memory int) *SessionState {
	return &SessionState{
		ID:               uuid.NewString(),
		Stats:            DefaultStats(),
		LastMutationTurn: -1,
		ScenarioHistory:  ScenarioHistory{Limit: memory},
	}
}

// Clone returns a deep copy. The turn pipeline works on a clone and commits it
// only when the turn completes.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.Stats = maps.Clone(s.Stats)
	c.ActiveMutations = slices.Clone(s.ActiveMutations)
	c.MutationHistory = slices.Clone(s.MutationHistory)
	c.UsedConcepts = slices.Clone(s.UsedConcepts)
	c.ScenarioHistory.Entries = slices.Clone(s.ScenarioHistory.Entries)
	c.Discoveries = slices.Clone(s.Discoveries)
	c.EventFlags = slices.Clone(s.EventFlags)
	c.Choices = slices.Clone(s.Choices)
	c.History.Entries = slices.Clone(s.History.Entries)
	for i := range c.History.Entries {
		e := &c.History.Entries[i]
		e.Mutations = slices.Clone(e.Mutations)
		e.Concepts = slices.Clone(e.Concepts)
	}
	return &c
}

// Stat returns a stat value, zero when unknown.
func (s *SessionState) Stat(name string) int {
	return s.Stats[name]
}

// AdjustStat adds delta to a stat and clamps it to its declared range. It
// returns the applied change.
func (s *SessionState) AdjustStat(name string, delta int) int {
	r, ok := StatRanges[name]
	if !ok {
		return 0
	}
	before := s.Stats[name]
	after := r.Clamp(before + delta)
	s.Stats[name] = after
	if name == StatHealth && after < before {
		s.LastDamage = before - after
	}
	return after - before
}

// Normalize restores every invariant of the state and reports each violation
// it had to repair. A non-empty result means some code path wrote an
// out-of-range value directly.
func (s *SessionState) Normalize() []string {
	var violations []string
	if s.Stats == nil {
		s.Stats = DefaultStats()
		violations = append(violations, "stats missing")
	}
	names := make([]string, 0, len(StatRanges))
	for name := range StatRanges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := StatRanges[name]
		v, ok := s.Stats[name]
		if !ok {
			s.Stats[name] = DefaultStats()[name]
			violations = append(violations, fmt.Sprintf("%s missing", name))
			continue
		}
		if c := r.Clamp(v); c != v {
			s.Stats[name] = c
			violations = append(violations, fmt.Sprintf("%s=%d outside [%d,%d]", name, v, r.Min, r.Max))
		}
	}
	if s.Instability < 0 || s.Instability > 1 {
		violations = append(violations, fmt.Sprintf("instability=%.3f outside [0,1]", s.Instability))
		s.Instability = max(0, min(1, s.Instability))
	}
	if s.TurnCount < 0 {
		violations = append(violations, fmt.Sprintf("turn_count=%d negative", s.TurnCount))
		s.TurnCount = 0
	}
	return violations
}

// UpdateInstability recomputes instability from turn progress, active
// mutations and low sanity. horizon is the turn at which turn progress alone
// contributes its full share.
func (s *SessionState) UpdateInstability(horizon int) {
	if horizon <= 0 {
		horizon = 30
	}
	v := 0.6 * float64(s.TurnCount) / float64(horizon)
	v += 0.15 * float64(len(s.ActiveMutations))
	if s.Stat(StatSanity) < 3 {
		v += 0.15
	}
	if slices.Contains(s.EventFlags, FlagTrapTriggered) {
		v += 0.1
	}
	s.Instability = max(0, min(1, v))
}

// VisualIntensity labels the instability level for the display layer.
func (s *SessionState) VisualIntensity() string {
	switch {
	case s.Instability >= 0.9:
		return "collapsed"
	case s.Instability >= 0.65:
		return "breaking"
	case s.Instability >= 0.4:
		return "disturbed"
	case s.Instability > 0:
		return "unsettled"
	default:
		return "stable"
	}
}

// HasConcept reports whether a concept was already used this session.
func (s *SessionState) HasConcept(id string) bool {
	return slices.Contains(s.UsedConcepts, id)
}

// IsMutationActive reports whether a mutation is currently in force.
func (s *SessionState) IsMutationActive(id string) bool {
	return slices.ContainsFunc(s.ActiveMutations, func(m ActiveMutation) bool { return m.ID == id })
}

// AddFlag records an event flag once.
func (s *SessionState) AddFlag(flag string) {
	if !slices.Contains(s.EventFlags, flag) {
		s.EventFlags = append(s.EventFlags, flag)
	}
}

// Ended reports whether an ending has been reached.
func (s *SessionState) Ended() bool {
	return s.EndingID != ""
}

// PreviousChoice returns the most recent player choice, or "BEGIN".
func (s *SessionState) PreviousChoice() string {
	for i := len(s.History.Entries) - 1; i >= 0; i-- {
		if c := s.History.Entries[i].Choice; c != "" {
			return c
		}
	}
	return "BEGIN"
}

// GhostMemory is what survives between sessions.
type GhostMemory struct {
	Recent          []ScenarioPick `yaml:"recent"`
	Concepts        []string       `yaml:"concepts"`
	SessionCount    int            `yaml:"session_count"`
	RevelationLevel int            `yaml:"revelation_level"`
	Mutations       []string       `yaml:"mutations,omitempty"`
	LastEnding      string         `yaml:"last_ending,omitempty"`
}

// Seed copies cross-session progress into a fresh session.
func (g *GhostMemory) Seed(s *SessionState) {
	s.ScenarioHistory.Entries = nil
	for _, p := range g.Recent {
		s.ScenarioHistory.Push(p)
	}
	s.SessionCount = g.SessionCount + 1
	s.RevelationLevel = g.RevelationLevel
}

// Absorb folds a finished (or abandoned) session back into the memory.
func (g *GhostMemory) Absorb(s *SessionState, conceptLimit int) {
	g.Recent = slices.Clone(s.ScenarioHistory.Entries)
	g.SessionCount = max(g.SessionCount, s.SessionCount)
	g.RevelationLevel = max(g.RevelationLevel, s.RevelationLevel)
	for _, c := range s.UsedConcepts {
		if !slices.Contains(g.Concepts, c) {
			g.Concepts = append(g.Concepts, c)
		}
	}
	if conceptLimit > 0 && len(g.Concepts) > conceptLimit {
		g.Concepts = g.Concepts[len(g.Concepts)-conceptLimit:]
	}
	g.Mutations = append(g.Mutations, s.MutationHistory...)
	if len(g.Mutations) > 20 {
		g.Mutations = g.Mutations[len(g.Mutations)-20:]
	}
	if s.EndingID != "" {
		g.LastEnding = s.EndingID
	}
}
