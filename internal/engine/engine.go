// Package engine runs the turn pipeline of a session: choice resolution,
// mutation scheduling, narrative generation, concept tracking, steering and
// the ending check, in that order.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/concept"
	"github.com/tatianab/tildeath/internal/config"
	"github.com/tatianab/tildeath/internal/ending"
	"github.com/tatianab/tildeath/internal/models"
	"github.com/tatianab/tildeath/internal/mutation"
	"github.com/tatianab/tildeath/internal/scenario"
)

// Random streams derived from the engine seed, one per component.
const (
	streamScenario uint64 = iota + 1
	streamAdvisor
	streamMutation
	streamChoices
	streamEffects
)

// LowHealthWarning is shown once per session when health runs low.
const LowHealthWarning = "WARNING: Your body is failing. Choose carefully."

// Options configure an Engine.
type Options struct {
	Seed   uint64
	Retry  RetryPolicy
	Logger *zap.Logger
}

type Engine struct {
	gen    Generator
	cat    *catalog.Catalog
	tuning config.Tuning
	retry  RetryPolicy
	logger *zap.Logger
	rng    *rand.Rand

	selector  *scenario.Selector
	tracker   *concept.Tracker
	advisor   *concept.Advisor
	scheduler *mutation.Scheduler
	arbiter   *ending.Arbiter
	resolver  *Resolver
}

// New wires the components. It fails only on catalog or tuning
// misconfiguration.
func New(gen Generator, cat *catalog.Catalog, tuning config.Tuning, opts Options) (*Engine, error) {
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := opts.Retry
	if retry.Attempts == 0 {
		retry = DefaultRetryPolicy()
	}
	stream := func(n uint64) *rand.Rand {
		return rand.New(rand.NewPCG(opts.Seed, n))
	}

	selector, err := scenario.NewSelector(cat, tuning.Scenario, stream(streamScenario))
	if err != nil {
		return nil, err
	}
	scheduler, err := mutation.NewScheduler(cat, tuning.Mutation, stream(streamMutation))
	if err != nil {
		return nil, err
	}
	arbiter, err := ending.NewArbiter(cat, tuning.Ending, opts.Seed)
	if err != nil {
		return nil, err
	}

	return &Engine{
		gen:       gen,
		cat:       cat,
		tuning:    tuning,
		retry:     retry,
		logger:    logger,
		rng:       stream(streamEffects),
		selector:  selector,
		tracker:   concept.NewTracker(cat),
		advisor:   concept.NewAdvisor(cat, tuning.Diversity, stream(streamAdvisor)),
		scheduler: scheduler,
		arbiter:   arbiter,
		resolver:  NewResolver(tuning.Session, stream(streamChoices)),
	}, nil
}

// TurnResult is what the display layer needs after a turn.
type TurnResult struct {
	Turn      int
	Narrative string // empty when a mutation blanks the narrative
	Choices   []string
	// AutoChoice is set when a mutation makes the choice for the player.
	AutoChoice string
	// Overridden is the player's original pick when a mutation replaced it.
	Overridden string

	Activated   *mutation.Activation
	Expired     []string
	Effects     []string // visual-effect ids of active mutations
	Instability float64
	Intensity   string

	Resolution  Resolution
	NewConcepts []string
	Warning     string
	Ending      *Ending
}

// Ending is a reached ending with its generated prose.
type Ending struct {
	Outcome   *ending.Outcome
	Narrative string
	Text      string
}

// StartSession creates a session seeded from ghost memory, picks its opening
// and generates the first scene. ghost may be nil.
func (e *Engine) StartSession(ctx context.Context, ghost *models.GhostMemory) (*models.SessionState, *TurnResult, error) {
	state := models.NewSessionState(e.tuning.Scenario.Memory)
	state.SessionCount = 1
	var past []string
	if ghost != nil {
		ghost.Seed(state)
		past = ghost.Concepts[max(0, len(ghost.Concepts)-8):]
	}

	sc, th := e.selector.SelectOpening(&state.ScenarioHistory)
	state.ScenarioID, state.ThemeID = sc.ID, th.ID
	e.logger.Info("session started",
		zap.String("session", state.ID),
		zap.String("scenario", sc.ID),
		zap.String("theme", th.ID),
		zap.Int("session_count", state.SessionCount))

	prompt, err := render("opening", openingPrompt{
		Scenario:     sc,
		Theme:        th,
		PastConcepts: past,
		SessionCount: state.SessionCount,
	})
	if err != nil {
		return nil, nil, err
	}
	text, err := e.generate(ctx, "opening", prompt)
	if err != nil {
		return nil, nil, err
	}
	reply, perr := parseReply(text)
	if perr != nil {
		e.logger.Warn("opening reply did not fully parse", zap.Error(perr))
	}

	state.Narrative = reply.Narrative
	state.Choices = reply.Choices
	_, added := e.track(state, reply.Narrative)
	state.Steering = e.steer(state)
	state.UpdateInstability(e.tuning.Session.InstabilityHorizon)
	e.checkInvariants(state)

	return state, &TurnResult{
		Narrative:   reply.Narrative,
		Choices:     slices.Clone(state.Choices),
		Instability: state.Instability,
		Intensity:   state.VisualIntensity(),
		NewConcepts: added,
	}, nil
}

// ProcessTurn resolves one player choice. The turn is applied to a copy of
// state and committed only when it completes; on error state is unchanged
// and the turn can be retried.
func (e *Engine) ProcessTurn(ctx context.Context, state *models.SessionState, choice string) (*TurnResult, error) {
	if state.Ended() {
		return nil, fmt.Errorf("session %s already ended with %s", state.ID, state.EndingID)
	}
	next := state.Clone()
	res := &TurnResult{}

	choice = strings.TrimSpace(choice)
	if slices.Contains(e.activeEffects(next), EffectOverride) {
		if alt := overrideChoice(choice, next.Choices, e.rng); alt != choice {
			res.Overridden = choice
			choice = alt
		}
	}

	healthBefore := next.Stat(models.StatHealth)
	res.Resolution = e.resolver.Resolve(next, choice)
	res.Turn = next.TurnCount
	e.logger.Debug("turn started",
		zap.String("session", next.ID),
		zap.Int("turn", next.TurnCount),
		zap.String("danger", res.Resolution.Danger),
		zap.Bool("trap", res.Resolution.Trap))

	step := e.scheduler.Step(next)
	res.Activated, res.Expired = step.Activated, step.Expired
	if a := step.Activated; a != nil {
		e.logger.Info("mutation activated",
			zap.String("session", next.ID),
			zap.Int("turn", next.TurnCount),
			zap.String("mutation", a.Mutation.ID),
			zap.String("tier", string(a.Mutation.Tier)),
			zap.Int("duration", a.Duration),
			zap.Bool("forced", a.Forced))
	}
	next.UpdateInstability(e.tuning.Session.InstabilityHorizon)

	if err := e.SummarizeHistory(ctx, next); err != nil {
		e.logger.Warn("history summary failed, keeping full history", zap.Error(err))
	}

	sc, _ := e.cat.Scenario(next.ScenarioID)
	th, _ := e.cat.Theme(next.ThemeID)
	prompt, err := render("turn", turnPrompt{
		Scenario:    sc,
		Theme:       th,
		History:     historyText(next.History),
		Turn:        next.TurnCount,
		Previous:    next.PreviousChoice(),
		Choice:      choice,
		Trap:        res.Resolution.Trap,
		Danger:      res.Resolution.Danger,
		Stats:       next.Stats,
		Instability: next.Instability,
		Intensity:   next.VisualIntensity(),
		Revelation:  next.RevelationLevel,
		Mutations:   e.activeMutations(next),
		Steering:    next.Steering,
	})
	if err != nil {
		return nil, err
	}
	text, err := e.generate(ctx, "turn", prompt)
	if err != nil {
		return nil, err
	}
	reply, perr := parseReply(text)
	if perr != nil {
		e.logger.Warn("turn reply did not fully parse", zap.Int("turn", next.TurnCount), zap.Error(perr))
	}
	applyReply(next, reply)
	next.LastDamage = max(0, healthBefore-next.Stat(models.StatHealth))

	effects := e.activeEffects(next)
	res.Effects = effects
	res.Choices, res.AutoChoice = shapeChoices(effects, reply.Choices, next, e.rng)
	res.Narrative = reply.Narrative
	if slices.Contains(effects, EffectBlank) {
		res.Narrative = ""
	}
	next.Narrative = reply.Narrative
	next.Choices = res.Choices

	found, added := e.track(next, reply.Narrative)
	res.NewConcepts = added
	next.Steering = e.steer(next)

	var active []string
	for _, am := range next.ActiveMutations {
		active = append(active, am.ID)
	}
	next.History.Entries = append(next.History.Entries, models.HistoryEntry{
		Turn:      next.TurnCount,
		Choice:    choice,
		Narrative: reply.Narrative,
		Mutations: active,
		Concepts:  found,
	})

	next.UpdateInstability(e.tuning.Session.InstabilityHorizon)
	e.checkInvariants(next)
	res.Instability = next.Instability
	res.Intensity = next.VisualIntensity()

	if h := next.Stat(models.StatHealth); h > 0 && h <= e.tuning.Session.LowHealth && !next.HealthWarned {
		next.HealthWarned = true
		res.Warning = LowHealthWarning
	}

	if out := e.arbiter.Evaluate(next); out != nil {
		next.EndingID = out.Ending.ID
		e.logger.Info("session ended",
			zap.String("session", next.ID),
			zap.Int("turn", next.TurnCount),
			zap.String("rule", out.Rule),
			zap.String("ending", out.Ending.ID))
		res.Ending = e.writeEnding(ctx, next, out, choice)
	}

	e.logger.Debug("turn finished",
		zap.String("session", next.ID),
		zap.Int("turn", next.TurnCount),
		zap.Float64("instability", next.Instability),
		zap.Strings("concepts", added))
	*state = *next
	return res, nil
}

// applyReply folds the generator's reported consequences into state.
func applyReply(state *models.SessionState, reply Reply) {
	for _, name := range []string{
		models.StatHealth, models.StatSanity, models.StatCourage,
		models.StatCuriosity, models.StatTrust,
	} {
		if delta := reply.Consequences[name]; delta != 0 {
			state.AdjustStat(name, delta)
		}
	}
	if reply.Discovery != "" && !slices.Contains(state.Discoveries, reply.Discovery) {
		state.Discoveries = append(state.Discoveries, reply.Discovery)
	}
	if reply.Transformation {
		state.TransformationProgress++
	}
	if reply.Objective {
		state.ObjectiveProgress++
	}
	if reply.Revelation {
		state.RevelationLevel = min(5, state.RevelationLevel+1)
	}
	if reply.Sacrifice {
		state.DeathCause = models.DeathCauseSacrifice
		state.AdjustStat(models.StatHealth, -state.Stat(models.StatHealth))
	}
}

func (e *Engine) writeEnding(ctx context.Context, state *models.SessionState, out *ending.Outcome, choice string) *Ending {
	sc, _ := e.cat.Scenario(state.ScenarioID)
	var narrative string
	prompt, err := render("ending", endingPrompt{
		Ending:   out.Ending,
		Scenario: sc,
		History:  historyText(state.History),
		Turn:     state.TurnCount,
		Choice:   choice,
	})
	if err == nil {
		var text string
		text, err = e.generate(ctx, "ending", prompt)
		narrative = stripFence(text)
	}
	if err != nil {
		e.logger.Warn("ending narrative unavailable, using template", zap.String("ending", out.Ending.ID), zap.Error(err))
	}
	return &Ending{
		Outcome:   out,
		Narrative: narrative,
		Text:      out.Text(narrative, state),
	}
}

// SummarizeHistory condenses older history entries once there are more than
// the configured limit, keeping the most recent ones verbatim.
func (e *Engine) SummarizeHistory(ctx context.Context, state *models.SessionState) error {
	limit, keep := e.tuning.Session.HistoryLimit, e.tuning.Session.HistoryKeep
	if len(state.History.Entries) <= limit {
		return nil
	}

	cut := len(state.History.Entries) - keep
	toSummarize := state.History.Entries[:cut]
	remaining := state.History.Entries[cut:]

	var events strings.Builder
	for _, entry := range toSummarize {
		fmt.Fprintf(&events, "Choice: %s\nOutcome: %s\n", entry.Choice, entry.Narrative)
	}
	prompt, err := render("summarize", summarizePrompt{
		CurrentSummary: state.History.Summary,
		NewEvents:      events.String(),
	})
	if err != nil {
		return err
	}
	text, err := e.generate(ctx, "summarize", prompt)
	if err != nil {
		return err
	}

	state.History.Summary = strings.TrimSpace(text)
	state.History.Entries = slices.Clone(remaining)
	return nil
}

// track detects and records concepts. Faults degrade to no detection.
func (e *Engine) track(state *models.SessionState, text string) (found, added []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("concept tracking failed", zap.Any("panic", r))
			found, added = nil, nil
		}
	}()
	found = e.tracker.Detect(text)
	added = concept.Record(state, found)
	return found, added
}

// steer builds the next steering text. Faults degrade to no steering.
func (e *Engine) steer(state *models.SessionState) (steering string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("steering failed, no steering this turn", zap.Any("panic", r))
			steering = ""
		}
	}()
	s, ok := e.advisor.BuildSteeringPrompt(state.UsedConcepts)
	if !ok {
		return ""
	}
	return s
}

func (e *Engine) checkInvariants(state *models.SessionState) {
	if v := state.Normalize(); len(v) > 0 {
		e.logger.Warn("session state out of range, clamped",
			zap.String("session", state.ID),
			zap.Strings("violations", v))
	}
}

func (e *Engine) activeMutations(state *models.SessionState) []catalog.Mutation {
	var out []catalog.Mutation
	for _, am := range state.ActiveMutations {
		if m, ok := e.cat.Mutation(am.ID); ok {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) activeEffects(state *models.SessionState) []string {
	var out []string
	for _, m := range e.activeMutations(state) {
		out = append(out, m.Effect)
	}
	return out
}

// LoadGhost reads ghost memory. A missing store or a failing one yields an
// empty memory.
func (e *Engine) LoadGhost(ctx context.Context, store models.GhostStore) *models.GhostMemory {
	if store == nil {
		return &models.GhostMemory{}
	}
	g, err := store.LoadGhost(ctx)
	if err != nil {
		e.logger.Warn("ghost memory unavailable, starting fresh", zap.Error(err))
		return &models.GhostMemory{}
	}
	return g
}

// RememberSession folds a session into ghost memory and saves it.
func (e *Engine) RememberSession(ctx context.Context, store models.GhostStore, state *models.SessionState) {
	if store == nil {
		return
	}
	g := e.LoadGhost(ctx, store)
	g.Absorb(state, e.tuning.Session.GhostConcepts)
	if err := store.SaveGhost(ctx, g); err != nil {
		e.logger.Warn("ghost memory not saved", zap.String("session", state.ID), zap.Error(err))
	}
}
