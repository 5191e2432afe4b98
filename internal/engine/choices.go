package engine

import (
	"math/rand/v2"
	"strings"

	"github.com/tatianab/tildeath/internal/config"
	"github.com/tatianab/tildeath/internal/models"
)

// Danger levels of a choice.
const (
	DangerNone    = "none"
	DangerLow     = "low"
	DangerMedium  = "medium"
	DangerHigh    = "high"
	DangerExtreme = "extreme"
	DangerInstant = "instant_death"
)

var dangerKeywords = []struct {
	level string
	words []string
}{
	{DangerExtreme, []string{"attack", "charge", "confront directly", "fight"}},
	{DangerHigh, []string{"investigate", "touch", "open", "enter", "confront"}},
	{DangerMedium, []string{"explore", "examine closely", "follow", "pursue"}},
	{DangerLow, []string{"look", "listen", "observe", "cautious"}},
}

// damage ranges per danger level, before scaling.
var dangerDamage = map[string][2]int{
	DangerExtreme: {20, 30},
	DangerHigh:    {15, 25},
	DangerMedium:  {10, 20},
	DangerLow:     {5, 10},
}

var (
	instantDeathPhrases = []string{"obvious trap", "clearly dangerous", "suicide"}
	trapPhrases         = []string{
		"ignore warning", "ignore the warning", "ignore all",
		"obviously", "despite", "anyway", "against",
		"clearly dangerous", "strange liquid", "unknown substance",
		"follow the monster", "drink the", "eat the",
		"step into the trap", "walk into",
	}
	warningWords = []string{"poison", "danger", "trap", "dead", "death", "hurt", "kill", "fatal"}
)

var feedback = map[string][]string{
	DangerExtreme: {"(that was unwise)", "(brave, but stupid)", "You pay the price.", "(ouch)"},
	DangerHigh:    {"(that cost you)", "Your health suffers.", "(was it worth it?)", "Pain follows."},
	DangerMedium:  {"(careful...)", "That hurt.", "(consequences)"},
	DangerLow:     {"(you felt that)", "A small price."},
}

// statEffect is a keyword-triggered stat change with an inclusive range.
type statEffect struct {
	stat     string
	min, max int
}

// effectGroups are checked independently. Within a group only the first
// matching branch applies.
var effectGroups = [][]struct {
	words   []string
	effects []statEffect
}{
	{
		{[]string{"attack", "fight", "confront", "face", "charge"}, []statEffect{{models.StatCourage, 2, 4}}},
		{[]string{"flee", "hide", "retreat", "avoid", "run"}, []statEffect{{models.StatCourage, -4, -2}}},
	},
	{
		{[]string{"look", "examine", "study", "observe", "stare"}, []statEffect{{models.StatSanity, -2, -1}, {models.StatCuriosity, 2, 4}}},
	},
	{
		{[]string{"open", "read", "touch", "take", "investigate"}, []statEffect{{models.StatCuriosity, 2, 4}, {models.StatTrust, -2, 0}}},
	},
	{
		{[]string{"listen", "follow", "trust", "believe", "accept"}, []statEffect{{models.StatTrust, 1, 3}}},
		{[]string{"ignore", "refuse", "doubt", "question", "reject"}, []statEffect{{models.StatTrust, -3, -1}, {models.StatCourage, 0, 2}}},
	},
}

// Resolution reports what a choice did to the session.
type Resolution struct {
	Danger   string
	Damage   int
	Trap     bool
	Feedback string
}

// Resolver applies the mechanical consequences of a player choice.
type Resolver struct {
	cfg config.SessionTuning
	rng *rand.Rand
}

func NewResolver(cfg config.SessionTuning, rng *rand.Rand) *Resolver {
	return &Resolver{cfg: cfg, rng: rng}
}

// Resolve advances the turn counter and applies danger, trap and keyword
// effects of choice to state. All stat changes are clamped.
func (r *Resolver) Resolve(state *models.SessionState, choice string) Resolution {
	state.TurnCount++
	state.LastDamage = 0
	text := strings.ToLower(choice)

	scale := 1.0
	if state.TurnCount <= r.cfg.EarlyTurns {
		scale = 0.5
	}

	res := Resolution{Danger: r.assessDanger(text)}
	switch res.Danger {
	case DangerInstant:
		state.InstantDeath = true
		state.DeathCause = models.DeathCauseInstant
		res.Damage = -state.AdjustStat(models.StatHealth, -state.Stat(models.StatHealth))
		state.LastDamage = res.Damage
		return res
	case DangerNone:
	default:
		res.Damage = r.applyDanger(state, res.Danger, scale)
	}

	if isTrap(choice) {
		res.Trap = true
		res.Damage -= state.AdjustStat(models.StatHealth, -r.between(25, 40))
		state.AdjustStat(models.StatSanity, -r.between(1, 3))
		state.AddFlag(models.FlagTrapTriggered)
	}

	if containsAny(text, "horror", "witness") {
		state.AdjustStat(models.StatSanity, -r.between(1, 2))
	}
	if containsAny(text, "paranoid", "suspicious") {
		state.AdjustStat(models.StatSanity, -1)
	}

	for _, group := range effectGroups {
		for _, branch := range group {
			if !containsAny(text, branch.words...) {
				continue
			}
			for _, eff := range branch.effects {
				state.AdjustStat(eff.stat, int(float64(r.between(eff.min, eff.max))*scale))
			}
			break
		}
	}

	state.LastDamage = res.Damage
	if res.Damage > 0 {
		if lines := feedback[res.Danger]; len(lines) > 0 {
			res.Feedback = lines[r.rng.IntN(len(lines))]
		}
	}
	return res
}

func (r *Resolver) assessDanger(text string) string {
	if containsAny(text, instantDeathPhrases...) && r.rng.Float64() < r.cfg.InstantDeathChance {
		return DangerInstant
	}
	for _, d := range dangerKeywords {
		if containsAny(text, d.words...) {
			return d.level
		}
	}
	return DangerNone
}

// applyDanger deals health damage for a dangerous choice and returns the
// damage actually applied. Later turns hurt more.
func (r *Resolver) applyDanger(state *models.SessionState, level string, scale float64) int {
	span := dangerDamage[level]
	damage := float64(r.between(span[0], span[1]))
	switch {
	case state.TurnCount > 20:
		damage *= 1.5
	case state.TurnCount > 10:
		damage *= 1.2
	}
	damage *= scale

	applied := -state.AdjustStat(models.StatHealth, -int(damage))
	switch level {
	case DangerExtreme:
		state.AdjustStat(models.StatSanity, -r.between(1, 2))
	case DangerHigh:
		state.AdjustStat(models.StatSanity, -r.between(0, 1))
	}
	return applied
}

func (r *Resolver) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.rng.IntN(hi-lo+1)
}

// isTrap reports whether a choice is an obvious trap: a trap phrase, or a
// parenthetical warning the player chose to ignore.
func isTrap(choice string) bool {
	text := strings.ToLower(choice)
	if containsAny(text, trapPhrases...) {
		return true
	}
	open := strings.Index(text, "(")
	if open < 0 {
		return false
	}
	end := strings.Index(text[open:], ")")
	if end < 0 {
		return false
	}
	return containsAny(text[open+1:open+end], warningWords...)
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
