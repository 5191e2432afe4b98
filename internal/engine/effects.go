package engine

import (
	"math/rand/v2"
	"slices"

	"github.com/tatianab/tildeath/internal/models"
)

// Effect identifiers that change the offered choices. The remaining effects
// are carried by the prompt or rendered by the display layer.
const (
	EffectDrought   = "drought"
	EffectReverse   = "reverse"
	EffectDuplicate = "duplicate"
	EffectHide      = "hide_choice"
	EffectAutoPick  = "auto_pick"
	EffectContinue  = "auto_continue"
	EffectBlank     = "blank_narrative"
	EffectOverride  = "override"
	EffectLoop      = "loop"
)

// HiddenChoice replaces a choice under the hide_choice effect.
const HiddenChoice = "[DATA EXPUNGED]"

// ContinueChoice is the only choice offered under auto_continue.
const ContinueChoice = "Continue"

// shapeChoices applies choice effects in catalog order. auto is set when the
// narrator takes the choice away from the player.
func shapeChoices(effects []string, choices []string, state *models.SessionState, rng *rand.Rand) (shaped []string, auto string) {
	shaped = slices.Clone(choices)
	for _, effect := range effects {
		switch effect {
		case EffectDrought:
			if len(shaped) > 2 {
				shaped = shaped[:2]
			}
		case EffectReverse:
			slices.Reverse(shaped)
		case EffectDuplicate:
			if len(shaped) > 0 {
				c := shaped[0]
				shaped = append([]string{c, c + ".", c + "..."}, shaped[1:]...)
			}
		case EffectHide:
			if len(shaped) > 1 {
				shaped[rng.IntN(len(shaped))] = HiddenChoice
			}
		case EffectLoop:
			if past := recentChoices(state, 3); len(past) > 0 {
				shaped = past
			}
		case EffectContinue:
			shaped = []string{ContinueChoice}
			auto = ContinueChoice
		case EffectAutoPick:
			if len(shaped) > 0 {
				auto = shaped[rng.IntN(len(shaped))]
			}
		}
	}
	return shaped, auto
}

// overrideChoice swaps the player's pick for another offered choice.
func overrideChoice(choice string, offered []string, rng *rand.Rand) string {
	var others []string
	for _, c := range offered {
		if c != choice && c != HiddenChoice {
			others = append(others, c)
		}
	}
	if len(others) == 0 {
		return choice
	}
	return others[rng.IntN(len(others))]
}

func recentChoices(state *models.SessionState, n int) []string {
	var out []string
	for i := len(state.History.Entries) - 1; i >= 0 && len(out) < n; i-- {
		if c := state.History.Entries[i].Choice; c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.Reverse(out)
	return out
}
