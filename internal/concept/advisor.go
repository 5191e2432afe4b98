package concept

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/tatianab/tildeath/internal/catalog"
)

// AdvisorConfig tunes steering suggestions.
type AdvisorConfig struct {
	// Threshold is the number of used concepts before steering starts.
	Threshold int `yaml:"threshold"`
	// Suggestions is how many unused concepts are proposed per turn.
	Suggestions int `yaml:"suggestions"`
	// ExploredShown caps how many used concepts are listed. The most recent
	// ones are kept, oldest first.
	ExploredShown int `yaml:"explored_shown"`
}

// DefaultAdvisorConfig returns the stock steering parameters.
func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{Threshold: 3, Suggestions: 3, ExploredShown: 5}
}

// Advisor proposes unexplored concepts. Its output is advisory text appended
// to the next generation request; nothing checks that it was followed.
type Advisor struct {
	concepts []catalog.Concept
	cfg      AdvisorConfig
	rng      *rand.Rand
}

func NewAdvisor(cat *catalog.Catalog, cfg AdvisorConfig, rng *rand.Rand) *Advisor {
	return &Advisor{concepts: cat.Concepts, cfg: cfg, rng: rng}
}

// Steering is the structured form of a steering prompt.
type Steering struct {
	Fresh    []string // concept ids suggested this turn
	Explored []string // concept ids already used, possibly truncated
}

// Suggest returns nil until the session has used Threshold concepts, or when
// every concept has been used.
func (a *Advisor) Suggest(used []string) *Steering {
	if len(used) < a.cfg.Threshold {
		return nil
	}
	var unused []string
	for _, c := range a.concepts {
		if !slices.Contains(used, c.ID) {
			unused = append(unused, c.ID)
		}
	}
	if len(unused) == 0 {
		return nil
	}

	a.rng.Shuffle(len(unused), func(i, j int) { unused[i], unused[j] = unused[j], unused[i] })
	n := min(a.cfg.Suggestions, len(unused))

	explored := used
	if a.cfg.ExploredShown > 0 && len(explored) > a.cfg.ExploredShown {
		explored = explored[len(explored)-a.cfg.ExploredShown:]
	}
	return &Steering{
		Fresh:    slices.Clone(unused[:n]),
		Explored: slices.Clone(explored),
	}
}

// BuildSteeringPrompt renders Suggest as prompt text. ok is false when there
// is nothing to steer toward.
func (a *Advisor) BuildSteeringPrompt(used []string) (prompt string, ok bool) {
	st := a.Suggest(used)
	if st == nil {
		return "", false
	}
	return fmt.Sprintf("FRESH ANGLES TO EXPLORE: Consider incorporating: %s\nALREADY EXPLORED THIS SESSION: %s - find new ways to unsettle",
		strings.Join(a.labels(st.Fresh), ", "),
		strings.Join(a.labels(st.Explored), ", ")), true
}

func (a *Advisor) labels(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		label := id
		for _, c := range a.concepts {
			if c.ID == id && c.Label != "" {
				label = c.Label
				break
			}
		}
		out = append(out, label)
	}
	return out
}
