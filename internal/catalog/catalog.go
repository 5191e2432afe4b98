// Package catalog holds the static tables the narrative engine draws from:
// opening scenarios, thematic seeds, mutations, endings and horror concepts.
// Catalogs are loaded once at startup and treated as read-only afterwards.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// ErrMisconfigured is returned for any empty or malformed catalog.
var ErrMisconfigured = errors.New("catalog misconfigured")

// Tier is the severity tier of a mutation.
type Tier string

const (
	TierModerate Tier = "moderate"
	TierWild     Tier = "wild"
)

// Category groups endings by what brought the story to a close.
type Category string

const (
	CategoryDeath          Category = "death"
	CategorySanity         Category = "sanity"
	CategoryDiscovery      Category = "discovery"
	CategoryVictory        Category = "victory"
	CategoryMeta           Category = "meta"
	CategoryTransformation Category = "transformation"
	CategoryCosmic         Category = "cosmic"
	CategoryContinuation   Category = "continuation"
	CategoryIntegration    Category = "integration"
)

var knownCategories = map[Category]bool{
	CategoryDeath: true, CategorySanity: true, CategoryDiscovery: true,
	CategoryVictory: true, CategoryMeta: true, CategoryTransformation: true,
	CategoryCosmic: true, CategoryContinuation: true, CategoryIntegration: true,
}

// Scenario is an opening situation for a session.
type Scenario struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Theme       string   `yaml:"theme"` // theme tag, not a ThematicSeed id
	Premise     string   `yaml:"premise"`
	Opening     string   `yaml:"opening"`
	Avoid       []string `yaml:"avoid,omitempty"`
	Emphasize   []string `yaml:"emphasize,omitempty"`
	Constraints []string `yaml:"constraints,omitempty"`
	Concepts    []string `yaml:"concepts"`
}

// Theme is a thematic seed. Any scenario may pair with any theme.
type Theme struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Constraint   string   `yaml:"constraint"`
	Pacing       string   `yaml:"pacing,omitempty"`
	Requirements []string `yaml:"requirements,omitempty"`
}

// Mutation is a reality-breaking rule that stays in force for a few turns.
type Mutation struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Tier         Tier   `yaml:"tier"`
	Effect       string `yaml:"effect"` // visual-effect identifier for the display layer
	Description  string `yaml:"description"`
	Announcement string `yaml:"announcement"`
	MinDuration  int    `yaml:"min_duration"`
	MaxDuration  int    `yaml:"max_duration"`
	MinTurn      int    `yaml:"min_turn,omitempty"`
}

// Conditions narrow which ending variant applies to a session. The zero
// value matches every session.
type Conditions struct {
	MinStats      map[string]int `yaml:"min_stats,omitempty"`
	MaxStats      map[string]int `yaml:"max_stats,omitempty"`
	MinRevelation int            `yaml:"min_revelation,omitempty"`
	MinSessions   int            `yaml:"min_sessions,omitempty"`
	DeathCause    string         `yaml:"death_cause,omitempty"`
	MinLastDamage int            `yaml:"min_last_damage,omitempty"`
}

// Unconditional reports whether c matches every session.
func (c Conditions) Unconditional() bool {
	return len(c.MinStats) == 0 && len(c.MaxStats) == 0 &&
		c.MinRevelation == 0 && c.MinSessions == 0 &&
		c.DeathCause == "" && c.MinLastDamage == 0
}

// Ending is one contextual variant of an ending category.
type Ending struct {
	ID         string     `yaml:"id"`
	Title      string     `yaml:"title"`
	Category   Category   `yaml:"category"`
	Template   string     `yaml:"template"`
	Flavor     string     `yaml:"flavor,omitempty"`
	Commentary string     `yaml:"commentary,omitempty"` // shown once revelation is high
	Good       bool       `yaml:"good,omitempty"`
	When       Conditions `yaml:"when,omitempty"`
}

// Concept is a horror trope with the lowercase phrases that signal it.
type Concept struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Triggers []string `yaml:"triggers"`
}

// Catalog is the full set of static tables.
type Catalog struct {
	Scenarios []Scenario `yaml:"scenarios"`
	Themes    []Theme    `yaml:"themes"`
	Mutations []Mutation `yaml:"mutations"`
	Endings   []Ending   `yaml:"endings"`
	Concepts  []Concept  `yaml:"concepts"`
}

var files = []string{
	"scenarios.yaml",
	"themes.yaml",
	"mutations.yaml",
	"endings.yaml",
	"concepts.yaml",
}

// Default returns the catalogs compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir reads catalogs from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load reads every catalog file from fsys, normalizes it and validates it.
func Load(fsys fs.FS) (*Catalog, error) {
	var cat Catalog
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrMisconfigured, name, err)
		}
		var part Catalog
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrMisconfigured, name, err)
		}
		cat.Scenarios = append(cat.Scenarios, part.Scenarios...)
		cat.Themes = append(cat.Themes, part.Themes...)
		cat.Mutations = append(cat.Mutations, part.Mutations...)
		cat.Endings = append(cat.Endings, part.Endings...)
		cat.Concepts = append(cat.Concepts, part.Concepts...)
	}
	cat.normalize()
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) normalize() {
	for i := range c.Concepts {
		triggers := c.Concepts[i].Triggers[:0]
		for _, t := range c.Concepts[i].Triggers {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				triggers = append(triggers, t)
			}
		}
		c.Concepts[i].Triggers = triggers
	}
}

// Validate reports every problem found, joined, wrapped in ErrMisconfigured.
func (c *Catalog) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Scenarios) == 0 {
		add("no scenarios")
	}
	if len(c.Themes) == 0 {
		add("no themes")
	}
	if len(c.Mutations) == 0 {
		add("no mutations")
	}
	if len(c.Endings) == 0 {
		add("no endings")
	}
	if len(c.Concepts) == 0 {
		add("no concepts")
	}

	concepts := make(map[string]bool)
	for _, con := range c.Concepts {
		if con.ID == "" {
			add("concept with empty id")
			continue
		}
		if concepts[con.ID] {
			add("duplicate concept %q", con.ID)
		}
		concepts[con.ID] = true
		if len(con.Triggers) == 0 {
			add("concept %q has no trigger phrases", con.ID)
		}
	}

	seen := make(map[string]bool)
	for _, s := range c.Scenarios {
		if s.ID == "" || seen[s.ID] {
			add("scenario id %q is empty or duplicated", s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Opening) == "" {
			add("scenario %q has no opening", s.ID)
		}
		for _, tag := range s.Concepts {
			if !concepts[tag] {
				add("scenario %q references unknown concept %q", s.ID, tag)
			}
		}
	}

	seen = make(map[string]bool)
	for _, t := range c.Themes {
		if t.ID == "" || seen[t.ID] {
			add("theme id %q is empty or duplicated", t.ID)
		}
		seen[t.ID] = true
	}

	seen = make(map[string]bool)
	for _, m := range c.Mutations {
		if m.ID == "" || seen[m.ID] {
			add("mutation id %q is empty or duplicated", m.ID)
		}
		seen[m.ID] = true
		if m.Tier != TierModerate && m.Tier != TierWild {
			add("mutation %q has unknown tier %q", m.ID, m.Tier)
		}
		if m.MinDuration < 1 || m.MaxDuration < m.MinDuration {
			add("mutation %q has invalid duration range %d..%d", m.ID, m.MinDuration, m.MaxDuration)
		}
	}

	seen = make(map[string]bool)
	for _, e := range c.Endings {
		if e.ID == "" || seen[e.ID] {
			add("ending id %q is empty or duplicated", e.ID)
		}
		seen[e.ID] = true
		if !knownCategories[e.Category] {
			add("ending %q has unknown category %q", e.ID, e.Category)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMisconfigured, errors.Join(errs...))
	}
	return nil
}

// MutationsByTier returns the mutations of one tier in catalog order.
func (c *Catalog) MutationsByTier(tier Tier) []Mutation {
	var out []Mutation
	for _, m := range c.Mutations {
		if m.Tier == tier {
			out = append(out, m)
		}
	}
	return out
}

// Mutation looks up a mutation by id.
func (c *Catalog) Mutation(id string) (Mutation, bool) {
	for _, m := range c.Mutations {
		if m.ID == id {
			return m, true
		}
	}
	return Mutation{}, false
}

// EndingsByCategory returns the variants of one category in catalog order.
func (c *Catalog) EndingsByCategory(cat Category) []Ending {
	var out []Ending
	for _, e := range c.Endings {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

// Scenario looks up a scenario by id.
func (c *Catalog) Scenario(id string) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Theme looks up a theme by id.
func (c *Catalog) Theme(id string) (Theme, bool) {
	for _, t := range c.Themes {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

// Concept looks up a concept by id.
func (c *Catalog) Concept(id string) (Concept, bool) {
	for _, con := range c.Concepts {
		if con.ID == id {
			return con, true
		}
	}
	return Concept{}, false
}
