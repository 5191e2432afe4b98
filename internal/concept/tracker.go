// Package concept detects horror tropes in generated narrative and turns the
// session's accumulated tropes into steering suggestions for the next turn.
package concept

import (
	"strings"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

// Tracker matches trigger phrases against narrative text.
type Tracker struct {
	concepts []catalog.Concept
}

func NewTracker(cat *catalog.Catalog) *Tracker {
	return &Tracker{concepts: cat.Concepts}
}

// Detect returns the ids of every concept with at least one trigger phrase in
// text, in catalog order. Matching is case-insensitive substring containment,
// so "dark" also fires inside "darkness".
func (t *Tracker) Detect(text string) []string {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return nil
	}
	var found []string
	for _, c := range t.concepts {
		for _, trig := range c.Triggers {
			if strings.Contains(lower, trig) {
				found = append(found, c.ID)
				break
			}
		}
	}
	return found
}

// Record unions ids into the session's used concepts and returns the ids that
// were new. Used concepts are never removed.
func Record(state *models.SessionState, ids []string) []string {
	var added []string
	for _, id := range ids {
		if id == "" || state.HasConcept(id) {
			continue
		}
		state.UsedConcepts = append(state.UsedConcepts, id)
		added = append(added, id)
	}
	return added
}
