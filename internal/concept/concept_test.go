package concept

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func TestDetect(t *testing.T) {
	tr := NewTracker(defaultCatalog(t))

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "You stand in a quiet meadow under a pale sun.", nil},
		{"empty", "   ", nil},
		{"case insensitive", "The MIRROR shows a Stranger.", []string{"mirror"}},
		{"several", "Your reflection steps out of the glass, skin peeling, and the door slams.",
			[]string{"mirror", "doors", "body_horror"}},
		{"substring fires", "Darkness swallows the hall.", []string{"darkness"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Detect(tt.text))
		})
	}
}

func TestRecordIsAdditive(t *testing.T) {
	tr := NewTracker(defaultCatalog(t))
	s := models.NewSessionState(3)

	beats := []string{
		"The mirror cracks.",
		"Nothing at all happens in the meadow.",
		"Whispers behind the door. The mirror again.",
		"Your bones ache.",
	}
	prev := 0
	for _, beat := range beats {
		Record(s, tr.Detect(beat))
		require.GreaterOrEqual(t, len(s.UsedConcepts), prev)
		prev = len(s.UsedConcepts)
	}
	assert.Equal(t, []string{"mirror", "voices", "doors", "time_loop", "body_horror"}, s.UsedConcepts)

	added := Record(s, []string{"mirror", "darkness"})
	assert.Equal(t, []string{"darkness"}, added)
}

func TestNoTriggerLeavesSetUnchanged(t *testing.T) {
	tr := NewTracker(defaultCatalog(t))
	s := models.NewSessionState(3)
	s.UsedConcepts = []string{"mirror"}

	found := tr.Detect("A quiet meadow. Birds. Sunlight.")
	assert.Empty(t, found)
	assert.Empty(t, Record(s, found))
	assert.Equal(t, []string{"mirror"}, s.UsedConcepts)
}

func TestAdvisorThreshold(t *testing.T) {
	a := NewAdvisor(defaultCatalog(t), DefaultAdvisorConfig(), rand.New(rand.NewPCG(1, 1)))

	_, ok := a.BuildSteeringPrompt(nil)
	assert.False(t, ok)
	_, ok = a.BuildSteeringPrompt([]string{"mirror", "darkness"})
	assert.False(t, ok)

	prompt, ok := a.BuildSteeringPrompt([]string{"mirror", "darkness", "voices"})
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(prompt, "FRESH ANGLES TO EXPLORE:"))
	assert.Contains(t, prompt, "ALREADY EXPLORED THIS SESSION: mirrors and reflections, darkness and shadow, voices and whispers")
}

func TestAdvisorSuggestsOnlyUnused(t *testing.T) {
	cat := defaultCatalog(t)
	a := NewAdvisor(cat, DefaultAdvisorConfig(), rand.New(rand.NewPCG(5, 8)))

	used := []string{"mirror", "darkness", "voices", "doors", "eyes", "pursuit", "isolation"}
	for i := 0; i < 200; i++ {
		st := a.Suggest(used)
		require.NotNil(t, st)
		require.Len(t, st.Fresh, 3)
		seen := map[string]bool{}
		for _, id := range st.Fresh {
			assert.NotContains(t, used, id)
			assert.False(t, seen[id], "duplicate suggestion %s", id)
			seen[id] = true
		}
		assert.Equal(t, used[2:], st.Explored)
	}
}

func TestAdvisorFewUnusedAndExhausted(t *testing.T) {
	cat := &catalog.Catalog{Concepts: []catalog.Concept{
		{ID: "a", Triggers: []string{"a"}},
		{ID: "b", Triggers: []string{"b"}},
		{ID: "c", Triggers: []string{"c"}},
		{ID: "d", Triggers: []string{"d"}},
	}}
	a := NewAdvisor(cat, DefaultAdvisorConfig(), rand.New(rand.NewPCG(2, 3)))

	st := a.Suggest([]string{"a", "b", "c"})
	require.NotNil(t, st)
	assert.Equal(t, []string{"d"}, st.Fresh)

	assert.Nil(t, a.Suggest([]string{"a", "b", "c", "d"}))
}
