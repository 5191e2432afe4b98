package scenario

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

func testCatalog(scenarios ...string) *catalog.Catalog {
	cat := &catalog.Catalog{
		Themes: []catalog.Theme{{ID: "echo"}, {ID: "liquid"}},
	}
	for _, id := range scenarios {
		cat.Scenarios = append(cat.Scenarios, catalog.Scenario{ID: id, Opening: "You wake."})
	}
	return cat
}

func TestSelectOpeningAvoidsGhostMemory(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	sel, err := NewSelector(cat, DefaultConfig(), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	history := &models.ScenarioHistory{Limit: 3}
	for i := 0; i < 1000; i++ {
		before := append([]models.ScenarioPick(nil), history.Entries...)
		sc, th := sel.SelectOpening(history)

		_, ok := cat.Scenario(sc.ID)
		require.True(t, ok, "scenario %q not in catalog", sc.ID)
		_, ok = cat.Theme(th.ID)
		require.True(t, ok, "theme %q not in catalog", th.ID)

		for _, p := range before {
			require.NotEqual(t, p.ScenarioID, sc.ID, "draw %d repeated a remembered scenario", i)
		}
		require.LessOrEqual(t, len(history.Entries), 3)
		assert.Equal(t, sc.ID, history.Entries[len(history.Entries)-1].ScenarioID)
	}
}

func TestSelectOpeningSmallCatalogAcceptsRepeat(t *testing.T) {
	sel, err := NewSelector(testCatalog("a", "b"), Config{Memory: 3, MaxRetries: 10}, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	history := &models.ScenarioHistory{Limit: 3}
	seen := map[string]int{}
	for i := 0; i < 20; i++ {
		sc, _ := sel.SelectOpening(history)
		seen[sc.ID]++
	}
	// Both scenarios are always in memory after the first two picks, so the
	// selector must keep producing openings instead of looping.
	assert.Equal(t, 20, seen["a"]+seen["b"])
	assert.Len(t, history.Entries, 3)
}

func TestSelectOpeningDeterministicWithSeed(t *testing.T) {
	cat := testCatalog("a", "b", "c", "d", "e", "f")
	run := func() []models.ScenarioPick {
		sel, err := NewSelector(cat, DefaultConfig(), rand.New(rand.NewPCG(42, 0)))
		require.NoError(t, err)
		h := &models.ScenarioHistory{Limit: 3}
		var out []models.ScenarioPick
		for i := 0; i < 25; i++ {
			sc, th := sel.SelectOpening(h)
			out = append(out, models.ScenarioPick{ScenarioID: sc.ID, ThemeID: th.ID})
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSelectOpeningZeroRetriesStillAvoidsMemory(t *testing.T) {
	sel, err := NewSelector(testCatalog("a", "b", "c", "d"), Config{Memory: 3, MaxRetries: 0}, rand.New(rand.NewPCG(3, 9)))
	require.NoError(t, err)

	history := &models.ScenarioHistory{Limit: 3, Entries: []models.ScenarioPick{{ScenarioID: "a"}, {ScenarioID: "b"}, {ScenarioID: "c"}}}
	sc, _ := sel.SelectOpening(history)
	assert.Equal(t, "d", sc.ID)
}

func TestNewSelectorEmptyCatalog(t *testing.T) {
	_, err := NewSelector(testCatalog(), DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, catalog.ErrMisconfigured)
}

func TestNewSelectorRequiresMemory(t *testing.T) {
	_, err := NewSelector(testCatalog("a"), Config{Memory: 0, MaxRetries: 10}, rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, catalog.ErrMisconfigured)
}
