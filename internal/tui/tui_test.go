package tui

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/engine"
	"github.com/tatianab/tildeath/internal/models"
	"github.com/tatianab/tildeath/internal/mutation"
)

type fakeGame struct {
	startErr   error
	turnErr    error
	remembered *models.SessionState
}

func (f *fakeGame) StartSession(ctx context.Context, ghost *models.GhostMemory) (*models.SessionState, *engine.TurnResult, error) {
	if f.startErr != nil {
		return nil, nil, f.startErr
	}
	s := models.NewSessionState(3)
	s.Choices = []string{"Run", "Hide"}
	return s, &engine.TurnResult{Narrative: "It begins.", Choices: s.Choices}, nil
}

func (f *fakeGame) ProcessTurn(ctx context.Context, state *models.SessionState, choice string) (*engine.TurnResult, error) {
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	state.TurnCount++
	return &engine.TurnResult{Turn: state.TurnCount, Narrative: "You " + choice + ".", Choices: []string{"Again"}}, nil
}

func (f *fakeGame) LoadGhost(context.Context, models.GhostStore) *models.GhostMemory {
	return &models.GhostMemory{}
}

func (f *fakeGame) RememberSession(_ context.Context, _ models.GhostStore, state *models.SessionState) {
	f.remembered = state
}

func newTestModel(t *testing.T, game Game) model {
	t.Helper()
	models.SaveDir = t.TempDir()
	m := NewModel(context.Background(), game, nil, nil, zaptest.NewLogger(t))
	m.rng = rand.New(rand.NewPCG(1, 1))
	return m
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func started(t *testing.T, m model) model {
	t.Helper()
	msg := m.startSession()()
	m, _ = update(t, m, msg)
	require.Equal(t, screenPlaying, m.screen)
	return m
}

func TestStartSessionSavesAndShowsChoices(t *testing.T) {
	m := started(t, newTestModel(t, &fakeGame{}))
	assert.Contains(t, m.gameLog, "It begins.")
	assert.Contains(t, m.gameLog, "1. Run")
	assert.Contains(t, m.gameLog, "2. Hide")

	saved, err := models.LoadSession(SaveName)
	require.NoError(t, err)
	assert.Equal(t, m.session.ID, saved.ID)
}

func TestFailureScreenIsLiteralWithRetry(t *testing.T) {
	game := &fakeGame{startErr: errors.New("quota \x1b[31mexceeded [bold]")}
	m := newTestModel(t, game)
	m, _ = update(t, m, m.startSession()())

	require.Equal(t, screenFailure, m.screen)
	view := m.View()
	assert.Contains(t, view, "quota [31mexceeded [bold]")
	assert.NotContains(t, view, "\x1b")
	assert.Contains(t, view, "[r] retry  [q] quit")

	game.startErr = nil
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, screenLoading, m.screen)
	require.NotNil(t, cmd)

	m, _ = update(t, m, m.startSession()())
	assert.Equal(t, screenPlaying, m.screen)
}

func TestTurnFailureRetriesSameChoice(t *testing.T) {
	game := &fakeGame{}
	m := started(t, newTestModel(t, game))

	m.input.SetValue("2")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, screenLoading, m.screen)
	assert.Equal(t, "Hide", m.pending)

	m, _ = update(t, m, turnProcessedMsg{err: engine.ErrGeneratorUnavailable})
	require.Equal(t, screenFailure, m.screen)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, screenLoading, m.screen)
	msg := m.processTurn(m.pending)()
	m, _ = update(t, m, msg)
	assert.Equal(t, screenPlaying, m.screen)
	assert.Contains(t, m.gameLog, "You Hide.")
	assert.Empty(t, m.pending)
}

func TestTurnShowsMutationAndWarning(t *testing.T) {
	m := started(t, newTestModel(t, &fakeGame{}))
	m.session.TurnCount = 7
	res := &engine.TurnResult{
		Turn:      7,
		Narrative: "The walls lean in.",
		Choices:   []string{"A", "B"},
		Activated: &mutation.Activation{Mutation: catalog.Mutation{
			ID:           "choice_drought",
			Effect:       "drought",
			Announcement: "[REALITY SHIFT: options collapsing]",
		}, Duration: 1},
		Effects:   []string{"drought"},
		Intensity: "disturbed",
		Warning:   engine.LowHealthWarning,
	}

	m, cmd := update(t, m, turnProcessedMsg{result: res})
	assert.Nil(t, cmd)
	assert.Contains(t, m.gameLog, "[REALITY SHIFT: options collapsing]")
	assert.Contains(t, m.gameLog, engine.LowHealthWarning)
	assert.Less(t, strings.Index(m.gameLog, "REALITY SHIFT"), strings.Index(m.gameLog, "The walls lean in."))
}

func TestAutoChoiceIsSubmitted(t *testing.T) {
	m := started(t, newTestModel(t, &fakeGame{}))
	m.session.TurnCount = 3
	res := &engine.TurnResult{Turn: 3, Narrative: "...", Choices: []string{"A", "B"}, AutoChoice: "B", Effects: []string{"auto_pick"}}

	m, cmd := update(t, m, turnProcessedMsg{result: res})
	require.NotNil(t, cmd)
	assert.Contains(t, m.gameLog, "[the choice is made for you: B]")

	// Player input is ignored while the narrator decides.
	m.input.SetValue("1")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, screenPlaying, m.screen)

	// A stale timer is ignored.
	m, cmd = update(t, m, autoChoiceMsg{choice: "B", turn: 2})
	assert.Nil(t, cmd)

	m, cmd = update(t, m, autoChoiceMsg{choice: "B", turn: 3})
	require.NotNil(t, cmd)
	assert.Equal(t, screenLoading, m.screen)
	assert.Equal(t, "B", m.pending)
}

func TestEndingScreen(t *testing.T) {
	m := started(t, newTestModel(t, &fakeGame{}))
	m, _ = update(t, m, turnProcessedMsg{result: &engine.TurnResult{
		Turn:   4,
		Ending: &engine.Ending{Text: "SLOW DECAY\n\x07It fades."},
	}})
	require.Equal(t, screenEnding, m.screen)
	assert.Contains(t, m.View(), "SLOW DECAY\nIt fades.")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestResumeShowsSavedScene(t *testing.T) {
	models.SaveDir = t.TempDir()
	s := models.NewSessionState(3)
	s.TurnCount = 5
	s.Narrative = "Where you left it."
	s.Choices = []string{"Stay"}

	m := NewModel(context.Background(), &fakeGame{}, nil, s, zaptest.NewLogger(t))
	assert.Equal(t, screenPlaying, m.screen)
	assert.Contains(t, m.gameLog, "(resumed at turn 5)")
	assert.Contains(t, m.gameLog, "Where you left it.")
	assert.Contains(t, m.gameLog, "1. Stay")
}

func TestResolveInput(t *testing.T) {
	choices := []string{"Run", "Hide"}
	assert.Equal(t, "Run", resolveInput(" 1 ", choices))
	assert.Equal(t, "Hide", resolveInput("2", choices))
	assert.Equal(t, "3", resolveInput("3", choices))
	assert.Equal(t, "scream", resolveInput("scream", choices))
	assert.Empty(t, resolveInput("   ", choices))
}
