// Package tui is the terminal display layer.
package tui

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tatianab/tildeath/internal/engine"
	"github.com/tatianab/tildeath/internal/models"
)

// SaveName is the save slot the current session is written to.
const SaveName = "current"

// autoDelay is how long an automatic choice stays on screen.
const autoDelay = 1500 * time.Millisecond

// Game is the part of the engine the display needs.
type Game interface {
	StartSession(ctx context.Context, ghost *models.GhostMemory) (*models.SessionState, *engine.TurnResult, error)
	ProcessTurn(ctx context.Context, state *models.SessionState, choice string) (*engine.TurnResult, error)
	LoadGhost(ctx context.Context, store models.GhostStore) *models.GhostMemory
	RememberSession(ctx context.Context, store models.GhostStore, state *models.SessionState)
}

type screen int

const (
	screenLoading screen = iota
	screenPlaying
	screenEnding
	screenFailure
)

type model struct {
	screen screen
	ctx    context.Context
	game   Game
	store  models.GhostStore
	logger *zap.Logger
	rng    *rand.Rand

	session *models.SessionState
	last    *engine.TurnResult
	// pending is the choice being processed, kept for a retry. Empty while
	// the opening is generated.
	pending string
	err     error
	ending  string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	health   progress.Model
	gameLog  string
	width    int
	height   int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#3A1F1F")).
			Bold(true).
			PaddingLeft(1)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BBBBBB"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")).
			Italic(true)

	announceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4040")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#8B0000")).
			Bold(true).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#B22222")).
			Bold(true).
			Underline(true)
)

// NewModel builds the display. With resume set the saved session continues
// from its last scene; otherwise a new session is generated.
func NewModel(ctx context.Context, game Game, store models.GhostStore, resume *models.SessionState, logger *zap.Logger) model {
	if logger == nil {
		logger = zap.NewNop()
	}
	ti := textinput.New()
	ti.Placeholder = "Type a number, or anything else..."
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 50

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B22222"))

	m := model{
		screen:   screenLoading,
		ctx:      ctx,
		game:     game,
		store:    store,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		input:    ti,
		spinner:  sp,
		health:   progress.New(progress.WithSolidFill("#8B0000"), progress.WithoutPercentage(), progress.WithWidth(20)),
		viewport: viewport.New(60, 18),
		width:    80,
		height:   24,
	}
	if resume != nil {
		m.session = resume
		m.screen = screenPlaying
		m.gameLog = dimStyle.Render(fmt.Sprintf("(resumed at turn %d)", resume.TurnCount)) + "\n\n" +
			m.renderScene(&engine.TurnResult{
				Turn:      resume.TurnCount,
				Narrative: resume.Narrative,
				Choices:   resume.Choices,
				Intensity: resume.VisualIntensity(),
			})
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.screen == screenPlaying {
		return textinput.Blink
	}
	return tea.Batch(m.spinner.Tick, m.startSession())
}

type sessionStartedMsg struct {
	session *models.SessionState
	result  *engine.TurnResult
	err     error
}

type turnProcessedMsg struct {
	result *engine.TurnResult
	err    error
}

// autoChoiceMsg submits a choice the narrator made. turn guards against a
// stale timer firing after the player already moved on.
type autoChoiceMsg struct {
	choice string
	turn   int
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenFailure:
			switch msg.String() {
			case "r":
				return m.retry()
			case "q", "esc":
				return m, tea.Quit
			}
			return m, nil
		case screenEnding:
			switch msg.String() {
			case "q", "esc", "enter":
				return m, tea.Quit
			}
			return m, nil
		case screenLoading:
			return m, nil
		}

		switch msg.Type {
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.last != nil && m.last.AutoChoice != "" {
				return m, nil
			}
			choice := resolveInput(m.input.Value(), m.session.Choices)
			if choice == "" {
				return m, nil
			}
			m.input.Reset()
			return m.submit(choice)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = max(msg.Height-6, 3)
		m.viewport.SetContent(m.gameLog)

	case spinner.TickMsg:
		if m.screen == screenLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case sessionStartedMsg:
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.session = msg.session
		m.screen = screenPlaying
		m.gameLog = m.renderScene(msg.result)
		m.last = msg.result
		m.save()
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoTop()
		return m, textinput.Blink

	case turnProcessedMsg:
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		res := msg.result
		m.pending = ""
		m.last = res
		m.save()
		if res.Ending != nil {
			m.screen = screenEnding
			m.ending = sanitize(res.Ending.Text)
			return m, nil
		}
		m.screen = screenPlaying
		m.gameLog += m.renderScene(res)
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
		if res.AutoChoice != "" {
			auto := autoChoiceMsg{choice: res.AutoChoice, turn: res.Turn}
			return m, tea.Tick(autoDelay, func(time.Time) tea.Msg { return auto })
		}
		return m, nil

	case autoChoiceMsg:
		if m.screen != screenPlaying || m.session == nil || m.session.TurnCount != msg.turn {
			return m, nil
		}
		return m.submit(msg.choice)
	}

	if m.screen == screenPlaying {
		m.input, cmd = m.input.Update(msg)
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, vpCmd)
	}
	return m, nil
}

func (m model) View() string {
	var s string

	switch m.screen {
	case screenLoading:
		s = fmt.Sprintf("\n  %s The dark is listening...\n", m.spinner.View())

	case screenPlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		help := helpStyle.Render("Enter a choice number or your own words. Esc to leave.")
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.input.View(),
			"\n"+help,
		)

	case screenEnding:
		s = m.ending + "\n\n" + helpStyle.Render("Press q to leave. It will remember.")

	case screenFailure:
		// Plain text only: a styling problem must not hide the error.
		s = fmt.Sprintf("\n  The narrator failed to respond.\n\n  %s\n\n  [r] retry  [q] quit\n", sanitize(m.err.Error()))
	}

	return "\n" + s + "\n"
}

func (m model) submit(choice string) (tea.Model, tea.Cmd) {
	m.gameLog += "\n" + userStyle.Width(m.logWidth()).Render("> "+sanitize(choice)) + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
	m.pending = choice
	m.screen = screenLoading
	return m, tea.Batch(m.spinner.Tick, m.processTurn(choice))
}

func (m model) retry() (tea.Model, tea.Cmd) {
	m.err = nil
	m.screen = screenLoading
	if m.session == nil {
		return m, tea.Batch(m.spinner.Tick, m.startSession())
	}
	return m, tea.Batch(m.spinner.Tick, m.processTurn(m.pending))
}

func (m model) fail(err error) model {
	m.logger.Error("generator failure shown to player", zap.Error(err))
	m.err = err
	m.screen = screenFailure
	return m
}

func (m model) save() {
	if m.session == nil {
		return
	}
	if err := m.session.Save(SaveName); err != nil {
		m.logger.Warn("session not saved", zap.String("session", m.session.ID), zap.Error(err))
	}
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.72)
}

// renderScene formats one turn for the log.
func (m model) renderScene(res *engine.TurnResult) string {
	var b strings.Builder
	width := m.logWidth()

	if len(res.Expired) > 0 && res.Activated == nil {
		b.WriteString(dimStyle.Render("[REALITY STABILIZING]") + "\n\n")
	}
	if a := res.Activated; a != nil && a.Mutation.Announcement != "" {
		b.WriteString(announceStyle.Render(sanitize(a.Mutation.Announcement)) + "\n\n")
	}
	if res.Overridden != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("(you chose %q. the story chose otherwise.)", sanitize(res.Overridden))) + "\n\n")
	}
	if fb := res.Resolution.Feedback; fb != "" {
		b.WriteString(dimStyle.Render(fb) + "\n\n")
	}

	if n := renderNarrative(res.Narrative, res.Effects, res.Intensity, width, m.rng); n != "" {
		b.WriteString(n + "\n\n")
	}
	if res.Warning != "" {
		b.WriteString(warningStyle.Render(res.Warning) + "\n\n")
	}
	if slices.Contains(res.Effects, effectTimer) {
		b.WriteString(announceStyle.Render("[ HURRY ]") + "\n")
	}

	for i, c := range res.Choices {
		b.WriteString(choiceStyle.Width(width).Render(fmt.Sprintf("%d. %s", i+1, sanitize(c))) + "\n")
	}
	if res.AutoChoice != "" && !slices.Contains(res.Effects, effectContinue) {
		b.WriteString("\n" + announceStyle.Render(fmt.Sprintf("[the choice is made for you: %s]", sanitize(res.AutoChoice))) + "\n")
	}
	return b.String()
}

func (m model) renderState() string {
	if m.session == nil {
		return ""
	}
	s := m.session
	var b strings.Builder

	health := s.Stat(models.StatHealth)
	b.WriteString(titleStyle.Render("HEALTH") + "\n")
	fmt.Fprintf(&b, "%s %d\n\n", m.health.ViewAs(float64(health)/100), health)

	b.WriteString(titleStyle.Render("TURN") + "\n")
	fmt.Fprintf(&b, "%d\n\n", s.TurnCount)

	b.WriteString(titleStyle.Render("REALITY") + "\n")
	fmt.Fprintf(&b, "%s\n\n", s.VisualIntensity())

	if m.last != nil && slices.Contains(m.last.Effects, effectRevealStats) {
		b.WriteString(titleStyle.Render("YOU") + "\n")
		for _, name := range models.HiddenStats {
			fmt.Fprintf(&b, "%s: %d\n", name, s.Stat(name))
		}
		b.WriteString("\n")
	}

	if s.SessionCount > 1 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("session %d", s.SessionCount)))
	}

	return stateStyle.Width(max(m.width-m.logWidth()-4, 12)).Height(m.viewport.Height).Render(b.String())
}

// resolveInput maps a typed number to the offered choice; anything else is
// taken as the player's own words.
func resolveInput(input string, choices []string) string {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1]
	}
	return input
}

func (m model) startSession() tea.Cmd {
	return func() tea.Msg {
		ghost := m.game.LoadGhost(m.ctx, m.store)
		state, res, err := m.game.StartSession(m.ctx, ghost)
		return sessionStartedMsg{session: state, result: res, err: err}
	}
}

func (m model) processTurn(choice string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		res, err := m.game.ProcessTurn(m.ctx, session, choice)
		return turnProcessedMsg{result: res, err: err}
	}
}

// Run plays one session in the terminal and folds it into ghost memory when
// the program exits, whether or not an ending was reached.
func Run(ctx context.Context, game Game, store models.GhostStore, resume *models.SessionState, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := tea.NewProgram(NewModel(ctx, game, store, resume, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(model); ok && fm.session != nil {
		if fm.screen == screenLoading {
			logger.Warn("exited mid-turn, ghost memory not updated", zap.String("session", fm.session.ID))
		} else {
			game.RememberSession(ctx, store, fm.session)
		}
	}
	return err
}
