package tui

import (
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
)

// Display effects. Effects not listed here only change the prompt.
const (
	effectGlitch      = "glitch"
	effectFormatShift = "format_shift"
	effectAside       = "aside"
	effectRevealStats = "reveal_stats"
	effectTimer       = "timer"
	effectBlank       = "blank_narrative"
	effectContinue    = "auto_continue"
)

var glitchRunes = []rune("▓▒░█▌▐■□▪▫◊◘◙")

var asides = []string{
	"(you are still reading. good.)",
	"(the narrator would like you to know this is not the first time.)",
	"(your screen is a little brighter than it was.)",
	"(someone else chose this option once. they are not here anymore.)",
	"(do not look behind you. that one is not a game mechanic.)",
}

var intensityColor = map[string]lipgloss.Color{
	"stable":    lipgloss.Color("#E8E8E8"),
	"unsettled": lipgloss.Color("#D8CFCF"),
	"disturbed": lipgloss.Color("#C9A0A0"),
	"breaking":  lipgloss.Color("#E06060"),
	"collapsed": lipgloss.Color("#FF2020"),
}

// glitchAmount is the share of letters replaced at an intensity.
var glitchAmount = map[string]float64{
	"breaking":  0.02,
	"collapsed": 0.06,
}

// sanitize drops terminal control sequences so generated text is shown
// literally.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// glitch replaces roughly amount of the letters in s. Line breaks and
// spacing are kept so wrapping does not change.
func glitch(s string, amount float64, rng *rand.Rand) string {
	if amount <= 0 {
		return s
	}
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsLetter(r) && rng.Float64() < amount {
			runes[i] = glitchRunes[rng.IntN(len(glitchRunes))]
		}
	}
	return string(runes)
}

func formatShift(s string) string {
	lines := strings.Split(strings.ToUpper(s), "\n")
	for i, l := range lines {
		lines[i] = "│ " + l
	}
	return strings.Join(lines, "\n")
}

// renderNarrative applies the display effects and the intensity style to
// generated narrative.
func renderNarrative(text string, effects []string, intensity string, width int, rng *rand.Rand) string {
	text = sanitize(strings.TrimSpace(text))
	if text == "" {
		if slices.Contains(effects, effectBlank) {
			return dimStyle.Render("[ NO SIGNAL ]")
		}
		return ""
	}

	amount := glitchAmount[intensity]
	if slices.Contains(effects, effectGlitch) {
		amount = max(amount, 0.12)
	}
	text = glitch(text, amount, rng)
	if slices.Contains(effects, effectFormatShift) {
		text = formatShift(text)
	}
	if slices.Contains(effects, effectAside) {
		text += "\n\n" + asides[rng.IntN(len(asides))]
	}

	style := lipgloss.NewStyle().Foreground(intensityColor[intensity])
	if intensity == "collapsed" {
		style = style.Bold(true)
	}
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(text)
}
