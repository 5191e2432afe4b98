package engine

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/tatianab/tildeath/internal/catalog"
	"github.com/tatianab/tildeath/internal/models"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/*.txt"))

type openingPrompt struct {
	Scenario     catalog.Scenario
	Theme        catalog.Theme
	PastConcepts []string
	SessionCount int
}

type turnPrompt struct {
	Scenario    catalog.Scenario
	Theme       catalog.Theme
	History     string
	Turn        int
	Previous    string
	Choice      string
	Trap        bool
	Danger      string
	Stats       map[string]int
	Instability float64
	Intensity   string
	Revelation  int
	Mutations   []catalog.Mutation
	Steering    string
}

type endingPrompt struct {
	Ending   catalog.Ending
	Scenario catalog.Scenario
	History  string
	Turn     int
	Choice   string
}

type summarizePrompt struct {
	CurrentSummary string
	NewEvents      string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name+".txt", data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// historyText renders the running summary and recent entries for a prompt.
func historyText(h models.GameHistory) string {
	var b strings.Builder
	if h.Summary != "" {
		fmt.Fprintf(&b, "Summary of previous events: %s\n\n", h.Summary)
	}
	if len(h.Entries) > 0 {
		b.WriteString("Recent events:\n")
	}
	for _, entry := range h.Entries {
		fmt.Fprintf(&b, "Turn %d. Choice: %s\nOutcome: %s\n", entry.Turn, entry.Choice, entry.Narrative)
		if len(entry.Mutations) > 0 {
			fmt.Fprintf(&b, "Mutations: %s\n", strings.Join(entry.Mutations, ", "))
		}
	}
	return b.String()
}
