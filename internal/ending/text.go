package ending

import (
	"fmt"
	"strings"

	"github.com/tatianab/tildeath/internal/models"
)

// CommentaryRevelation is the revelation level at which endings add their
// commentary line.
const CommentaryRevelation = 3

const rule = "============================================================"

// Text renders the ending screen. narrative is the generated ending prose;
// when empty the variant template is used instead.
func (o *Outcome) Text(narrative string, state *models.SessionState) string {
	e := o.Ending
	if strings.TrimSpace(narrative) == "" {
		narrative = e.Template
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  %s\n%s\n\n", rule, e.Title, rule)
	b.WriteString(strings.TrimSpace(narrative))
	b.WriteString("\n\n")
	if e.Commentary != "" && state.RevelationLevel >= CommentaryRevelation {
		b.WriteString(e.Commentary)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nChoices made: %d\n", state.TurnCount)
	fmt.Fprintf(&b, "Revelation level: %d/5\n", state.RevelationLevel)

	flavor := e.Flavor
	if flavor == "" {
		flavor = "'...'"
	}
	fmt.Fprintf(&b, "\n%s\n%s\n", flavor, rule)
	return b.String()
}
