package engine

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackChoices are offered when a reply has no usable choices.
var FallbackChoices = []string{
	"Keep moving",
	"Stay perfectly still",
	"Call out into the dark",
}

// Reply is the structured form of a generator reply.
type Reply struct {
	Narrative      string         `yaml:"narrative"`
	Choices        []string       `yaml:"choices"`
	Consequences   map[string]int `yaml:"consequences"`
	Discovery      string         `yaml:"discovery"`
	Transformation bool           `yaml:"transformation"`
	Objective      bool           `yaml:"objective"`
	Revelation     bool           `yaml:"revelation"`
	Sacrifice      bool           `yaml:"sacrifice"`
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(text string) string {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```yaml")
	clean = strings.TrimPrefix(clean, "```yml")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// decodeReply decodes the YAML form of a reply. A field of the wrong type
// does not discard the rest: the partial reply is returned with the error.
func decodeReply(text string) (Reply, error) {
	var r Reply
	clean := stripFence(text)
	err := yaml.Unmarshal([]byte(clean), &r)
	var typeErr *yaml.TypeError
	if err != nil && !errors.As(err, &typeErr) {
		return Reply{}, fmt.Errorf("failed to parse reply YAML: %w", err)
	}
	if strings.TrimSpace(r.Narrative) == "" {
		return Reply{}, fmt.Errorf("reply has no narrative")
	}
	if err != nil {
		return r, fmt.Errorf("reply has mistyped fields: %w", err)
	}
	return r, nil
}

// parseReply decodes a reply. When the text is not the expected YAML, the
// raw text becomes the narrative and the fallback choices are offered. A
// reply with only some mistyped fields keeps everything else. The decode
// error is returned alongside for logging.
func parseReply(text string) (Reply, error) {
	r, err := decodeReply(text)
	if r.Narrative == "" {
		r = Reply{Narrative: stripFence(text)}
	}
	r.Narrative = strings.TrimSpace(r.Narrative)

	choices := r.Choices[:0]
	for _, c := range r.Choices {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	r.Choices = choices
	if len(r.Choices) == 0 {
		r.Choices = append([]string(nil), FallbackChoices...)
	}
	r.Discovery = strings.TrimSpace(r.Discovery)
	return r, err
}
