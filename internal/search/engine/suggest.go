package engine

import (
	"fmt"
	"strings"
)

// suggestionTemplates expand a cleaned term into related queries.
var suggestionTemplates = []string{
	"%s",
	"%s moments",
	"%s near me",
	"best %s",
	"#%s",
}

// Suggestions expands the raw term into up to count related query
// suggestions. The hashtag template uses only the first word so multi-word
// terms still produce a valid tag.
func Suggestions(raw string, count int) []string {
	term := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(raw))), " ")
	if term == "" || count <= 0 {
		return nil
	}
	if count > len(suggestionTemplates) {
		count = len(suggestionTemplates)
	}
	out := make([]string, 0, count)
	for _, tmpl := range suggestionTemplates[:count] {
		arg := term
		if tmpl == "#%s" {
			arg = strings.Fields(term)[0]
			arg = strings.TrimPrefix(arg, "#")
		}
		out = append(out, fmt.Sprintf(tmpl, arg))
	}
	return out
}
