package worker

import "strings"

// DefaultReadyMarkers are stderr substrings llama-cli prints once the model is
// loaded and it waits for the first prompt. The wording moved between
// releases, so several generations are listed.
var DefaultReadyMarkers = []string{
	"== Running in interactive mode. ==",
	"Press Ctrl+C to interject at any time.",
	"Press Return to return control to the AI.",
	"interactive mode on.",
}

type readyMatcher struct {
	markers []string
}

func newReadyMatcher(extra []string) readyMatcher {
	seen := make(map[string]struct{}, len(DefaultReadyMarkers)+len(extra))
	var m readyMatcher
	for _, s := range append(append([]string(nil), DefaultReadyMarkers...), extra...) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		m.markers = append(m.markers, s)
	}
	return m
}

// match returns the first marker contained in line.
func (m readyMatcher) match(line string) (string, bool) {
	for _, mk := range m.markers {
		if strings.Contains(line, mk) {
			return mk, true
		}
	}
	return "", false
}
