package agent

import "strings"

// greetingPhrases is a small fixed set of openers that never need a
// tool. Matching one skips the tool-decision call entirely; this is a
// latency shortcut, not a semantic branch.
var greetingPhrases = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"yo":             true,
	"howdy":          true,
	"hiya":           true,
	"hi there":       true,
	"hello there":    true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
	"what's up":      true,
	"whats up":       true,
	"sup":            true,
	"thanks":         true,
	"thank you":      true,
}

// isGreeting reports whether input is a near-exact match for one of
// the greeting phrases, ignoring case and trailing punctuation.
func isGreeting(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.TrimRight(s, "!.?, ")
	return greetingPhrases[s]
}
