package agent

import "fmt"

// truncationMarker separates the kept head and tail of oversized tool
// output.
const truncationMarker = "\n[... %d characters omitted ...]\n"

// TruncateOutput cuts s to at most maxChars, keeping headFraction of
// the budget from the start and the remainder from the end, joined by
// an omission marker. The marker counts against the budget, so the
// result of a truncation is never itself oversized.
func TruncateOutput(s string, maxChars int, headFraction float64) (string, bool) {
	if maxChars <= 0 || len(s) <= maxChars {
		return s, false
	}
	if headFraction <= 0 || headFraction >= 1 {
		headFraction = 0.6
	}

	omitted := len(s) - maxChars
	marker := fmt.Sprintf(truncationMarker, omitted)
	budget := maxChars - len(marker)
	if budget <= 0 {
		return s[:maxChars], true
	}

	head := int(float64(budget) * headFraction)
	tail := budget - head
	return s[:head] + marker + s[len(s)-tail:], true
}
