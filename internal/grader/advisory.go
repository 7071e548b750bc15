package grader

import "strings"

// LoopAdvisory is appended when an exercise that expects iteration contains no loop keyword.
const LoopAdvisory = "Coach: It looks like you aren't using a loop. Try using a 'for' loop to go through the list."

var loopKeywords = []string{"for ", "while "}

// usesLoop is a plain substring scan over the raw text; comments and strings count.
func usesLoop(code string) bool {
	for _, keyword := range loopKeywords {
		if strings.Contains(code, keyword) {
			return true
		}
	}
	return false
}
