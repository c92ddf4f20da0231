// Package segment splits narration text into small speakable units.
//
// Units are kept short so a listener who drops off loses at most a few
// lines of context, and so each unit is cheap to fetch and synthesize again.
package segment

import "strings"

// DefaultLines is the number of narration lines grouped into one unit.
const DefaultLines = 3

// Lines splits text on line breaks and regroups consecutive runs of n
// lines, rejoining each group with "\n". Joining the result with "\n"
// reproduces text exactly. Every group but the last holds exactly n lines.
//
// An empty text yields a single empty group. A non-positive n falls back
// to DefaultLines.
func Lines(text string, n int) []string {
	if n <= 0 {
		n = DefaultLines
	}

	lines := strings.Split(text, "\n")
	groups := make([]string, 0, (len(lines)+n-1)/n)
	for len(lines) > 0 {
		end := min(n, len(lines))
		groups = append(groups, strings.Join(lines[:end], "\n"))
		lines = lines[end:]
	}
	return groups
}
