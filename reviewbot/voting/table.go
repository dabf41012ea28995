package voting

import (
	"fmt"
	"strconv"
	"strings"
)

// TableMarker precedes the vote table in a reply body. It renders as nothing in markdown.
const TableMarker = "[](#vote-table)"

// StripTable removes the marker and everything after it, along with trailing whitespace.
func StripTable(body string) string {
	if i := strings.Index(body, TableMarker); i >= 0 {
		body = body[:i]
	}
	return strings.TrimRight(body, " \t\n")
}

// RenderTable replaces any existing vote table in body with one for the given tally. Rendering the same tally twice
// gives byte-identical output.
func RenderTable(body string, labels []string, tally []int) (string, error) {
	if len(labels) != len(tally) {
		return "", fmt.Errorf("vote table has %d labels but %d counts", len(labels), len(tally))
	}
	counts := make([]string, len(tally))
	align := make([]string, len(tally))
	for i, n := range tally {
		counts[i] = strconv.Itoa(n)
		align[i] = ":-:"
	}

	var sb strings.Builder
	sb.WriteString(StripTable(body))
	sb.WriteString("\n\n")
	sb.WriteString(TableMarker)
	sb.WriteString("\n\n| ")
	sb.WriteString(strings.Join(labels, " | "))
	sb.WriteString(" |\n|")
	sb.WriteString(strings.Join(align, "|"))
	sb.WriteString("|\n| ")
	sb.WriteString(strings.Join(counts, " | "))
	sb.WriteString(" |")
	return sb.String(), nil
}
