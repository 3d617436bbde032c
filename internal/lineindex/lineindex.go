// Package lineindex renders file text with true source line numbers so that
// every number a model sees can later be checked against the real file.
package lineindex

import (
	"fmt"
	"strings"
)

const (
	numberWidth = 6
	separator   = " | "
)

// CountLines returns the number of "\n"-delimited segments. A trailing newline
// yields one extra, empty, line: CountLines("a\n") == 2 and CountLines("") == 1.
// Citation bound checks use this count, so a citation may name that last empty line.
func CountLines(text string) int {
	return strings.Count(text, "\n") + 1
}

// NumberAll prefixes every line with its 1-based line number.
func NumberAll(text string) string {
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	sb.Grow(len(text) + len(lines)*(numberWidth+len(separator)))
	writeRange(&sb, lines, 1, len(lines))
	return strings.TrimSuffix(sb.String(), "\n")
}

// Windowed behaves like NumberAll when the text has at most maxLines lines.
// Otherwise it emits the first headLines lines, one omission marker, and the
// last tailLines lines with their absolute line numbers.
func Windowed(text string, maxLines, headLines, tailLines int) string {
	lines := strings.Split(text, "\n")
	total := len(lines)
	if total <= maxLines {
		return NumberAll(text)
	}
	if headLines < 0 {
		headLines = 0
	}
	if headLines > total {
		headLines = total
	}
	if tailLines < 0 {
		tailLines = 0
	}
	tailStart := max(total-tailLines+1, headLines+1)
	omitted := tailStart - headLines - 1

	var sb strings.Builder
	writeRange(&sb, lines, 1, headLines)
	fmt.Fprintf(&sb, "... (%d lines omitted) ...\n", omitted)
	writeRange(&sb, lines, tailStart, total)
	return strings.TrimSuffix(sb.String(), "\n")
}

// Excerpt numbers lines start..end (inclusive), clamped to the file and capped
// at maxLines. It returns "" when the range does not intersect the file.
func Excerpt(text string, start, end, maxLines int) string {
	lines := strings.Split(text, "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if maxLines > 0 && end-start+1 > maxLines {
		end = start + maxLines - 1
	}
	if start > end {
		return ""
	}
	var sb strings.Builder
	writeRange(&sb, lines, start, end)
	return strings.TrimSuffix(sb.String(), "\n")
}

// FormatLine renders a single numbered line.
func FormatLine(n int, line string) string {
	return fmt.Sprintf("%*d%s%s", numberWidth, n, separator, line)
}

func writeRange(sb *strings.Builder, lines []string, from, to int) {
	for n := from; n <= to; n++ {
		sb.WriteString(FormatLine(n, lines[n-1]))
		sb.WriteByte('\n')
	}
}
