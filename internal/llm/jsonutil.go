package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")

// maxStarts bounds how many opening brackets ExtractJSON tries per text.
const maxStarts = 16

// ExtractJSON returns the first JSON object or array found in free-form model
// text, looking inside code fences first. Line comments and trailing commas
// outside string literals are removed. It returns "" when nothing parses.
func ExtractJSON(content string) string {
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		if v := firstValue(m[1]); v != "" {
			return v
		}
	}
	return firstValue(content)
}

// firstValue tries each '{' or '[' in order, spanning to the last matching
// closer, and returns the first span that is valid JSON once repaired.
func firstValue(s string) string {
	for start, tries := 0, 0; tries < maxStarts; tries++ {
		i := strings.IndexAny(s[start:], "{[")
		if i < 0 {
			return ""
		}
		i += start
		closer := byte('}')
		if s[i] == '[' {
			closer = ']'
		}
		if j := strings.LastIndexByte(s, closer); j > i {
			if v := repair(s[i : j+1]); json.Valid([]byte(v)) {
				return v
			}
		}
		start = i + 1
	}
	return ""
}

// repair drops // comments and trailing commas that sit outside strings.
func repair(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			i = lineEnd(s, i)
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		case ch == ',' && closesNext(s, i+1):
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// closesNext reports whether the next significant byte from i closes an
// object or array.
func closesNext(s string, i int) bool {
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ', c == '\t', c == '\n', c == '\r':
			i++
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			i = lineEnd(s, i)
		default:
			return c == '}' || c == ']'
		}
	}
	return false
}

func lineEnd(s string, i int) int {
	if n := strings.IndexByte(s[i:], '\n'); n >= 0 {
		return i + n
	}
	return len(s)
}

// CleanMarkdown strips a surrounding ```markdown or ```md fence.
func CleanMarkdown(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```markdown", "```md"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimSuffix(strings.TrimPrefix(text, fence), "```")
			break
		}
	}
	return strings.TrimSpace(text)
}
