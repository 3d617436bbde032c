// Package citation turns inline [[cite:path:start-end]] markers in drafted
// markdown into verified permalinks.
package citation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"repowiki/internal/wiki"
)

var markerPattern = regexp.MustCompile(`\[\[cite:([^\[\]]+?):(\d+)-(\d+)\]\]`)

// Marker formats a citation marker the way drafts are expected to write it.
func Marker(path string, start, end int) string {
	return fmt.Sprintf("[[cite:%s:%d-%d]]", path, start, end)
}

// Result is the rewritten markdown and its unique citations in first-seen order.
type Result struct {
	Markdown  string
	Citations []wiki.Citation
}

// Link validates every marker against lineCounts. Markers for unknown paths or
// out-of-range lines are removed; valid ones become [path:s-e](permalink).
func Link(markdown string, ref wiki.RepoRef, lineCounts map[string]int) Result {
	seen := make(map[string]struct{})
	var citations []wiki.Citation

	out := markerPattern.ReplaceAllStringFunc(markdown, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		p := strings.TrimSpace(sub[1])
		start, err1 := strconv.Atoi(sub[2])
		end, err2 := strconv.Atoi(sub[3])
		if err1 != nil || err2 != nil {
			return ""
		}
		total, ok := lineCounts[p]
		if !ok || !ValidRange(start, end, total) {
			return ""
		}

		c := wiki.Citation{
			Path:      p,
			StartLine: start,
			EndLine:   end,
			URL:       Permalink(ref, p, start, end),
		}
		key := fmt.Sprintf("%s:%d-%d", p, start, end)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			citations = append(citations, c)
		}
		return fmt.Sprintf("[%s:%d-%d](%s)", p, start, end, c.URL)
	})

	return Result{Markdown: out, Citations: citations}
}

// ValidRange reports 1 <= start <= end <= total.
func ValidRange(start, end, total int) bool {
	return start > 0 && end >= start && end <= total
}

// Permalink builds a commit-pinned blob URL. A single-line range has no -L suffix.
func Permalink(ref wiki.RepoRef, path string, start, end int) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	anchor := fmt.Sprintf("#L%d", start)
	if end != start {
		anchor += fmt.Sprintf("-L%d", end)
	}
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s%s",
		url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.SHA, strings.Join(segs, "/"), anchor)
}
