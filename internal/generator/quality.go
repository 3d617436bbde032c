package generator

import (
	"strings"

	"repowiki/internal/wiki"
)

// lowQualityScore is the threshold below which a page is flagged in the report.
const lowQualityScore = 0.6

// PageQuality is a heuristic, advisory score for an accepted page. It never
// rejects a page; the citation and length gates do that.
type PageQuality struct {
	Score           float64
	Issues          []string
	MissingHeadings []string
}

// AssessPage scores a linked page on structure, tone and citation density.
func AssessPage(page wiki.WikiPage) PageQuality {
	text := strings.TrimSpace(page.Markdown)
	if text == "" {
		return PageQuality{Score: 0, Issues: []string{"empty_content"}, MissingHeadings: RequiredHeadings}
	}

	score := 1.0
	issues := make([]string, 0, 6)
	total, bullets, paragraphs := 0, 0, 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		total++
		isBullet := strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")
		if isBullet {
			bullets++
		}
		if !strings.HasPrefix(line, "#") && !isBullet {
			paragraphs++
		}
	}
	if total > 0 && float64(bullets)/float64(total) > 0.45 {
		score -= 0.25
		issues = append(issues, "list_heavy")
	}
	if paragraphs < 2 {
		score -= 0.2
		issues = append(issues, "insufficient_paragraphs")
	}

	// Pages should explain behavior, not tour the file tree.
	lower := strings.ToLower(text)
	walkthrough := 0
	for _, token := range []string{"this file", "the file `", "containing:", "package `", "directory contains"} {
		if strings.Contains(lower, token) {
			walkthrough++
		}
	}
	if walkthrough >= 2 {
		score -= 0.35
		issues = append(issues, "file_walkthrough_style")
	}

	for _, token := range []string{"explain the", "describe the", "must include", "tbd", "placeholder", "[[cite:"} {
		if strings.Contains(lower, token) {
			score -= 0.2
			issues = append(issues, "instructional_or_placeholder_text")
			break
		}
	}

	missing := MissingHeadings(text)
	if len(missing) > 0 {
		score -= 0.05 * float64(len(missing))
		issues = append(issues, "missing_headings")
	}
	if len(page.Citations) < 3 {
		score -= 0.15
		issues = append(issues, "sparse_citations")
	}

	if score < 0 {
		score = 0
	}
	return PageQuality{Score: score, Issues: issues, MissingHeadings: missing}
}
