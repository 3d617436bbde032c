package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"repowiki/internal/citation"
	"repowiki/internal/lineindex"
	"repowiki/internal/llm"
	"repowiki/internal/wiki"
)

// RequiredHeadings are the sections every page is asked for, in order.
var RequiredHeadings = []string{
	"Overview",
	"How It Works",
	"User Flow",
	"Entry Points",
	"Data Models",
	"External Dependencies",
	"Gotchas",
}

const (
	excerptMaxLines = 60
	minPageChars    = 100
)

type draftResponse struct {
	Markdown string `json:"markdown"`
}

// DraftPage writes the page for sub from its validated evidence and links the
// citations it contains. Pages left without a single valid citation are rejected.
func (e *Engine) DraftPage(ctx context.Context, repoSlug string, sub wiki.Subsystem, ev *wiki.SubsystemEvidence, files FileSet, ref wiki.RepoRef) (wiki.WikiPage, error) {
	if ev == nil || len(ev.Evidence) == 0 {
		return wiki.WikiPage{}, wiki.NewError(wiki.CodeMissingSubsystemEvidence,
			"no evidence computed for subsystem", "subsystem", sub.ID)
	}

	prompt := draftPrompt(repoSlug, sub, Excerpts(ev.Evidence, files))
	resp, err := generate[draftResponse](ctx, e, "page drafting", prompt, draftSchema(), "subsystem", sub.ID)
	if err != nil {
		return wiki.WikiPage{}, err
	}
	return FinalizePage(sub, ev, llm.CleanMarkdown(resp.Markdown), files, ref)
}

// FinalizePage links citations in raw markdown and applies the page gates.
func FinalizePage(sub wiki.Subsystem, ev *wiki.SubsystemEvidence, markdown string, files FileSet, ref wiki.RepoRef) (wiki.WikiPage, error) {
	linked := citation.Link(markdown, ref, files.LineCounts())
	if len(linked.Citations) == 0 {
		return wiki.WikiPage{}, wiki.NewError(wiki.CodeMissingWikiCitations,
			"drafted page has no valid citations", "subsystem", sub.ID)
	}
	body := strings.TrimSpace(linked.Markdown)
	if len(body) < minPageChars {
		return wiki.WikiPage{}, wiki.NewError(wiki.CodeInvalidGenerationOutput,
			"drafted page is too short", "subsystem", sub.ID, "chars", strconv.Itoa(len(body)))
	}

	page := wiki.WikiPage{
		SubsystemID:   sub.ID,
		SubsystemName: sub.Name,
		Markdown:      body,
		Citations:     linked.Citations,
	}
	if ev != nil {
		page.EvidenceSource = ev.Source
	}
	return page, nil
}

// Excerpts renders each evidence item as a numbered block bounded by its own range.
func Excerpts(items []wiki.EvidenceItem, files FileSet) string {
	var sb strings.Builder
	for _, it := range items {
		f, ok := files[it.Path]
		if !ok {
			continue
		}
		body := lineindex.Excerpt(f.Content, it.StartLine, it.EndLine, excerptMaxLines)
		if body == "" {
			continue
		}
		fmt.Fprintf(&sb, "### %s (cite as %s)\n", it.Path, citation.Marker(it.Path, it.StartLine, it.EndLine))
		if it.Rationale != "" {
			fmt.Fprintf(&sb, "Why it matters: %s\n", it.Rationale)
		}
		sb.WriteString("```\n")
		sb.WriteString(body)
		sb.WriteString("\n```\n\n")
	}
	return sb.String()
}

// MissingHeadings lists required headings absent from markdown.
func MissingHeadings(markdown string) []string {
	present := make(map[string]struct{})
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
		present[title] = struct{}{}
	}
	var missing []string
	for _, h := range RequiredHeadings {
		if _, ok := present[strings.ToLower(h)]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}
