package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"repowiki/internal/wiki"
)

const fallbackNotice = "> Evidence for this page was selected heuristically because the model returned none that could be verified. Treat its citations as lower confidence."

// WriteWiki writes one markdown file per page, an index and the raw result
// under dir.
func WriteWiki(dir string, rec *wiki.AnalyzeCacheRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, p := range rec.Result.WikiPages {
		path := filepath.Join(dir, p.SubsystemID+".md")
		if err := os.WriteFile(path, []byte(renderPage(rec, p)), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte(renderIndex(rec)), 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "result.json"), data, 0644)
}

func renderPage(rec *wiki.AnalyzeCacheRecord, p wiki.WikiPage) string {
	var sb strings.Builder
	if !strings.HasPrefix(p.Markdown, "# ") {
		sb.WriteString("# " + p.SubsystemName + "\n\n")
	}
	if p.EvidenceSource == wiki.EvidenceFromFallback {
		sb.WriteString(fallbackNotice + "\n\n")
	}
	sb.WriteString(p.Markdown)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "_Generated from `%s/%s` at commit `%s`. [Back to index](index.md)_\n", rec.Owner, rec.Repo, rec.HeadSHA)
	return sb.String()
}

func renderIndex(rec *wiki.AnalyzeCacheRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s/%s\n\n", rec.Owner, rec.Repo)
	fmt.Fprintf(&sb, "Commit `%s`\n\n", rec.HeadSHA)
	if s := strings.TrimSpace(rec.Result.ProductSummary); s != "" {
		sb.WriteString(s + "\n\n")
	}
	sb.WriteString("## Subsystems\n\n")

	pages := make(map[string]wiki.WikiPage, len(rec.Result.WikiPages))
	for _, p := range rec.Result.WikiPages {
		pages[p.SubsystemID] = p
	}
	for _, sub := range rec.Result.Subsystems {
		p, ok := pages[sub.ID]
		if !ok {
			fmt.Fprintf(&sb, "- %s: %s\n", sub.Name, sub.Description)
			continue
		}
		fmt.Fprintf(&sb, "- [%s](%s.md): %s (%d citations)\n", sub.Name, sub.ID, sub.Description, len(p.Citations))
	}
	return sb.String()
}

func countCitations(rec *wiki.AnalyzeCacheRecord) int {
	n := 0
	for _, p := range rec.Result.WikiPages {
		n += len(p.Citations)
	}
	return n
}

func countFallbackPages(rec *wiki.AnalyzeCacheRecord) int {
	n := 0
	for _, p := range rec.Result.WikiPages {
		if p.EvidenceSource == wiki.EvidenceFromFallback {
			n++
		}
	}
	return n
}
