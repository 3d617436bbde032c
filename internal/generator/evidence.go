package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"repowiki/internal/extractor"
	"repowiki/internal/lineindex"
	"repowiki/internal/wiki"
)

// Context window shown per candidate file.
const (
	contextMaxLines  = 220
	contextHeadLines = 150
	contextTailLines = 60
	outlineLimit     = 40
)

// Fallback evidence shape.
const (
	fallbackFiles = 3
	fallbackLines = 40
	fallbackScore = 0.2
)

type evidenceResponse struct {
	Evidence []wiki.EvidenceItem `json:"evidence"`
}

// MapEvidence turns the candidate files of sub into validated evidence. When
// the backend fails or nothing it returns survives validation, deterministic
// fallback evidence is built from the opening lines of the candidates.
func (e *Engine) MapEvidence(ctx context.Context, repoSlug string, sub wiki.Subsystem, files FileSet, candidates []string) (wiki.SubsystemEvidence, error) {
	shown := files.Present(candidates)
	if len(shown) == 0 {
		return FallbackEvidence(sub, files, candidates)
	}

	prompt := evidencePrompt(repoSlug, sub, e.evidenceContext(ctx, files, shown))
	resp, err := generate[evidenceResponse](ctx, e, "evidence mapping", prompt, evidenceSchema(), "subsystem", sub.ID)
	if err != nil {
		if ctx.Err() != nil {
			return wiki.SubsystemEvidence{}, ctx.Err()
		}
		e.logger.WarnContext(ctx, "evidence generation failed, using fallback", "subsystem", sub.ID, "error", err)
		return FallbackEvidence(sub, files, shown)
	}

	items := ValidateEvidence(resp.Evidence, shown, files)
	if len(items) == 0 {
		e.logger.WarnContext(ctx, "no valid evidence returned, using fallback",
			"subsystem", sub.ID, "returned", len(resp.Evidence))
		return FallbackEvidence(sub, files, shown)
	}
	return wiki.SubsystemEvidence{
		SubsystemID:   sub.ID,
		SubsystemName: sub.Name,
		Source:        wiki.EvidenceFromModel,
		Evidence:      items,
	}, nil
}

// evidenceContext renders each shown file with its true line count, a symbol
// outline when the language is supported, and a windowed numbered body.
func (e *Engine) evidenceContext(ctx context.Context, files FileSet, shown []string) string {
	var sb strings.Builder
	for _, p := range shown {
		f := files[p]
		fmt.Fprintf(&sb, "### FILE: %s (total lines: %d)\n", p, lineindex.CountLines(f.Content))
		if extractor.Supported(p) {
			symbols, err := extractor.Outline(ctx, p, []byte(f.Content))
			if err != nil {
				e.logger.DebugContext(ctx, "outline failed", "path", p, "error", err)
			} else if len(symbols) > 0 {
				sb.WriteString("Symbols:\n")
				sb.WriteString(extractor.Format(symbols, outlineLimit))
				sb.WriteString("\n")
			}
		}
		sb.WriteString("```\n")
		sb.WriteString(lineindex.Windowed(f.Content, contextMaxLines, contextHeadLines, contextTailLines))
		sb.WriteString("\n```\n\n")
	}
	return sb.String()
}

// ValidateEvidence keeps items whose path was shown and whose range lies in
// the real file, clamps scores to [0,1], drops duplicate ranges, and returns at
// most wiki.MaxEvidenceItems sorted by descending score.
func ValidateEvidence(items []wiki.EvidenceItem, shown []string, files FileSet) []wiki.EvidenceItem {
	allowed := toSet(shown...)
	seen := make(map[string]struct{}, len(items))
	out := make([]wiki.EvidenceItem, 0, len(items))
	for _, it := range items {
		it.Path = strings.TrimPrefix(strings.TrimSpace(it.Path), "./")
		if _, ok := allowed[it.Path]; !ok {
			continue
		}
		total, ok := files.LineCount(it.Path)
		if !ok || it.StartLine <= 0 || it.EndLine < it.StartLine || it.EndLine > total {
			continue
		}
		key := fmt.Sprintf("%s:%d-%d", it.Path, it.StartLine, it.EndLine)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		it.Score = clamp01(it.Score)
		it.Rationale = strings.TrimSpace(it.Rationale)
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > wiki.MaxEvidenceItems {
		out = out[:wiki.MaxEvidenceItems]
	}
	return out
}

// FallbackEvidence cites the opening lines of up to three fetched candidates.
func FallbackEvidence(sub wiki.Subsystem, files FileSet, candidates []string) (wiki.SubsystemEvidence, error) {
	available := files.Present(candidates)
	if len(available) == 0 {
		return wiki.SubsystemEvidence{}, wiki.NewError(wiki.CodeEmptyEvidenceContext,
			"no candidate files available for subsystem", "subsystem", sub.ID)
	}
	if len(available) > fallbackFiles {
		available = available[:fallbackFiles]
	}

	items := make([]wiki.EvidenceItem, 0, len(available))
	for _, p := range available {
		total, _ := files.LineCount(p)
		items = append(items, wiki.EvidenceItem{
			Path:      p,
			StartLine: 1,
			EndLine:   min(fallbackLines, total),
			Rationale: fmt.Sprintf("Fallback evidence: opening lines of %s.", p),
			Score:     fallbackScore,
		})
	}
	return wiki.SubsystemEvidence{
		SubsystemID:   sub.ID,
		SubsystemName: sub.Name,
		Source:        wiki.EvidenceFromFallback,
		Evidence:      items,
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
