package generator

import (
	"context"
	"strconv"
	"strings"

	"repowiki/internal/wiki"
)

// SelectSignalPaths asks the backend for the paths that best describe product
// behavior and keeps only those that exist in cleaned.
func (e *Engine) SelectSignalPaths(ctx context.Context, repoSlug string, cleaned []string) ([]string, error) {
	if len(cleaned) == 0 {
		return nil, wiki.NewError(wiki.CodeEmptyFileTree, "repository has no analyzable files", "repo", repoSlug)
	}

	shown := cleaned
	if len(shown) > e.opts.MaxTreePaths {
		shown = shown[:e.opts.MaxTreePaths]
	}
	prompt := signalPrompt(repoSlug, shown, len(cleaned), e.opts.MaxSignalPaths)

	returned, err := generate[[]string](ctx, e, "signal selection", prompt, signalSchema(e.opts.MaxSignalPaths), "repo", repoSlug)
	if err != nil {
		return nil, err
	}

	selected := ValidateSignalPaths(returned, cleaned, e.opts.MaxSignalPaths)
	if len(selected) == 0 {
		return nil, wiki.NewError(wiki.CodeInvalidSignalPaths, "signal selection returned no paths present in the tree",
			"repo", repoSlug, "returned", strconv.Itoa(len(returned)))
	}
	e.logger.DebugContext(ctx, "signal paths selected", "repo", repoSlug, "returned", len(returned), "kept", len(selected))
	return selected, nil
}

// ValidateSignalPaths trims and dedupes returned, drops anything not in
// cleaned, and caps the result at max (max <= 0 means no cap).
func ValidateSignalPaths(returned, cleaned []string, max int) []string {
	tree := make(map[string]struct{}, len(cleaned))
	for _, p := range cleaned {
		tree[p] = struct{}{}
	}

	out := make([]string, 0, len(returned))
	seen := make(map[string]struct{}, len(returned))
	for _, p := range returned {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if _, ok := tree[p]; !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
