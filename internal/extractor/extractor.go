// Package extractor builds a symbol outline (declarations with their line
// ranges) for source files. The outline is handed to the evidence prompt as a
// hint for picking tight, real line ranges.
package extractor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Symbol is a top-level or class-level declaration.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Supported reports whether Outline understands the file's language.
func Supported(filePath string) bool {
	_, ok := languageFor(filePath)
	return ok
}

// Outline parses content and returns its declarations ordered by start line.
// Files in unsupported languages yield no symbols and no error.
func Outline(ctx context.Context, filePath string, content []byte) ([]Symbol, error) {
	lang, ok := languageFor(filePath)
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	defer tree.Close()

	query, err := sitter.NewQuery([]byte(lang.query), lang.grammar())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer query.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var symbols []Symbol
	seen := make(map[string]bool)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			sym, ok := lang.symbol(query.CaptureNameForId(c.Index), c.Node, content)
			if !ok {
				continue
			}
			key := fmt.Sprintf("%s:%d", sym.Name, sym.StartLine)
			if seen[key] {
				continue
			}
			seen[key] = true
			symbols = append(symbols, sym)
		}
	}

	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].StartLine == symbols[j].StartLine {
			return symbols[i].Name < symbols[j].Name
		}
		return symbols[i].StartLine < symbols[j].StartLine
	})
	return symbols, nil
}

// Format renders symbols for a prompt, at most limit entries (0 = all).
func Format(symbols []Symbol, limit int) string {
	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}
	var sb strings.Builder
	for _, s := range symbols {
		fmt.Fprintf(&sb, "- %s %s (lines %d-%d)\n", s.Kind, s.Name, s.StartLine, s.EndLine)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func languageFor(filePath string) (languageSpec, bool) {
	ext := strings.ToLower(path.Ext(filePath))
	for _, spec := range languages {
		for _, e := range spec.exts {
			if e == ext {
				return spec, true
			}
		}
	}
	return languageSpec{}, false
}

func nodeRange(node *sitter.Node) (int, int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}
