package generator

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"repowiki/internal/wiki"
)

// Scoring weights.
const (
	weightRelevantPath = 12.0
	weightEntryPoint   = 10.0
	weightKeywordToken = 1.4
	weightIDMatch      = 3.0
	weightNameMatch    = 2.0

	extWeightSource = 2.0
	extWeightDoc    = 0.5
	extWeightOther  = 1.0

	minTokenLen = 3
)

var sourceExts = toSet(
	".go", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".rb", ".java", ".kt", ".kts",
	".scala", ".rs", ".c", ".h", ".cc", ".cpp", ".hpp", ".cs", ".swift", ".php", ".vue", ".svelte",
	".ex", ".exs", ".erl", ".clj", ".dart", ".lua", ".m", ".mm", ".sh", ".sql", ".graphql", ".proto",
)

var docConfigExts = toSet(
	".md", ".mdx", ".rst", ".txt", ".adoc",
	".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".xml", ".env", ".properties",
)

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases s, splits on non-alphanumerics and drops short tokens.
func Tokenize(s string) []string {
	parts := tokenSplit.Split(strings.ToLower(s), -1)
	out := parts[:0]
	for _, p := range parts {
		if len(p) >= minTokenLen {
			out = append(out, p)
		}
	}
	return out
}

// ScorePaths ranks cleaned paths by lexical relevance to sub. It is pure and
// deterministic: ties break on ascending path.
func ScorePaths(sub wiki.Subsystem, cleaned []string, maxFiles int) []wiki.ScoredPath {
	keywords := make(map[string]struct{})
	for _, field := range []string{
		sub.ID, sub.Name, sub.Description, sub.UserJourney,
		strings.Join(sub.RelevantPaths, " "), strings.Join(sub.EntryPoints, " "),
	} {
		for _, tok := range Tokenize(field) {
			keywords[tok] = struct{}{}
		}
	}
	relevant := toSet(sub.RelevantPaths...)
	entries := toSet(sub.EntryPoints...)
	id := strings.ToLower(strings.TrimSpace(sub.ID))
	hyphenated := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(sub.Name)), " ", "-")

	seen := make(map[string]struct{}, len(cleaned))
	scored := make([]wiki.ScoredPath, 0, len(cleaned))
	for _, p := range cleaned {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		score := 0.0
		if _, ok := relevant[p]; ok {
			score += weightRelevantPath
		}
		if _, ok := entries[p]; ok {
			score += weightEntryPoint
		}
		for _, tok := range Tokenize(p) {
			if _, ok := keywords[tok]; ok {
				score += weightKeywordToken
			}
		}
		lower := strings.ToLower(p)
		if id != "" && strings.Contains(lower, id) {
			score += weightIDMatch
		}
		if hyphenated != "" && strings.Contains(lower, hyphenated) {
			score += weightNameMatch
		}
		score += extensionWeight(p)

		if score > 0 {
			scored = append(scored, wiki.ScoredPath{Path: p, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Path < scored[j].Path
	})
	if maxFiles > 0 && len(scored) > maxFiles {
		scored = scored[:maxFiles]
	}
	return scored
}

func extensionWeight(p string) float64 {
	ext := strings.ToLower(path.Ext(p))
	if _, ok := sourceExts[ext]; ok {
		return extWeightSource
	}
	if _, ok := docConfigExts[ext]; ok {
		return extWeightDoc
	}
	return extWeightOther
}

// CandidatePaths returns the ranked paths only.
func CandidatePaths(scored []wiki.ScoredPath) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Path
	}
	return out
}

func toSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
