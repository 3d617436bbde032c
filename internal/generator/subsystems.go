package generator

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"repowiki/internal/wiki"
)

// forbiddenNames are technical-layer words that must never name a subsystem.
var forbiddenNames = map[string]struct{}{
	"frontend": {}, "backend": {}, "api": {}, "utils": {}, "utilities": {},
	"shared": {}, "common": {}, "database": {}, "db": {}, "infrastructure": {},
	"infra": {}, "core": {}, "lib": {}, "misc": {}, "helpers": {},
	"config": {}, "server": {}, "client": {},
}

const maxEntryPoints = 3

// IsForbiddenName reports whether name, trimmed and lowercased, is a technical-layer word.
func IsForbiddenName(name string) bool {
	_, bad := forbiddenNames[strings.ToLower(strings.TrimSpace(name))]
	return bad
}

// ExtractSubsystems produces the run's canonical subsystem list from the
// signal files. Any forbidden name rejects the whole list.
func (e *Engine) ExtractSubsystems(ctx context.Context, repoSlug string, cleaned []string, signal []wiki.RepoFileContent) (wiki.SubsystemList, error) {
	if len(cleaned) == 0 {
		return wiki.SubsystemList{}, wiki.NewError(wiki.CodeEmptyFileTree, "repository has no analyzable files", "repo", repoSlug)
	}

	shown := cleaned
	if len(shown) > e.opts.MaxTreePaths {
		shown = shown[:e.opts.MaxTreePaths]
	}
	prompt := subsystemPrompt(repoSlug, shown, signal)

	list, err := generate[wiki.SubsystemList](ctx, e, "subsystem extraction", prompt, subsystemSchema(), "repo", repoSlug)
	if err != nil {
		return wiki.SubsystemList{}, err
	}
	return ValidateSubsystems(list, cleaned)
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non [a-z0-9] into a hyphen.
func Slugify(s string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ValidateSubsystems checks a model-produced list against the tree:
// names must avoid the forbidden set, there must be 3..8 subsystems with
// unique slug ids, and every path must exist in cleaned.
func ValidateSubsystems(list wiki.SubsystemList, cleaned []string) (wiki.SubsystemList, error) {
	var forbidden []string
	for _, s := range list.Subsystems {
		if IsForbiddenName(s.Name) {
			forbidden = append(forbidden, strings.TrimSpace(s.Name))
		}
	}
	if len(forbidden) > 0 {
		return wiki.SubsystemList{}, wiki.NewError(wiki.CodeInvalidSubsystemNames,
			"subsystem names must describe user-facing features, not technical layers",
			"names", strings.Join(forbidden, ","))
	}

	n := len(list.Subsystems)
	if n < wiki.MinSubsystems || n > wiki.MaxSubsystems {
		return wiki.SubsystemList{}, wiki.NewError(wiki.CodeInvalidGenerationOutput,
			"subsystem count out of range", "count", strconv.Itoa(n))
	}

	tree := make(map[string]struct{}, len(cleaned))
	for _, p := range cleaned {
		tree[p] = struct{}{}
	}

	out := wiki.SubsystemList{
		ProductSummary: strings.TrimSpace(list.ProductSummary),
		Subsystems:     make([]wiki.Subsystem, 0, n),
	}
	ids := make(map[string]struct{}, n)
	for i, s := range list.Subsystems {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return wiki.SubsystemList{}, wiki.NewError(wiki.CodeInvalidGenerationOutput,
				"subsystem has no name", "index", strconv.Itoa(i))
		}
		s.ID = Slugify(s.ID)
		if s.ID == "" {
			s.ID = Slugify(s.Name)
		}
		if s.ID == "" {
			return wiki.SubsystemList{}, wiki.NewError(wiki.CodeInvalidGenerationOutput,
				"subsystem id is empty", "name", s.Name)
		}
		if _, dup := ids[s.ID]; dup {
			return wiki.SubsystemList{}, wiki.NewError(wiki.CodeInvalidGenerationOutput,
				"duplicate subsystem id", "subsystem", s.ID)
		}
		ids[s.ID] = struct{}{}

		s.Description = strings.TrimSpace(s.Description)
		s.UserJourney = strings.TrimSpace(s.UserJourney)
		s.RelevantPaths = keepKnown(s.RelevantPaths, tree, 0)
		s.EntryPoints = keepKnown(s.EntryPoints, tree, maxEntryPoints)
		if len(s.EntryPoints) == 0 {
			s.EntryPoints = keepKnown(s.RelevantPaths, tree, maxEntryPoints)
		}
		s.ExternalServices = cleanServices(s.ExternalServices)
		out.Subsystems = append(out.Subsystems, s)
	}
	return out, nil
}

func keepKnown(paths []string, tree map[string]struct{}, limit int) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if _, ok := tree[p]; !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func cleanServices(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
